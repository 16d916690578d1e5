package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "metrics", "metrics.json"))
	require.NoError(t, err)
	return fs
}

func TestSnapshotStartsAtZero(t *testing.T) {
	fs := newTestStore(t)
	snap := fs.Snapshot()
	assert.Zero(t, snap.Counters[UploadsTotal])
	assert.Contains(t, snap.Counters, DownloadsTotal, "every known counter must be present")
	assert.True(t, snap.LastUpdated.IsZero())
}

func TestIncAndAdd(t *testing.T) {
	fs := newTestStore(t)
	fs.Inc(UploadsTotal)
	fs.Inc(UploadsTotal)
	fs.Add(BytesUploaded, 1024)

	snap := fs.Snapshot()
	assert.EqualValues(t, 2, snap.Counters[UploadsTotal])
	assert.EqualValues(t, 1024, snap.Counters[BytesUploaded])
	assert.False(t, snap.LastUpdated.IsZero())
}

func TestCountersSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	fs, err := NewFileStore(path)
	require.NoError(t, err)
	fs.Inc(DownloadsTotal)
	fs.Add(BytesDownloaded, 2048)

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	snap := reopened.Snapshot()
	assert.EqualValues(t, 1, snap.Counters[DownloadsTotal])
	assert.EqualValues(t, 2048, snap.Counters[BytesDownloaded])
}

func TestCorruptedFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o640))
	fs, err := NewFileStore(path)
	require.NoError(t, err)

	snap := fs.Snapshot()
	assert.Zero(t, snap.Counters[UploadsTotal], "corruption must not take the sink down")

	fs.Inc(UploadsTotal)
	assert.EqualValues(t, 1, fs.Snapshot().Counters[UploadsTotal])
}

func TestPrometheusFormat(t *testing.T) {
	fs := newTestStore(t)
	fs.Inc(UploadsTotal)

	out := PrometheusFormat(fs.Snapshot())
	assert.Contains(t, out, "# HELP timtransfer_uploads_total")
	assert.Contains(t, out, "# TYPE timtransfer_uploads_total counter")
	assert.Contains(t, out, "timtransfer_uploads_total 1\n")
	assert.Contains(t, out, "timtransfer_downloads_total 0\n")
}

func TestDiscardSink(t *testing.T) {
	var s Sink = Discard{}
	s.Inc(UploadsTotal)
	s.Add(BytesUploaded, 10) // must simply not panic
}
