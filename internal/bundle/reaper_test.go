package bundle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timtransfer/timtransfer/internal/domain"
)

// backdate rewrites a bundle record with an aged createdAt, simulating a
// bundle uploaded in the past.
func backdate(t *testing.T, repo *Repository, b domain.Bundle, age time.Duration) {
	t.Helper()
	b.CreatedAt = time.Now().Add(-age).UnixMilli()
	require.NoError(t, repo.store.WriteBundle(b))
}

func TestSweepDeletesExpired(t *testing.T) {
	repo, st := newTestRepo(t, 24*time.Hour)

	expired, err := repo.Create(stageFiles(t, st, "old.txt"), "")
	require.NoError(t, err)
	backdate(t, repo, expired, 25*time.Hour)

	fresh, err := repo.Create(stageFiles(t, st, "new.txt"), "")
	require.NoError(t, err)

	res := repo.Sweep(t.Context(), time.Now())
	assert.Equal(t, 1, res.Deleted)
	assert.Zero(t, res.Errors)

	_, err = repo.Get(expired.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Get(fresh.ID)
	assert.NoError(t, err, "fresh bundle must survive the sweep")
}

func TestSweepDeletesMissingCreatedAt(t *testing.T) {
	repo, st := newTestRepo(t, 24*time.Hour)
	b, err := repo.Create(stageFiles(t, st, "a.txt"), "")
	require.NoError(t, err)
	b.CreatedAt = 0
	require.NoError(t, repo.store.WriteBundle(b))

	res := repo.Sweep(t.Context(), time.Now())
	assert.Equal(t, 1, res.Deleted)

	_, err = repo.Get(b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepCountsCorruptedRecords(t *testing.T) {
	repo, st := newTestRepo(t, 24*time.Hour)
	require.NoError(t, os.WriteFile(filepath.Join(st.Dir(), "bundle.mangled.json"), []byte("not json"), 0o640))

	ok, err := repo.Create(stageFiles(t, st, "a.txt"), "")
	require.NoError(t, err)
	backdate(t, repo, ok, 25*time.Hour)

	res := repo.Sweep(t.Context(), time.Now())
	assert.Equal(t, 1, res.Deleted, "corruption elsewhere must not stop the sweep")
	assert.Equal(t, 1, res.Errors)
}

func TestSweepIsRepeatable(t *testing.T) {
	repo, st := newTestRepo(t, 24*time.Hour)
	b, err := repo.Create(stageFiles(t, st, "a.txt"), "")
	require.NoError(t, err)
	backdate(t, repo, b, 25*time.Hour)

	first := repo.Sweep(t.Context(), time.Now())
	assert.Equal(t, 1, first.Deleted)

	second := repo.Sweep(t.Context(), time.Now())
	assert.Zero(t, second.Deleted, "a second sweep over clean state deletes nothing")
	assert.Zero(t, second.Errors)
}
