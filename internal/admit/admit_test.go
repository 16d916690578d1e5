package admit

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timtransfer/timtransfer/internal/domain"
	"github.com/timtransfer/timtransfer/internal/store"
)

const (
	testSessionCap = 1 << 20 // 1 MiB
	testDiskQuota  = 4 << 20 // 4 MiB
)

func newTestController(t *testing.T) (*Controller, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)
	return New(st, testSessionCap, testDiskQuota), st
}

func stage(t *testing.T, st *store.Store, name string, size int) domain.FileEntry {
	t.Helper()
	f := domain.FileEntry{ID: "id-" + name, OriginalName: name}
	n, err := st.StagePayload(f, strings.NewReader(strings.Repeat("x", size)))
	require.NoError(t, err)
	f.Size = n
	return f
}

func assertNoResidue(t *testing.T, st *store.Store) {
	t.Helper()
	usage, err := st.DiskUsage()
	require.NoError(t, err)
	assert.Zero(t, usage, "a rejected upload must leave no bytes on disk")
}

func TestAdmitAccepts(t *testing.T) {
	c, st := newTestController(t)
	files := []domain.FileEntry{stage(t, st, "a.txt", 100), stage(t, st, "b.pdf", 200)}

	require.NoError(t, c.Admit(files, "1234"))

	// admission has no side effects on success; staged payloads stay put
	for _, f := range files {
		assert.FileExists(t, st.PayloadPath(f))
	}
}

func TestAdmitRejectsBlockedExtension(t *testing.T) {
	c, st := newTestController(t)
	cases := []string{"virus.exe", "script.VBS", "archive.Jar", "setup.msi"}
	for _, name := range cases {
		t.Run(name, func(t *testing.T) {
			files := []domain.FileEntry{stage(t, st, name, 10)}
			err := c.Admit(files, "1234")

			var extErr BlockedExtensionError
			require.ErrorAs(t, err, &extErr)
			assert.Equal(t, strings.ToLower(filepath.Ext(name)), extErr.Ext,
				"rejection must name the offending extension")
			assertNoResidue(t, st)
		})
	}
}

func TestAdmitRejectsMalformedPassword(t *testing.T) {
	c, st := newTestController(t)
	for _, pwd := range []string{"", "123", "12345", "abcd", "12a4", "12 34"} {
		t.Run("pwd="+pwd, func(t *testing.T) {
			files := []domain.FileEntry{stage(t, st, "a.txt", 10)}
			err := c.Admit(files, pwd)
			assert.ErrorIs(t, err, ErrInvalidPassword)
			assertNoResidue(t, st)
		})
	}
}

func TestAdmitRejectsEmptyBatch(t *testing.T) {
	c, _ := newTestController(t)
	assert.ErrorIs(t, c.Admit(nil, "1234"), ErrEmptyBatch)
}

func TestAdmitRejectsOverSessionCap(t *testing.T) {
	c, st := newTestController(t)
	// two files jointly one byte over the cap
	files := []domain.FileEntry{
		stage(t, st, "a.bin", testSessionCap/2),
		stage(t, st, "b.bin", testSessionCap/2+1),
	}
	err := c.Admit(files, "1234")

	var capErr SessionCapError
	require.ErrorAs(t, err, &capErr)
	assert.EqualValues(t, testSessionCap+1, capErr.Total, "rejection must report the actual total")
	assert.EqualValues(t, testSessionCap, capErr.Cap)
	assertNoResidue(t, st)
}

func TestAdmitRejectsSingleFileOverCap(t *testing.T) {
	c, st := newTestController(t)
	f := stage(t, st, "big.bin", 10)
	f.Size = testSessionCap + 1 // size is trusted from admission time
	err := c.Admit([]domain.FileEntry{f}, "1234")

	var tooLarge FileTooLargeError
	assert.ErrorAs(t, err, &tooLarge)
	assertNoResidue(t, st)
}

func TestAdmitRejectsWhenDiskFull(t *testing.T) {
	c, st := newTestController(t)
	// existing bundles already near the quota
	stage(t, st, "existing.bin", testDiskQuota-100)
	files := []domain.FileEntry{stage(t, st, "incoming.bin", 200)}

	err := c.Admit(files, "1234")

	var quotaErr QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.EqualValues(t, testDiskQuota, quotaErr.Quota)
	// only the rejected batch is discarded, existing payloads stay
	usage, err := st.DiskUsage()
	require.NoError(t, err)
	assert.EqualValues(t, testDiskQuota-100, usage)
}

func TestCheckOrderShortCircuits(t *testing.T) {
	c, st := newTestController(t)
	// blocked extension outranks the malformed password
	files := []domain.FileEntry{stage(t, st, "evil.exe", 10)}
	var extErr BlockedExtensionError
	assert.ErrorAs(t, c.Admit(files, "not-a-pin"), &extErr)

	// malformed password outranks the empty batch
	assert.ErrorIs(t, c.Admit(nil, "bad"), ErrInvalidPassword)
}

func TestCheckExtensionAllowsRegularFiles(t *testing.T) {
	c, _ := newTestController(t)
	for _, name := range []string{"doc.pdf", "pic.jpg", "noext", "data.tar.gz"} {
		assert.NoErrorf(t, c.CheckExtension(name), "%q should be admitted", name)
	}
}
