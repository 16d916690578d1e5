// Package zipr streams a bundle's payloads as a single zip archive. It
// favors latency over compression ratio: payloads are arbitrary user
// content, so the archive is written with a fast deflate level straight to
// the outbound stream.
package zipr

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/timtransfer/timtransfer/internal/domain"
	"github.com/timtransfer/timtransfer/internal/store"
)

// archiveNameMaxLen caps the sanitized basename used in archive filenames.
const archiveNameMaxLen = 80

var baseNameSanitizer = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "-",
	"?", "-", "\"", "-", "<", "-", ">", "-", "|", "-",
)

// Zipr writes zip archives of bundle payloads.
type Zipr struct {
	store *store.Store
	level int
}

// New returns a Zipr reading payloads from st and compressing entries at
// the given flate level. flate.BestSpeed is the intended production level.
func New(st *store.Store, level int) *Zipr {
	return &Zipr{store: st, level: level}
}

// StreamArchive writes a zip archive of every file in the bundle to w, each
// entry named after its original name. A payload missing on disk is skipped
// silently rather than aborting the download; the archive simply omits that
// entry. The caller owns what happens after the stream returns, including
// deleting the bundle.
func (z *Zipr) StreamArchive(w io.Writer, b domain.Bundle) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, z.level)
	})
	buf := make([]byte, 1024*1024) // 1MB buffer
	for _, f := range b.Files {
		if err := z.writeEntry(zw, f, buf); err != nil {
			_ = zw.Close()
			return fmt.Errorf("archiving %q: %w", f.OriginalName, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return nil
}

func (z *Zipr) writeEntry(zw *zip.Writer, f domain.FileEntry, buf []byte) error {
	payload, err := os.Open(z.store.PayloadPath(f))
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("payload missing at archive time, skipping", "file", f.ID)
			return nil
		}
		return fmt.Errorf("opening payload: %w", err)
	}
	defer func() { _ = payload.Close() }()

	fh := &zip.FileHeader{
		Name:     f.OriginalName,
		Method:   zip.Deflate,
		Modified: time.Now(),
	}
	entry, err := zw.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("creating archive header: %w", err)
	}
	if _, err = io.CopyBuffer(entry, payload, buf); err != nil {
		return fmt.Errorf("copying payload to archive: %w", err)
	}
	return nil
}

// ArchiveName derives the download filename for a bundle:
// "timtransfer-<date>-<basename>.zip", where basename is the single file's
// stem when the bundle holds exactly one file, else a generic label. The
// basename is stripped of path-separator and shell-special characters and
// truncated so it is always safe to echo into a Content-Disposition header.
func ArchiveName(now time.Time, files []domain.FileEntry) string {
	base := "files"
	if len(files) == 1 {
		name := filepath.Base(files[0].OriginalName)
		base = strings.TrimSuffix(name, filepath.Ext(name))
	}
	base = baseNameSanitizer.Replace(base)
	if r := []rune(base); len(r) > archiveNameMaxLen {
		base = string(r[:archiveNameMaxLen])
	}
	if base == "" {
		base = "file-download"
	}
	return fmt.Sprintf("timtransfer-%s-%s.zip", now.Format("2006-01-02"), base)
}
