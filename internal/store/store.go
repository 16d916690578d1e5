package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/timtransfer/timtransfer/internal/domain"
)

// ErrNotFound reports that no bundle record exists for the requested ID.
var ErrNotFound = errors.New("bundle not found")

const (
	bundlePrefix = "bundle."
	metaSuffix   = ".meta.json"
	jsonSuffix   = ".json"
)

// Store persists bundle state under a single directory: one bundle record
// per bundle ("bundle.<id>.json"), one metadata record per file
// ("<id>.meta.json") and one payload blob per file ("<id><ext>"). It is the
// leaf dependency of the repository, the admission controller and the reaper.
type Store struct {
	dir string
}

// New creates the upload directory if needed and returns a Store rooted at it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating upload dir %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store is rooted at.
func (s *Store) Dir() string { return s.dir }

// PayloadPath returns the on-disk path of a file's payload blob. The blob
// keeps the original name's extension so archives can be named correctly.
func (s *Store) PayloadPath(f domain.FileEntry) string {
	return filepath.Join(s.dir, f.ID+filepath.Ext(f.OriginalName))
}

func (s *Store) metaPath(fileID string) string {
	return filepath.Join(s.dir, fileID+metaSuffix)
}

func (s *Store) bundlePath(bundleID string) string {
	return filepath.Join(s.dir, bundlePrefix+bundleID+jsonSuffix)
}

// StagePayload streams a file's payload to disk under its entry's ID,
// returning the number of bytes written. Staged bytes count toward the disk
// quota immediately; callers must discard them if admission later fails.
func (s *Store) StagePayload(f domain.FileEntry, r io.Reader) (int64, error) {
	dst, err := os.Create(s.PayloadPath(f))
	if err != nil {
		return 0, fmt.Errorf("creating payload file: %w", err)
	}
	n, err := io.Copy(dst, r)
	if cerr := dst.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("writing payload for %q: %w", f.OriginalName, err)
	}
	return n, nil
}

// WriteFileMeta persists the metadata record for a single file.
func (s *Store) WriteFileMeta(f domain.FileEntry) error {
	meta := struct {
		OriginalName string `json:"originalName"`
		Size         int64  `json:"size"`
		MimeType     string `json:"mimeType,omitempty"`
	}{f.OriginalName, f.Size, f.MimeType}
	if err := writeJSONFile(s.metaPath(f.ID), meta); err != nil {
		return fmt.Errorf("writing file meta for %q: %w", f.ID, err)
	}
	return nil
}

// WriteBundle persists the bundle record. It must be written after every
// referenced file meta so a reader never observes a bundle whose file
// records are missing.
func (s *Store) WriteBundle(b domain.Bundle) error {
	if err := writeJSONFile(s.bundlePath(b.ID), b); err != nil {
		return fmt.Errorf("writing bundle record %q: %w", b.ID, err)
	}
	return nil
}

// ReadBundle looks a bundle record up by ID. A missing record yields
// ErrNotFound; a record that cannot be parsed yields the decode error.
func (s *Store) ReadBundle(id string) (domain.Bundle, error) {
	data, err := os.ReadFile(s.bundlePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Bundle{}, ErrNotFound
		}
		return domain.Bundle{}, fmt.Errorf("reading bundle record %q: %w", id, err)
	}
	var b domain.Bundle
	if err = json.Unmarshal(data, &b); err != nil {
		return domain.Bundle{}, fmt.Errorf("decoding bundle record %q: %w", id, err)
	}
	b.ID = id
	return b, nil
}

// RemoveFile deletes a file's payload blob and metadata record. Already
// missing files are not an error; deletion must stay idempotent.
func (s *Store) RemoveFile(f domain.FileEntry) error {
	var errs []error
	if err := os.Remove(s.PayloadPath(f)); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("removing payload %q: %w", f.ID, err))
	}
	if err := os.Remove(s.metaPath(f.ID)); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("removing file meta %q: %w", f.ID, err))
	}
	return errors.Join(errs...)
}

// RemoveBundleRecord deletes the bundle record only. Callers must remove the
// referenced files first (see Repository.Delete for the ordering contract).
func (s *Store) RemoveBundleRecord(id string) error {
	if err := os.Remove(s.bundlePath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing bundle record %q: %w", id, err)
	}
	return nil
}

// BundleIDs enumerates the IDs of every bundle record currently on disk.
func (s *Store) BundleIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading upload dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, bundlePrefix) || !strings.HasSuffix(name, jsonSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, bundlePrefix), jsonSuffix))
	}
	return ids, nil
}

// BundleCount returns the number of live bundle records, 0 on scan failure.
func (s *Store) BundleCount() int {
	ids, err := s.BundleIDs()
	if err != nil {
		slog.Error("counting bundles", "err", err)
		return 0
	}
	return len(ids)
}

// DiskUsage recomputes the total bytes occupied by the upload directory by
// scanning it. Quota state is derived on demand rather than tracked
// incrementally, so it cannot drift after a crash.
func (s *Store) DiskUsage() (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("reading upload dir: %w", err)
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, fmt.Errorf("statting %q: %w", e.Name(), err)
		}
		total += info.Size()
	}
	return total, nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	if err = os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return nil
}
