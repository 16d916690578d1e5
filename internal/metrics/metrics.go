// Package metrics provides the fire-and-forget counter sink the request
// path reports into. Counters are persisted in a single JSON file so they
// survive restarts; the core never reads them back, only the status and
// metrics endpoints do.
package metrics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Counter names reported by the service.
const (
	UploadsTotal           = "uploads_total"
	DownloadsTotal         = "downloads_total"
	SharesViewed           = "shares_viewed"
	APIShareRequests       = "api_share_requests"
	PasswordVerifyAttempts = "password_verify_attempts"
	PasswordVerifySuccess  = "password_verify_success"
	PasswordVerifyFail     = "password_verify_fail"
	UploadErrors           = "upload_errors"
	DownloadErrors404      = "download_errors_404"
	DownloadErrorsAuth     = "download_errors_auth"
	BytesUploaded          = "bytes_uploaded"
	BytesDownloaded        = "bytes_downloaded"
)

var defaultCounters = []string{
	UploadsTotal, DownloadsTotal, SharesViewed, APIShareRequests,
	PasswordVerifyAttempts, PasswordVerifySuccess, PasswordVerifyFail,
	UploadErrors, DownloadErrors404, DownloadErrorsAuth,
	BytesUploaded, BytesDownloaded,
}

// Sink receives increment signals keyed by event name. Implementations must
// never fail the caller; metrics are strictly best-effort.
type Sink interface {
	Inc(name string)
	Add(name string, n int64)
}

// Discard is a Sink that drops everything, for tests and wiring defaults.
type Discard struct{}

func (Discard) Inc(string)        {}
func (Discard) Add(string, int64) {}

// Snapshot is a point-in-time view of all counters.
type Snapshot struct {
	Counters    map[string]int64
	LastUpdated time.Time
}

// FileStore is a Sink backed by one JSON file. Every update loads, bumps
// and rewrites the file under a lock; cheap enough at this service's
// request rates and immune to in-process drift.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a FileStore persisting to path, creating the parent
// directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating metrics dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (fs *FileStore) Inc(name string) { fs.Add(name, 1) }

func (fs *FileStore) Add(name string, n int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	data := fs.load()
	data.Counters[name] += n
	data.LastUpdated = time.Now().UTC()
	if err := fs.save(data); err != nil {
		slog.Error("persisting metrics", "counter", name, "err", err)
	}
}

// Snapshot returns the current counter values, with every known counter
// present even if never incremented.
func (fs *FileStore) Snapshot() Snapshot {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.load()
}

type fileFormat struct {
	Counters    map[string]int64 `json:"counters"`
	LastUpdated time.Time        `json:"last_updated,omitzero"`
}

func (fs *FileStore) load() Snapshot {
	s := Snapshot{Counters: make(map[string]int64, len(defaultCounters))}
	for _, name := range defaultCounters {
		s.Counters[name] = 0
	}
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return s // missing or unreadable file starts from zero
	}
	var ff fileFormat
	if err = json.Unmarshal(data, &ff); err != nil {
		slog.Error("decoding metrics file, starting fresh", "err", err)
		return s
	}
	for name, v := range ff.Counters {
		s.Counters[name] = v
	}
	s.LastUpdated = ff.LastUpdated
	return s
}

func (fs *FileStore) save(s Snapshot) error {
	data, err := json.MarshalIndent(fileFormat{Counters: s.Counters, LastUpdated: s.LastUpdated}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	if err = os.WriteFile(fs.path, data, 0o640); err != nil {
		return fmt.Errorf("writing metrics file: %w", err)
	}
	return nil
}

// PrometheusFormat renders a snapshot in the Prometheus text exposition
// format, one counter per metric prefixed with the product name.
func PrometheusFormat(s Snapshot) string {
	names := make([]string, 0, len(s.Counters))
	for name := range s.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		metric := "timtransfer_" + name
		fmt.Fprintf(&b, "# HELP %s TimTransfer metric %s\n", metric, name)
		fmt.Fprintf(&b, "# TYPE %s counter\n", metric)
		fmt.Fprintf(&b, "%s %d\n", metric, s.Counters[name])
	}
	return b.String()
}
