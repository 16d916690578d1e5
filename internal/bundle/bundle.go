// Package bundle implements the bundle repository: creation, lookup,
// idempotent deletion and expiry of share units, plus the sweep that reaps
// expired bundles. All durable state lives in the store package; this
// package owns the ordering rules that keep concurrent readers consistent.
package bundle

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/timtransfer/timtransfer/internal/domain"
	"github.com/timtransfer/timtransfer/internal/store"
)

// ErrNotFound reports that a bundle does not exist. Expired and corrupted
// bundles are surfaced the same way at the boundary, so probers cannot
// distinguish expiry from true absence.
var ErrNotFound = store.ErrNotFound

// Repository creates, looks up and deletes bundles against a Store, and
// decides expiry against a fixed window.
type Repository struct {
	store  *store.Store
	expiry time.Duration
}

func NewRepository(st *store.Store, expiry time.Duration) *Repository {
	return &Repository{store: st, expiry: expiry}
}

// Create assigns a fresh bundle ID, persists one metadata record per file
// and finally the bundle record stamped with the current time. The bundle
// record is written last so a reader either finds the complete bundle or
// nothing at all.
func (r *Repository) Create(files []domain.FileEntry, passwordHash string) (domain.Bundle, error) {
	if len(files) == 0 {
		return domain.Bundle{}, errors.New("bundle must contain at least one file")
	}
	b := domain.Bundle{
		ID:           uuid.NewString(),
		Files:        files,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UnixMilli(),
	}
	for _, f := range files {
		if err := r.store.WriteFileMeta(f); err != nil {
			return domain.Bundle{}, fmt.Errorf("creating bundle: %w", err)
		}
	}
	if err := r.store.WriteBundle(b); err != nil {
		return domain.Bundle{}, fmt.Errorf("creating bundle: %w", err)
	}
	return b, nil
}

// Get looks a bundle up by ID. Callers are responsible for checking expiry
// on the result.
func (r *Repository) Get(id string) (domain.Bundle, error) {
	return r.store.ReadBundle(id)
}

// Delete removes a bundle's payloads, file metadata and finally its bundle
// record. It is idempotent: deleting an already-gone bundle is a no-op, so
// two racing deletes both succeed. Payloads go first and the record last,
// which keeps a concurrent Get atomic at the granularity of "record exists
// or not". A failure on one file is logged and never blocks cleanup of the
// rest.
func (r *Repository) Delete(id string) error {
	b, err := r.store.ReadBundle(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		// Corrupted record: nothing tells us which payloads it referenced,
		// but the record itself must still go.
		slog.Error("deleting bundle with unreadable record", "bundle", id, "err", err)
		return r.store.RemoveBundleRecord(id)
	}
	for _, f := range b.Files {
		if err = r.store.RemoveFile(f); err != nil {
			slog.Error("removing bundle file", "bundle", id, "file", f.ID, "err", err)
		}
	}
	return r.store.RemoveBundleRecord(id)
}

// IsExpired reports whether the bundle's age exceeds the expiry window at
// the given instant. A bundle without a creation timestamp is always
// expired; that fail-safe default is deliberate and must not be relaxed.
func (r *Repository) IsExpired(b domain.Bundle, now time.Time) bool {
	if b.CreatedAt == 0 {
		return true
	}
	return now.UnixMilli()-b.CreatedAt > r.expiry.Milliseconds()
}

// ExpiresAt returns the instant the bundle becomes expired, in unix millis.
func (r *Repository) ExpiresAt(b domain.Bundle) int64 {
	return b.CreatedAt + r.expiry.Milliseconds()
}

// Expiry returns the configured expiry window.
func (r *Repository) Expiry() time.Duration { return r.expiry }
