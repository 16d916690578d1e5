// Package admit implements admission control for an upload batch: the
// checks a batch must pass before its staged bytes may become a durable
// bundle. A rejected batch leaves no residue on disk.
package admit

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/timtransfer/timtransfer/internal/domain"
	"github.com/timtransfer/timtransfer/internal/store"
)

// Executable and script extensions that are never accepted, compared
// case-insensitively against the user-supplied name.
var blockedExtensions = map[string]struct{}{
	".exe": {}, ".com": {}, ".bat": {}, ".cmd": {}, ".msi": {},
	".scr": {}, ".vbs": {}, ".ps1": {}, ".pif": {}, ".hta": {},
	".cpl": {}, ".msc": {}, ".jar": {}, ".dll": {}, ".sys": {},
	".reg": {}, ".inf": {}, ".wsf": {}, ".vbe": {}, ".jse": {},
}

var passwordShape = regexp.MustCompile(`^\d{4}$`)

// BlockedExtensionError rejects a file whose extension is on the blocklist.
type BlockedExtensionError struct {
	Ext string
}

func (e BlockedExtensionError) Error() string {
	ext := e.Ext
	if ext == "" {
		ext = "(no extension)"
	}
	return fmt.Sprintf("file type not allowed: %s", ext)
}

// FileTooLargeError rejects a single file larger than the per-file limit.
type FileTooLargeError struct {
	Name string
	Cap  int64
}

func (e FileTooLargeError) Error() string {
	return fmt.Sprintf("file %q is larger than %s", e.Name, humanize.IBytes(uint64(e.Cap)))
}

// SessionCapError rejects a batch whose total size exceeds the session cap.
type SessionCapError struct {
	Total, Cap int64
}

func (e SessionCapError) Error() string {
	return fmt.Sprintf("session limit is %s in total, you sent %s; remove files or upload in more than one session",
		humanize.IBytes(uint64(e.Cap)), humanize.IBytes(uint64(e.Total)))
}

// QuotaError rejects a batch because the global disk quota is reached.
// Callers should surface it with retry-later semantics.
type QuotaError struct {
	Quota int64
}

func (e QuotaError) Error() string {
	return fmt.Sprintf("server full, the %s limit is reached, try again later", humanize.IBytes(uint64(e.Quota)))
}

// ErrInvalidPassword rejects a password that is not exactly 4 digits.
var ErrInvalidPassword = fmt.Errorf("enter a password of 4 digits")

// ErrEmptyBatch rejects an upload with no files.
var ErrEmptyBatch = fmt.Errorf("no file uploaded")

// Controller validates upload batches against the extension blocklist, the
// password shape, the per-session cap and the global disk quota. The quota
// check is advisory: concurrent batches can both pass against a stale scan
// and jointly exceed the quota.
type Controller struct {
	store      *store.Store
	sessionCap int64
	diskQuota  int64
}

func New(st *store.Store, sessionCap, diskQuota int64) *Controller {
	return &Controller{store: st, sessionCap: sessionCap, diskQuota: diskQuota}
}

// SessionCap returns the per-session byte cap, which is also the per-file
// limit enforced while staging.
func (c *Controller) SessionCap() int64 { return c.sessionCap }

// CheckExtension rejects a filename on the blocklist. Exposed separately so
// uploads can be refused before any bytes are staged.
func (c *Controller) CheckExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if _, blocked := blockedExtensions[ext]; blocked {
		return BlockedExtensionError{Ext: ext}
	}
	return nil
}

// Admit decides whether a staged batch may become a bundle. Checks run in
// order and short-circuit on the first failure: extension blocklist,
// password shape, non-empty batch, session cap, global disk quota. On any
// rejection the staged payloads are removed before returning, so a rejected
// upload leaves nothing behind. On success nothing is persisted yet; that
// is the repository's job.
func (c *Controller) Admit(files []domain.FileEntry, pwd string) error {
	if err := c.check(files, pwd); err != nil {
		c.Discard(files)
		return err
	}
	return nil
}

func (c *Controller) check(files []domain.FileEntry, pwd string) error {
	for _, f := range files {
		if err := c.CheckExtension(f.OriginalName); err != nil {
			return err
		}
	}
	if !passwordShape.MatchString(strings.TrimSpace(pwd)) {
		return ErrInvalidPassword
	}
	if len(files) == 0 {
		return ErrEmptyBatch
	}
	var total int64
	for _, f := range files {
		if f.Size > c.sessionCap {
			return FileTooLargeError{Name: f.OriginalName, Cap: c.sessionCap}
		}
		total += f.Size
	}
	if total > c.sessionCap {
		return SessionCapError{Total: total, Cap: c.sessionCap}
	}
	// The staged batch is already on disk, so the scan includes its bytes.
	usage, err := c.store.DiskUsage()
	if err != nil {
		return fmt.Errorf("measuring disk usage: %w", err)
	}
	if usage > c.diskQuota {
		return QuotaError{Quota: c.diskQuota}
	}
	return nil
}

// Discard removes the staged payloads of a batch that will not become a
// bundle. Individual failures are logged and do not stop the rest.
func (c *Controller) Discard(files []domain.FileEntry) {
	for _, f := range files {
		if err := c.store.RemoveFile(f); err != nil {
			slog.Error("discarding staged upload", "file", f.ID, "err", err)
		}
	}
}
