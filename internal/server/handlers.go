package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/timtransfer/timtransfer/internal/admit"
	"github.com/timtransfer/timtransfer/internal/domain"
	"github.com/timtransfer/timtransfer/internal/metrics"
	"github.com/timtransfer/timtransfer/internal/password"
	"github.com/timtransfer/timtransfer/internal/zipr"
)

// fileView is the only shape file data takes on the wire; internal file IDs
// and password hashes never leave the process.
type fileView struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func viewsOf(files []domain.FileEntry) []fileView {
	views := make([]fileView, len(files))
	for i, f := range files {
		views[i] = fileView{Name: f.OriginalName, Size: f.Size}
	}
	return views
}

// uploadHandler stages each multipart file under a fresh ID, runs the batch
// through admission and, only if every check passes, creates the durable
// bundle. Any rejection removes the staged bytes before responding.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		s.stats.Inc(metrics.UploadErrors)
		s.badRequestResponse(w, r, fmt.Errorf("expected multipart upload: %w", err))
		return
	}

	var files []domain.FileEntry
	var pwd string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.admit.Discard(files)
			s.stats.Inc(metrics.UploadErrors)
			s.badRequestResponse(w, r, fmt.Errorf("reading multipart upload: %w", err))
			return
		}
		if part.FileName() == "" {
			if part.FormName() == "password" {
				value, _ := io.ReadAll(io.LimitReader(part, 128))
				pwd = string(value)
			}
			continue
		}
		entry := domain.FileEntry{
			ID: uuid.NewString(),
			// base name only; the client path must never reach the disk
			OriginalName: filepath.Base(part.FileName()),
			MimeType:     part.Header.Get("Content-Type"),
		}
		if err = s.admit.CheckExtension(entry.OriginalName); err != nil {
			s.admit.Discard(files)
			s.stats.Inc(metrics.UploadErrors)
			s.badRequestResponse(w, r, err)
			return
		}
		limit := s.admit.SessionCap()
		n, err := s.store.StagePayload(entry, io.LimitReader(part, limit+1))
		entry.Size = n
		files = append(files, entry)
		if err != nil {
			s.admit.Discard(files)
			s.stats.Inc(metrics.UploadErrors)
			s.serverErrorResponse(w, r, err)
			return
		}
		if n > limit {
			s.admit.Discard(files)
			s.stats.Inc(metrics.UploadErrors)
			s.badRequestResponse(w, r, admit.FileTooLargeError{Name: entry.OriginalName, Cap: limit})
			return
		}
	}

	if err = s.admit.Admit(files, pwd); err != nil {
		s.stats.Inc(metrics.UploadErrors)
		var quotaErr admit.QuotaError
		if errors.As(err, &quotaErr) {
			s.errorResponse(w, r, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.badRequestResponse(w, r, err)
		return
	}

	b, err := s.repo.Create(files, password.Hash(strings.TrimSpace(pwd)))
	if err != nil {
		s.admit.Discard(files)
		s.stats.Inc(metrics.UploadErrors)
		s.serverErrorResponse(w, r, err)
		return
	}

	s.stats.Inc(metrics.UploadsTotal)
	s.stats.Add(metrics.BytesUploaded, b.TotalSize())
	data := envelop{
		"url":      fmt.Sprintf("%s://%s/share/%s", scheme(r), r.Host, b.ID),
		"bundleId": b.ID,
		"files":    viewsOf(b.Files),
	}
	if err = s.writeJSON(w, data, http.StatusOK, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

// lookupLive fetches a bundle and enforces expiry. Expired bundles are
// deleted inline and reported exactly like missing ones, so callers cannot
// probe expiry timing.
func (s *Server) lookupLive(id string) (domain.Bundle, bool) {
	b, err := s.repo.Get(id)
	if err != nil {
		return domain.Bundle{}, false
	}
	if s.repo.IsExpired(b, time.Now()) {
		if err = s.repo.Delete(b.ID); err != nil {
			slog.Error("deleting expired bundle", "bundle", b.ID, "err", err)
		}
		return domain.Bundle{}, false
	}
	return b, true
}

// shareHandler backs the public share link. The page itself is rendered
// client-side; this route only answers whether the link is still alive so
// dead links 404 immediately.
func (s *Server) shareHandler(w http.ResponseWriter, r *http.Request) {
	id := sanitizeID(r.PathValue("id"))
	if _, ok := s.lookupLive(id); !ok {
		s.bundleGoneResponse(w, r)
		return
	}
	s.stats.Inc(metrics.SharesViewed)
	w.Header().Set("Cache-Control", "no-store")
	data := envelop{"bundleId": id, "info": "/api/share/" + id}
	if err := s.writeJSON(w, data, http.StatusOK, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) shareInfoHandler(w http.ResponseWriter, r *http.Request) {
	s.stats.Inc(metrics.APIShareRequests)
	b, ok := s.lookupLive(sanitizeID(r.PathValue("id")))
	if !ok {
		s.bundleGoneResponse(w, r)
		return
	}
	data := envelop{"expiresAt": s.repo.ExpiresAt(b)}
	if b.PasswordHash != "" {
		data["requiresPassword"] = true
		data["fileCount"] = len(b.Files)
		data["totalSize"] = b.TotalSize()
	} else {
		data["files"] = viewsOf(b.Files)
	}
	if err := s.writeJSON(w, data, http.StatusOK, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	s.stats.Inc(metrics.PasswordVerifyAttempts)
	b, ok := s.lookupLive(sanitizeID(r.PathValue("id")))
	if !ok {
		s.bundleGoneResponse(w, r)
		return
	}
	var input struct {
		Password string `json:"password"`
	}
	if err := s.readJSON(w, r, &input); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}
	if !password.Verify(strings.TrimSpace(input.Password), b.PasswordHash) {
		s.stats.Inc(metrics.PasswordVerifyFail)
		s.incorrectPasswordResponse(w, r)
		return
	}
	s.stats.Inc(metrics.PasswordVerifySuccess)
	data := envelop{"files": viewsOf(b.Files), "expiresAt": s.repo.ExpiresAt(b)}
	if err := s.writeJSON(w, data, http.StatusOK, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

// downloadOpenHandler serves password-free bundles; a bundle carrying a
// password hash must go through the POST route.
func (s *Server) downloadOpenHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookupLive(sanitizeID(r.PathValue("id")))
	if !ok || len(b.Files) == 0 {
		s.stats.Inc(metrics.DownloadErrors404)
		s.bundleGoneResponse(w, r)
		return
	}
	if b.PasswordHash != "" {
		s.stats.Inc(metrics.DownloadErrorsAuth)
		s.errorResponse(w, r, http.StatusUnauthorized, "password required, use the share page")
		return
	}
	s.streamArchive(w, b)
}

func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookupLive(sanitizeID(r.PathValue("id")))
	if !ok || len(b.Files) == 0 {
		s.stats.Inc(metrics.DownloadErrors404)
		s.bundleGoneResponse(w, r)
		return
	}
	var input struct {
		Password string `json:"password"`
	}
	if err := s.readJSON(w, r, &input); err != nil {
		s.badRequestResponse(w, r, err)
		return
	}
	if !password.Verify(strings.TrimSpace(input.Password), b.PasswordHash) {
		s.stats.Inc(metrics.DownloadErrorsAuth)
		s.incorrectPasswordResponse(w, r)
		return
	}
	s.streamArchive(w, b)
}

// streamArchive streams the bundle as a zip and deletes the bundle once the
// stream returns, whether or not the client received every byte. Disk
// reclamation wins over resilience to failed downloads; that trade-off is
// deliberate.
func (s *Server) streamArchive(w http.ResponseWriter, b domain.Bundle) {
	s.stats.Inc(metrics.DownloadsTotal)
	s.stats.Add(metrics.BytesDownloaded, b.TotalSize())
	name := zipr.ArchiveName(time.Now(), b.Files)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Type", "application/zip")
	defer func() {
		if err := s.repo.Delete(b.ID); err != nil {
			slog.Error("deleting bundle after download", "bundle", b.ID, "err", err)
		}
	}()
	if err := s.zipr.StreamArchive(w, b); err != nil {
		// headers are long gone, nothing to send the client
		slog.Error("streaming archive", "bundle", b.ID, "err", err)
	}
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if !s.authorizedForStatus(r) {
		s.accessDeniedResponse(w, r)
		return
	}
	usage, err := s.store.DiskUsage()
	if err != nil {
		s.serverErrorResponse(w, r, err)
		return
	}
	snap := s.stats.Snapshot()
	data := envelop{
		"diskUsed":      humanize.IBytes(uint64(usage)),
		"diskLimit":     humanize.IBytes(uint64(s.cfg.MaxDiskBytes())),
		"activeBundles": s.store.BundleCount(),
		"uptime":        time.Since(s.started).Round(time.Second).String(),
		"expiryHours":   s.cfg.Share.ExpiryHours,
		"counters":      snap.Counters,
	}
	if !snap.LastUpdated.IsZero() {
		data["countersUpdated"] = snap.LastUpdated
	}
	if err = s.writeJSON(w, data, http.StatusOK, nil); err != nil {
		s.serverErrorResponse(w, r, err)
	}
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.authorizedForStatus(r) {
		s.accessDeniedResponse(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if _, err := io.WriteString(w, metrics.PrometheusFormat(s.stats.Snapshot())); err != nil {
		slog.Error("writing metrics response", "err", err)
	}
}

func (s *Server) authorizedForStatus(r *http.Request) bool {
	secret := s.cfg.Server.StatusSecret
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	return secret != "" && token == secret
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
