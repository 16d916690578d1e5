package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justinas/alice"
	"github.com/timtransfer/timtransfer/internal/admit"
	"github.com/timtransfer/timtransfer/internal/bundle"
	"github.com/timtransfer/timtransfer/internal/config"
	"github.com/timtransfer/timtransfer/internal/metrics"
	"github.com/timtransfer/timtransfer/internal/store"
	"github.com/timtransfer/timtransfer/internal/zipr"
)

// Server wires the HTTP surface to the bundle core: admission, repository,
// password gate, download pipeline and metrics sink.
type Server struct {
	cfg     config.Config
	repo    *bundle.Repository
	store   *store.Store
	admit   *admit.Controller
	zipr    *zipr.Zipr
	stats   *metrics.FileStore
	started time.Time
}

func New(cfg config.Config, repo *bundle.Repository, st *store.Store,
	adm *admit.Controller, z *zipr.Zipr, stats *metrics.FileStore) *Server {
	return &Server{
		cfg:     cfg,
		repo:    repo,
		store:   st,
		admit:   adm,
		zipr:    z,
		stats:   stats,
		started: time.Now(),
	}
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts it down
// gracefully. No write timeout is set: a stalled client holds its download
// stream open until the transport's own defaults intervene.
func (s *Server) Start() error {
	server := &http.Server{
		Addr:              fmt.Sprint(":", s.cfg.Server.Port),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		Handler:           s.routes(),
	}
	errChan := s.listenAndShutdown(server)
	slog.Info("starting server", "address", server.Addr, "expiry", s.repo.Expiry())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listening on address %q: %w", server.Addr, err)
	}
	if err := <-errChan; err != nil {
		return fmt.Errorf("server shutting down: %w", err)
	}
	return nil
}

func (s *Server) listenAndShutdown(server *http.Server) chan error {
	errChan := make(chan error)
	go func() {
		defer close(errChan)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			errChan <- fmt.Errorf("shutting down server: %w", err)
		}
	}()
	return errChan
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	std := alice.New(s.recoverPanic)
	mux.Handle("POST /upload", std.ThenFunc(s.uploadHandler))
	mux.Handle("GET /share/{id}", std.ThenFunc(s.shareHandler))
	mux.Handle("GET /api/share/{id}", std.ThenFunc(s.shareInfoHandler))
	mux.Handle("POST /api/verify/{id}", std.ThenFunc(s.verifyHandler))
	mux.Handle("GET /download/{id}", std.ThenFunc(s.downloadOpenHandler))
	mux.Handle("POST /download/{id}", std.ThenFunc(s.downloadHandler))
	mux.Handle("GET /status", std.ThenFunc(s.statusHandler))
	mux.Handle("GET /metrics", std.ThenFunc(s.metricsHandler))
	return mux
}
