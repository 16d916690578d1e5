package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/timtransfer/timtransfer/internal/admit"
	"github.com/timtransfer/timtransfer/internal/bgtask"
	"github.com/timtransfer/timtransfer/internal/bundle"
	"github.com/timtransfer/timtransfer/internal/config"
	"github.com/timtransfer/timtransfer/internal/metrics"
	"github.com/timtransfer/timtransfer/internal/server"
	"github.com/timtransfer/timtransfer/internal/store"
	"github.com/timtransfer/timtransfer/internal/util"
	"github.com/timtransfer/timtransfer/internal/zipr"
)

func main() {
	util.ConfigureSlog(os.Stderr)

	cfgPath := flag.String("config", "timtransfer.toml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	st, err := store.New(cfg.Storage.UploadDir)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	stats, err := metrics.NewFileStore(cfg.Storage.MetricsFile)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	repo := bundle.NewRepository(st, cfg.Expiry())
	adm := admit.New(st, cfg.SessionCapBytes(), cfg.MaxDiskBytes())
	z := zipr.New(st, flate.BestSpeed)

	bgtask.Get().Run(func(shutdownCtx context.Context) {
		repo.RunReaper(shutdownCtx, cfg.SweepEvery())
	})

	s := server.New(cfg, repo, st, adm, z, stats)
	if err = s.Start(); err != nil {
		slog.Error(err.Error())
	}
	if err = bgtask.Get().Shutdown(5 * time.Second); err != nil {
		slog.Error(err.Error())
	}
}
