// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Gatewarden watches a stream of login attempts, detects brute-force
// activity and answers block-state questions for the services in front
// of it.
package main

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

	"github.com/gatewarden/gatewarden/internal/api"
	"github.com/gatewarden/gatewarden/internal/blockstate"
	"github.com/gatewarden/gatewarden/internal/cache"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/database"
	"github.com/gatewarden/gatewarden/internal/detection"
	"github.com/gatewarden/gatewarden/internal/engine"
	"github.com/gatewarden/gatewarden/internal/events"
	"github.com/gatewarden/gatewarden/internal/geo"
	"github.com/gatewarden/gatewarden/internal/lockout"
	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/reconciler"
	"github.com/gatewarden/gatewarden/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("gatewarden exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Msg("gatewarden starting")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	locator, err := buildLocator(&cfg.Geo)
	if err != nil {
		return fmt.Errorf("build geo locator: %w", err)
	}
	defer locator.Close()

	projections := cache.New(cfg.Security.BlockCacheTTL)
	defer projections.Close()

	checker := blockstate.NewChecker(db, projections)
	locker := lockout.NewManager(db, checker)
	recorder := events.NewRecorder(db, locator)
	analyzer := detection.NewAnalyzer(
		[]detection.Detector{
			detection.NewSequentialDetector(&cfg.Security, db),
			detection.NewDistributedDetector(&cfg.Security, db),
			detection.NewVelocityDetector(&cfg.Security, db),
		},
		db,
		db,
	)
	eng := engine.New(&cfg.Security, recorder, analyzer, checker, locker, db)
	sweeper := reconciler.NewSweeper(db, checker, &cfg.Security)

	handler := api.NewHandler(eng, sweeper, db)
	router := api.NewRouter(handler, &cfg.API)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree := supervisor.NewTree(slog.Default(), supervisor.DefaultTreeConfig())
	tree.Add(sweeper)
	tree.Add(&httpService{server: server})

	logging.Info().Str("addr", server.Addr).Msg("gatewarden ready")

	err = <-tree.Start(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	logging.Info().Msg("gatewarden stopped")
	return nil
}

// buildLocator assembles the geolocation stack from config: disabled, or
// the HTTP provider fronted by the Badger cache.
func buildLocator(cfg *config.GeoConfig) (geo.Locator, error) {
	if !cfg.Enabled {
		return geo.Disabled{}, nil
	}
	return geo.NewCachedLocator(geo.NewClient(cfg), cfg)
}

// httpService runs the HTTP server under the supervisor. Serve blocks
// until the context is canceled, then drains in-flight requests.
type httpService struct {
	server *http.Server
}

func (s *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return ctx.Err()
	}
}

func (s *httpService) String() string { return "http-server" }
