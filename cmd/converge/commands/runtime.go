package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/openconverge/converge/pkg/providers/proxmox"
	"github.com/openconverge/converge/pkg/stores"
	"github.com/openconverge/converge/pkg/telemetry"
)

// runtime bundles the dependencies every provider-facing command needs.
type runtime struct {
	cfg     *appConfig
	log     zerolog.Logger
	metrics *telemetry.Metrics
	engine  *proxmox.Engine
}

func setup() (*runtime, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := telemetry.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	metrics := telemetry.NewMetrics(cfg.Metrics.Namespace)
	return &runtime{
		cfg:     cfg,
		log:     logger,
		metrics: metrics,
		engine:  buildEngine(cfg, logger.With().Str("component", "provider").Logger(), metrics),
	}, nil
}

// serveMetrics exposes the Prometheus endpoint for the lifetime of the
// command when a listen address is configured. The returned stop function
// is always safe to call.
func (r *runtime) serveMetrics() func() {
	addr := r.cfg.Metrics.ListenAddress
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Warn().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	return func() { _ = srv.Shutdown(context.Background()) }
}

// openStore opens the run-history store if one is configured, returning
// nil when history is disabled.
func (r *runtime) openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	if r.cfg.Store.Path == "" {
		return nil, nil
	}
	store, err := stores.NewSQLiteStore(r.cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize run store: %w", err)
	}
	return store, nil
}
