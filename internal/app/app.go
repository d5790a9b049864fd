// Package app wires the pipeline components together and owns the process
// lifecycle: outbox, transport, orchestrator, retention and the diagnostics
// HTTP server.
package app

import (
	"context"
	"fmt"
	"net/http"

	"chatpipe/internal/retention"
	"chatpipe/pkg/config"
	"chatpipe/pkg/logger"
	"chatpipe/pkg/media"
	"chatpipe/pkg/outbox"
	"chatpipe/pkg/send"
	"chatpipe/pkg/transport"
)

// App encapsulates the pipeline components and lifecycle.
type App struct {
	cfg     *config.Config
	version string

	box          *outbox.Outbox
	client       *transport.Client
	orchestrator *send.Orchestrator
	pipeline     *media.Pipeline

	srv *http.Server
}

// New initializes resources that do not require a running context. It does
// not start retention or the HTTP server; call Run to start those and block
// until shutdown. secrets may be nil when no channel is encrypted.
func New(cfg *config.Config, version string, secrets SecretResolver) (*App, error) {
	if cfg.Remote.BaseURL == "" {
		return nil, fmt.Errorf("remote.base_url is required")
	}
	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = "./.outbox"
	}
	box, err := outbox.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open outbox at %s: %w", dbPath, err)
	}

	client := transport.New(transport.Config{
		BaseURL:    cfg.Remote.BaseURL,
		APIKey:     cfg.Remote.APIKey,
		Timeout:    cfg.Remote.Timeout.Duration(),
		RatePerSec: cfg.Remote.RatePerSec,
		Burst:      cfg.Remote.Burst,
	})
	orchestrator := send.New(client, box, send.Options{
		MaxImageDimension: cfg.Media.MaxDimension,
	})
	pipeline := media.NewPipeline(client, imageResender{orchestrator: orchestrator, secrets: secrets})

	pending, failed, err := box.Counts()
	if err != nil {
		logger.Warn("outbox_counts_failed", "error", err)
	} else {
		logger.Info("outbox_state", "pending", pending, "failed", failed)
	}

	return &App{
		cfg:          cfg,
		version:      version,
		box:          box,
		client:       client,
		orchestrator: orchestrator,
		pipeline:     pipeline,
	}, nil
}

// Orchestrator exposes the send orchestrator to embedding callers.
func (a *App) Orchestrator() *send.Orchestrator { return a.orchestrator }

// Pipeline exposes the media pipeline to embedding callers.
func (a *App) Pipeline() *media.Pipeline { return a.pipeline }

// Outbox exposes the message store to embedding callers.
func (a *App) Outbox() *outbox.Outbox { return a.box }

// Run starts retention and the diagnostics HTTP server, and blocks until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	stopRetention, err := retention.Start(ctx, a.cfg, a.box)
	if err != nil {
		return err
	}
	defer stopRetention()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdownHTTP()
		return a.box.Close()
	case err := <-errCh:
		_ = a.box.Close()
		return err
	}
}
