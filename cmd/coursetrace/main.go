// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

// Command coursetrace runs the learner-activity pipeline: the ingestion
// API, the category queues with their workers, and the per-tenant stores.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coursetrace/coursetrace/internal/api"
	"github.com/coursetrace/coursetrace/internal/config"
	"github.com/coursetrace/coursetrace/internal/dispatch"
	"github.com/coursetrace/coursetrace/internal/event"
	"github.com/coursetrace/coursetrace/internal/executor"
	"github.com/coursetrace/coursetrace/internal/host"
	"github.com/coursetrace/coursetrace/internal/logging"
	"github.com/coursetrace/coursetrace/internal/progress"
	"github.com/coursetrace/coursetrace/internal/queue"
	"github.com/coursetrace/coursetrace/internal/store"
	"github.com/coursetrace/coursetrace/internal/supervisor"
	"github.com/coursetrace/coursetrace/internal/supervisor/services"
	"github.com/coursetrace/coursetrace/internal/tenant"
	"github.com/coursetrace/coursetrace/internal/validation"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("coursetrace exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().Str("version", version).Msg("coursetrace starting")

	ids, err := buildIdentifier(cfg.Host)
	if err != nil {
		return fmt.Errorf("build host identifier: %w", err)
	}

	registry := tenant.NewRegistry()
	var stores []*store.DB
	defer func() {
		for _, db := range stores {
			if cerr := db.Close(); cerr != nil {
				logging.Warn().Err(cerr).Msg("tenant store close failed")
			}
		}
	}()
	for _, tc := range cfg.Tenants {
		db, err := store.Open(store.Config{Driver: store.Driver(tc.Driver), DSN: tc.DSN})
		if err != nil {
			return fmt.Errorf("open tenant %s: %w", tc.Tag, err)
		}
		stores = append(stores, db)
		if err := registry.Register(tc.Tag, db); err != nil {
			return err
		}
		logging.Info().Str("tenant", tc.Tag).Str("driver", tc.Driver).Msg("tenant store registered")
	}

	resolver := tenant.NewResolver(registry, cfg.DefaultTenantTags()...)
	validator := validation.NewValidator(ids)

	qcfg := queueConfig(cfg.Queue)
	pubsub, err := queue.NewPubSub(qcfg)
	if err != nil {
		return fmt.Errorf("build queue backend: %w", err)
	}
	defer func() {
		if cerr := pubsub.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("queue close failed")
		}
	}()

	depth := queue.NewDepthTracker()
	exec := executor.New(registry, ids, depth)
	dispatcher := dispatch.NewDispatcher(validator, resolver, pubsub.Publisher, exec, depth)
	aggregator := progress.NewAggregator(ids)

	router, err := queue.NewRouter(qcfg, pubsub, depth)
	if err != nil {
		return fmt.Errorf("build queue router: %w", err)
	}
	for _, cat := range event.Categories() {
		router.AddHandler("record-"+string(cat), queue.Topic(cat), exec.Handler)
	}

	apiServer := api.NewServer(dispatcher, aggregator, registry, depth, cfg.API)
	httpServer := apiServer.HTTPServer(
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		cfg.Server.Timeout,
	)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(services.NewRouterService(router))
	tree.AddAPIService(services.NewHTTPService(httpServer, cfg.Server.Timeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", httpServer.Addr).
		Str("queue_backend", string(qcfg.Backend)).
		Int("tenants", len(cfg.Tenants)).
		Msg("coursetrace running")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	logging.Info().Msg("coursetrace stopped")
	return nil
}

// buildIdentifier selects the host boundary: the HTTP client when a host
// platform is configured, the in-memory identifier in standalone mode.
func buildIdentifier(cfg config.HostConfig) (host.Identifier, error) {
	if cfg.URL == "" {
		logging.Info().Msg("no host platform configured, using in-memory identifier")
		return host.NewStaticIdentifier(), nil
	}
	return host.NewClient(host.ClientConfig{
		BaseURL:                 cfg.URL,
		Token:                   cfg.Token,
		Timeout:                 cfg.Timeout,
		BreakerFailureThreshold: cfg.BreakerFailureThreshold,
		BreakerTimeout:          cfg.BreakerTimeout,
	})
}

// queueConfig maps the loaded configuration onto the queue package.
func queueConfig(cfg config.QueueConfig) queue.Config {
	out := queue.DefaultConfig()
	out.Backend = queue.Backend(cfg.Backend)
	if cfg.BufferSize > 0 {
		out.BufferSize = int64(cfg.BufferSize)
	}
	if cfg.RetryMaxRetries > 0 {
		out.RetryMaxRetries = cfg.RetryMaxRetries
	}
	if cfg.RetryInitialInterval > 0 {
		out.RetryInitialInterval = cfg.RetryInitialInterval
	}
	if cfg.RetryMaxInterval > 0 {
		out.RetryMaxInterval = cfg.RetryMaxInterval
	}
	if cfg.RetryMultiplier > 0 {
		out.RetryMultiplier = cfg.RetryMultiplier
	}
	if cfg.CloseTimeout > 0 {
		out.CloseTimeout = cfg.CloseTimeout
	}

	nats := &out.NATS
	if cfg.NATS.URL != "" {
		nats.URL = cfg.NATS.URL
	}
	if cfg.NATS.DurableName != "" {
		nats.DurableName = cfg.NATS.DurableName
	}
	if cfg.NATS.QueueGroup != "" {
		nats.QueueGroup = cfg.NATS.QueueGroup
	}
	if cfg.NATS.SubscribersCount > 0 {
		nats.SubscribersCount = cfg.NATS.SubscribersCount
	}
	if cfg.NATS.AckWait > 0 {
		nats.AckWaitTimeout = cfg.NATS.AckWait
	}
	if cfg.NATS.MaxDeliver > 0 {
		nats.MaxDeliver = cfg.NATS.MaxDeliver
	}
	return out
}
