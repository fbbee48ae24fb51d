// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package energy assembles the device-tree service: the local Badger cache,
// the InfluxDB adapters, the editing session and its HTTP API.
package energy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianFlux/pkg/logging"
	"github.com/AleutianAI/AleutianFlux/pkg/telemetry"
	"github.com/AleutianAI/AleutianFlux/services/energy/handlers"
	"github.com/AleutianAI/AleutianFlux/services/energy/influx"
	"github.com/AleutianAI/AleutianFlux/services/energy/observability"
	"github.com/AleutianAI/AleutianFlux/services/energy/routes"
	"github.com/AleutianAI/AleutianFlux/services/energy/session"
	"github.com/AleutianAI/AleutianFlux/services/energy/storage"
	bdb "github.com/AleutianAI/AleutianFlux/services/energy/storage/badger"
)

const serviceName = "fluxtree"

// =============================================================================
// Service Interface
// =============================================================================

// Service is a runnable device-tree API server.
type Service interface {
	// Run starts the HTTP server and blocks until it stops. Resources are
	// released when Run returns.
	Run() error

	// Router returns the configured engine, for tests.
	Router() *gin.Engine

	// Session returns the editing session served by the API.
	Session() *session.Session

	// Close releases resources without running the server.
	Close()
}

// =============================================================================
// Configuration
// =============================================================================

// InfluxConfig locates the InfluxDB server.
type InfluxConfig struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`

	// TreeBucket receives saved trees. Defaults to Bucket.
	TreeBucket string `yaml:"tree_bucket"`

	// HealthAttempts is how many health checks to run at startup.
	HealthAttempts int `yaml:"health_attempts" validate:"min=0"`

	// HealthInterval is the pause between health checks.
	HealthInterval time.Duration `yaml:"health_interval"`
}

// Config holds the service configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port" validate:"min=0,max=65535"`

	// GinMode is gin's run mode: debug, release or test.
	GinMode string `yaml:"gin_mode" validate:"omitempty,oneof=debug release test"`

	// Lookback is the query window for periods without a start.
	Lookback time.Duration `yaml:"lookback"`

	// InitTimeout bounds the startup load and first reconciliation.
	InitTimeout time.Duration `yaml:"init_timeout"`

	Influx    InfluxConfig     `yaml:"influx"`
	Cache     bdb.Config       `yaml:"cache"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Options injects collaborators, mainly for tests. Nil fields are built
// from Config.
type Options struct {
	Logger *logging.Logger
	Source session.MeasurementSource
	Remote session.RemoteTreeStore

	// Registry receives the service metrics. Defaults to a fresh registry.
	Registry *prometheus.Registry
}

// =============================================================================
// Service Implementation
// =============================================================================

type service struct {
	config    Config
	logger    *logging.Logger
	router    *gin.Engine
	session   *session.Session
	db        *bdb.DB
	influx    influxdb2.Client
	registry  *prometheus.Registry
	telemetry func(context.Context) error
}

// New builds the service.
//
// Description:
//
//	Initializes telemetry, opens the Badger cache, connects to InfluxDB
//	(unless Options supplies both the source and the remote store), loads
//	the session and registers the routes. An unreachable measurement source
//	is not fatal: the session starts from the cached tree and the next
//	period change retries the fetch.
//
// Inputs:
//
//	cfg - Service configuration. Zero fields take defaults.
//	opts - Optional collaborators. May be nil.
//
// Outputs:
//
//	Service - Ready to Run.
//	error - Telemetry, cache or InfluxDB setup failure.
func New(cfg Config, opts *Options) (Service, error) {
	if opts == nil {
		opts = &Options{}
	}
	s := &service{
		config:   applyConfigDefaults(cfg),
		logger:   opts.Logger,
		registry: opts.Registry,
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	tcfg := s.config.Telemetry
	tcfg.Registerer = s.registry
	tcfg.Gatherer = s.registry
	shutdown, err := telemetry.Init(context.Background(), tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.telemetry = shutdown

	cacheCfg := s.config.Cache
	cacheCfg.Logger = s.logger
	s.db, err = bdb.OpenDB(cacheCfg)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	source, remote := opts.Source, opts.Remote
	if source == nil || remote == nil {
		src, rem, err := s.initInflux()
		if err != nil {
			s.cleanup()
			return nil, fmt.Errorf("failed to initialize InfluxDB: %w", err)
		}
		if source == nil {
			source = src
		}
		if remote == nil {
			remote = rem
		}
	}

	s.session, err = session.New(session.Options{
		Source:   source,
		Local:    storage.NewStore(s.db),
		Remote:   remote,
		Logger:   s.logger,
		Recorder: observability.NewMetrics(s.registry),
		Lookback: s.config.Lookback,
	})
	if err != nil {
		s.cleanup()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.InitTimeout)
	defer cancel()
	if err := s.session.Init(ctx); err != nil {
		if !errors.Is(err, session.ErrUpstreamFetch) {
			s.cleanup()
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		s.logger.Warn("measurement source unavailable, serving cached tree", "error", err)
	}

	if err := s.initRouter(); err != nil {
		s.cleanup()
		return nil, err
	}
	return s, nil
}

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("Starting fluxtree server", "port", s.config.Port)

	return s.router.Run(addr)
}

func (s *service) Router() *gin.Engine {
	return s.router
}

func (s *service) Session() *session.Session {
	return s.session
}

func (s *service) Close() {
	s.cleanup()
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.GinMode == "" {
		cfg.GinMode = gin.ReleaseMode
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = session.DefaultLookback
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = 30 * time.Second
	}

	if cfg.Influx.URL == "" {
		cfg.Influx.URL = "http://localhost:8086"
	}
	if cfg.Influx.Org == "" {
		cfg.Influx.Org = "aleutian"
	}
	if cfg.Influx.Bucket == "" {
		cfg.Influx.Bucket = "homeassistant"
	}
	if cfg.Influx.TreeBucket == "" {
		cfg.Influx.TreeBucket = cfg.Influx.Bucket
	}
	if cfg.Influx.HealthAttempts == 0 {
		cfg.Influx.HealthAttempts = 3
	}
	if cfg.Influx.HealthInterval <= 0 {
		cfg.Influx.HealthInterval = 2 * time.Second
	}

	if !cfg.Cache.InMemory && cfg.Cache.Path == "" {
		def := bdb.DefaultConfig()
		def.Path = "./data/cache"
		cfg.Cache = def
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry = telemetry.DefaultConfig()
	}
	return cfg
}

// initInflux connects to InfluxDB and builds the measurement source and the
// tree store. A server that never reports healthy is logged, not fatal.
func (s *service) initInflux() (session.MeasurementSource, session.RemoteTreeStore, error) {
	cfg := s.config.Influx
	if cfg.Token == "" {
		return nil, nil, errors.New("influx token is required")
	}
	s.influx = influxdb2.NewClient(cfg.URL, cfg.Token)

	ready := false
	for i := 0; i < cfg.HealthAttempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HealthInterval)
		health, err := s.influx.Health(ctx)
		cancel()
		if err == nil && health.Status == "pass" {
			ready = true
			break
		}
		var errMsg string
		if err != nil {
			errMsg = err.Error()
		} else if health != nil && health.Message != nil {
			errMsg = *health.Message
		}
		s.logger.Warn("InfluxDB not ready, retrying...", "attempt", i+1, "error", errMsg)
		time.Sleep(cfg.HealthInterval)
	}
	if ready {
		s.logger.Info("Connected to InfluxDB", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	}

	source, err := influx.NewSource(s.influx.QueryAPI(cfg.Org), cfg.Bucket, s.logger)
	if err != nil {
		return nil, nil, err
	}
	remote := influx.NewTreeStore(s.influx.WriteAPIBlocking(cfg.Org, cfg.TreeBucket), s.logger)
	return source, remote, nil
}

// initRouter creates the engine, applies middleware and registers routes.
func (s *service) initRouter() error {
	gin.SetMode(s.config.GinMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(serviceName))

	httpMetrics, err := telemetry.NewHTTPMetrics(otel.Meter(serviceName))
	if err != nil {
		return fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	s.router.Use(telemetry.GinMetrics(httpMetrics))

	metrics := telemetry.MetricsHandler()
	if metrics == nil {
		metrics = promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	}
	routes.SetupRoutes(s.router, handlers.New(s.session, s.logger), metrics)
	return nil
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.influx != nil {
		s.influx.Close()
		s.influx = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("cache close error", "error", err)
		}
	}
	if s.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetry(ctx); err != nil {
			s.logger.Error("failed to shutdown telemetry", "error", err)
		}
		s.telemetry = nil
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
