package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/catalog-mirror/internal/api"
	v1 "github.com/stacklok/catalog-mirror/internal/api/v1"
	"github.com/stacklok/catalog-mirror/internal/app/storage"
	"github.com/stacklok/catalog-mirror/internal/catalog"
	"github.com/stacklok/catalog-mirror/internal/checkpoint"
	"github.com/stacklok/catalog-mirror/internal/config"
	"github.com/stacklok/catalog-mirror/internal/cooldown"
	"github.com/stacklok/catalog-mirror/internal/httpclient"
	"github.com/stacklok/catalog-mirror/internal/notify"
	"github.com/stacklok/catalog-mirror/internal/ratelimit"
	"github.com/stacklok/catalog-mirror/internal/status"
	pkgsync "github.com/stacklok/catalog-mirror/internal/sync"
	"github.com/stacklok/catalog-mirror/internal/sync/coordinator"
	"github.com/stacklok/catalog-mirror/internal/sync/rotation"
	"github.com/stacklok/catalog-mirror/internal/sync/strategies"
	"github.com/stacklok/catalog-mirror/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	// Limiter names used in metrics.
	limiterDefault   = "default"
	limiterCharacter = "character"
)

// MirrorAppOptions is a function that configures the mirror app builder
type MirrorAppOptions func(*mirrorAppConfig) error

// mirrorAppConfig collects the inputs of the builder. Optional component
// overrides exist primarily for tests.
type mirrorAppConfig struct {
	config *config.Config

	storageFactory storage.Factory
	syncManager    pkgsync.Manager
	catalogClient  catalog.Client
	notifier       notify.Notifier
	coordOpts      []coordinator.Option

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	metricsHandler http.Handler
}

func baseConfig(opts ...MirrorAppOptions) (*mirrorAppConfig, error) {
	cfg := &mirrorAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewMirrorApp builds the long running server: scheduler, strategies and the
// operator HTTP API.
func NewMirrorApp(ctx context.Context, opts ...MirrorAppOptions) (*MirrorApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := buildComponents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	appCtx, cancel := context.WithCancel(ctx)

	httpServer, err := buildHTTPServer(appCtx, cfg, components)
	if err != nil {
		cancel()
		components.Close()
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	return &MirrorApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// BuildComponents wires the sync engine without the HTTP server. CLI commands
// use it for one-off runs and cursor maintenance. The caller must Close the
// result.
func BuildComponents(ctx context.Context, opts ...MirrorAppOptions) (*AppComponents, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	return buildComponents(ctx, cfg)
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares appends HTTP middlewares after the default chain
func WithMiddlewares(mw ...func(http.Handler) http.Handler) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.middlewares = append(cfg.middlewares, mw...)
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithSyncManager allows injecting a custom sync manager (for testing).
// Strategies are not registered on an injected manager.
func WithSyncManager(sm pkgsync.Manager) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.syncManager = sm
		return nil
	}
}

// WithCatalogClient replaces the HTTP catalog client. The client is still
// wrapped by the configured rate limiters.
func WithCatalogClient(c catalog.Client) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.catalogClient = c
		return nil
	}
}

// WithNotifier replaces the notifier derived from the configuration.
func WithNotifier(n notify.Notifier) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.notifier = n
		return nil
	}
}

// WithCoordinatorOptions passes options to the scheduler.
func WithCoordinatorOptions(opts ...coordinator.Option) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.coordOpts = append(cfg.coordOpts, opts...)
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for sync and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider traces strategy runs and HTTP requests.
func WithTracerProvider(tp trace.TracerProvider) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		if tp != nil {
			cfg.tracer = tp.Tracer(telemetry.DefaultServiceName)
			cfg.middlewares = append(cfg.middlewares, telemetry.TracingMiddleware(tp))
		}
		return nil
	}
}

// WithMetricsHandler exposes handler on /metrics.
func WithMetricsHandler(h http.Handler) MirrorAppOptions {
	return func(cfg *mirrorAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildComponents builds storage, the catalog client, the strategies and the
// scheduler.
func buildComponents(ctx context.Context, b *mirrorAppConfig) (*AppComponents, error) {
	slog.Info("Initializing sync components")

	var err error
	if b.storageFactory == nil {
		b.storageFactory, err = storage.NewStorageFactory(ctx, b.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	components := &AppComponents{
		Storage:  b.storageFactory,
		Limiters: map[string]*ratelimit.Limiter{},
	}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			components.Close()
		}
	}()

	components.KV, err = b.storageFactory.CreateKVStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create key/value store: %w", err)
	}
	components.Documents, err = b.storageFactory.CreateDocumentStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create document store: %w", err)
	}

	components.Catalog = buildCatalogClient(b, components.Limiters)

	syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	components.StoreMetrics, err = telemetry.NewStoreMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create store metrics: %w", err)
	}
	gauges := make(map[string]telemetry.QueueLengther, len(components.Limiters))
	for name, l := range components.Limiters {
		gauges[name] = l
	}
	if err := telemetry.RegisterQueueGauge(b.meterProvider, gauges); err != nil {
		return nil, fmt.Errorf("failed to register rate limiter gauge: %w", err)
	}

	cfg := b.config
	components.Checkpoint = checkpoint.New(components.KV, cfg.Keys.Checkpoint, cfg.Sync.GetCheckpointTTL())
	components.Cursor = rotation.NewCursor(components.KV, cfg.Keys.Rotation)

	if b.syncManager == nil {
		b.syncManager = pkgsync.NewManager(
			pkgsync.WithMetrics(syncMetrics),
			pkgsync.WithTracer(b.tracer),
		)
		strategies.RegisterAll(b.syncManager, strategies.Dependencies{
			Catalog:    components.Catalog,
			Store:      components.Documents,
			Checkpoint: components.Checkpoint,
			Cursor:     components.Cursor,
			Policy:     cooldown.NewPolicy(cfg.Cooldown.MonthlyMin, cfg.Cooldown.MonthlyMax),
			Notifier:   buildNotifier(b),
			Metrics:    syncMetrics,
		}, settingsFromConfig(cfg))
	}
	components.Manager = b.syncManager

	components.Coordinator = coordinator.New(
		components.Manager,
		status.NewKVPersistence(components.KV, cfg.Keys.StatusPrefix()),
		coordinator.SchedulesFromConfig(cfg.Schedules),
		b.coordOpts...,
	)

	cleanupNeeded = false
	slog.Info("Sync components initialized successfully", "strategies", components.Manager.Names())
	return components, nil
}

// buildCatalogClient wraps the upstream client in the two rate limiters and
// records them in limiters.
func buildCatalogClient(b *mirrorAppConfig, limiters map[string]*ratelimit.Limiter) catalog.Client {
	cfg := b.config

	upstream := b.catalogClient
	if upstream == nil {
		client := httpclient.NewDefaultClient(cfg.Catalog.GetTimeout(),
			httpclient.WithUserAgent(cfg.Catalog.UserAgent),
			httpclient.WithAccessToken(cfg.Catalog.AccessToken),
		)
		upstream = catalog.NewHTTPClient(cfg.Catalog.BaseURL, client)
	}

	listLimiter := ratelimit.New(cfg.RateLimit.DefaultQPS)
	characterLimiter := ratelimit.New(cfg.RateLimit.CharacterQPS)
	limiters[limiterDefault] = listLimiter
	limiters[limiterCharacter] = characterLimiter

	slog.Info("Catalog client configured",
		"base_url", cfg.Catalog.BaseURL,
		"default_qps", cfg.RateLimit.DefaultQPS,
		"character_qps", cfg.RateLimit.CharacterQPS)
	return catalog.NewRateLimitedClient(upstream, listLimiter, characterLimiter)
}

func buildNotifier(b *mirrorAppConfig) notify.Notifier {
	if b.notifier != nil {
		return b.notifier
	}
	if b.config.Notifier.WebhookURL == "" {
		slog.Info("No notifier webhook configured, alerts are logged")
		return notify.NewLogNotifier()
	}
	return notify.NewWebhookNotifier(b.config.Notifier.WebhookURL,
		httpclient.NewDefaultClient(b.config.Notifier.GetTimeout()))
}

func settingsFromConfig(cfg *config.Config) strategies.Settings {
	return strategies.Settings{
		SubjectType:          catalog.SubjectType(cfg.Catalog.SubjectType),
		BatchSize:            cfg.Sync.BatchSize,
		IncrementalBuffer:    cfg.Sync.IncrementalBuffer,
		FailureThreshold:     cfg.Sync.FailureThreshold,
		FailureBackoff:       cfg.Sync.GetFailureBackoff(),
		NotifyChannel:        cfg.Sync.NotifyChannel,
		DailyCooldownDays:    cfg.Cooldown.Daily,
		BiweeklyCooldownDays: cfg.Cooldown.Biweekly,
		MonthlyCooldownDays:  cfg.Cooldown.Monthly,
	}
}

// buildHTTPServer builds the HTTP server with router and middleware. runCtx
// bounds runs started through the API.
func buildHTTPServer(
	runCtx context.Context,
	b *mirrorAppConfig,
	components *AppComponents,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(b.requestTimeout),
		api.LoggingMiddleware,
	}
	middlewares = append(middlewares, b.middlewares...)

	// Metrics first, so every request is counted
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		if metricsMiddleware != nil {
			middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, middlewares...)
			slog.Info("HTTP metrics middleware enabled")
		}
	}

	routes := v1.NewRoutes(runCtx,
		components.Manager,
		components.Cursor,
		&observedStats{store: components.Documents, metrics: components.StoreMetrics},
		components.Coordinator,
	)

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(middlewares...),
		api.WithReadiness(components.Ready),
	}
	if b.metricsHandler != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(b.metricsHandler))
	}

	server := &http.Server{
		Addr:              b.address,
		Handler:           api.NewServer(routes, serverOpts...),
		ReadTimeout:       b.readTimeout,
		ReadHeaderTimeout: b.readTimeout,
		WriteTimeout:      b.writeTimeout,
		IdleTimeout:       b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
