package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/redis/go-redis/v9"

	"csvmail/internal/artifacts"
	"csvmail/internal/config"
	apierrors "csvmail/internal/errors"
	"csvmail/internal/infrastructure"
	customMiddleware "csvmail/internal/middleware"
	"csvmail/internal/operations"
	"csvmail/internal/services"
	"csvmail/internal/stats"
	handlers "csvmail/internal/transport/http"
	"csvmail/internal/validation"
	ws "csvmail/internal/websocket"
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics
	ErrorHandler  *apierrors.ErrorHandler
	Store         artifacts.Store
	Redis         *redis.Client
	WebSocketHub  *ws.Hub
	JobQueue      *operations.JobQueue
	Services      *ServiceContainer

	listener net.Listener
	started  bool
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	CSV        *services.CSVService
	Validation *services.ValidationService
	Health     *services.HealthService
}

// NewApplication wires every component from cfg. Nothing listens or runs
// until Start.
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.Version),
		slog.String("artifact_backend", cfg.Artifacts.Backend))

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.CreateBusinessMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		Metrics:       metrics,
		ErrorHandler:  apierrors.NewErrorHandler(logger, cfg.Logging.Level == "debug"),
	}

	if err := app.initializeStore(); err != nil {
		return nil, err
	}
	app.initializeServices()
	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeStore opens the configured artifact backend.
func (a *Application) initializeStore() error {
	ac := a.Config.Artifacts
	switch ac.Backend {
	case "redis":
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     ac.Redis.Addr,
			Password: ac.Redis.Password,
			DB:       ac.Redis.DB,
		})
		a.Store = artifacts.NewRedisStore(a.Redis, ac.Redis.Prefix, ac.TTL, ac.MaxSize, a.Logger)
	default:
		store, err := artifacts.NewFileStore(ac.Dir, ac.TTL, ac.CleanupInterval, ac.MaxSize, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to open artifact store: %w", err)
		}
		a.Store = store
	}

	a.Logger.Info("Artifact store ready",
		slog.String("backend", ac.Backend),
		slog.Duration("ttl", ac.TTL))
	return nil
}

// initializeServices builds the validation stack and the services on top of
// the store.
func (a *Application) initializeServices() {
	v := a.Config.Validation

	a.WebSocketHub = ws.NewHub(a.Logger)

	checker := validation.NewDomainChecker(
		validation.NewResolver(v.Resolver, v.CheckTimeout),
		validation.DomainCheckerConfig{
			Timeout: v.CheckTimeout,
			Retry: validation.RetryConfig{
				MaxAttempts:  v.MaxAttempts,
				InitialDelay: v.InitialBackoff,
				MaxDelay:     v.MaxBackoff,
				Multiplier:   v.Multiplier,
			},
			CacheTTL:         v.CacheTTL,
			LookupsPerSecond: v.LookupsPerSecond,
			Burst:            v.LookupBurst,
		},
		a.Metrics,
		a.Logger,
	)
	pipeline := validation.NewPipeline(a.Store, checker, validation.PipelineConfig{Workers: v.Workers}, a.Metrics, a.Logger)

	a.JobQueue = operations.NewJobQueue(pipeline, operations.NewMemoryJobStore(), a.WebSocketHub, a.Metrics,
		operations.QueueConfig{
			Workers:         v.QueueWorkers,
			QueueSize:       v.QueueSize,
			Budget:          v.JobBudget,
			Retention:       v.Retention,
			CleanupInterval: a.Config.Artifacts.CleanupInterval,
		}, a.Logger)

	a.Services = &ServiceContainer{
		CSV:        services.NewCSVService(a.Store, stats.DedupMode(a.Config.Stats.DedupMode), a.Metrics, a.Logger),
		Validation: services.NewValidationService(a.Store, a.JobQueue, v.WaitTimeout, a.Logger),
		Health:     services.NewHealthService(config.Version, a.Store, a.JobQueue, a.WebSocketHub, a.Logger),
	}
}

// setupRouter configures the HTTP router.
// Middleware order: RequestID → RealIP → OTel → Logger → Recoverer → security.
func (a *Application) setupRouter() {
	r := chi.NewRouter()
	cfg := a.Config

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics, a.Logger).Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(a.ErrorHandler.Recoverer)
	r.Use(customMiddleware.StripSlashes)
	r.Use(customMiddleware.SecurityHeaders)
	if cfg.Security.EnableCORS {
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: cfg.Security.AllowedOrigins,
			MaxAge:         300,
			Logger:         a.Logger,
		}))
	}
	if cfg.Security.RateLimit.Enabled {
		limiter := customMiddleware.NewRateLimiter(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst, a.Logger)
		r.Use(limiter.Handler)
	}

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	// WebSocket connections are long-lived and stay outside the timeout.
	wsHandler := handlers.NewWebSocketHandler(a.WebSocketHub, a.Services.Validation, handlers.WebSocketConfig{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		AllowedOrigins:  cfg.Security.AllowedOrigins,
	}, a.ErrorHandler, a.Logger)
	r.Mount("/ws", wsHandler.Routes())

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.Timeout(cfg.Server.RequestTimeout, a.Logger))
		r.Use(customMiddleware.BodyLimit(cfg.Server.MaxUploadBytes))
		r.Mount("/csv-processor", handlers.NewCSVHandler(a.Services.CSV, a.ErrorHandler, a.Logger).Routes())
	})

	// Validation waits are bounded by the service wait timeout instead.
	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.BodyLimit(64 << 10))
		r.Mount("/email-validator", handlers.NewValidationHandler(a.Services.Validation, a.ErrorHandler, a.Logger).Routes())
	})

	r.With(
		render.SetContentType(render.ContentTypeJSON),
		customMiddleware.Timeout(cfg.Server.RequestTimeout, a.Logger),
	).Mount("/api", handlers.NewHealthHandler(a.Services.Health, a.Logger).Routes())

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:              a.Config.Server.Addr(),
		Handler:           a.Router,
		ReadTimeout:       a.Config.Server.ReadTimeout,
		ReadHeaderTimeout: a.Config.Server.ReadTimeout,
		WriteTimeout:      a.Config.Server.WriteTimeout,
		IdleTimeout:       a.Config.Server.IdleTimeout,
		MaxHeaderBytes:    a.Config.Server.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(a.Logger.Handler(), slog.LevelError),
	}
}

// Start starts background workers and begins serving. cancel is called if
// the server stops unexpectedly.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	if a.Redis != nil {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.Redis.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			return fmt.Errorf("redis unreachable at %s: %w", a.Config.Artifacts.Redis.Addr, err)
		}
	}

	listener, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	a.listener = listener

	a.WebSocketHub.Start()
	a.JobQueue.Start(ctx)
	a.started = true

	go func() {
		if err := a.Server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", listener.Addr().String()),
		slog.Int("validation_workers", a.Config.Validation.Workers),
		slog.Int("queue_workers", a.Config.Validation.QueueWorkers))
	return nil
}

// Addr returns the address the server listens on once started.
func (a *Application) Addr() string {
	if a.listener == nil {
		return a.Server.Addr
	}
	return a.listener.Addr().String()
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.started {
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	// Queue first so final job events still reach subscribers.
	if err := a.JobQueue.Stop(a.Config.Server.ShutdownTimeout); err != nil {
		a.Logger.ErrorContext(ctx, "Failed to stop job queue gracefully", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.WebSocketHub.Stop()

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	// The run context may already be cancelled.
	return a.Stop(context.Background())
}
