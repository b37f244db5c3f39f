// Package app wires configuration, storage, the license manager, and the
// HTTP facade into a runnable application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"pluglic/internal/config"
	"pluglic/internal/infrastructure"
	"pluglic/internal/license"
	custommw "pluglic/internal/middleware"
	"pluglic/internal/store"
	transport "pluglic/internal/transport/http"
)

// Application is the main application container.
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Store         store.Store
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	managerMu sync.RWMutex
	manager   *license.Manager
	licensing config.LicensingConfig
}

// New creates an application from the default configuration sources.
func New() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates an application from an explicit configuration.
func NewWithConfig(cfg *config.Config) (*Application, error) {
	logger := infrastructure.InitializeLogger(cfg.Logging)

	logger.Info("application starting",
		slog.String("service", infrastructure.ServiceName),
		slog.String("version", infrastructure.ServiceVersion),
		slog.String("environment", string(cfg.Licensing.ResolvedEnvironment())))

	otelProviders, err := infrastructure.InitializeOTel(
		infrastructure.DefaultOTelConfig(string(cfg.Licensing.ResolvedEnvironment())), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	st, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	a := &Application{
		Config:        cfg,
		Store:         st,
		Logger:        logger,
		OTelProviders: otelProviders,
		licensing:     cfg.Licensing,
	}
	a.manager = license.NewManager(license.Options{
		Config: cfg.Licensing,
		Store:  st,
		Logger: logger,
	})

	a.setupRouter()
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return a, nil
}

func openStore(cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemory(), nil
	default:
		st, err := store.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open license store: %w", err)
		}
		return st, nil
	}
}

// Manager returns the current license manager instance.
func (a *Application) Manager() *license.Manager {
	a.managerMu.RLock()
	defer a.managerMu.RUnlock()
	return a.manager
}

// LicensingConfig returns the licensing settings currently in effect.
func (a *Application) LicensingConfig() config.LicensingConfig {
	a.managerMu.RLock()
	defer a.managerMu.RUnlock()
	return a.licensing
}

// ApplyLicensingConfig installs new licensing settings by constructing a
// fresh manager over the shared store. In-flight operations finish on
// the manager they started with.
func (a *Application) ApplyLicensingConfig(lc config.LicensingConfig) error {
	manager := license.NewManager(license.Options{
		Config: lc,
		Store:  a.Store,
		Logger: a.Logger,
	})

	a.managerMu.Lock()
	a.manager = manager
	a.licensing = lc
	a.managerMu.Unlock()

	a.Logger.Info("license manager rebuilt",
		slog.String("environment", string(lc.ResolvedEnvironment())),
		slog.Duration("cache_ttl", lc.CacheTTL),
		slog.Bool("network", lc.NetworkScope))
	return nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommw.StructuredLogger(a.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	licenseHandler := transport.NewLicenseHandler(func() transport.LicenseService {
		return a.Manager()
	}, a.Logger)
	configHandler := transport.NewConfigHandler(a.LicensingConfig, a.ApplyLicensingConfig, a.Logger)
	healthHandler := transport.NewHealthHandler(
		func() config.Environment { return a.Manager().Environment() },
		func() license.CacheStats { return a.Manager().CacheStats() },
	)

	var activateLimiter func(http.Handler) http.Handler
	if rl := a.Config.Security.RateLimit; rl.Enabled {
		activateLimiter = custommw.RateLimit(rl.RPS, rl.Burst)
	}

	r.Route("/api", func(r chi.Router) {
		r.Mount("/license", licenseHandler.Routes(activateLimiter))
		r.Mount("/config", configHandler.Routes())
	})
	r.Get("/healthz", healthHandler.Health)
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Method(http.MethodGet, "/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		a.Logger.Info("shutting down")
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("observability shutdown failed", slog.String("error", err.Error()))
		}
		return a.Store.Close()
	})

	return g.Wait()
}
