package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"nexuspos/internal/cache"
	"nexuspos/internal/config"
	"nexuspos/internal/describe"
	"nexuspos/internal/fiscal"
	"nexuspos/internal/httpapi"
	"nexuspos/internal/logger"
	"nexuspos/internal/metrics"
	"nexuspos/internal/pricing"
	"nexuspos/internal/seed"
	"nexuspos/internal/service"
	"nexuspos/internal/store"
	"nexuspos/internal/store/memory"
	pgstore "nexuspos/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{
		ServiceName: "nexuspos",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
		WarnStack:   cfg.LogWarnStack,
	})
	if err := validateConfig(cfg); err != nil {
		log.Error(context.Background(), "invalid configuration", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error(context.Background(), "server exited", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	catalog, err := seed.Load(cfg.SeedFile)
	if err != nil {
		return fmt.Errorf("load seed catalog: %w", err)
	}
	if err := applyDefaultTaxRate(&catalog, cfg.DefaultTaxRate); err != nil {
		return err
	}

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		closers = append(closers, pg.Close)
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		seeded, err := pg.SeedIfEmpty(ctx, catalog)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		repo = pg
		log.InfoFields(ctx, "repository ready", map[string]any{"kind": "postgres", "seeded": seeded})
	} else {
		mem, err := memory.New(catalog)
		if err != nil {
			return fmt.Errorf("memory store: %w", err)
		}
		repo = mem
		log.InfoFields(ctx, "repository ready", map[string]any{"kind": "memory"})
	}

	descriptionCache := cache.DescriptionCache(cache.NoopDescriptionCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisDescriptionCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.WarnFields(ctx, "redis unavailable, using noop cache", map[string]any{"error": err.Error()})
		} else {
			descriptionCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info(ctx, "cache: redis")
		}
	}

	var generator describe.TextGenerator
	if cfg.GeminiAPIKey != "" {
		generator = describe.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, nil)
	} else {
		log.Warn(ctx, "GEMINI_API_KEY not set; product descriptions disabled")
	}
	describer := describe.New(describe.Options{
		Generator: generator,
		Cache:     descriptionCache,
		CacheTTL:  cfg.DescriptionCacheTTL,
		Timeout:   cfg.DescribeTimeout,
		Logger:    log,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := service.New(service.Options{
		Repo:         repo,
		Describer:    describer,
		Syncer:       fiscal.NewClient(cfg.FiscalAPIKey, fiscal.NewTracedHTTPClient(nil)),
		Recorder:     metrics.NewCheckoutMetrics(registry),
		Logger:       log,
		SyncTimeout:  cfg.FiscalSyncTimeout,
		MaxTerminals: cfg.MaxTerminals,
	})
	if cfg.BootstrapAdminPassword != "" {
		created, err := svc.EnsureAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			log.InfoFields(ctx, "bootstrap admin ready", map[string]any{"email": cfg.BootstrapAdminEmail})
		}
	}

	api := httpapi.New(httpapi.Options{
		Service:       svc,
		Auth:          httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL, svc),
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        log,
		Metrics:       metrics.NewHTTPMetrics(registry),
		Gatherer:      registry,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Confirm may wait on the fiscal endpoint.
		WriteTimeout: cfg.FiscalSyncTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.InfoFields(context.Background(), "POS backend listening", map[string]any{"addr": cfg.Address()})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	var errs error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("shutdown: %w", err))
	}
	for _, closeFn := range closers {
		errs = multierr.Append(errs, closeFn())
	}

	log.Info(context.Background(), "server stopped")
	return errs
}

// validateConfig reports every problem at once.
func validateConfig(cfg config.Config) error {
	var errs error
	if len(cfg.AuthSecret) < 32 {
		errs = multierr.Append(errs, errors.New("AUTH_SECRET must be set and at least 32 characters"))
	}
	if cfg.AccessTokenTTL <= 0 {
		errs = multierr.Append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}
	if cfg.FiscalSyncTimeout <= 0 {
		errs = multierr.Append(errs, errors.New("FISCAL_SYNC_TIMEOUT must be positive"))
	}
	if cfg.BootstrapAdminPassword != "" {
		if len(cfg.BootstrapAdminPassword) < 8 {
			errs = multierr.Append(errs, errors.New("BOOTSTRAP_ADMIN_PASSWORD must be at least 8 characters"))
		}
		if !strings.Contains(cfg.BootstrapAdminEmail, "@") {
			errs = multierr.Append(errs, errors.New("BOOTSTRAP_ADMIN_EMAIL must be an email address"))
		}
	}
	if strings.TrimSpace(cfg.DefaultTaxRate) != "" {
		if _, err := parseTaxRate(cfg.DefaultTaxRate); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func parseTaxRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !pricing.ValidTaxRate(rate) {
		return decimal.Zero, fmt.Errorf("DEFAULT_TAX_RATE must be a percentage between 0 and 100, got %q", raw)
	}
	return rate, nil
}

// applyDefaultTaxRate sets the rate a fresh store starts with. Stores that already
// have settings keep theirs.
func applyDefaultTaxRate(catalog *seed.Catalog, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	rate, err := parseTaxRate(raw)
	if err != nil {
		return err
	}
	catalog.Settings.TaxRatePercent = rate
	return nil
}
