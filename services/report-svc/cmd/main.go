package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"workshop/gen/openapi"
	"workshop/migrations"
	"workshop/pkg/config"
	"workshop/pkg/database"
	"workshop/pkg/identity"
	"workshop/pkg/logger"
	"workshop/pkg/metrics"
	"workshop/pkg/ratelimit"
	"workshop/pkg/server"
	"workshop/pkg/telemetry"
	"workshop/services/report-svc/internal/artifact"
	"workshop/services/report-svc/internal/catalog"
	"workshop/services/report-svc/internal/generator"
	"workshop/services/report-svc/internal/handlers"
	"workshop/services/report-svc/internal/index"
	"workshop/services/report-svc/internal/middleware"
	"workshop/services/report-svc/internal/repository"
	"workshop/services/report-svc/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("error")
		logger.Fatal("Failed to load config", "error", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
		Service:    cfg.App.Name,
	})

	logger.Log.Info("Starting report service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Телеметрия
	tp, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		logger.Log.Warn("Failed to init telemetry", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Log.Warn("Failed to shutdown telemetry", "error", err)
			}
		}()
	}

	m := metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	if err := metrics.RegisterRuntime(prometheus.DefaultRegisterer, cfg.Metrics.Namespace); err != nil {
		logger.Log.Warn("Failed to register runtime metrics", "error", err)
	}

	// Источник данных
	if !cfg.Database.Enabled {
		logger.Fatal("Database is disabled: reports have no data source")
	}
	db, err := database.NewPostgresDB(ctx, &cfg.Database, cfg.Retry)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(ctx, db.Pool(), &cfg.Database, migrations.PostgresMigrations, "postgres"); err != nil {
			logger.Fatal("Failed to run migrations", "error", err)
		}
	}

	repo := repository.NewPostgresRepository(db,
		repository.WithQueryTimeout(cfg.Database.QueryTimeout),
		repository.WithBackoff(func() retry.Backoff { return database.Backoff(cfg.Retry) }),
	)

	// Индекс артефактов
	idx, err := index.New(&cfg.Cache)
	if err != nil {
		logger.Fatal("Failed to init artifact index", "error", err, "driver", cfg.Cache.Driver)
	}
	logger.Log.Info("Artifact index initialized", "driver", cfg.Cache.Driver)

	if err := artifact.EnsureDir(cfg.Report.ArtifactsDir); err != nil {
		logger.Fatal("Artifacts directory is not usable", "error", err, "dir", cfg.Report.ArtifactsDir)
	}

	cat := catalog.NewWorkshop(repo, catalog.Settings{
		CurrencySymbol:    cfg.Report.CurrencySymbol,
		LowStockThreshold: cfg.Report.LowStockThreshold,
		Timezone:          cfg.Report.Timezone,
	})
	registry := generator.NewDefaultRegistry(generator.OptionsFromConfig(&cfg.Report))
	store := artifact.NewStore(cfg.Report.ArtifactsDir, cat, registry,
		artifact.WithMaxRows(cfg.Report.MaxRows),
	)

	svc := service.NewReportService(service.Config{
		Version:              cfg.App.Version,
		DefaultTTL:           cfg.Report.DefaultTTL,
		CleanupInterval:      cfg.Report.CleanupInterval,
		MaxArtifacts:         cfg.Report.MaxArtifacts,
		MaxArtifactsPerOwner: cfg.Report.MaxArtifactsPerOwner,
		Location:             cfg.Report.Location(),
		PublicURL:            cfg.HTTP.PublicURL,
	}, service.Deps{
		Catalog:  cat,
		Registry: registry,
		Store:    store,
		Index:    idx,
		Source:   repo,
	}, service.WithMetrics(m))

	if err := svc.Reconcile(ctx); err != nil {
		logger.Fatal("Failed to start report service", "error", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Log.Warn("Failed to close report service", "error", err)
		}
	}()

	limiter, closeLimiter := newLimiter(cfg)
	defer closeLimiter()

	routerCfg := handlers.RouterConfig{
		Auth: middleware.AuthConfig{
			Enabled:      cfg.Auth.Enabled,
			AdminKeyHash: cfg.Auth.AdminKeyHash,
		},
		GenerateLimiter: limiter,
		CORS:            cfg.HTTP.CORS,
		Metrics:         m,
		MetricsPath:     cfg.Metrics.Path,
	}
	if cfg.Auth.JWTSecret != "" {
		routerCfg.Auth.Tokens = identity.NewTokenManager(&identity.JWTConfig{
			SecretKey: cfg.Auth.JWTSecret,
			Issuer:    cfg.Auth.Issuer,
		})
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsHandler = metrics.Handler()
	}
	if cfg.HTTP.Docs.Enabled {
		routerCfg.DocsSpec = openapi.MustGetSpec()
		routerCfg.DocsPath = cfg.HTTP.Docs.Path
	}

	srv := server.New(cfg, handlers.NewRouter(handlers.NewReportHandler(svc), routerCfg))

	// Сбой одного участника отменяет gctx и останавливает второго
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return svc.RunReaper(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.Error("Report service failed", "error", err)
		svc.Close()
		os.Exit(1)
	}

	logger.Log.Info("Report service stopped")
}

// newLimiter создаёт лимитер создания отчётов; nil при выключенном rate limiting
func newLimiter(cfg *config.Config) (ratelimit.Limiter, func()) {
	if !cfg.RateLimit.Enabled {
		return nil, func() {}
	}

	rlCfg := ratelimit.FromConfig(cfg.RateLimit)

	var client redis.UniversalClient
	if rlCfg.Backend == "redis" {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Address(),
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		rlCfg.KeyPrefix = cfg.Cache.KeyPrefix + "ratelimit:"
	}

	limiter, err := ratelimit.New(rlCfg, client)
	if err != nil {
		logger.Fatal("Failed to init rate limiter", "error", err)
	}

	return limiter, func() {
		_ = limiter.Close()
		if client != nil {
			_ = client.Close()
		}
	}
}
