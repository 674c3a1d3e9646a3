package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appsales "github.com/casaviva/backoffice/internal/application/sales"
	"github.com/casaviva/backoffice/internal/domain/process"
	"github.com/casaviva/backoffice/internal/infrastructure/cache"
	"github.com/casaviva/backoffice/internal/infrastructure/config"
	"github.com/casaviva/backoffice/internal/infrastructure/logger"
	"github.com/casaviva/backoffice/internal/infrastructure/migration"
	"github.com/casaviva/backoffice/internal/infrastructure/persistence"
	"github.com/casaviva/backoffice/internal/infrastructure/storage"
	"github.com/casaviva/backoffice/internal/infrastructure/telemetry"
	"github.com/casaviva/backoffice/internal/interfaces/http/handler"
	"github.com/casaviva/backoffice/internal/interfaces/http/middleware"
	"github.com/casaviva/backoffice/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// evidenceStore resolves receipt keys and hands out upload URLs.
type evidenceStore interface {
	appsales.EvidenceResolver
	handler.EvidenceUploader
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	telemetry.ServiceVersion = version

	ctx := context.Background()
	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = cfg.App.Name
	}

	// Local-only logger for telemetry setup; rebuilt with the OTEL core
	// once log export is known to be on.
	logCfg := logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: serviceName,
		Env:     cfg.App.Env,
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	logExporter, err := telemetry.NewLogExporter(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       serviceName,
		Insecure:          cfg.Telemetry.Insecure,
		MinLevel:          logger.ParseLevel(cfg.Log.Level),
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	if logExporter.Enabled() {
		if log, err = logger.New(logCfg, logExporter.Core()); err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting back office",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	providers, err := telemetry.Setup(ctx, telemetry.Config{
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       serviceName,
		Insecure:          cfg.Telemetry.Insecure,
		Tracing:           cfg.Telemetry.Enabled,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		Metrics:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		MetricInterval:    cfg.Telemetry.MetricsInterval,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	meter := providers.Meter(serviceName)
	ledgerMetrics, err := telemetry.NewLedgerMetrics(meter)
	if err != nil {
		log.Warn("Ledger metrics disabled", zap.Error(err))
	}

	dbOpts := []persistence.DatabaseOption{
		persistence.WithGormLogger(logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
			logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
			logger.WithExpectedErrors(persistence.IsUniqueViolation),
		)),
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		dbOpts = append(dbOpts, persistence.WithPlugins(telemetry.NewSQLTracing(telemetry.SQLTracingConfig{
			IncludeVars:   cfg.Telemetry.DBLogFullSQL,
			SlowThreshold: cfg.Telemetry.DBSlowQueryThresh,
		})))
		log.Info("Database tracing enabled", zap.Bool("include_vars", cfg.Telemetry.DBLogFullSQL))
	}
	db, err := persistence.NewDatabase(&cfg.Database, dbOpts...)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := checkSchema(&cfg.Database, log); err != nil {
		log.Fatal("Database schema is not usable", zap.Error(err))
	}

	catalog := process.DefaultCatalog()
	if cfg.Process.CatalogPath != "" {
		if catalog, err = process.LoadCatalog(cfg.Process.CatalogPath); err != nil {
			log.Fatal("Failed to load step catalog", zap.String("path", cfg.Process.CatalogPath), zap.Error(err))
		}
		log.Info("Step catalog loaded", zap.String("path", cfg.Process.CatalogPath))
	}

	idempotency, err := cache.NewIdempotencyStore(ctx, cfg.Redis, cfg.App.IsProduction(), log)
	if err != nil {
		log.Fatal("Failed to initialize idempotency store", zap.Error(err))
	}
	defer func() {
		_ = idempotency.Close()
	}()

	evidence, err := newEvidenceStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize evidence storage", zap.Error(err))
	}

	deps := appsales.Dependencies{
		Scope:       db.TransactionScope(),
		Catalog:     catalog,
		Evidence:    evidence,
		Idempotency: idempotency,
		Metrics:     ledgerMetrics,
		Logger:      log,
		Retry: appsales.RetryPolicy{
			MaxRetries:      cfg.Ledger.MaxRetries,
			InitialInterval: cfg.Ledger.RetryInitialInterval,
			MaxInterval:     cfg.Ledger.RetryMaxInterval,
		},
		IdempotencyTTL: cfg.Ledger.IdempotencyTTL,
		Location:       cfg.Process.Location(),
		Locale:         cfg.Audit.Locale,
	}
	registryService := appsales.NewRegistryService(deps)
	ledgerService := appsales.NewLedgerService(deps)
	processService := appsales.NewProcessService(deps)

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Order matters: request ID and actor are read by the request logger,
	// and the tracing span must exist before it is enriched.
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Actor())
	engine.Use(logger.AccessLog(log))
	engine.Use(middleware.Tracing(serviceName, providers.TracingEnabled())...)
	engine.Use(middleware.HTTPMetrics(meter, log))

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.Secure(cfg.HTTP.HSTSMaxAge))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.Timeout(cfg.HTTP.WriteTimeout))

	router.Mount(engine, router.Handlers{
		System:        handler.NewSystemHandler(cfg.App.Name, version, db),
		Houses:        handler.NewHouseHandler(registryService, ledgerService),
		Clients:       handler.NewClientHandler(registryService, processService, ledgerService),
		Payments:      handler.NewPaymentHandler(registryService, ledgerService),
		Renunciations: handler.NewRenunciationHandler(registryService, ledgerService),
		Evidence:      handler.NewEvidenceHandler(evidence),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush telemetry", zap.Error(err))
	}
	if err := logExporter.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush logs", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// newEvidenceStore returns the S3 store when a bucket is configured and the
// stub resolver otherwise.
func newEvidenceStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (evidenceStore, error) {
	if cfg.Storage.Bucket == "" {
		log.Warn("No evidence bucket configured, using stub storage",
			zap.String("base_url", cfg.Storage.StubBaseURL))
		return storage.NewStubObjectStorage(cfg.Storage.StubBaseURL), nil
	}

	bucket, err := storage.NewS3Bucket(ctx, cfg.Storage, storage.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if err := bucket.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	log.Info("Evidence storage ready", zap.String("bucket", bucket.Name()))
	return bucket, nil
}

// checkSchema makes sure every migration is applied before serving, applying
// pending ones when auto-migrate is on. It uses its own connection because
// closing the migrator closes the database handle it was given.
func checkSchema(cfg *config.DatabaseConfig, log *zap.Logger) error {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	m, err := migration.New(sqlDB, log.Named("migrate"))
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.RequireCurrent()
	if errors.Is(err, migration.ErrSchemaBehind) && cfg.AutoMigrate {
		return m.Up()
	}
	return err
}
