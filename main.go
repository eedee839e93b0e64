package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fleetconnect/matchbook/config"
	invoicerepo "github.com/fleetconnect/matchbook/internal/repositories/invoice"
	jobrepo "github.com/fleetconnect/matchbook/internal/repositories/job"
	"github.com/fleetconnect/matchbook/pkg/database"
	"github.com/fleetconnect/matchbook/pkg/events"
	"github.com/fleetconnect/matchbook/pkg/extract"
	"github.com/fleetconnect/matchbook/pkg/invoices"
	"github.com/fleetconnect/matchbook/pkg/kafka"
	"github.com/fleetconnect/matchbook/pkg/matching"
	appmiddleware "github.com/fleetconnect/matchbook/pkg/middleware"
	"github.com/fleetconnect/matchbook/pkg/processor"
	"github.com/fleetconnect/matchbook/pkg/ratelimit"
	"github.com/fleetconnect/matchbook/pkg/routes/health"
	invoiceroutes "github.com/fleetconnect/matchbook/pkg/routes/invoice"
	jobroutes "github.com/fleetconnect/matchbook/pkg/routes/job"
	"github.com/fleetconnect/matchbook/pkg/startup"
	"github.com/fleetconnect/matchbook/pkg/tracing"
	"github.com/fleetconnect/matchbook/pkg/tracing/exporters"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger ectologger.Logger) error {
	tracerShutdown, err := setupTracing(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	// sqlx.Open is lazy; connectivity is verified by the startup dependency.
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)
	sqlxDB, err := sqlx.Open(cfg.DatabaseDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db := database.NewDatabaseInstance(sqlxDB, logger)
	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	var redisClient *goredis.Client
	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
	if cfg.RedisEnabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		limiter = ratelimit.NewRedisLimiter(redisClient, "matchbook:ratelimit")
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)
	emitter := events.NewEmitter(producer, logger)

	invoiceRepo := invoicerepo.NewRepository(db, logger)
	jobRepo := jobrepo.NewRepository(db, logger)

	matchConfig := matching.DefaultConfig()
	matchConfig.PriorLookupFailOpen = cfg.PriorLookupFailOpen
	engine := matching.NewEngine(logger, invoiceRepo, matchConfig)

	extractClient := extract.NewClient(cfg, logger)
	invoiceService := invoices.NewService(logger, extractClient, invoiceRepo, jobRepo, engine, emitter, cfg.MatchCandidateLimit)

	jobProcessor := processor.NewProcessor(logger, jobRepo)

	// consumerHealth stays nil when the consumer is disabled; assigning the
	// nil *Consumer directly would make the interface non-nil.
	var consumer *kafka.Consumer
	var consumerHealth health.ConsumerHealth
	if cfg.KafkaConsumerEnabled {
		consumer = kafka.NewConsumer(cfg, logger, jobProcessor.HandleMessage)
		consumerHealth = consumer
	}

	if err := registerDependencies(logger, db, invoiceRepo, jobRepo, invoiceService); err != nil {
		return fmt.Errorf("failed to register dependencies: %w", err)
	}

	healthChecker := health.NewChecker(db, redisClient, consumerHealth, version)
	e := newServer(cfg, logger, limiter, healthChecker)

	manager := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	manager.AddDependency(&dependency{
		name: "database",
		start: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
		stop: func(ctx context.Context) error {
			return db.Close()
		},
	})
	manager.AddDependency(&dependency{
		name:      "migrations",
		dependsOn: []string{"database"},
		start: func(ctx context.Context) error {
			driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
			if err != nil {
				return err
			}
			migrationService := database.NewMigrationService(logger, &database.MigrationConfig{
				MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
				Version:             uint(cfg.DatabaseMigrationVersion),
				Force:               cfg.DatabaseMigrationForce,
				AutoRollback:        cfg.DatabaseMigrationAutoRollback,
			})
			return migrationService.Migrate(cfg.DatabaseName, driver)
		},
		stop: func(ctx context.Context) error { return nil },
	})
	if consumer != nil {
		manager.AddDependency(&dependency{
			name:      "kafka-consumer",
			dependsOn: []string{"migrations"},
			start:     consumer.Start,
			stop: func(ctx context.Context) error {
				return consumer.Stop()
			},
		})
	}
	manager.AddDependency(&dependency{
		name:      "http-server",
		dependsOn: []string{"migrations"},
		start: func(ctx context.Context) error {
			go func() {
				addr := fmt.Sprintf(":%d", cfg.Port)
				if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("HTTP server stopped unexpectedly")
				}
			}()
			return nil
		},
		stop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})

	if err := manager.Start(ctx); err != nil {
		return err
	}
	healthChecker.SetReady(true)
	logger.WithFields(map[string]any{
		"app":     cfg.AppName,
		"port":    cfg.Port,
		"version": version,
	}).Info("Service started")

	<-ctx.Done()
	healthChecker.SetReady(false)
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := manager.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to stop cleanly")
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Error("Failed to close kafka producer")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.WithError(err).Error("Failed to close redis client")
		}
	}
	if tracerShutdown != nil {
		if err := tracerShutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shut down tracer")
		}
	}

	logger.Info("Service stopped")
	return nil
}

func newLogger(cfg config.Config) (ectologger.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func setupTracing(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	if !cfg.TracingEnabled {
		return nil, nil
	}

	var exporter sdktrace.SpanExporter = &exporters.ConsoleExporter{}
	if cfg.TracingOTLPEndpoint != "" {
		var err error
		exporter, err = exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.TracingOTLPEndpoint,
			Protocol: cfg.TracingOTLPProtocol,
			Insecure: cfg.TracingOTLPInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return provider.Shutdown, nil
}

func registerDependencies(
	logger ectologger.Logger,
	db database.DB,
	invoiceRepo *invoicerepo.Repository,
	jobRepo *jobrepo.Repository,
	invoiceService *invoices.Service,
) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return err
	}

	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[database.DB](container, db); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*invoicerepo.Repository](container, invoiceRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*jobrepo.Repository](container, jobRepo); err != nil {
		return err
	}
	return ectoinject.RegisterInstance[*invoices.Service](container, invoiceService)
}

func newServer(cfg config.Config, logger ectologger.Logger, limiter ratelimit.Limiter, healthChecker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = appmiddleware.Error(logger)

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(appmiddleware.Context())
	e.Use(appmiddleware.Logger(logger))
	e.Use(echomiddleware.Recover())

	healthChecker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	invoiceroutes.Register(api.Group("/invoices"))
	jobroutes.Register(api.Group("/jobs"))

	webhooks := api.Group("/webhooks/invoices",
		appmiddleware.WebhookAuth(cfg.WebhookSecret),
		appmiddleware.RateLimit(limiter, cfg.WebhookRateLimit, cfg.WebhookRateLimitWindow, logger),
	)
	invoiceroutes.RegisterWebhook(webhooks)

	return e
}

// dependency adapts closures to the startup.StartupDependency interface
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string                 { return d.name }
func (d *dependency) DependsOn() []string             { return d.dependsOn }
func (d *dependency) Start(ctx context.Context) error { return d.start(ctx) }
func (d *dependency) Stop(ctx context.Context) error  { return d.stop(ctx) }
