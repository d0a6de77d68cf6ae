package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/clover/config"
	companyrepo "github.com/Ramsey-B/clover/internal/repositories/company"
	recordrepo "github.com/Ramsey-B/clover/internal/repositories/companyrecord"
	dealrepo "github.com/Ramsey-B/clover/internal/repositories/deal"
	exceptionrepo "github.com/Ramsey-B/clover/internal/repositories/exception"
	matchresultrepo "github.com/Ramsey-B/clover/internal/repositories/matchresult"
	mergedcompanyrepo "github.com/Ramsey-B/clover/internal/repositories/mergedcompany"
	runrepo "github.com/Ramsey-B/clover/internal/repositories/run"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	graphpkg "github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/knowledge"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	graphroutes "github.com/Ramsey-B/clover/pkg/routes/graph"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	mergedcompanyroutes "github.com/Ramsey-B/clover/pkg/routes/mergedcompany"
	runroutes "github.com/Ramsey-B/clover/pkg/routes/run"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

type application struct {
	cfg    *config.Config
	logger ectologger.Logger

	db           *sqlx.DB
	graph        *graphpkg.Client
	queryService *graphpkg.QueryService
	producer     *kafka.Producer
	consumer     *kafka.Consumer
	service      *reconcile.Service
	echo         *echo.Echo
	health       *health.Checker
}

// dependency adapts a pair of closures to the startup graph.
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string     { return d.name }
func (d *dependency) DependsOn() []string { return d.dependsOn }

func (d *dependency) Start(ctx context.Context) error { return d.start(ctx) }

func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}

func main() {
	// .env is optional, real deployments configure through the environment.
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnvVariables(cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
		ServiceName:  cfg.AppName,
		Exporter:     cfg.TraceExporter,
		OTLPEndpoint: cfg.TraceOTLPEndpoint,
		OTLPProtocol: cfg.TraceOTLPProtocol,
		OTLPInsecure: cfg.TraceOTLPInsecure,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		os.Exit(1)
	}

	app := &application{cfg: cfg, logger: logger}

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(app.databaseDependency())
	boot.AddDependency(app.migrationsDependency())
	if cfg.GraphEnabled {
		boot.AddDependency(app.graphDependency())
	}
	boot.AddDependency(app.servicesDependency())
	if cfg.KafkaConsumerEnabled {
		boot.AddDependency(app.consumerDependency())
	}
	boot.AddDependency(app.httpDependency())

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}

	app.health.SetReady(true)
	logger.WithFields(map[string]any{"port": cfg.Port, "version": version}).Info("clover api started")

	<-ctx.Done()
	logger.Info("Shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()

	if err := boot.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
	}
	if err := shutdownTracing(stopCtx); err != nil {
		logger.WithError(err).Warn("Failed to flush traces")
	}
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func (app *application) databaseDependency() startup.StartupDependency {
	return &dependency{
		name: "database",
		start: func(ctx context.Context) error {
			cfg := app.cfg
			dsn := fmt.Sprintf(
				"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
				cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
			)

			db, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
			db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
			db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

			app.db = db
			return nil
		},
		stop: func(ctx context.Context) error {
			if app.db == nil {
				return nil
			}
			return app.db.Close()
		},
	}
}

func (app *application) migrationsDependency() startup.StartupDependency {
	return &dependency{
		name:      "migrations",
		dependsOn: []string{"database"},
		start: func(ctx context.Context) error {
			instance := database.NewDatabaseInstance(app.db, app.logger)
			return database.NewMigrationService(instance, app.logger, app.cfg.DatabaseMigrationFolderPath).Up()
		},
	}
}

func (app *application) graphDependency() startup.StartupDependency {
	return &dependency{
		name: "graph",
		start: func(ctx context.Context) error {
			client, err := graphpkg.NewClient(graphpkg.Config{
				Host:     app.cfg.GraphDBHost,
				Port:     app.cfg.GraphDBPort,
				Username: app.cfg.GraphDBUser,
				Password: app.cfg.GraphDBPassword,
			}, app.logger)
			if err != nil {
				return err
			}
			if err := client.VerifyConnectivity(ctx); err != nil {
				return fmt.Errorf("graph store unreachable: %w", err)
			}

			app.graph = client
			return nil
		},
		stop: func(ctx context.Context) error {
			if app.graph == nil {
				return nil
			}
			return app.graph.Close(ctx)
		},
	}
}

// servicesDependency builds the repositories, the reconcile service and the
// ingest processor, and registers everything the routes resolve through DI.
func (app *application) servicesDependency() startup.StartupDependency {
	dependsOn := []string{"migrations"}
	if app.cfg.GraphEnabled {
		dependsOn = append(dependsOn, "graph")
	}

	return &dependency{
		name:      "services",
		dependsOn: dependsOn,
		start: func(ctx context.Context) error {
			cfg := app.cfg
			logger := app.logger

			kb, err := knowledge.LoadOrDefault(cfg.KnowledgeBasePath)
			if err != nil {
				return fmt.Errorf("failed to load knowledge base: %w", err)
			}

			instance := database.NewDatabaseInstance(app.db, logger)
			deals := dealrepo.NewRepository(instance, logger)
			records := recordrepo.NewRepository(instance, logger)
			companies := companyrepo.NewRepository(instance, logger)
			runs := runrepo.NewRepository(instance, logger)
			matches := matchresultrepo.NewRepository(instance, logger)
			merged := mergedcompanyrepo.NewRepository(instance, logger)
			exceptions := exceptionrepo.NewRepository(instance, logger)

			app.producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      cfg.KafkaBrokers,
				BatchSize:    cfg.KafkaBatchSize,
				BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
				RequiredAcks: cfg.KafkaRequiredAcks,
				Compression:  cfg.KafkaCompression,
			}, logger)
			emitter := events.NewEmitter(app.producer, logger)

			var projector reconcile.Projector
			if app.graph != nil {
				projector = graphpkg.NewProjector(app.graph, logger)
				app.queryService = graphpkg.NewQueryService(app.graph, logger)
			}

			app.service = reconcile.NewService(
				logger,
				reconcile.Stores{
					Deals:      deals,
					Records:    records,
					Companies:  companies,
					Runs:       runs,
					Matches:    matches,
					Merged:     merged,
					Exceptions: exceptions,
				},
				emitter,
				projector,
				kb,
				reconcile.Config{
					RunTimeout: time.Duration(cfg.RunTimeoutSeconds) * time.Second,
					Engine:     matching.EngineConfig{WorkerCount: cfg.MatchWorkerCount},
				},
			)

			container, err := ectoinject.NewDIDefaultContainer()
			if err != nil {
				return fmt.Errorf("failed to create DI container: %w", err)
			}
			if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
				return err
			}
			if err := ectoinject.RegisterInstance[*runrepo.Repository](container, runs); err != nil {
				return err
			}
			if err := ectoinject.RegisterInstance[*matchresultrepo.Repository](container, matches); err != nil {
				return err
			}
			if err := ectoinject.RegisterInstance[*exceptionrepo.Repository](container, exceptions); err != nil {
				return err
			}
			if err := ectoinject.RegisterInstance[*mergedcompanyrepo.Repository](container, merged); err != nil {
				return err
			}
			if err := ectoinject.RegisterInstance[*reconcile.Service](container, app.service); err != nil {
				return err
			}
			if app.queryService != nil {
				if err := ectoinject.RegisterInstance[*graphpkg.QueryService](container, app.queryService); err != nil {
					return err
				}
			}

			proc := processor.NewProcessor(logger, deals, records, companies, app.service)
			if app.cfg.KafkaConsumerEnabled {
				app.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
					Brokers:       cfg.KafkaBrokers,
					Topics:        cfg.KafkaConsumerTopics,
					ConsumerGroup: cfg.KafkaConsumerGroup,
				}, logger, proc.Handle)
			}

			return nil
		},
		stop: func(ctx context.Context) error {
			if app.producer == nil {
				return nil
			}
			return app.producer.Close()
		},
	}
}

func (app *application) consumerDependency() startup.StartupDependency {
	return &dependency{
		name:      "kafka-consumer",
		dependsOn: []string{"services"},
		start: func(ctx context.Context) error {
			return app.consumer.Start(ctx)
		},
		stop: func(ctx context.Context) error {
			return app.consumer.Stop()
		},
	}
}

func (app *application) httpDependency() startup.StartupDependency {
	return &dependency{
		name:      "http",
		dependsOn: []string{"services"},
		start: func(ctx context.Context) error {
			cfg := app.cfg

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true
			e.HTTPErrorHandler = middleware.Error(app.logger)
			e.Use(otelecho.Middleware(cfg.AppName))
			e.Use(middleware.Context())
			e.Use(middleware.Logger(app.logger))
			e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
				AllowOrigins: cfg.AllowOrigins,
				AllowMethods: cfg.AllowMethods,
			}))
			e.Use(echomiddleware.Recover())

			api := e.Group("/api/v1")
			runroutes.Register(api.Group("/runs"))
			mergedcompanyroutes.Register(api.Group("/merged-companies"))

			graphroutes.NewHandler(app.queryService, app.logger).Register(api.Group("/graph"))

			var pinger health.GraphPinger
			if app.graph != nil {
				pinger = app.graph
			}
			app.health = health.NewChecker(app.db, pinger, version)
			app.health.RegisterRoutes(e)

			e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

			server := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Port),
				ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
				ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
				MaxHeaderBytes:    cfg.MaxHeaderBytes,
			}

			app.echo = e
			go func() {
				if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
					app.logger.WithError(err).Error("HTTP server stopped unexpectedly")
				}
			}()

			return nil
		},
		stop: func(ctx context.Context) error {
			if app.echo == nil {
				return nil
			}
			return app.echo.Shutdown(ctx)
		},
	}
}
