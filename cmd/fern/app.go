package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/exportrun"
	"github.com/Ramsey-B/fern/pkg/commerce"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/exporter"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/pim"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

// app holds the wired collaborators shared by the serve and export commands
type app struct {
	cfg      *config.Config
	logger   ectologger.Logger
	settings models.ExportSettings
	startup  *startup.Startup
	database *database.Dependency
	redis    *redis.Client
	producer *kafka.Producer
	service  *exporter.Service
	runs     exportRunStore

	shutdownTracing func(context.Context) error
}

// exportRunStore is the run store the API reads from and the exporter writes to
type exportRunStore interface {
	exporter.RunStore
	GetByID(ctx context.Context, id string) (*models.ExportRun, error)
	ListByChannel(ctx context.Context, channelID, page, pageSize int) ([]models.ExportRun, int, error)
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level %q: %w", cfg.LogLevel, err)
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

// newApp loads configuration and starts every enabled dependency
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	settings, err := config.LoadExportSettings(cfg.ExportSettingsPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:             cfg,
		logger:          logger,
		settings:        settings,
		startup:         startup.NewStartup(logger, cfg.StartupMaxAttempts),
		shutdownTracing: func(context.Context) error { return nil },
	}

	if cfg.OTLPEnabled {
		shutdown, err := tracing.Setup(ctx, cfg.AppName, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  cfg.OTLPTimeout,
		})
		if err != nil {
			return nil, err
		}
		a.shutdownTracing = shutdown
	}

	if cfg.DatabaseEnabled {
		migrations := database.NewMigrationService(logger, &database.MigrationConfig{
			MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
			Version:             cfg.DatabaseMigrationVersion,
			Force:               cfg.DatabaseMigrationForce,
			AutoRollback:        cfg.DatabaseMigrationAutoRollback,
		})
		a.database = database.NewDependency(database.Config{
			Host:            cfg.DatabaseHost,
			Port:            cfg.DatabasePort,
			User:            cfg.DatabaseUserName,
			Password:        cfg.DatabasePassword,
			Name:            cfg.DatabaseName,
			SSLMode:         cfg.DatabaseSSLMode,
			MaxOpenConns:    cfg.DatabaseMaxOpenConns,
			MaxIdleConns:    cfg.DatabaseMaxIdleConns,
			ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
		}, migrations, logger)
		a.startup.AddDependency(a.database)
	}

	if cfg.RedisEnabled {
		a.redis = redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		a.startup.AddDependency(a.redis)
	}

	if err := a.startup.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start dependencies: %w", err)
	}

	a.service = a.newExportService()
	return a, nil
}

func (a *app) newExportService() *exporter.Service {
	cfg := a.cfg

	pimHTTP := httpclient.DefaultConfig()
	pimHTTP.Timeout = cfg.PIMTimeout
	source := pim.NewRemoteSource(httpclient.NewClient(pimHTTP, a.logger), pim.RemoteConfig{
		BaseURL: cfg.PIMBaseURL,
		APIKey:  cfg.PIMAPIKey,
	}, a.logger)

	var opts []exporter.Option

	if a.database != nil {
		a.runs = exportrun.NewRepository(a.database.DB(), a.logger)
	} else {
		a.runs = exporter.NewMemoryRunStore()
	}
	opts = append(opts, exporter.WithRunStore(a.runs))

	if a.redis != nil {
		opts = append(opts, exporter.WithLocker(exporter.NewRedisLocker(redis.NewLocker(a.redis, cfg.RedisLockPrefix))))
	}

	if cfg.KafkaEnabled {
		a.producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, a.logger)
		opts = append(opts, exporter.WithEventSink(events.NewEmitter(a.producer, a.logger)))
	}

	if cfg.CommerceEnabled {
		commerceHTTP := httpclient.DefaultConfig()
		commerceHTTP.Timeout = cfg.CommerceTimeout
		opts = append(opts, exporter.WithImporter(commerce.NewClient(httpclient.NewClient(commerceHTTP, a.logger), commerce.Config{
			BaseURL:       cfg.CommerceBaseURL,
			APIKey:        cfg.CommerceAPIKey,
			RetryAttempts: cfg.CommerceRetryAttempts,
			MaxPolls:      cfg.CommerceMaxPolls,
		}, a.logger)))
	}

	return exporter.NewService(source, a.settings, exporter.Config{
		OutputDir:         cfg.ExportOutputDir,
		LockTTL:           cfg.ExportLockTTL,
		ResourceChunkSize: cfg.ExportResourceChunkSize,
		ImportWorkers:     cfg.ExportImportWorkers,
	}, a.logger, opts...)
}

// close stops dependencies in reverse start order and flushes traces
func (a *app) close(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.WithContext(ctx).WithError(err).Error("Failed to close kafka producer")
		}
	}
	if err := a.startup.Stop(ctx); err != nil {
		a.logger.WithContext(ctx).WithError(err).Error("Failed to stop dependencies")
	}
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.WithContext(ctx).WithError(err).Error("Failed to shut down tracing")
	}
}
