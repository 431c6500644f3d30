package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string `env:"APP_NAME" env-default:"fern-api"`
	Port                          int    `env:"PORT" env-default:"3005"`
	LogLevel                      string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"60"`
	MaxHeaderBytes                int    `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int    `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	StartupMaxAttempts            int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL (export run history)
	DatabaseEnabled               bool          `env:"DB_ENABLED" env-default:"false"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  int           `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"fern"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      uint          `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (channel export lock)
	RedisEnabled    bool          `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost       string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort       int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB         int           `env:"REDIS_DB" env-default:"0"`
	RedisLockPrefix string        `env:"REDIS_LOCK_PREFIX" env-default:"fern:lock:"`
	ExportLockTTL   time.Duration `env:"EXPORT_LOCK_TTL" env-default:"2h"`

	// Kafka Producer (export events)
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"export-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"1"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Tracing
	OTLPEnabled  bool          `env:"OTLP_ENABLED" env-default:"false"`
	OTLPEndpoint string        `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol string        `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure bool          `env:"OTLP_INSECURE" env-default:"true"`
	OTLPTimeout  time.Duration `env:"OTLP_TIMEOUT" env-default:"10s"`

	// PIM source
	PIMBaseURL string        `env:"PIM_BASE_URL" env-default:"http://localhost:8080"`
	PIMAPIKey  string        `env:"PIM_API_KEY" env-default:""`
	PIMTimeout time.Duration `env:"PIM_TIMEOUT" env-default:"30s"`

	// Commerce import endpoint
	CommerceEnabled       bool          `env:"COMMERCE_ENABLED" env-default:"true"`
	CommerceBaseURL       string        `env:"COMMERCE_BASE_URL" env-default:"http://localhost:8081"`
	CommerceAPIKey        string        `env:"COMMERCE_API_KEY" env-default:""`
	CommerceTimeout       time.Duration `env:"COMMERCE_TIMEOUT" env-default:"5m"`
	CommerceRetryAttempts int           `env:"COMMERCE_RETRY_ATTEMPTS" env-default:"3"`
	CommerceMaxPolls      int           `env:"COMMERCE_MAX_POLLS" env-default:"100"`

	// Export
	ExportOutputDir         string `env:"EXPORT_OUTPUT_DIR" env-default:"exports"`
	ExportSettingsPath      string `env:"EXPORT_SETTINGS_PATH" env-default:"config/export.yaml"`
	ExportResourceChunkSize int    `env:"EXPORT_RESOURCE_CHUNK_SIZE" env-default:"200"`
	ExportImportWorkers     int    `env:"EXPORT_IMPORT_WORKERS" env-default:"4"`
}

// Load reads an optional .env file and then the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return &cfg, nil
}
