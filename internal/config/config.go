// Package config defines all configuration structures for sigparse. No I/O
// or parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimitRPS is the per-client sustained request rate. 0 disables limiting.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// GRPCConfig holds gRPC server tunables. Port 0 disables the gRPC listener.
type GRPCConfig struct {
	Port             int           `mapstructure:"port"`
	MaxRecvMsgSize   int           `mapstructure:"max_recv_msg_size"`
	KeepaliveTime    time.Duration `mapstructure:"keepalive_time"`
	KeepaliveTimeout time.Duration `mapstructure:"keepalive_timeout"`
}

// ParserConfig controls the parsing facade.
type ParserConfig struct {
	// BatchMode is the default for ParseMany: sequential | parallel | concurrent.
	BatchMode string `mapstructure:"batch_mode"`
	// Workers sizes the parallel worker pool. 0 means runtime.NumCPU().
	Workers      int           `mapstructure:"workers"`
	MaxBatchSize int           `mapstructure:"max_batch_size"`
	InputTimeout time.Duration `mapstructure:"input_timeout"`
	EnableCache  bool          `mapstructure:"enable_cache"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	Persist      bool          `mapstructure:"persist"`
	Index        bool          `mapstructure:"index"`
}

// TaggerConfig selects and configures the entity extractor.
type TaggerConfig struct {
	// Backend is "rule", "http" or "grpc".
	Backend   string        `mapstructure:"backend"`
	Endpoint  string        `mapstructure:"endpoint"`
	ModelName string        `mapstructure:"model_name"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// Fallback routes to the rule tagger when the model backend fails.
	Fallback   bool `mapstructure:"fallback"`
	MaxRetries int  `mapstructure:"max_retries"`
}

// NormalizerConfig points at replacement asset files. Empty paths use the
// embedded defaults.
type NormalizerConfig struct {
	ReplaceWordsPath string `mapstructure:"replace_words_path"`
	KeepWordsPath    string `mapstructure:"keep_words_path"`
	WatchAssets      bool   `mapstructure:"watch_assets"`
	SpellCheck       bool   `mapstructure:"spell_check"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// DSN renders the connection string understood by the pgx driver.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Apache Kafka producer/consumer parameters.
type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	GroupID      string   `mapstructure:"group_id"`
	RequestTopic string   `mapstructure:"request_topic"`
	ResultTopic  string   `mapstructure:"result_topic"`
	DLQTopic     string   `mapstructure:"dlq_topic"`
	MaxRetries   int      `mapstructure:"max_retries"`
	BatchSize    int      `mapstructure:"batch_size"`
}

// OpenSearchConfig holds OpenSearch cluster connection parameters.
type OpenSearchConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	Index              string   `mapstructure:"index"`
	BulkBatchSize      int      `mapstructure:"bulk_batch_size"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters.
type MinIOConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Bucket       string `mapstructure:"bucket"`
	ResultPrefix string `mapstructure:"result_prefix"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	Region       string `mapstructure:"region"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "console"
	Output string `mapstructure:"output"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure. Every component reads its
// settings from the relevant sub-struct.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
	Parser     ParserConfig     `mapstructure:"parser"`
	Tagger     TaggerConfig     `mapstructure:"tagger"`
	Normalizer NormalizerConfig `mapstructure:"normalizer"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

// NewDefaultConfig returns a Config with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}
	if c.GRPC.Port < 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("config: grpc.port %d is out of range [0, 65535]", c.GRPC.Port)
	}

	// Parser
	switch c.Parser.BatchMode {
	case "sequential", "parallel", "concurrent":
	default:
		return fmt.Errorf("config: parser.batch_mode %q is invalid; expected sequential|parallel|concurrent", c.Parser.BatchMode)
	}
	if c.Parser.Workers < 0 {
		return fmt.Errorf("config: parser.workers must be >= 0, got %d", c.Parser.Workers)
	}
	if c.Parser.MaxBatchSize < 1 {
		return fmt.Errorf("config: parser.max_batch_size must be >= 1, got %d", c.Parser.MaxBatchSize)
	}

	// Tagger
	switch c.Tagger.Backend {
	case "rule":
	case "http", "grpc":
		if c.Tagger.Endpoint == "" {
			return fmt.Errorf("config: tagger.endpoint is required for backend %q", c.Tagger.Backend)
		}
	default:
		return fmt.Errorf("config: tagger.backend %q is invalid; expected rule|http|grpc", c.Tagger.Backend)
	}

	// Database
	if c.Database.Enabled || c.Parser.Persist {
		if c.Database.Host == "" {
			return fmt.Errorf("config: database.host is required")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("config: database.user is required")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("config: database.db_name is required")
		}
		if c.Database.MaxConns < 1 {
			return fmt.Errorf("config: database.max_conns must be >= 1, got %d", c.Database.MaxConns)
		}
	}

	// Redis
	if c.Redis.Enabled || c.Parser.EnableCache {
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: redis.addr is required")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
		}
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("config: kafka.group_id is required")
	}

	// OpenSearch
	if (c.OpenSearch.Enabled || c.Parser.Index) && len(c.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("config: opensearch.addresses must contain at least one address")
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
