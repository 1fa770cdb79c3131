package config

import "time"

const (
	DefaultServerPort = 8080
	DefaultServerMode = "release"
	DefaultGRPCPort   = 9090

	DefaultBatchMode    = "sequential"
	DefaultMaxBatchSize = 10000
	DefaultCacheTTL     = 24 * time.Hour

	DefaultTaggerBackend = "rule"
	DefaultTaggerTimeout = 5 * time.Second

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBUser     = "sigparse"
	DefaultDBName     = "sigparse"
	DefaultDBMaxConns = 10

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "sigparse:"

	DefaultKafkaBroker       = "localhost:9092"
	DefaultKafkaGroupID      = "sigparse-worker"
	DefaultKafkaRequestTopic = "sig.parse.requests"
	DefaultKafkaResultTopic  = "sig.parse.results"
	DefaultKafkaDLQTopic     = "sig.parse.requests.dlq"

	DefaultOpenSearchAddr  = "http://localhost:9200"
	DefaultOpenSearchIndex = "structured-instructions"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "sigparse"

	DefaultMetricsNamespace = "sigparse"
	DefaultMetricsPath      = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills every zero-value field in cfg with the default.
// Fields already set by the caller are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 4 << 20
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = int(cfg.Server.RateLimitRPS * 2)
	}
	if cfg.GRPC.KeepaliveTime == 0 {
		cfg.GRPC.KeepaliveTime = 30 * time.Second
	}
	if cfg.GRPC.KeepaliveTimeout == 0 {
		cfg.GRPC.KeepaliveTimeout = 10 * time.Second
	}
	if cfg.GRPC.MaxRecvMsgSize == 0 {
		cfg.GRPC.MaxRecvMsgSize = 4 << 20
	}

	// ── Parser ────────────────────────────────────────────────────────────────
	if cfg.Parser.BatchMode == "" {
		cfg.Parser.BatchMode = DefaultBatchMode
	}
	if cfg.Parser.MaxBatchSize == 0 {
		cfg.Parser.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.Parser.CacheTTL == 0 {
		cfg.Parser.CacheTTL = DefaultCacheTTL
	}

	// ── Tagger ────────────────────────────────────────────────────────────────
	if cfg.Tagger.Backend == "" {
		cfg.Tagger.Backend = DefaultTaggerBackend
	}
	if cfg.Tagger.Timeout == 0 {
		cfg.Tagger.Timeout = DefaultTaggerTimeout
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.RequestTopic == "" {
		cfg.Kafka.RequestTopic = DefaultKafkaRequestTopic
	}
	if cfg.Kafka.ResultTopic == "" {
		cfg.Kafka.ResultTopic = DefaultKafkaResultTopic
	}
	if cfg.Kafka.DLQTopic == "" {
		cfg.Kafka.DLQTopic = DefaultKafkaDLQTopic
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = 3
	}

	// ── OpenSearch ────────────────────────────────────────────────────────────
	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddr}
	}
	if cfg.OpenSearch.Index == "" {
		cfg.OpenSearch.Index = DefaultOpenSearchIndex
	}
	if cfg.OpenSearch.BulkBatchSize == 0 {
		cfg.OpenSearch.BulkBatchSize = 500
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.ResultPrefix == "" {
		cfg.MinIO.ResultPrefix = "results/"
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}
