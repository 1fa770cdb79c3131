package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "SIGPARSE"

// newViper builds a Viper instance with YAML file type, the SIGPARSE_ env
// prefix and a "." → "_" key replacer so "database.host" resolves to
// SIGPARSE_DATABASE_HOST.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvKeys(v)
	return v
}

// bindEnvKeys registers every known key so AutomaticEnv can see overrides
// for keys absent from the config file. viper only consults the environment
// for keys it already knows about when unmarshalling.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"server.port", "server.mode", "server.read_timeout", "server.write_timeout",
		"server.max_body_size", "server.shutdown_timeout", "server.rate_limit_rps", "server.rate_limit_burst",
		"grpc.port", "grpc.max_recv_msg_size",
		"parser.batch_mode", "parser.workers", "parser.max_batch_size", "parser.input_timeout",
		"parser.enable_cache", "parser.cache_ttl", "parser.persist", "parser.index",
		"tagger.backend", "tagger.endpoint", "tagger.model_name", "tagger.timeout",
		"tagger.fallback", "tagger.max_retries",
		"normalizer.replace_words_path", "normalizer.keep_words_path",
		"normalizer.watch_assets", "normalizer.spell_check",
		"database.enabled", "database.host", "database.port", "database.user",
		"database.password", "database.db_name", "database.ssl_mode", "database.max_conns",
		"database.migration_path",
		"redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.key_prefix",
		"kafka.brokers", "kafka.group_id", "kafka.request_topic", "kafka.result_topic",
		"kafka.dlq_topic", "kafka.max_retries",
		"opensearch.enabled", "opensearch.addresses", "opensearch.user", "opensearch.password",
		"opensearch.index",
		"minio.endpoint", "minio.access_key", "minio.secret_key", "minio.bucket", "minio.use_ssl",
		"metrics.enabled", "metrics.namespace", "metrics.path",
		"log.level", "log.format", "log.output",
	} {
		_ = v.BindEnv(key)
	}
}

// Load reads the YAML file at configPath, merges SIGPARSE_* environment
// overrides, applies defaults for unset fields and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from SIGPARSE_* environment variables,
// with no config file required.
//
//	SIGPARSE_<SECTION>_<FIELD>   e.g.  SIGPARSE_TAGGER_BACKEND, SIGPARSE_REDIS_ADDR
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// LoadOrDefault loads configPath when it is non-empty and falls back to the
// environment otherwise.
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the newly parsed
// Config whenever the file changes on disk. Invalid revisions are reported
// to onError (if non-nil) and never reach onChange.
//
// Watch is non-blocking; viper runs the fsnotify loop in its own goroutine.
// Only hot-safe settings such as log.level should be applied by callers.
func Watch(configPath string, onChange func(*Config), onError func(error)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Callers are expected to have called Load already.
	_ = v.ReadInConfig()

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// MustLoad is Load that panics on any error. Intended for main().
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
