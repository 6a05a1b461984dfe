// Package config loads the execution bridge's runtime configuration via
// viper: a config file overridden by environment variables, unmarshalled
// into one validated Config struct at startup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Kafka           KafkaConfig           `mapstructure:"kafka"`
	TradeService    TradeServiceConfig    `mapstructure:"trade_service"`
	SecurityService SecurityServiceConfig `mapstructure:"security_service"`
	Batch           BatchConfig           `mapstructure:"batch"`
	Performance     PerformanceConfig     `mapstructure:"performance"`
	Log             LogConfig             `mapstructure:"log"`
	App             AppConfig             `mapstructure:"app"`
	Metrics         MetricsConfig         `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port                    int           `mapstructure:"port"`
	Host                    string        `mapstructure:"host"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
}

// DatabaseConfig holds pgxpool connection and sizing configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	URL             string        `mapstructure:"url"`
}

// KafkaConfig holds the async publisher's broker, topic, and resilience
// settings (C6).
type KafkaConfig struct {
	Brokers               []string      `mapstructure:"brokers"`
	Topic                 string        `mapstructure:"topic"`
	DLQSuffix             string        `mapstructure:"dlq_suffix"`
	EnableDeadLetterQueue bool          `mapstructure:"enable_dead_letter_queue"`
	RetryMaxAttempts      int           `mapstructure:"retry_max_attempts"`
	RetryInitialDelay     time.Duration `mapstructure:"retry_initial_delay"`
	RetryMaxDelay         time.Duration `mapstructure:"retry_max_delay"`
	RetryMultiplier       float64       `mapstructure:"retry_multiplier"`
	RetryJitter           float64       `mapstructure:"retry_jitter"`
	BreakerThreshold      int           `mapstructure:"breaker_failure_threshold"`
	BreakerSuccessReset   int           `mapstructure:"breaker_success_threshold"`
	BreakerTimeout        time.Duration `mapstructure:"breaker_timeout"`
}

// TradeServiceConfig holds the outbound trade-service client configuration
// (C3).
type TradeServiceConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// SecurityServiceConfig holds the security-catalog read-through cache
// configuration (C2).
type SecurityServiceConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// BatchConfig holds the batch pipeline's request limits (C4/C7), the
// async-publish kill switch, and FixedSize, which is loaded but not read by
// any component.
type BatchConfig struct {
	MaxRequestSize   int  `mapstructure:"max_request_size"`
	FixedSize        int  `mapstructure:"fixed_size"`
	EnableAsyncKafka bool `mapstructure:"enable_async_kafka"`
}

// PerformanceConfig holds the dynamic batch-size optimizer's search space
// (C8) and the pool monitor's sampling cadence (C9).
type PerformanceConfig struct {
	MinBatchSize     int           `mapstructure:"min_batch_size"`
	MaxBatchSize     int           `mapstructure:"max_batch_size"`
	InitialBatchSize int           `mapstructure:"initial_batch_size"`
	WindowSize       int           `mapstructure:"window_size"`
	AdjustEvery      time.Duration `mapstructure:"adjust_every"`
	PoolSampleEvery  time.Duration `mapstructure:"pool_sample_every"`
}

// LogConfig holds structured logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// AppConfig holds application identity configuration.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// LoadConfig loads configuration from an optional file and environment
// variables, applying defaults first.
func LoadConfig(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigFromEnv loads configuration from defaults and environment
// variables only, skipping any config file.
func LoadConfigFromEnv() (*Config, error) {
	return LoadConfig("")
}

func setDefaults() {
	viper.SetDefault("server.port", 8084)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.graceful_shutdown_timeout", "30s")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "execution_bridge")
	viper.SetDefault("database.username", "dev")
	viper.SetDefault("database.password", "dev")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.min_connections", 5)
	viper.SetDefault("database.max_conn_lifetime", "1h")
	viper.SetDefault("database.max_conn_idle_time", "30m")
	viper.SetDefault("database.connect_timeout", "10s")
	viper.SetDefault("database.query_timeout", "30s")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "orders")
	viper.SetDefault("kafka.dlq_suffix", ".dlq")
	viper.SetDefault("kafka.enable_dead_letter_queue", true)
	viper.SetDefault("kafka.retry_max_attempts", 3)
	viper.SetDefault("kafka.retry_initial_delay", "1s")
	viper.SetDefault("kafka.retry_max_delay", "30s")
	viper.SetDefault("kafka.retry_multiplier", 2.0)
	viper.SetDefault("kafka.retry_jitter", 0.2)
	viper.SetDefault("kafka.breaker_failure_threshold", 5)
	viper.SetDefault("kafka.breaker_success_threshold", 2)
	viper.SetDefault("kafka.breaker_timeout", "60s")

	viper.SetDefault("trade_service.base_url", "http://localhost:8085")
	viper.SetDefault("trade_service.timeout", "5s")
	viper.SetDefault("trade_service.max_attempts", 2)

	viper.SetDefault("security_service.base_url", "http://localhost:8086")
	viper.SetDefault("security_service.ttl", "5m")
	viper.SetDefault("security_service.max_entries", 10000)
	viper.SetDefault("security_service.timeout", "3s")

	viper.SetDefault("batch.max_request_size", 100)
	viper.SetDefault("batch.fixed_size", 500)
	viper.SetDefault("batch.enable_async_kafka", true)

	viper.SetDefault("performance.min_batch_size", 50)
	viper.SetDefault("performance.max_batch_size", 2000)
	viper.SetDefault("performance.initial_batch_size", 500)
	viper.SetDefault("performance.window_size", 20)
	viper.SetDefault("performance.adjust_every", "5s")
	viper.SetDefault("performance.pool_sample_every", "5s")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.filename", "")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("app.name", "execution-bridge")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 8084)
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("at least one kafka broker is required")
	}
	if c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic cannot be empty")
	}
	if c.Performance.MinBatchSize <= 0 || c.Performance.MaxBatchSize < c.Performance.MinBatchSize {
		return fmt.Errorf("invalid performance batch size bounds: min=%d max=%d", c.Performance.MinBatchSize, c.Performance.MaxBatchSize)
	}
	if c.Log.Level == "" {
		return fmt.Errorf("log level cannot be empty")
	}
	if c.App.Name == "" {
		return fmt.Errorf("app name cannot be empty")
	}
	return nil
}

// GetDatabaseURL constructs the pgx connection string from configuration.
func (c *Config) GetDatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		sslMode,
	)
}

// IsDevelopment returns true if the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDebug returns true if debug mode is enabled.
func (c *Config) IsDebug() bool {
	return c.App.Debug || c.IsDevelopment()
}
