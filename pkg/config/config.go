package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Kafka struct {
		Brokers  []string `yaml:"brokers"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
		Producer struct {
			RequiredAcks int           `yaml:"required_acks"`
			Compression  string        `yaml:"compression"`
			MaxAttempts  int           `yaml:"max_attempts"`
			BatchSize    int           `yaml:"batch_size"`
			BatchBytes   int           `yaml:"batch_bytes"`
			Linger       time.Duration `yaml:"linger"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Topics struct {
			Underlying      string `yaml:"underlying"`
			OptionQuote     string `yaml:"option_quote"`
			OptionChain     string `yaml:"option_chain"`
			EnrichedTick    string `yaml:"enriched_underlying"`
			EnrichedChain   string `yaml:"enriched_option_chain"`
		} `yaml:"topics"`
	} `yaml:"kafka"`
	Redis struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		PoolSize     int           `yaml:"pool_size"`
		MinIdleConns int           `yaml:"min_idle_conns"`
		PoolTimeout  time.Duration `yaml:"pool_timeout"`
		Prefix       string        `yaml:"prefix"`
	} `yaml:"redis"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Worker struct {
		Workers        int           `yaml:"workers"` // 0 = NumCPU
		MaxDepth       int           `yaml:"max_depth"`
		RetryLimit     int           `yaml:"retry_limit"`
		RetryBase      time.Duration `yaml:"retry_base"`
		RetryCap       time.Duration `yaml:"retry_cap"`
		JobTimeout     time.Duration `yaml:"job_timeout"`
		IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	} `yaml:"worker"`
	Enrichment struct {
		OHLCWindows   []int         `yaml:"ohlc_windows_minutes"`
		SurfaceWindow time.Duration `yaml:"surface_window"`
		CacheTTL      struct {
			Latest  time.Duration `yaml:"latest"`
			Chain   time.Duration `yaml:"chain"`
			PCR     time.Duration `yaml:"pcr"`
			Surface time.Duration `yaml:"surface"`
		} `yaml:"cache_ttl"`
	} `yaml:"enrichment"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Kafka.Topics.Underlying == "" {
		c.Kafka.Topics.Underlying = "market.underlying"
	}
	if c.Kafka.Topics.OptionQuote == "" {
		c.Kafka.Topics.OptionQuote = "market.option_quote"
	}
	if c.Kafka.Topics.OptionChain == "" {
		c.Kafka.Topics.OptionChain = "market.option_chain"
	}
	if c.Kafka.Topics.EnrichedTick == "" {
		c.Kafka.Topics.EnrichedTick = "enriched.underlying"
	}
	if c.Kafka.Topics.EnrichedChain == "" {
		c.Kafka.Topics.EnrichedChain = "enriched.option_chain"
	}
	if len(c.Enrichment.OHLCWindows) == 0 {
		c.Enrichment.OHLCWindows = []int{1, 5, 15}
	}
	if c.Enrichment.SurfaceWindow <= 0 {
		c.Enrichment.SurfaceWindow = 5 * time.Minute
	}
	if c.Enrichment.CacheTTL.Latest <= 0 {
		c.Enrichment.CacheTTL.Latest = 5 * time.Minute
	}
	if c.Enrichment.CacheTTL.Chain <= 0 {
		c.Enrichment.CacheTTL.Chain = 5 * time.Minute
	}
	if c.Enrichment.CacheTTL.PCR <= 0 {
		c.Enrichment.CacheTTL.PCR = 5 * time.Minute
	}
	if c.Enrichment.CacheTTL.Surface <= 0 {
		c.Enrichment.CacheTTL.Surface = 5 * time.Minute
	}
	if c.Worker.RetryLimit <= 0 {
		c.Worker.RetryLimit = 3
	}
	if c.Worker.RetryBase <= 0 {
		c.Worker.RetryBase = 5 * time.Second
	}
	if c.Worker.RetryCap <= 0 {
		c.Worker.RetryCap = 2 * time.Minute
	}
	if c.Worker.JobTimeout <= 0 {
		c.Worker.JobTimeout = 30 * time.Second
	}
	if c.Worker.IdempotencyTTL <= 0 {
		c.Worker.IdempotencyTTL = time.Hour
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "deltastream"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("redis.host is required")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	for _, w := range c.Enrichment.OHLCWindows {
		if w <= 0 {
			return fmt.Errorf("enrichment.ohlc_windows_minutes must be positive, got %d", w)
		}
	}
	return nil
}
