package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Logger    LoggerConfig            `mapstructure:"logger"`
	Redis     RedisConfig             `mapstructure:"redis"`
	Feed      FeedConfig              `mapstructure:"feed"`
	Cache     CacheConfig             `mapstructure:"cache"`
	Dedup     DedupConfig             `mapstructure:"dedup"`
	Processor ProcessorConfig         `mapstructure:"processor"`
	Sink      SinkConfig              `mapstructure:"sink"`
	MySQL     MySQLConfig             `mapstructure:"mysql"`
	Kafka     KafkaConfig             `mapstructure:"kafka"`
	Spreads   map[string]SpreadConfig `mapstructure:"spreads"`
	Sim       SimConfig               `mapstructure:"sim"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`    // debug, info, warn, error
	Encoding string `mapstructure:"encoding"` // json or console
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// FeedConfig describes the upstream market-data connection.
type FeedConfig struct {
	URL               string        `mapstructure:"url"`
	Token             string        `mapstructure:"token"`
	Symbols           []string      `mapstructure:"symbols"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
}

type CacheConfig struct {
	QuoteTTL     time.Duration `mapstructure:"quote_ttl"`
	SpreadTTL    time.Duration `mapstructure:"spread_ttl"`
	AggregateTTL time.Duration `mapstructure:"aggregate_ttl"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"` // assigned to keys found without expiry
	KeyPattern   string        `mapstructure:"key_pattern"`
}

type DedupConfig struct {
	Window time.Duration `mapstructure:"window"`
}

type ProcessorConfig struct {
	NumWorkers int `mapstructure:"num_workers"`
	QueueSize  int `mapstructure:"queue_size"`
}

type SinkConfig struct {
	Driver    string `mapstructure:"driver"` // none, mysql, kafka
	QueueSize int    `mapstructure:"queue_size"`
}

type MySQLConfig struct {
	DSN          string `mapstructure:"dsn"`
	SpreadSource bool   `mapstructure:"spread_source"` // read spreads from trading_settings
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// SimConfig drives cmd/feedsim, the local stand-in for the upstream feed.
type SimConfig struct {
	Port          string        `mapstructure:"port"`
	Interval      time.Duration `mapstructure:"interval"`
	DuplicateRate float64       `mapstructure:"duplicate_rate"` // share of ticks sent twice
}

type SpreadConfig struct {
	Bid float64 `mapstructure:"bid"`
	Ask float64 `mapstructure:"ask"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	setDefaults(v)

	// "feed.url" -> "FEED_URL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level", "logger.encoding")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "feed.url", "feed.token", "feed.symbols", "feed.heartbeat_interval", "feed.reconnect_delay", "feed.handshake_timeout")
	bindEnv(v, "cache.quote_ttl", "cache.spread_ttl", "cache.aggregate_ttl", "cache.default_ttl", "cache.key_pattern")
	bindEnv(v, "dedup.window")
	bindEnv(v, "processor.num_workers", "processor.queue_size")
	bindEnv(v, "sink.driver", "sink.queue_size")
	bindEnv(v, "mysql.dsn", "mysql.spread_source")
	bindEnv(v, "kafka.brokers", "kafka.topic")
	bindEnv(v, "sim.port", "sim.interval", "sim.duplicate_rate")

	// Optional config file with per-symbol spreads (config.yaml in the working dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("unable to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("feed.url", "wss://quote.alltick.co/quote-stock-b-ws-api")
	v.SetDefault("feed.token", "")
	v.SetDefault("feed.symbols", []string{"AAPL.US", "MSFT.US", "GOOG.US", "AMZN.US", "TSLA.US"})
	v.SetDefault("feed.heartbeat_interval", 10*time.Second)
	v.SetDefault("feed.reconnect_delay", 5*time.Second)
	v.SetDefault("feed.handshake_timeout", 10*time.Second)

	v.SetDefault("cache.quote_ttl", 60*time.Second)
	v.SetDefault("cache.spread_ttl", 300*time.Second)
	v.SetDefault("cache.aggregate_ttl", 2*time.Second)
	v.SetDefault("cache.default_ttl", 60*time.Second)
	v.SetDefault("cache.key_pattern", "stock:*")

	v.SetDefault("dedup.window", time.Second)

	v.SetDefault("processor.num_workers", 4)
	v.SetDefault("processor.queue_size", 100)

	v.SetDefault("sink.driver", "none")
	v.SetDefault("sink.queue_size", 1024)

	v.SetDefault("mysql.dsn", "")
	v.SetDefault("mysql.spread_source", false)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "quote_ticks")

	v.SetDefault("sim.port", ":9090")
	v.SetDefault("sim.interval", 100*time.Millisecond)
	v.SetDefault("sim.duplicate_rate", 0.05)
}

func (c *Config) normalize() {
	symbols := c.Feed.Symbols[:0]
	for _, s := range c.Feed.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	c.Feed.Symbols = symbols
	c.Sink.Driver = strings.ToLower(strings.TrimSpace(c.Sink.Driver))
}

// Validate checks the values LoadConfig cannot default sensibly.
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return fmt.Errorf("feed url cannot be empty")
	}
	if c.Feed.HeartbeatInterval <= 0 || c.Feed.ReconnectDelay <= 0 {
		return fmt.Errorf("feed heartbeat interval and reconnect delay must be positive")
	}
	if c.Cache.QuoteTTL <= 0 || c.Cache.SpreadTTL <= 0 || c.Cache.AggregateTTL <= 0 || c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache ttls must be positive")
	}
	if c.Dedup.Window <= 0 {
		return fmt.Errorf("dedup window must be positive")
	}
	if c.Processor.NumWorkers < 1 {
		return fmt.Errorf("processor needs at least one worker, got %d", c.Processor.NumWorkers)
	}

	switch c.Sink.Driver {
	case "none", "":
	case "mysql":
		if c.MySQL.DSN == "" {
			return fmt.Errorf("mysql dsn cannot be empty when sink driver is mysql")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers cannot be empty")
		}
	default:
		return fmt.Errorf("unknown sink driver: %s", c.Sink.Driver)
	}

	if c.Sim.DuplicateRate < 0 || c.Sim.DuplicateRate > 1 {
		return fmt.Errorf("sim duplicate rate must be within [0, 1], got %v", c.Sim.DuplicateRate)
	}

	if c.MySQL.SpreadSource && c.MySQL.DSN == "" {
		return fmt.Errorf("mysql dsn cannot be empty when spreads are read from mysql")
	}

	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
