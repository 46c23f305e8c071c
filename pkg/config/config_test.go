package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Feed:      FeedConfig{URL: "ws://localhost", HeartbeatInterval: 10 * time.Second, ReconnectDelay: 5 * time.Second},
		Cache:     CacheConfig{QuoteTTL: time.Minute, SpreadTTL: 5 * time.Minute, AggregateTTL: 2 * time.Second, DefaultTTL: time.Minute},
		Dedup:     DedupConfig{Window: time.Second},
		Processor: ProcessorConfig{NumWorkers: 1},
		Sink:      SinkConfig{Driver: "none"},
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("FEED_SYMBOLS", " nvda.us, aapl.us ,")
	t.Setenv("FEED_HEARTBEAT_INTERVAL", "3s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Feed.HeartbeatInterval != 3*time.Second {
		t.Errorf("Expected heartbeat 3s from env, got %v", cfg.Feed.HeartbeatInterval)
	}
	if cfg.Feed.ReconnectDelay != 5*time.Second {
		t.Errorf("Expected default reconnect delay 5s, got %v", cfg.Feed.ReconnectDelay)
	}
	if cfg.Sim.Interval != 100*time.Millisecond {
		t.Errorf("Expected sim interval 100ms, got %v", cfg.Sim.Interval)
	}
	if cfg.Cache.AggregateTTL != 2*time.Second {
		t.Errorf("Expected aggregate ttl 2s, got %v", cfg.Cache.AggregateTTL)
	}
	if len(cfg.Feed.Symbols) != 2 || cfg.Feed.Symbols[0] != "NVDA.US" || cfg.Feed.Symbols[1] != "AAPL.US" {
		t.Errorf("Symbols not normalized: %v", cfg.Feed.Symbols)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty url", func(c *Config) { c.Feed.URL = "" }, true},
		{"zero workers", func(c *Config) { c.Processor.NumWorkers = 0 }, true},
		{"mysql without dsn", func(c *Config) { c.Sink.Driver = "mysql" }, true},
		{"kafka without brokers", func(c *Config) { c.Sink.Driver = "kafka" }, true},
		{"unknown driver", func(c *Config) { c.Sink.Driver = "s3" }, true},
		{"spread source without dsn", func(c *Config) { c.MySQL.SpreadSource = true }, true},
		{"zero dedup window", func(c *Config) { c.Dedup.Window = 0 }, true},
		{"duplicate rate above one", func(c *Config) { c.Sim.DuplicateRate = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := NewLogger(LoggerConfig{Level: "loud"}); err == nil {
		t.Error("Expected error for invalid level")
	}
	if _, err := NewLogger(LoggerConfig{Level: "debug", Encoding: "console"}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}
