package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	Propagation PropagationConfig `yaml:"propagation"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Screening   ScreeningConfig   `yaml:"screening"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// ChannelPrefix namespaces pub/sub channels, e.g. "yorby:events:"
	ChannelPrefix string `yaml:"channel_prefix"`
}

// PropagationConfig controls the fan-out retry behavior when a question
// edit or delete is propagated to its cloned copies.
type PropagationConfig struct {
	MaxAttempts      int `yaml:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms"`
}

type AnalysisConfig struct {
	Model            string `yaml:"model"`
	MaxRetries       int    `yaml:"max_retries"`
	RetryDelayMs     int    `yaml:"retry_delay_ms"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
}

type ScreeningConfig struct {
	AdvanceThreshold float64 `yaml:"advance_threshold"`
	RejectThreshold  float64 `yaml:"reject_threshold"`
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config with production defaults, used when no config
// file is provided.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Redis.ChannelPrefix == "" {
		c.Redis.ChannelPrefix = "yorby:events:"
	}
	if c.Propagation.MaxAttempts == 0 {
		c.Propagation.MaxAttempts = 3
	}
	if c.Propagation.InitialBackoffMs == 0 {
		c.Propagation.InitialBackoffMs = 500
	}
	if c.Analysis.Model == "" {
		c.Analysis.Model = "gemini-2.5-pro"
	}
	if c.Analysis.MaxRetries == 0 {
		c.Analysis.MaxRetries = 3
	}
	if c.Analysis.RetryDelayMs == 0 {
		c.Analysis.RetryDelayMs = 1000
	}
	if c.Analysis.RequestTimeoutMs == 0 {
		c.Analysis.RequestTimeoutMs = 120000
	}
	if c.Screening.AdvanceThreshold == 0 {
		c.Screening.AdvanceThreshold = 0.75
	}
	if c.Screening.RejectThreshold == 0 {
		c.Screening.RejectThreshold = 0.4
	}
}

func (c *PropagationConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMs) * time.Millisecond
}

func (c *AnalysisConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

func (c *AnalysisConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}
