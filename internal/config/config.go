// Package config loads and validates the contact-mining pipeline's
// process configuration.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// HTMLCacheConfig controls the process-local HTML cache.
type HTMLCacheConfig struct {
	TTLSeconds  int `yaml:"ttlSeconds"`
	MaxBodySize int `yaml:"maxBodySize"`
}

// AnalyzerConfig controls the Page Analyzer's HTTP fetch.
type AnalyzerConfig struct {
	TimeoutMs     int    `yaml:"timeoutMs"`
	MaxRedirects  int    `yaml:"maxRedirects"`
	UserAgent     string `yaml:"userAgent"`
}

type RobotsConfig struct {
	Respect bool `yaml:"respect"`
}

// RodConfig controls the headless-browser miner.
type RodConfig struct {
	Enabled    bool `yaml:"enabled"`
	Headless   bool `yaml:"headless"`
	NoSandbox  bool `yaml:"noSandbox"`
	TimeoutMs  int  `yaml:"timeoutMs"`
}

type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifeMins int    `yaml:"connMaxLifeMinutes"`
}

// RedisConfig backs the cross-worker politeness rate limiter,
// never the HTML cache itself, which stays process-local.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

type WorkerConfig struct {
	MaxConcurrentJobs int `yaml:"maxConcurrentJobs"`
	PollIntervalMs    int `yaml:"pollIntervalMs"`
	TotalTimeoutMs    int `yaml:"totalTimeoutMs"`
}

// AnthropicConfig configures the AI miner's remote model client.
type AnthropicConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// MiningDefaults hold the defaults for the per-job config keys when a
// job does not set them explicitly.
type MiningDefaults struct {
	Mode              string `yaml:"mode"`
	MaxPages          int    `yaml:"maxPages"`
	MaxPagesSiteSpecific int `yaml:"maxPagesSiteSpecific"`
	MaxDetails        int    `yaml:"maxDetails"`
	ListPageDelayMs   int    `yaml:"listPageDelayMs"`
	DetailDelayMs     int    `yaml:"detailDelayMs"`
	TotalTimeoutMs    int    `yaml:"totalTimeoutMs"`
}

// JobTTLConfig controls per-job-type retention in days.
type JobTTLConfig struct {
	DefaultDays int `yaml:"defaultDays"`
	URLDays     int `yaml:"urlDays"`
	FileDays    int `yaml:"fileDays"`
}

// RetentionConfig controls TTL-like deletion of old jobs so that the
// database does not grow without bound over time.
type RetentionConfig struct {
	Enabled                bool         `yaml:"enabled"`
	CleanupIntervalMinutes int          `yaml:"cleanupIntervalMinutes"`
	Jobs                   JobTTLConfig `yaml:"jobs"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	HTMLCache HTMLCacheConfig `yaml:"htmlCache"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	Robots    RobotsConfig    `yaml:"robots"`
	Rod       RodConfig       `yaml:"rod"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Worker    WorkerConfig    `yaml:"worker"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Mining    MiningDefaults  `yaml:"mining"`
	Retention RetentionConfig `yaml:"retention"`

	// UseUnifiedEngine is read from USE_UNIFIED_ENGINE (default true).
	// No code consults it: miners always report zero contacts as
	// PARTIAL, and no legacy SUCCESS-on-truthy path exists.
	UseUnifiedEngine bool `yaml:"-"`
	// DisableShadowMode disables the aggregation side-effect (persons /
	// affiliations UPSERT) while still persisting mining_results.
	DisableShadowMode bool `yaml:"-"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	cfg.applyEnv()

	return &cfg
}

// applyEnv overlays the environment-variable feature flags on top of
// the YAML-loaded defaults.
func (cfg *Config) applyEnv() {
	cfg.UseUnifiedEngine = true
	if v, ok := os.LookupEnv("USE_UNIFIED_ENGINE"); ok {
		cfg.UseUnifiedEngine = strings.EqualFold(v, "true") || v == "1"
	}
	if v, ok := os.LookupEnv("DISABLE_SHADOW_MODE"); ok {
		cfg.DisableShadowMode = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Anthropic.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
}

// Validate performs basic sanity checks on the loaded configuration so
// that an obviously broken process fails fast at startup.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return errors.New("database.dsn must be set")
	}

	mode := strings.TrimSpace(cfg.Mining.Mode)
	switch mode {
	case "", "quick", "full", "ai":
	default:
		return fmt.Errorf("unsupported mining.mode default: %s", mode)
	}

	if mode == "ai" || mode == "" {
		if cfg.Anthropic.APIKey == "" {
			return errors.New("anthropic.apiKey (or ANTHROPIC_API_KEY) must be set when mining.mode defaults to 'ai'")
		}
	}

	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.URL) == "" {
		return errors.New("redis.enabled is true but redis.url is empty")
	}

	return nil
}
