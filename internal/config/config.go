package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CrawlConfig configures outbound catalog requests.
type CrawlConfig struct {
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinDelayMillis int    `yaml:"min_delay_millis" mapstructure:"min_delay_millis"`
	RobotsTTLHours int    `yaml:"robots_ttl_hours" mapstructure:"robots_ttl_hours"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// CatalogConfig configures external catalog adapters.
type CatalogConfig struct {
	TTLDays int `yaml:"ttl_days" mapstructure:"ttl_days"`
}

// EnrichConfig configures bulk enrichment behavior.
type EnrichConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
	BulkCap int `yaml:"bulk_cap" mapstructure:"bulk_cap"`
}

// AnthropicConfig holds Anthropic API settings for legend vocabulary lookups.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MINTMARK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "mintmark.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawl.user_agent", "mintmark/1.0 (personal collection manager)")
	v.SetDefault("crawl.timeout_secs", 30)
	v.SetDefault("crawl.min_delay_millis", 1000)
	v.SetDefault("crawl.robots_ttl_hours", 24)
	v.SetDefault("crawl.max_retries", 2)
	v.SetDefault("catalog.ttl_days", 180)
	v.SetDefault("enrich.workers", 4)
	v.SetDefault("enrich.bulk_cap", 200)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given run mode. Modes keep the
// requirements honest: a parse-only invocation needs no database, but serve
// and enrich do.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.Path == "" {
				problems = append(problems, "store.path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	}

	checkEnrich := func() {
		if c.Enrich.Workers < 1 || c.Enrich.Workers > 32 {
			problems = append(problems, "enrich.workers must be between 1 and 32")
		}
		if c.Enrich.BulkCap < 1 {
			problems = append(problems, "enrich.bulk_cap must be > 0")
		}
	}

	switch mode {
	case "parse":
		// No external requirements.
	case "store":
		checkStore()
	case "enrich":
		checkStore()
		checkEnrich()
	case "serve":
		checkStore()
		checkEnrich()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0")
		}
	case "vocab-llm":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required for LLM vocabulary lookups")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
