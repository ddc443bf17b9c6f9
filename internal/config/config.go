package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/helios-advisory/nbo-cli/internal/eligibility"
	"github.com/helios-advisory/nbo-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig          `yaml:"store" mapstructure:"store"`
	Catalog     CatalogConfig        `yaml:"catalog" mapstructure:"catalog"`
	Weights     model.ScoringWeights `yaml:"weights" mapstructure:"weights"`
	Ranker      RankerConfig         `yaml:"ranker" mapstructure:"ranker"`
	Eligibility EligibilityConfig    `yaml:"eligibility" mapstructure:"eligibility"`
	Server      ServerConfig         `yaml:"server" mapstructure:"server"`
	Log         LogConfig            `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CatalogConfig points at an optional product catalog override file.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RankerConfig configures the portfolio ranking pass.
type RankerConfig struct {
	TopK         int  `yaml:"top_k" mapstructure:"top_k"`
	FilterRecent bool `yaml:"filter_recent" mapstructure:"filter_recent"`
}

// EligibilityConfig bundles the indicator windows with the batch-fetch
// tuning knobs.
type EligibilityConfig struct {
	Windows      eligibility.Windows `yaml:"windows" mapstructure:"windows"`
	ChunkSize    int                 `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkTimeout int                 `yaml:"chunk_timeout_secs" mapstructure:"chunk_timeout_secs"`
	RatePerSec   float64             `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
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
	v.SetEnvPrefix("NBO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "nbo.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("weights.retention", 1.0)
	v.SetDefault("weights.profitability", 1.0)
	v.SetDefault("weights.propensity", 1.0)
	v.SetDefault("ranker.top_k", 100)
	v.SetDefault("ranker.filter_recent", true)
	v.SetDefault("eligibility.windows.email_business_days", 5)
	v.SetDefault("eligibility.windows.phone_days", 10)
	v.SetDefault("eligibility.windows.new_policy_days", 30)
	v.SetDefault("eligibility.windows.claim_days", 60)
	v.SetDefault("eligibility.chunk_size", 500)
	v.SetDefault("eligibility.chunk_timeout_secs", 10)
	v.SetDefault("eligibility.rate_per_sec", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
