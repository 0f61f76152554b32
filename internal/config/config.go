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
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Bike   BikeConfig   `yaml:"bike" mapstructure:"bike"`
	FMI    FMIConfig    `yaml:"fmi" mapstructure:"fmi"`
	Update UpdateConfig `yaml:"update" mapstructure:"update"`
	HTTP   HTTPConfig   `yaml:"http" mapstructure:"http"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the dataset file.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// BikeConfig configures the city bike snapshot archive.
type BikeConfig struct {
	Source string `yaml:"source" mapstructure:"source"`
}

// FMIConfig configures the FMI open data WFS feed.
type FMIConfig struct {
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	APIKey       string `yaml:"api_key" mapstructure:"api_key"`
	StoredQuery  string `yaml:"stored_query" mapstructure:"stored_query"`
	SitePosition string `yaml:"site_position" mapstructure:"site_position"`
	LookbackMins int    `yaml:"lookback_mins" mapstructure:"lookback_mins"`
	ChunkHours   int    `yaml:"chunk_hours" mapstructure:"chunk_hours"`
}

// UpdateConfig configures the update pipeline.
type UpdateConfig struct {
	Batch int `yaml:"batch" mapstructure:"batch"`
}

// HTTPConfig configures outbound HTTP behavior.
type HTTPConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
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
	v.SetEnvPrefix("FILLARI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.path", "./fillaridata.db")
	v.SetDefault("bike.source", "http://dev.hsl.fi/tmp/citybikes/")
	v.SetDefault("fmi.base_url", "http://data.fmi.fi")
	v.SetDefault("fmi.api_key", "")
	v.SetDefault("fmi.stored_query", "fmi::observations::weather::cities::simple")
	v.SetDefault("fmi.site_position", "60.17523 24.94459")
	v.SetDefault("fmi.lookback_mins", 60)
	v.SetDefault("fmi.chunk_hours", 24)
	v.SetDefault("update.batch", 500)
	v.SetDefault("http.timeout_secs", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.user_agent", "fillaridata/1.0")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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
