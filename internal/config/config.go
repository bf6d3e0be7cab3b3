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
	Model  ModelConfig  `yaml:"model" mapstructure:"model"`
	Skims  SkimsConfig  `yaml:"skims" mapstructure:"skims"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Trace  TraceConfig  `yaml:"trace" mapstructure:"trace"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ModelConfig configures choice model execution.
type ModelConfig struct {
	ConfigsDir string `yaml:"configs_dir" mapstructure:"configs_dir"`
	DataDir    string `yaml:"data_dir" mapstructure:"data_dir"`
	SampleSize int    `yaml:"sample_size" mapstructure:"sample_size"`
	Seed       int64  `yaml:"seed" mapstructure:"seed"`
	Workers    int    `yaml:"workers" mapstructure:"workers"`
}

// SkimsConfig configures skim matrix sources.
type SkimsConfig struct {
	FTPHost     string `yaml:"ftp_host" mapstructure:"ftp_host"`
	FTPTimeout  int    `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
	ZoneIDField string `yaml:"zone_id_field" mapstructure:"zone_id_field"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port      int     `yaml:"port" mapstructure:"port"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`
}

// TraceConfig configures diagnostic dumps.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (if present) and the
// environment, applying defaults for everything unset.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DESTCHOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "destchoice.db")
	v.SetDefault("model.configs_dir", "configs")
	v.SetDefault("model.data_dir", "data")
	v.SetDefault("model.sample_size", 30)
	v.SetDefault("model.seed", 42)
	v.SetDefault("model.workers", 4)
	v.SetDefault("skims.ftp_timeout_secs", 30)
	v.SetDefault("skims.zone_id_field", "TAZ")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.burst", 20)
	v.SetDefault("trace.dir", "trace")
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
