package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the base name of the configuration file
const FileName = "ormcore"

// Config represents the ormcore configuration
type Config struct {
	ModelFile string         `mapstructure:"model_file"`
	Database  DatabaseConfig `mapstructure:"database"`
	Planner   PlannerConfig  `mapstructure:"planner"`
	Log       LogConfig      `mapstructure:"log"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// PlannerConfig limits projection planning
type PlannerConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads the configuration from ormcore.yml in the current directory
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom loads the configuration from ormcore.yml in dir
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("model_file", "model.yml")
	v.SetDefault("database.url", "")
	v.SetDefault("planner.max_depth", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	// ORMCORE_MODEL_FILE, ORMCORE_LOG_LEVEL, ...
	v.SetEnvPrefix("ORMCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database.url", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind DATABASE_URL: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	if config.ModelFile != "" && !filepath.IsAbs(config.ModelFile) {
		config.ModelFile = filepath.Join(dir, config.ModelFile)
	}

	return &config, nil
}

// GetDatabaseURL returns the database URL from the environment or config
func GetDatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	cfg, err := Load()
	if err != nil {
		return ""
	}

	return cfg.Database.URL
}

// NewLogger builds a zap logger for the configured level and format
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	var zc zap.Config
	if c.Log.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}

	return zc.Build()
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Planner.MaxDepth < 1 {
		return fmt.Errorf("planner.max_depth must be at least 1, got: %d", cfg.Planner.MaxDepth)
	}

	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be 'console' or 'json', got: %s", cfg.Log.Format)
	}

	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level is invalid: %s", cfg.Log.Level)
	}

	if strings.TrimSpace(cfg.ModelFile) == "" {
		return fmt.Errorf("model_file must not be empty")
	}

	return nil
}
