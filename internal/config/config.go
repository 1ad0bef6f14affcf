package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Serial connection
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`

	// Handshake
	TimeoutSeconds int `mapstructure:"timeout"`

	// Transfer
	OutputDir string `mapstructure:"output-dir"`
	ChunkSize int    `mapstructure:"chunk-size"`

	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// S3 archival (optional)
	Archive  bool   `mapstructure:"archive"`
	S3Bucket string `mapstructure:"s3-bucket"`
	S3Region string `mapstructure:"s3-region"`

	// Security limits
	MaxFileSize int64 `mapstructure:"max-file-size"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("port", "")
	viper.SetDefault("baud", 1000000)
	viper.SetDefault("timeout", 60)
	viper.SetDefault("output-dir", "./sd_dump_output")
	viper.SetDefault("chunk-size", 512)
	viper.SetDefault("sqlite-path", ".artifacts/transfers.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm.db")
	viper.SetDefault("archive", false)
	viper.SetDefault("s3-bucket", "")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("max-file-size", 512*1024*1024)
	viper.SetDefault("fsm-max-retries", 5)

	// Environment variables (will be SDLINK_OUTPUT_DIR, etc.)
	viper.SetEnvPrefix("SDLINK")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.sdlink")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.Baud <= 0 {
		return fmt.Errorf("baud must be positive")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output-dir cannot be empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk-size must be positive")
	}
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.Archive && c.S3Bucket == "" {
		return fmt.Errorf("s3-bucket cannot be empty when archive is enabled")
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("max-file-size must be non-negative")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	return nil
}
