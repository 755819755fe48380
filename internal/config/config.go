// Package config loads qrdecode settings from a YAML file, QRDECODE_*
// environment variables and command-line flags.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full application configuration.
type Config struct {
	Mode     string `mapstructure:"mode" validate:"oneof=development production"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	Scan   ScanConfig   `mapstructure:"scan"`
	Loader LoaderConfig `mapstructure:"loader"`
	Server ServerConfig `mapstructure:"server"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Reply  ReplyConfig  `mapstructure:"reply"`
}

// ScanConfig tunes detection and decoding.
type ScanConfig struct {
	TryHarder      bool          `mapstructure:"try_harder"`
	ParallelPasses bool          `mapstructure:"parallel_passes"`
	CharacterSet   string        `mapstructure:"character_set"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// LoaderConfig bounds image fetching.
type LoaderConfig struct {
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxBytes    int64         `mapstructure:"max_bytes" validate:"gt=0"`
	AllowRemote bool          `mapstructure:"allow_remote"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	// AllowedOrigins enables CORS for browser clients. Empty disables it.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// CacheConfig selects the result cache. An empty RedisAddr keeps results in
// an in-process LRU of Size entries.
type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" validate:"gte=0"`
	TTL           time.Duration `mapstructure:"ttl" validate:"gte=0"`
	Size          int           `mapstructure:"size" validate:"gt=0"`
}

// ReplyConfig shapes chat replies.
type ReplyConfig struct {
	Prefix string `mapstructure:"prefix"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode:     "development",
		LogLevel: "info",
		Scan: ScanConfig{
			Timeout: 10 * time.Second,
		},
		Loader: LoaderConfig{
			Timeout:     15 * time.Second,
			MaxBytes:    20 << 20,
			AllowRemote: true,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
			Size:    256,
		},
		Reply: ReplyConfig{
			Prefix: "图片识别结果：",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
