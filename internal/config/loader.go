package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// FileName is the configuration file base name, without extension.
	FileName = "qrdecode"

	// EnvPrefix prefixes environment variables, e.g. QRDECODE_SERVER_ADDR.
	EnvPrefix = "QRDECODE"
)

// Loader reads configuration through a viper instance. Flags bound to the
// same instance take precedence over the file and the environment.
type Loader struct {
	v *viper.Viper
}

// NewLoader wraps v. A nil v uses a fresh instance.
func NewLoader(v *viper.Viper) *Loader {
	if v == nil {
		v = viper.New()
	}
	return &Loader{v: v}
}

// Load reads configFile, or searches the default locations when it is empty.
// A missing file in the default locations is not an error.
func (l *Loader) Load(configFile string) (*Config, error) {
	l.setDefaults()
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(FileName)
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "qrdecode"))
		}
		l.v.AddConfigPath("/etc/qrdecode")
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFileUsed returns the file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) setDefaults() {
	d := Default()
	l.v.SetDefault("mode", d.Mode)
	l.v.SetDefault("log_level", d.LogLevel)

	l.v.SetDefault("scan.try_harder", d.Scan.TryHarder)
	l.v.SetDefault("scan.parallel_passes", d.Scan.ParallelPasses)
	l.v.SetDefault("scan.character_set", d.Scan.CharacterSet)
	l.v.SetDefault("scan.timeout", d.Scan.Timeout)

	l.v.SetDefault("loader.timeout", d.Loader.Timeout)
	l.v.SetDefault("loader.max_bytes", d.Loader.MaxBytes)
	l.v.SetDefault("loader.allow_remote", d.Loader.AllowRemote)

	l.v.SetDefault("server.addr", d.Server.Addr)
	l.v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	l.v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	l.v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	l.v.SetDefault("cache.enabled", d.Cache.Enabled)
	l.v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	l.v.SetDefault("cache.redis_password", d.Cache.RedisPassword)
	l.v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	l.v.SetDefault("cache.ttl", d.Cache.TTL)
	l.v.SetDefault("cache.size", d.Cache.Size)

	l.v.SetDefault("reply.prefix", d.Reply.Prefix)
}
