package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig contains all configuration for the query client binary.
type ClientConfig struct {
	ControlPlane ControlPlaneConfig `mapstructure:"control_plane"`
	Query        QueryConfig        `mapstructure:"query"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ControlPlaneConfig contains the control-plane connection configuration.
type ControlPlaneConfig struct {
	URL string `mapstructure:"url"`
}

// QueryConfig contains query client tuning.
type QueryConfig struct {
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
	LookupTimeout     time.Duration `mapstructure:"lookup_timeout"`
	LocationCacheSize int           `mapstructure:"location_cache_size"`
}

// LoadClient loads the query client configuration from the given path.
// If configPath is empty, it looks for client.yaml in the config/ directory.
// Environment variables with QSTREAM_CLIENT_ prefix override config file values.
func LoadClient(configPath string) (*ClientConfig, error) {
	v := viper.New()

	v.SetDefault("control_plane.url", "http://localhost:8080")
	v.SetDefault("query.retry_delay", 100*time.Millisecond)
	v.SetDefault("query.dial_timeout", 5*time.Second)
	v.SetDefault("query.lookup_timeout", 100*time.Second)
	v.SetDefault("query.location_cache_size", 0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("client")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("QSTREAM_CLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
