package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ClusterConfig contains all configuration for the cluster binary: the
// control-plane REST server plus the embedded state-serving endpoints.
type ClusterConfig struct {
	REST    RESTConfig    `mapstructure:"rest"`
	State   StateConfig   `mapstructure:"state"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RESTConfig contains control-plane REST server configuration.
type RESTConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// StateConfig contains queryable-state serving configuration.
type StateConfig struct {
	// NumEndpoints is the number of task endpoints the cluster runs. Each
	// endpoint owns a share of every job's key groups and serves lookups
	// for them over its own listener.
	NumEndpoints int `mapstructure:"num_endpoints"`

	// NumKeyGroups is the number of key groups per job. Fixed for the
	// lifetime of a job; keys hash into groups, groups map to endpoints.
	NumKeyGroups int `mapstructure:"num_key_groups"`

	// BindAddr is the address state servers listen on. Port 0 picks a free
	// port per endpoint.
	BindAddr string `mapstructure:"bind_addr"`
}

// LoadCluster loads the cluster configuration from the given path.
// If configPath is empty, it looks for cluster.yaml in the config/ directory.
// Environment variables with QSTREAM_CLUSTER_ prefix override config file values.
func LoadCluster(configPath string) (*ClusterConfig, error) {
	v := viper.New()

	v.SetDefault("rest.addr", ":8080")
	v.SetDefault("rest.read_timeout", 15*time.Second)
	v.SetDefault("rest.write_timeout", 15*time.Second)
	v.SetDefault("rest.idle_timeout", 60*time.Second)
	v.SetDefault("state.num_endpoints", 2)
	v.SetDefault("state.num_key_groups", 128)
	v.SetDefault("state.bind_addr", "127.0.0.1:0")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("cluster")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("QSTREAM_CLUSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg ClusterConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
