// Package config loads FileSync's server and client configuration through
// viper, layering FILESYNC_-prefixed environment variables and an optional
// config file over built-in defaults; individual settings are not bound to
// command-line flags — grounded on
// smartramana-developer-mesh/internal/config's Load/setDefaults shape.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig is the server's listening and storage configuration
// (spec.md §6 "Server configuration").
type ServerConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
	CatalogPath   string `mapstructure:"catalog_path"`
	StorageRoot   string `mapstructure:"storage_root"`
	SiteID        string `mapstructure:"site_id"`
	LogLevel      string `mapstructure:"log_level"`
}

// ClientConfig is the CLI client's configuration: which server to talk to,
// its site id and its log level. The sync directory is not configured here;
// `filesync sync` uses the working directory.
type ClientConfig struct {
	ServerAddress string `mapstructure:"server_address"`
	SiteID        string `mapstructure:"site_id"`
	LogLevel      string `mapstructure:"log_level"`
}

// LoadServer reads server configuration from configFile (if non-empty),
// FILESYNC_ environment variables, and built-in defaults.
func LoadServer(configFile string) (*ServerConfig, error) {
	v := newViper(configFile)
	v.SetDefault("listen_address", "0.0.0.0:50051")
	v.SetDefault("catalog_path", "filesync.db")
	v.SetDefault("storage_root", "./storage")
	v.SetDefault("site_id", "server")
	v.SetDefault("log_level", "info")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal server config: %w", err)
	}
	return &cfg, nil
}

// LoadClient reads client configuration the same way as LoadServer.
func LoadClient(configFile string) (*ClientConfig, error) {
	v := newViper(configFile)
	v.SetDefault("server_address", "127.0.0.1:50051")
	v.SetDefault("site_id", "")
	v.SetDefault("log_level", "info")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal client config: %w", err)
	}
	return &cfg, nil
}

func newViper(configFile string) *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	v.SetEnvPrefix("FILESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func readConfig(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		return nil
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}
