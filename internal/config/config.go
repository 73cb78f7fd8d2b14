// Package config loads daemon configuration from defaults, an optional config
// file, RECORDSTORE_* environment variables and bound command-line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/celerix-dev/celerix-records/internal/logger"
	"github.com/celerix-dev/celerix-records/pkg/engine"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RECORDSTORE_SERVER_TCP_PORT.
const EnvPrefix = "RECORDSTORE"

// Storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     logger.Config `mapstructure:"log"`
}

type ServerConfig struct {
	TCPPort    string `mapstructure:"tcp_port"`
	HTTPPort   string `mapstructure:"http_port"`
	DisableTLS bool   `mapstructure:"disable_tls"`
}

type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type StoreConfig struct {
	MaxRecords uint64 `mapstructure:"max_records"`
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.tcp_port", "7001")
	v.SetDefault("server.http_port", "7002")
	v.SetDefault("server.disable_tls", false)
	v.SetDefault("storage.backend", BackendJSON)
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.sqlite_path", "./data/records.db")
	v.SetDefault("store.max_records", engine.DefaultMaxRecords)

	def := logger.DefaultConfig()
	v.SetDefault("log.level", def.Level)
	v.SetDefault("log.format", def.Format)
	v.SetDefault("log.output", def.Output)
	v.SetDefault("log.file_path", def.FilePath)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile (if not empty) into v and decodes the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("invalid storage backend %q: must be %s or %s", c.Storage.Backend, BackendJSON, BackendSQLite)
	}
	if c.Store.MaxRecords == 0 {
		return fmt.Errorf("store.max_records must be positive")
	}
	if c.Server.TCPPort == "" || c.Server.HTTPPort == "" {
		return fmt.Errorf("server ports must be set")
	}
	return nil
}
