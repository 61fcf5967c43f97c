// Package config loads the YAML configuration file the cmd/skepadb
// binary reads at startup, modeled on tuannm99/novasql's internal/config.go
// viper setup, generalized to this database's knobs.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the top-level configuration shape.
type Config struct {
	Database struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"database"`

	Log struct {
		Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
		Format string `mapstructure:"format"` // "text" | "json"
	} `mapstructure:"log"`

	REPL struct {
		HistoryFile string `mapstructure:"history_file"`
	} `mapstructure:"repl"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var c Config
	c.Database.Dir = "./skepadb-data"
	c.Log.Level = "info"
	c.Log.Format = "text"
	c.REPL.HistoryFile = "./.skepadb_history"
	return &c
}

// Load reads path as YAML and merges it over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
