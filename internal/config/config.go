package config

import (
	"log"

	"github.com/spf13/viper"
)

// StorageConfig selects the persistence regime.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `mapstructure:"backend"`
	// Path is the sqlite database file.
	Path string `mapstructure:"path"`
}

// GCConfig selects the reclamation strategy.
type GCConfig struct {
	// Mode is "eager", "deferred", or "" to follow the backend (memory runs
	// eager, sqlite deferred).
	Mode string `mapstructure:"mode"`
}

type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	GC      GCConfig      `mapstructure:"gc"`
}

// LoadConfig reads config/config.yml, overlays config/config.local.yml, and
// lets environment variables override both.
func LoadConfig() *Config {
	v := viper.New()
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.path", "data/syntrix-client.db")
	v.SetDefault("gc.mode", "")

	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath("config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("[Config] Error reading config file: %v", err)
		}
	}

	local := viper.New()
	local.SetConfigName("config.local")
	local.SetConfigType("yml")
	local.AddConfigPath("config")
	if err := local.ReadInConfig(); err == nil {
		if err := v.MergeConfigMap(local.AllSettings()); err != nil {
			log.Printf("[Config] Error merging local config: %v", err)
		}
	}

	v.BindEnv("storage.backend", "STORAGE_BACKEND")
	v.BindEnv("storage.path", "STORAGE_PATH")
	v.BindEnv("gc.mode", "GC_MODE")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Printf("[Config] Error unmarshalling config: %v", err)
	}
	return &cfg
}

// GCMode resolves the effective GC mode for the configured backend.
func (c *Config) GCMode() string {
	if c.GC.Mode != "" {
		return c.GC.Mode
	}
	if c.Storage.Backend == "sqlite" {
		return "deferred"
	}
	return "eager"
}
