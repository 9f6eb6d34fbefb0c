// This file defines the configuration structure for the application.
package config

import (
	// use Viper for loading the config.yml file.
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port int `mapstructure:"port"`
	Log  struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Refresh RefreshConfig `mapstructure:"refresh"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Site    struct {
		BaseURL       string `mapstructure:"base_url"`
		LookupBaseURL string `mapstructure:"lookup_base_url"`
	} `mapstructure:"site"`
}

// RefreshConfig controls the periodic refresh cycle and its worker pools.
type RefreshConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	DefaultCheckInterval string `mapstructure:"default_check_interval"`
	TickMinutes          int    `mapstructure:"tick_minutes"`
	FetchWorkers         int    `mapstructure:"fetch_workers"`
	MergeWorkers         int    `mapstructure:"merge_workers"`
}

// FetchConfig controls how the remote site is read.
type FetchConfig struct {
	Attempts          int           `mapstructure:"attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RenderTimeout     time.Duration `mapstructure:"render_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	LookupConcurrency int           `mapstructure:"lookup_concurrency"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")    // or "yaml"
	v.AddConfigPath(".")      // looking for config in the current directory

	// --- Environment Variable Overrides ---
	// e.g., MYLIST_DATABASE_PATH will override the `database.path` key.
	v.SetEnvPrefix("MYLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error and use defaults
		} else {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("database.path", "./mylist.db")

	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.default_check_interval", "15分")
	v.SetDefault("refresh.tick_minutes", 1)
	v.SetDefault("refresh.fetch_workers", 4)
	v.SetDefault("refresh.merge_workers", 8)

	v.SetDefault("fetch.attempts", 5)
	v.SetDefault("fetch.retry_delay", "2s")
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.render_timeout", "10s")
	v.SetDefault("fetch.requests_per_second", 2.0)
	v.SetDefault("fetch.lookup_concurrency", 4)
	v.SetDefault("fetch.user_agent", "mylist-go/1.0 (+https://github.com/vrsandeep/mylist-go)")

	v.SetDefault("site.base_url", "https://www.nicovideo.jp")
	v.SetDefault("site.lookup_base_url", "https://ext.nicovideo.jp")
}
