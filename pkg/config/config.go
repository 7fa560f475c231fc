package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	OutputDir string `mapstructure:"OUTPUT_DIR"`

	Headless                 bool   `mapstructure:"HEADLESS"`
	ChromePath               string `mapstructure:"CHROME_PATH"`
	ProxyServer              string `mapstructure:"PROXY_SERVER"`
	NavigationTimeoutSeconds int    `mapstructure:"NAVIGATION_TIMEOUT_SECONDS"`
	MaxLinksPerPage          int    `mapstructure:"MAX_LINKS_PER_PAGE"`

	// ChallengeCheck selects the optional challenge hook: off, live or static.
	ChallengeCheck string `mapstructure:"CHALLENGE_CHECK"`
	RecordFailures bool   `mapstructure:"RECORD_FAILURES"`

	VisitedBackend string `mapstructure:"VISITED_BACKEND"`
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`

	PostgresURL string `mapstructure:"POSTGRES_URL"`

	StatusAddr string `mapstructure:"STATUS_ADDR"`
}

var keys = []string{
	"LOG_LEVEL", "LOG_FORMAT", "OUTPUT_DIR",
	"HEADLESS", "CHROME_PATH", "PROXY_SERVER", "NAVIGATION_TIMEOUT_SECONDS", "MAX_LINKS_PER_PAGE",
	"CHALLENGE_CHECK", "RECORD_FAILURES",
	"VISITED_BACKEND", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"POSTGRES_URL", "STATUS_ADDR",
}

// Load reads configuration from an optional .env file and environment variables.
func Load() (*Config, error) {
	return load(viper.New(), ".env")
}

func load(v *viper.Viper, envFile string) (*Config, error) {
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	// A missing .env is fine; the environment alone is a complete configuration.
	_ = v.ReadInConfig()

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("OUTPUT_DIR", ".")
	v.SetDefault("HEADLESS", true)
	v.SetDefault("CHROME_PATH", "")
	v.SetDefault("PROXY_SERVER", "")
	v.SetDefault("NAVIGATION_TIMEOUT_SECONDS", 30)
	v.SetDefault("MAX_LINKS_PER_PAGE", 10)
	v.SetDefault("CHALLENGE_CHECK", "off")
	v.SetDefault("RECORD_FAILURES", false)
	v.SetDefault("VISITED_BACKEND", "memory")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("STATUS_ADDR", "")

	// Unmarshal only sees keys viper knows about; bind them so plain
	// environment variables are picked up without a .env file.
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NavigationTimeout returns the per-navigation timeout.
func (c *Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutSeconds) * time.Second
}
