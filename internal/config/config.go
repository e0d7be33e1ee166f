package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type BookingConfig struct {
	// Backend selects where appointment state lives: "sqlite" for the
	// embedded store, "http" for the remote booking service.
	Backend    string        `mapstructure:"backend"`
	SQLitePath string        `mapstructure:"sqlite_path"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	ReadLimit  int64  `mapstructure:"read_limit"`
	SendBuffer int    `mapstructure:"send_buffer"`

	Secret      string `mapstructure:"secret"`
	TokenIssuer string `mapstructure:"token_issuer"`

	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	RequireTLS      bool          `mapstructure:"require_tls"`
	AdmissionLimit  int           `mapstructure:"admission_limit"`
	AdmissionWindow time.Duration `mapstructure:"admission_window"`

	Booking BookingConfig `mapstructure:"booking"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("send_buffer", 32)
	v.SetDefault("token_issuer", "")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("require_tls", false)
	v.SetDefault("admission_limit", 10)
	v.SetDefault("admission_window", "1m")
	v.SetDefault("booking.backend", "sqlite")
	v.SetDefault("booking.sqlite_path", "televisit.db")
	v.SetDefault("booking.timeout", "5s")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth secret must be configured")
	}
	if cfg.Booking.Backend == "http" && cfg.Booking.BaseURL == "" {
		return nil, fmt.Errorf("booking.base_url required for the http backend")
	}
	return &cfg, nil
}
