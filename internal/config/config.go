package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config lists the tunable parameters for the gateway. Every field is
// environment-sourced; defaults match a production install on the SBC.
type Config struct {
	SerialPort string `env:"SERIAL_PORT" envDefault:"/dev/ttyACM0"`
	DataDir    string `env:"DATA_DIR" envDefault:"/var/lib/lora-osmnotes"`
	DryRun     bool   `env:"DRY_RUN" envDefault:"false"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	Timezone   string `env:"TZ" envDefault:"America/Bogota"`
	Language   string `env:"LANGUAGE" envDefault:"es"`

	DailyBroadcastEnabled bool `env:"DAILY_BROADCAST_ENABLED" envDefault:"false"`

	// GPSValidationDisabled bypasses freshness checks and substitutes a fixed
	// position when none is cached. Debug aid only.
	GPSValidationDisabled bool `env:"GPS_VALIDATION_DISABLED" envDefault:"false"`

	PosGoodSeconds int `env:"POS_GOOD" envDefault:"15"`
	PosMaxSeconds  int `env:"POS_MAX" envDefault:"60"`

	OSMAPIURL           string `env:"OSM_API_URL" envDefault:"https://api.openstreetmap.org/api/0.6/notes.json"`
	OSMRateLimitSeconds int    `env:"OSM_RATE_LIMIT_SECONDS" envDefault:"3"`

	NominatimAPIURL string `env:"NOMINATIM_API_URL" envDefault:"https://nominatim.openstreetmap.org/reverse"`

	WorkerIntervalSeconds int `env:"WORKER_INTERVAL" envDefault:"30"`

	// Per-origin inbound rate limit for report commands.
	UserRateLimitMax           int `env:"USER_RATE_LIMIT_MAX" envDefault:"5"`
	UserRateLimitWindowSeconds int `env:"USER_RATE_LIMIT_WINDOW" envDefault:"60"`

	// Admin surface. Loopback by default; the gateway has no origin auth.
	HTTPAddr string `env:"HTTP_ADDR" envDefault:"127.0.0.1:8080"`
}

// Load derives configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.PosGoodSeconds <= 0 || cfg.PosMaxSeconds <= 0 {
		return Config{}, fmt.Errorf("POS_GOOD and POS_MAX must be positive")
	}
	if cfg.PosGoodSeconds >= cfg.PosMaxSeconds {
		return Config{}, fmt.Errorf("POS_GOOD (%d) must be below POS_MAX (%d)", cfg.PosGoodSeconds, cfg.PosMaxSeconds)
	}
	if cfg.OSMRateLimitSeconds <= 0 {
		return Config{}, fmt.Errorf("OSM_RATE_LIMIT_SECONDS must be positive")
	}
	if cfg.WorkerIntervalSeconds <= 0 {
		return Config{}, fmt.Errorf("WORKER_INTERVAL must be positive")
	}

	return cfg, nil
}

// DatabasePath returns the sqlite file location under DataDir.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "gateway.db")
}

func (c Config) PosGood() time.Duration {
	return time.Duration(c.PosGoodSeconds) * time.Second
}

func (c Config) PosMax() time.Duration {
	return time.Duration(c.PosMaxSeconds) * time.Second
}

func (c Config) OSMRateLimit() time.Duration {
	return time.Duration(c.OSMRateLimitSeconds) * time.Second
}

func (c Config) WorkerInterval() time.Duration {
	return time.Duration(c.WorkerIntervalSeconds) * time.Second
}

func (c Config) UserRateLimitWindow() time.Duration {
	return time.Duration(c.UserRateLimitWindowSeconds) * time.Second
}

// Location resolves the display timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
