package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the full configuration surface of the EOD service.
type Config struct {
	Port string
	Env  string

	// DBSource selects the storage backend: a Postgres conn string, or empty
	// for the in-process store (single-device mode).
	DBSource string

	// UnlockSecret gates the unlock operation. It must come from the
	// environment; there is no baked-in default.
	UnlockSecret string

	// Locations lists the pharmacy locations the lock sweep watches.
	Locations []string

	// SweepSchedule is the cron expression for the nightly lock sweep.
	SweepSchedule string
}

// Load reads the environment (and an optional local .env file) into a Config.
func Load() (*Config, error) {
	// Missing .env files are fine; configuration may come from the
	// environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getenvWithDefault("APP_PORT", "8080"),
		Env:           getenvWithDefault("ENVIRONMENT", "development"),
		DBSource:      os.Getenv("DB_SOURCE"),
		UnlockSecret:  os.Getenv("EOD_UNLOCK_SECRET"),
		SweepSchedule: getenvWithDefault("EOD_SWEEP_SCHEDULE", "30 22 * * *"),
	}

	for _, loc := range strings.Split(os.Getenv("EOD_LOCATIONS"), ",") {
		if loc = strings.TrimSpace(loc); loc != "" {
			cfg.Locations = append(cfg.Locations, loc)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures required fields are populated.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("APP_PORT must be provided")
	}
	if c.UnlockSecret == "" {
		return errors.New("EOD_UNLOCK_SECRET must be provided")
	}
	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
