package config

import (
	"strings"

	"github.com/caarlos0/env/v11"
)

// TestConfig drives the optional Postgres-backed tests.
type TestConfig struct {
	PostgresDSN string `env:"TEST_POSTGRES_DSN"`
}

func (c TestConfig) HasPostgres() bool {
	return strings.TrimSpace(c.PostgresDSN) != ""
}

func LoadTest() (TestConfig, error) {
	var cfg TestConfig
	err := env.Parse(&cfg)
	return cfg, err
}
