package config

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type ServerConfig struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/chip-ledger.db"`

	AdminAPIKey    string   `env:"ADMIN_API_KEY"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	DefaultChipsPerHand int64 `env:"DEFAULT_CHIPS_PER_HAND" envDefault:"1000"`
	RoomIDAttempts      int   `env:"ROOM_ID_ATTEMPTS" envDefault:"50"`

	WSSendBuffer    int           `env:"WS_SEND_BUFFER" envDefault:"64"`
	WSPingInterval  time.Duration `env:"WS_PING_INTERVAL" envDefault:"25s"`
	SSEPingInterval time.Duration `env:"SSE_PING_INTERVAL" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	switch cfg.StoreDriver {
	case DriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return cfg, errors.New("config: POSTGRES_DSN is required when STORE_DRIVER=postgres")
		}
	case DriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return cfg, errors.New("config: SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	default:
		return cfg, errors.New("config: unsupported STORE_DRIVER " + cfg.StoreDriver)
	}
	if cfg.DefaultChipsPerHand <= 0 {
		return cfg, errors.New("config: DEFAULT_CHIPS_PER_HAND must be positive")
	}
	if cfg.RoomIDAttempts <= 0 {
		return cfg, errors.New("config: ROOM_ID_ATTEMPTS must be positive")
	}
	return cfg, nil
}
