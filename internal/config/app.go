package config

import "fmt"

// AppConfig is everything cmd/chip-server needs at startup.
type AppConfig struct {
	Server ServerConfig
	Log    LogConfig
}

func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, fmt.Errorf("load log config: %w", err)
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, fmt.Errorf("load server config: %w", err)
	}
	return AppConfig{
		Server: serverCfg,
		Log:    logCfg,
	}, nil
}
