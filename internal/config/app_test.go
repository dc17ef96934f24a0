package config

import "testing"

func TestLoadAppCombinesSections(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("HTTP_ADDR", ":9090")

	cfg, err := LoadApp()
	if err != nil {
		t.Fatalf("LoadApp() error = %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Server.HTTPAddr != ":9090" {
		t.Fatalf("Server.HTTPAddr = %q, want :9090", cfg.Server.HTTPAddr)
	}
}

func TestLoadAppWrapsServerError(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")

	if _, err := LoadApp(); err == nil {
		t.Fatal("LoadApp() expected error, got nil")
	}
}
