package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	os.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	os.Setenv("MONGODB_DATABASE", "docugate_test")
	os.Setenv("REDIS_HOST", "localhost")
	os.Setenv("REDIS_PORT", "6379")
	os.Setenv("JWT_SECRET", "testsecret123456789012345678901234")
	os.Setenv("DOCSERVER_URL", "http://docserver:8000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.MongoDB.URI == "" || cfg.Redis.Host == "" {
		t.Fatalf("unexpected empty config values: %+v", cfg)
	}
	if cfg.DocServer.BaseURL != "http://docserver:8000" {
		t.Fatalf("unexpected docserver url: %q", cfg.DocServer.BaseURL)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	os.Unsetenv("SESSION_INACTIVITY_TIMEOUT")
	os.Unsetenv("CALLBACK_FETCH_TIMEOUT")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Sessions.InactivityTimeout != 30*time.Minute {
		t.Fatalf("unexpected inactivity timeout: %v", cfg.Sessions.InactivityTimeout)
	}
	if cfg.Callback.FetchTimeout != 30*time.Second {
		t.Fatalf("unexpected fetch timeout: %v", cfg.Callback.FetchTimeout)
	}
	if cfg.Callback.MaxBytes <= 0 {
		t.Fatalf("expected positive max bytes, got %d", cfg.Callback.MaxBytes)
	}
}
