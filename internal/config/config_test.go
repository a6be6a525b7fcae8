package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("EVOLUTION_API_URL", "http://localhost:8080")
	t.Setenv("EVOLUTION_API_KEY", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "4002" {
		t.Errorf("port = %q, want 4002", cfg.Port)
	}
	if cfg.GatewayTimeout != 10*time.Second {
		t.Errorf("gateway timeout = %v, want 10s", cfg.GatewayTimeout)
	}
	if cfg.SyncMessageLimit != 30 {
		t.Errorf("sync limit = %d, want 30", cfg.SyncMessageLimit)
	}
	if cfg.MessageRetention != 0 {
		t.Errorf("retention = %v, want disabled", cfg.MessageRetention)
	}
}

func TestLoadRequiredVars(t *testing.T) {
	vars := []string{"DATABASE_URL", "EVOLUTION_API_URL", "EVOLUTION_API_KEY"}
	for _, missing := range vars {
		t.Run(missing, func(t *testing.T) {
			setRequired(t)
			t.Setenv(missing, "")
			if _, err := Load(); err == nil {
				t.Errorf("load succeeded without %s", missing)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("SYNC_MESSAGE_LIMIT", "100")
	t.Setenv("MESSAGE_RETENTION", "720h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GatewayTimeout != 3*time.Second {
		t.Errorf("gateway timeout = %v, want 3s", cfg.GatewayTimeout)
	}
	if cfg.SyncMessageLimit != 100 {
		t.Errorf("sync limit = %d, want 100", cfg.SyncMessageLimit)
	}
	if cfg.MessageRetention != 720*time.Hour {
		t.Errorf("retention = %v, want 720h", cfg.MessageRetention)
	}
}

func TestLoadRejectsNonPositiveSyncLimit(t *testing.T) {
	setRequired(t)
	t.Setenv("SYNC_MESSAGE_LIMIT", "-5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SyncMessageLimit != 30 {
		t.Errorf("sync limit = %d, want fallback 30", cfg.SyncMessageLimit)
	}
}
