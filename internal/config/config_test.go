package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"STORE_BACKEND", "PRESENCE_BACKEND", "PRESENCE_TTL", "SESSION_STALE_AFTER", "TELEGRAM_BOT_TOKEN"} {
		unsetEnv(t, key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Fatalf("StoreBackend = %q, want memory", cfg.StoreBackend)
	}
	if cfg.PresenceTTL != 75*time.Second {
		t.Fatalf("PresenceTTL = %s, want 75s", cfg.PresenceTTL)
	}
	if cfg.SessionStaleAfter != 24*time.Hour {
		t.Fatalf("SessionStaleAfter = %s, want 24h", cfg.SessionStaleAfter)
	}
	if cfg.NotificationsEnabled() {
		t.Fatal("notifications must be off without a bot token")
	}
}

func TestLoadNormalisesBackends(t *testing.T) {
	t.Setenv("STORE_BACKEND", " Postgres ")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("PRESENCE_BACKEND", "REDIS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != BackendPostgres || cfg.PresenceBackend != BackendRedis {
		t.Fatalf("backends = %q/%q", cfg.StoreBackend, cfg.PresenceBackend)
	}
	if !strings.Contains(cfg.DatabaseDSN(), ":secret@") {
		t.Fatalf("DSN %q does not carry password", cfg.DatabaseDSN())
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			StoreBackend:              BackendMemory,
			PresenceBackend:           BackendMemory,
			PresenceHeartbeatInterval: 30 * time.Second,
			PresenceTTL:               75 * time.Second,
			SessionStaleAfter:         24 * time.Hour,
			RateLimitRequests:         10,
			RateLimitWindow:           time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "postgres without password", mutate: func(c *Config) { c.StoreBackend = BackendPostgres }, wantErr: true},
		{name: "unknown store", mutate: func(c *Config) { c.StoreBackend = "mongo" }, wantErr: true},
		{name: "unknown presence", mutate: func(c *Config) { c.PresenceBackend = "etcd" }, wantErr: true},
		{name: "ttl below interval", mutate: func(c *Config) { c.PresenceTTL = 10 * time.Second }, wantErr: true},
		{name: "negative match limit", mutate: func(c *Config) { c.MatchDefaultLimit = -1 }, wantErr: true},
		{name: "zero stale age", mutate: func(c *Config) { c.SessionStaleAfter = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// unsetEnv убирает переменную на время теста: пустое значение envconfig
// считает заданным и не подставляет default.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset %s: %v", key, err)
	}
}
