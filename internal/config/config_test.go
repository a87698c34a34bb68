package config

import (
	"net/url"
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "CACHE_BACKEND", "REMOTE_BASE_URL"} {
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("Server.Port = %d, want 8090", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "sqlite" {
		t.Errorf("Cache.Backend = %q, want sqlite", cfg.Cache.Backend)
	}

	// The remote client appends /api/... paths, so the default base URL must
	// not carry a path of its own.
	u, err := url.Parse(cfg.Remote.BaseURL)
	if err != nil {
		t.Fatalf("parse base URL %q: %v", cfg.Remote.BaseURL, err)
	}
	if u.Path != "" {
		t.Errorf("default base URL %q carries path %q; client paths would double up", cfg.Remote.BaseURL, u.Path)
	}
}

func TestDerivedAddresses(t *testing.T) {
	cache := CacheConfig{
		RedisHost: "redis.internal", RedisPort: 6380,
		MySQLHost: "db.internal", MySQLPort: 3307,
		MySQLName: "greencart", MySQLUser: "app", MySQLPassword: "s3cret",
	}
	if got := cache.RedisAddress(); got != "redis.internal:6380" {
		t.Errorf("RedisAddress = %q", got)
	}
	want := "app:s3cret@tcp(db.internal:3307)/greencart?parseTime=true"
	if got := cache.MySQLDSN(); got != want {
		t.Errorf("MySQLDSN = %q, want %q", got, want)
	}

	srv := ServerConfig{Host: "0.0.0.0", Port: 9000}
	if got := srv.Address(); got != "0.0.0.0:9000" {
		t.Errorf("Address = %q", got)
	}
}
