package cli

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// isolateConfig points HOME at a temp dir and clears every override.
func isolateConfig(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	for _, name := range []string{
		"PARAGON_BASE_URL", "PARAGON_TOKEN_URL", "PARAGON_CLIENT_ID", "PARAGON_CLIENT_SECRET",
		"PARAGON_LIMITED_MODE", "PARAGON_ALLOWED_ZIPS", "LISTINGS_REDIS_ADDR",
		"LISTINGS_GEOCODER_URL", "LISTINGS_DEV_MODE", "LISTINGS_CACHE_BACKEND",
	} {
		t.Setenv(name, "")
	}
	flagConfig = ""
	return tmp
}

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestConfigLoadMissing(t *testing.T) {
	isolateConfig(t)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if !reflect.DeepEqual(cfg, defaultConfig()) {
		t.Errorf("expected defaults for missing file, got %+v", cfg)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := defaultConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"page size", cfg.Paragon.PageSize, 200},
		{"max pages", cfg.Paragon.MaxPages, 100},
		{"media concurrency", cfg.Paragon.MediaConcurrency, 8},
		{"geocode concurrency", cfg.Paragon.GeocodeConcurrency, 4},
		{"max url length", cfg.Paragon.MaxURLLength, 2048},
		{"request timeout", cfg.Paragon.RequestTimeout, 15 * time.Second},
		{"token timeout", cfg.Paragon.TokenTimeout, 10 * time.Second},
		{"token leeway", cfg.Paragon.TokenLeeway, 30 * time.Second},
		{"geocode timeout", cfg.Geocoder.Timeout, 5 * time.Second},
		{"requests per second", cfg.Paragon.RequestsPerSecond, 0.0},
		{"cache ttl", cfg.Cache.TTL, 5 * time.Minute},
		{"cache backend", cfg.Cache.Backend, "sqlite"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestConfigLoadFile(t *testing.T) {
	home := isolateConfig(t)
	writeConfig(t, filepath.Join(home, ".config", "listings", "config.yaml"), `
paragon:
  base_url: https://feed.example.com/OData/ABC
  token_url: https://feed.example.com/token
  client_id: file-id
  client_secret: file-secret
  page_size: 100
  request_timeout: 30s
  allowed_zips: ["53703", "53715"]
cache:
  backend: memory
  ttl: 1m
geocoder:
  url: https://geo.example.com/search
`)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Paragon.ClientID != "file-id" || cfg.Paragon.PageSize != 100 {
		t.Errorf("paragon = %+v", cfg.Paragon)
	}
	if cfg.Paragon.RequestTimeout != 30*time.Second {
		t.Errorf("request timeout = %v, want 30s", cfg.Paragon.RequestTimeout)
	}
	if cfg.Paragon.MaxPages != 100 {
		t.Errorf("unset field lost its default: max pages = %d", cfg.Paragon.MaxPages)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.TTL != time.Minute {
		t.Errorf("cache = %+v", cfg.Cache)
	}

	feed := cfg.feedConfig()
	if !reflect.DeepEqual(feed.AllowedPostalCodes, []string{"53703", "53715"}) {
		t.Errorf("allowed postal codes = %v", feed.AllowedPostalCodes)
	}
	if feed.BaseURL != cfg.Paragon.BaseURL || feed.RequestTimeout != 30*time.Second {
		t.Errorf("feed config = %+v", feed)
	}
	if err := cfg.requireFeed(); err != nil {
		t.Errorf("requireFeed: %v", err)
	}
}

func TestConfigFlagOverridesPath(t *testing.T) {
	isolateConfig(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	writeConfig(t, path, "paragon:\n  client_id: custom-id\n")

	flagConfig = path
	t.Cleanup(func() { flagConfig = "" })

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Paragon.ClientID != "custom-id" {
		t.Errorf("client id = %q, want custom-id", cfg.Paragon.ClientID)
	}
}

func TestConfigEnvOverrides(t *testing.T) {
	home := isolateConfig(t)
	writeConfig(t, filepath.Join(home, ".config", "listings", "config.yaml"), `
paragon:
  client_id: file-id
  allowed_zips: ["11111"]
`)
	t.Setenv("PARAGON_CLIENT_ID", "env-id")
	t.Setenv("PARAGON_LIMITED_MODE", "true")
	t.Setenv("PARAGON_ALLOWED_ZIPS", "53703, 53715,")
	t.Setenv("LISTINGS_REDIS_ADDR", "redis:6380")
	t.Setenv("LISTINGS_DEV_MODE", "1")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Paragon.ClientID != "env-id" {
		t.Errorf("client id = %q, want env-id", cfg.Paragon.ClientID)
	}
	if !cfg.Paragon.LimitedMode || !cfg.DevMode {
		t.Error("expected boolean overrides applied")
	}
	if !reflect.DeepEqual(cfg.Paragon.AllowedZips, []string{"53703", "53715"}) {
		t.Errorf("allowed zips = %v", cfg.Paragon.AllowedZips)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{"bad yaml", "paragon: [", nil},
		{"bad duration", "paragon:\n  request_timeout: soon\n", nil},
		{"bad backend", "cache:\n  backend: memcached\n", nil},
		{"bad bool", "", map[string]string{"PARAGON_LIMITED_MODE": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := isolateConfig(t)
			if tt.file != "" {
				writeConfig(t, filepath.Join(home, ".config", "listings", "config.yaml"), tt.file)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := loadConfig(); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestRequireFeed(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.requireFeed(); err == nil {
		t.Fatal("expected error for empty credentials")
	}

	cfg.Paragon.BaseURL = "https://feed"
	cfg.Paragon.TokenURL = "https://token"
	cfg.Paragon.ClientID = "id"
	if err := cfg.requireFeed(); err == nil {
		t.Fatal("expected error for missing secret")
	}

	cfg.Paragon.ClientSecret = "secret"
	if err := cfg.requireFeed(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
