package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := writeConfig(t, `
auth:
  secret: s3cr3t
database:
  host: localhost
  port: "3306"
  user: sky
  password: pw
  name: skymarket
`)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.HTTP.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.Timeout != 10*time.Second {
		t.Fatalf("expected default timeout 10s, got %v", cfg.HTTP.Timeout)
	}
	if cfg.Pagination.PageSize != 4 {
		t.Fatalf("expected default page size 4, got %d", cfg.Pagination.PageSize)
	}
	if cfg.Permissions.AdPolicy != "default" {
		t.Fatalf("expected default ad policy, got %q", cfg.Permissions.AdPolicy)
	}
	if cfg.Redis.LocalMaxEntries != 10000 {
		t.Fatalf("expected default local cache size, got %d", cfg.Redis.LocalMaxEntries)
	}
	if cfg.Redis.TTL != 10*time.Minute {
		t.Fatalf("expected default cache ttl, got %v", cfg.Redis.TTL)
	}
	if want := "sky:pw@tcp(localhost:3306)/skymarket?parseTime=true&clientFoundRows=true"; cfg.Database.DSN() != want {
		t.Fatalf("expected DSN %q, got %q", want, cfg.Database.DSN())
	}
}

func TestLoadConfigFileValues(t *testing.T) {
	dir := writeConfig(t, `
http:
  port: 9000
  timeout: 3s
auth:
  secret: abc
tracing:
  service_name: ads
cors:
  allowed_origins:
    - http://localhost:3000
permissions:
  ad_policy: authenticated
`)

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTP.Port != 9000 || cfg.HTTP.Timeout != 3*time.Second {
		t.Fatalf("unexpected http config %+v", cfg.HTTP)
	}
	if cfg.Tracing.ServiceName != "ads" {
		t.Fatalf("expected service name from file, got %q", cfg.Tracing.ServiceName)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected origins %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Permissions.AdPolicy != "authenticated" {
		t.Fatalf("unexpected ad policy %q", cfg.Permissions.AdPolicy)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := writeConfig(t, "auth:\n  secret: from-file\n")
	t.Setenv("AUTH_SECRET", "from-env")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Auth.Secret != "from-env" {
		t.Fatalf("expected env override, got %q", cfg.Auth.Secret)
	}
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	dir := writeConfig(t, "http:\n  port: 8080\n")
	t.Setenv("AUTH_SECRET", "")
	if _, err := LoadConfig(dir); err == nil {
		t.Fatalf("expected error when auth.secret is missing")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
