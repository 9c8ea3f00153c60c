package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.Chdir(wd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 5000 || cfg.Artifacts.Dir != "artifacts" || cfg.Cache.Size != 1024 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
http:
  port: 8080
  timeout: 5s
  allowed_origins: ["http://localhost:3000"]
dataset:
  path: data/houses.csv
  encoding: windows-1252
artifacts:
  dir: /var/lib/houseprice
log:
  level: debug
retrain:
  schedule: "0 3 * * *"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("ADMIN_JWT_SECRET", "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Fatalf("expected env port override, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.Timeout != 5*time.Second || cfg.Dataset.Encoding != "windows-1252" {
		t.Fatalf("unexpected http/dataset config: %+v", cfg)
	}
	if cfg.Artifacts.Dir != "/var/lib/houseprice" || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected artifacts/log config: %+v", cfg)
	}
	if cfg.Admin.JWTSecret != "s3cret" || cfg.Retrain.Schedule != "0 3 * * *" {
		t.Fatalf("unexpected admin/retrain config: %+v", cfg)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Fatalf("expected default cache ttl to survive, got %v", cfg.Cache.TTL)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing file")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 70000\n"), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected port validation error")
	}

	t.Setenv("HTTP_PORT", "abc")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected HTTP_PORT parse error")
	}
}

func TestValidateAlerts(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown level", func(c *Config) { c.Alerts.MinLevel = "loud" }, true},
		{"slack without channel", func(c *Config) { c.Alerts.SlackToken = "xoxb-1" }, true},
		{"slack with channel", func(c *Config) {
			c.Alerts.SlackToken = "xoxb-1"
			c.Alerts.SlackChannel = "C123"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
