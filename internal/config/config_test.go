package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPAddr != ":8080" {
		t.Fatalf("http_addr=%q want=:8080", cfg.Server.HTTPAddr)
	}
	if cfg.Raffle.MaxRandomnessAge != 60*time.Second {
		t.Fatalf("max_randomness_age=%s want=60s", cfg.Raffle.MaxRandomnessAge)
	}
	if cfg.Raffle.DisputeWindow != 30*24*time.Hour {
		t.Fatalf("dispute_window=%s want=720h", cfg.Raffle.DisputeWindow)
	}
	if cfg.Storage.Driver != "memory" || cfg.Sequence.Driver != "memory" || cfg.Oracle.Driver != "memory" {
		t.Fatalf("drivers=%q/%q/%q", cfg.Storage.Driver, cfg.Sequence.Driver, cfg.Oracle.Driver)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raffle.yaml")
	body := []byte("keeper:\n  enabled: true\n  schedule: \"@every 5s\"\nraffle:\n  max_randomness_age: 30s\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("RAFFLE_SERVER_HTTP_ADDR", ":9999")

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Keeper.Enabled || cfg.Keeper.Schedule != "@every 5s" {
		t.Fatalf("keeper=%+v", cfg.Keeper)
	}
	if cfg.Raffle.MaxRandomnessAge != 30*time.Second {
		t.Fatalf("max_randomness_age=%s", cfg.Raffle.MaxRandomnessAge)
	}
	if cfg.Server.HTTPAddr != ":9999" {
		t.Fatalf("http_addr=%q want=:9999", cfg.Server.HTTPAddr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
