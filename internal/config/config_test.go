package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Owner.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.Engine.CreatorBond = "not-a-number"
	cfg.Engine.FeeBps = 20_000
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, want := range []string{"unknown mode", "creator_bond", "fee_bps", "redis"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateRequiresOwnerKey(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err == nil {
		t.Fatal("config without an owner key should fail validation")
	}

	cfg.Owner.EncryptedKeyPath = "/keys/owner.json"
	if err := cfg.Validate(); err == nil {
		t.Fatal("encrypted keyfile without a password should fail validation")
	}
	cfg.Owner.KeyPassword = "pw"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("keyfile plus password should validate: %v", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "server"

[engine]
creator_bond = "250"
dispute_window = "1h30m"

[server]
port = 9100
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "server" {
		t.Errorf("mode = %q, want server", cfg.Mode)
	}
	if cfg.Engine.CreatorBond != "250" {
		t.Errorf("creator_bond = %q, want 250", cfg.Engine.CreatorBond)
	}
	if cfg.Engine.DisputeWindow.Duration != 90*time.Minute {
		t.Errorf("dispute_window = %v, want 1h30m", cfg.Engine.DisputeWindow.Duration)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	// Untouched sections keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q, want default", cfg.Redis.Addr)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PREDICTIOND_MODE", "archive")
	t.Setenv("PREDICTIOND_ENGINE_FEE_BPS", "350")
	t.Setenv("PREDICTIOND_ENGINE_EXECUTORS", "0x0000000000000000000000000000000000000001, 0x0000000000000000000000000000000000000002")
	t.Setenv("PREDICTIOND_S3_ARCHIVE_ENABLED", "true")
	t.Setenv("PREDICTIOND_S3_ARCHIVE_INTERVAL", "15m")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Mode != "archive" {
		t.Errorf("mode = %q, want archive", cfg.Mode)
	}
	if cfg.Engine.FeeBps != 350 {
		t.Errorf("fee_bps = %d, want 350", cfg.Engine.FeeBps)
	}
	if len(cfg.Engine.Executors) != 2 {
		t.Errorf("executors = %v, want 2 entries", cfg.Engine.Executors)
	}
	if !cfg.S3.ArchiveEnabled {
		t.Error("archive_enabled should be true")
	}
	if cfg.S3.ArchiveInterval.Duration != 15*time.Minute {
		t.Errorf("archive_interval = %v, want 15m", cfg.S3.ArchiveInterval.Duration)
	}
}

func TestAmount(t *testing.T) {
	if got := Amount("1000000000000000000"); got.Cmp(big.NewInt(1e18)) != 0 {
		t.Errorf("Amount(1e18) = %v", got)
	}
	if got := Amount(""); got.Sign() != 0 {
		t.Errorf("Amount(empty) = %v, want 0", got)
	}
	if got := Amount("garbage"); got.Sign() != 0 {
		t.Errorf("Amount(garbage) = %v, want 0", got)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Owner.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "12345:token"

	red := RedactedConfig(&cfg)
	if red.Owner.PrivateKey != "***" || red.Postgres.Password != "***" || red.Notify.TelegramToken != "***" {
		t.Error("secrets not redacted")
	}
	// The original must be untouched.
	if cfg.Owner.PrivateKey != "deadbeef" {
		t.Error("redaction mutated the source config")
	}
}
