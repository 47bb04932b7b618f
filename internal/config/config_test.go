package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxBackups != 5 {
		t.Fatalf("MaxBackups = %d, want 5", cfg.MaxBackups)
	}
	if cfg.KDFProfile != "desktop" {
		t.Fatalf("KDFProfile = %q, want desktop", cfg.KDFProfile)
	}
	if cfg.ClipboardTTL != 30*time.Second {
		t.Fatalf("ClipboardTTL = %v", cfg.ClipboardTTL)
	}
	if cfg.ListenAddr != "127.0.0.1:7894" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keeptower.yaml")
	body := "vault_path: /tmp/test.ktv\nmax_backups: 9\nkdf_profile: mobile\nlegacy_format: true\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VaultPath != "/tmp/test.ktv" || cfg.MaxBackups != 9 || cfg.KDFProfile != "mobile" || !cfg.LegacyFormat {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); !errors.Is(err, kterrors.ErrFileReadFailed) {
		t.Fatalf("missing explicit file: got %v, want ErrFileReadFailed", err)
	}
}

func TestBadProfileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keeptower.yaml")
	if err := os.WriteFile(path, []byte("kdf_profile: quantum\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, kterrors.ErrValidationFailed) {
		t.Fatalf("bad profile: got %v, want ErrValidationFailed", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("KEEPTOWER_MAX_BACKUPS", "2")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxBackups != 2 {
		t.Fatalf("MaxBackups = %d, want 2 from environment", cfg.MaxBackups)
	}
}
