// Package config loads tool configuration from file, environment, and
// defaults, in that order of increasing precedence for the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
)

// Config is everything the CLI and daemon read at startup.
type Config struct {
	VaultPath string `mapstructure:"vault_path"`

	BackupDir  string `mapstructure:"backup_dir"`
	MaxBackups int    `mapstructure:"max_backups"`

	// KDFProfile picks the argon2id cost profile for new slots:
	// "desktop" or "mobile".
	KDFProfile string `mapstructure:"kdf_profile"`

	// LegacyFormat biases format detection toward header-prefixed files.
	LegacyFormat bool `mapstructure:"legacy_format"`

	AuditLog string `mapstructure:"audit_log"`

	ClipboardTTL time.Duration `mapstructure:"clipboard_ttl"`

	ListenAddr string        `mapstructure:"listen_addr"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`

	LogLevel string `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("vault_path", filepath.Join(home, ".keeptower", "vault.ktv"))
	v.SetDefault("backup_dir", "")
	v.SetDefault("max_backups", 5)
	v.SetDefault("kdf_profile", "desktop")
	v.SetDefault("legacy_format", false)
	v.SetDefault("audit_log", "")
	v.SetDefault("clipboard_ttl", 30*time.Second)
	v.SetDefault("listen_addr", "127.0.0.1:7894")
	v.SetDefault("token_ttl", 15*time.Minute)
	v.SetDefault("log_level", "info")
}

// Load reads configuration. path may be empty, in which case the usual
// locations are searched and a missing file is fine.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("KEEPTOWER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w: %v", path, kterrors.ErrFileReadFailed, err)
		}
	} else {
		v.SetConfigName("keeptower")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".keeptower"))
			v.AddConfigPath(filepath.Join(home, ".config", "keeptower"))
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: %w: %v", kterrors.ErrFileReadFailed, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w: %v", kterrors.ErrValidationFailed, err)
	}
	if cfg.KDFProfile != "desktop" && cfg.KDFProfile != "mobile" {
		return nil, fmt.Errorf("config: unknown kdf_profile %q: %w", cfg.KDFProfile, kterrors.ErrValidationFailed)
	}
	return &cfg, nil
}
