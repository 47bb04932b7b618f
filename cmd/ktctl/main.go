// ktctl is the command-line client for KeepTower vaults.
package main

import (
	"fmt"
	"os"
	"os/user"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tjdeveng/KeepTower-sub010/internal/audit"
	"github.com/tjdeveng/KeepTower-sub010/internal/auth"
	"github.com/tjdeveng/KeepTower-sub010/internal/config"
	"github.com/tjdeveng/KeepTower-sub010/internal/hwkey"
	"github.com/tjdeveng/KeepTower-sub010/internal/logging"
	"github.com/tjdeveng/KeepTower-sub010/internal/platform"
)

var (
	flagConfig   string
	flagVault    string
	flagUsername string
	flagHWSecret string

	cfg *config.Config

	errOut  = color.New(color.FgRed)
	okOut   = color.New(color.FgGreen)
	boldOut = color.New(color.Bold)
)

func main() {
	root := &cobra.Command{
		Use:           "ktctl",
		Short:         "Manage an encrypted credential vault",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := platform.DisableCoreDumps(); err != nil {
				return err
			}
			loaded, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			cfg = loaded
			if flagVault != "" {
				cfg.VaultPath = flagVault
			}
			logging.Setup(cfg.LogLevel, os.Stderr)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path")
	root.PersistentFlags().StringVar(&flagVault, "vault", "", "vault file path")
	root.PersistentFlags().StringVarP(&flagUsername, "user", "u", "", "vault username")
	root.PersistentFlags().StringVar(&flagHWSecret, "hwkey-secret", "", "software hardware-key secret (testing)")

	root.AddCommand(
		initCmd(),
		accountCmds(),
		groupCmds(),
		userCmds(),
		passwdCmd(),
		backupCmds(),
		auditCmd(),
	)

	if err := root.Execute(); err != nil {
		errOut.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func currentUsername() string {
	if flagUsername != "" {
		return flagUsername
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func promptNewPassword() (string, error) {
	pw, err := promptPassword("New password: ")
	if err != nil {
		return "", err
	}
	again, err := promptPassword("Repeat password: ")
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", fmt.Errorf("passwords do not match")
	}
	return pw, nil
}

func authOptions() auth.Options {
	opts := auth.Options{
		LegacyHint: cfg.LegacyFormat,
		BackupDir:  cfg.BackupDir,
		MaxBackups: cfg.MaxBackups,
	}
	if cfg.AuditLog != "" {
		if l, err := audit.Open(cfg.AuditLog); err == nil {
			opts.Audit = l
		}
	}
	if flagHWSecret != "" {
		opts.Responder = hwkey.NewSoftwareResponder([]byte(flagHWSecret))
	}
	return opts
}

// openSession prompts for the password and opens the configured vault.
func openSession(cmd *cobra.Command) (*auth.Authenticator, error) {
	username := currentUsername()
	if username == "" {
		return nil, fmt.Errorf("no username; pass --user")
	}
	password, err := promptPassword(fmt.Sprintf("Password for %s: ", username))
	if err != nil {
		return nil, err
	}
	a := auth.New(authOptions())
	if err := a.Open(cmd.Context(), cfg.VaultPath, username, password); err != nil {
		return nil, err
	}
	if a.MustChangePassword() {
		boldOut.Fprintln(os.Stderr, "Your password must be changed; run `ktctl passwd`.")
	}
	if a.MustEnrollHardwareKey() {
		boldOut.Fprintln(os.Stderr, "Vault policy requires a hardware key; run `ktctl user enroll-hwkey`.")
	}
	return a, nil
}
