// keeptowerd serves a vault over a loopback HTTP API for desktop
// integrations that do not want to shell out to ktctl.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjdeveng/KeepTower-sub010/internal/audit"
	"github.com/tjdeveng/KeepTower-sub010/internal/auth"
	"github.com/tjdeveng/KeepTower-sub010/internal/config"
	"github.com/tjdeveng/KeepTower-sub010/internal/hwkey"
	"github.com/tjdeveng/KeepTower-sub010/internal/logging"
	"github.com/tjdeveng/KeepTower-sub010/internal/platform"
	"github.com/tjdeveng/KeepTower-sub010/internal/server"
)

func main() {
	var (
		flagConfig   string
		flagHWSecret string
	)
	root := &cobra.Command{
		Use:           "keeptowerd",
		Short:         "KeepTower vault daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := platform.DisableCoreDumps(); err != nil {
				return err
			}
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, os.Stderr)

			opts := auth.Options{
				LegacyHint: cfg.LegacyFormat,
				BackupDir:  cfg.BackupDir,
				MaxBackups: cfg.MaxBackups,
			}
			if cfg.AuditLog != "" {
				l, err := audit.Open(cfg.AuditLog)
				if err != nil {
					return err
				}
				opts.Audit = l
			}
			if flagHWSecret != "" {
				opts.Responder = hwkey.NewSoftwareResponder([]byte(flagHWSecret))
			}

			srv, err := server.New(cfg, auth.New(opts))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	root.Flags().StringVar(&flagConfig, "config", "", "config file path")
	root.Flags().StringVar(&flagHWSecret, "hwkey-secret", "", "software hardware-key secret (testing)")

	if err := root.Execute(); err != nil {
		lg := logging.Component("main")
		lg.Error().Err(err).Msg("daemon exited")
		os.Exit(1)
	}
}
