package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tjdeveng/KeepTower-sub010/internal/audit"
	"github.com/tjdeveng/KeepTower-sub010/internal/backup"
)

func backupCmds() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage vault backups",
	}
	cmd.AddCommand(backupListCmd(), backupNowCmd(), backupRestoreCmd())
	return cmd
}

func backupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := backup.List(cfg.VaultPath, cfg.BackupDir)
			if len(names) == 0 {
				fmt.Println("no backups")
				return nil
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}

func backupNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Snapshot the vault file immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := backup.Create(cfg.VaultPath, cfg.BackupDir)
			if err != nil {
				return err
			}
			if !created {
				fmt.Println("nothing to back up")
				return nil
			}
			backup.Cleanup(cfg.VaultPath, cfg.MaxBackups, cfg.BackupDir)
			okOut.Println("backup written")
			return nil
		},
	}
}

func backupRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Replace the vault file with the newest backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := backup.Restore(cfg.VaultPath, cfg.BackupDir); err != nil {
				return err
			}
			if cfg.AuditLog != "" {
				if l, err := audit.Open(cfg.AuditLog); err == nil {
					l.Record(currentUsername(), audit.ActionBackupRestored, cfg.VaultPath)
				}
			}
			okOut.Println("vault restored from newest backup")
			return nil
		},
	}
}

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit-verify",
		Short: "Check the audit log's hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.AuditLog == "" {
				return fmt.Errorf("no audit_log configured")
			}
			n, err := audit.Verify(cfg.AuditLog)
			if err != nil {
				return fmt.Errorf("chain valid for %d entries, then: %w", n, err)
			}
			okOut.Printf("audit chain intact (%d entries)\n", n)
			return nil
		},
	}
}
