package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjdeveng/KeepTower-sub010/internal/auth"
	cr "github.com/tjdeveng/KeepTower-sub010/internal/crypto"
	"github.com/tjdeveng/KeepTower-sub010/internal/fec"
	"github.com/tjdeveng/KeepTower-sub010/internal/platform"
	"github.com/tjdeveng/KeepTower-sub010/internal/vault"
)

func initCmd() *cobra.Command {
	var noFEC bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new vault with the current user as administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			username := currentUsername()
			if username == "" {
				return fmt.Errorf("no username; pass --user")
			}
			password, err := promptNewPassword()
			if err != nil {
				return err
			}
			policy := vault.DefaultPolicy()
			if cfg.KDFProfile == "mobile" {
				kdf := cr.DefaultMobileKDF()
				policy.KDFMemoryKiB = kdf.M
				policy.KDFIterations = kdf.T
				policy.KDFParallelism = kdf.P
			}
			var fecParams *fec.Params
			if !noFEC {
				p := fec.DefaultParams()
				fecParams = &p
			}
			a := auth.New(authOptions())
			if err := a.CreateVault(cfg.VaultPath, username, password, policy, fecParams); err != nil {
				return err
			}
			defer a.Close()
			okOut.Printf("vault created at %s (administrator %s)\n", cfg.VaultPath, username)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noFEC, "no-fec", false, "disable redundancy coding")
	return cmd
}

func accountCmds() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "account",
		Aliases: []string{"acct"},
		Short:   "Manage stored credentials",
	}
	cmd.AddCommand(accountAddCmd(), accountListCmd(), accountShowCmd(),
		accountRemoveCmd(), accountMoveCmd(), accountSearchCmd())
	return cmd
}

func accountAddCmd() *cobra.Command {
	var username, email, website, notes, tags string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			secret, err := promptPassword("Credential password (empty to skip): ")
			if err != nil {
				return err
			}
			v, err := a.Vault()
			if err != nil {
				return err
			}
			rec := vault.AccountRecord{
				Name:     args[0],
				Username: username,
				Password: secret,
				Email:    email,
				Website:  website,
				Notes:    notes,
			}
			if tags != "" {
				rec.Tags = strings.Split(tags, ",")
			}
			id := v.Accounts().Add(rec)
			if err := a.Save(); err != nil {
				return err
			}
			okOut.Printf("added %s (%s)\n", args[0], id)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&website, "website", "", "website URL")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&tags, "tags", "", "comma-separated tags")
	return cmd
}

// sessionRole is the role of the CLI session's authenticated user.
func sessionRole(a *auth.Authenticator) vault.Role {
	_, role, _ := a.CurrentUser()
	return role
}

// visibleRecord resolves a list index against the session's filtered view, so
// the numbers printed by `account list` stay addressable.
func visibleRecord(v *vault.Vault, role vault.Role, idx int) (vault.AccountRecord, error) {
	recs := v.Accounts().SnapshotFor(role)
	if idx < 0 || idx >= len(recs) {
		return vault.AccountRecord{}, fmt.Errorf("no account at index %d", idx)
	}
	return recs[idx], nil
}

func printAccounts(recs []vault.AccountRecord) {
	for i, r := range recs {
		boldOut.Printf("%3d  %s", i, r.Name)
		if r.Username != "" {
			fmt.Printf("  (%s)", r.Username)
		}
		if len(r.Tags) > 0 {
			fmt.Printf("  [%s]", strings.Join(r.Tags, ", "))
		}
		fmt.Println()
	}
}

func accountListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List credentials in display order",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			v, err := a.Vault()
			if err != nil {
				return err
			}
			printAccounts(v.Accounts().SnapshotFor(sessionRole(a)))
			return nil
		},
	}
}

func accountShowCmd() *cobra.Command {
	var copyPassword bool
	cmd := &cobra.Command{
		Use:   "show <index>",
		Short: "Show one credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be a number: %q", args[0])
			}
			a, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			v, err := a.Vault()
			if err != nil {
				return err
			}
			rec, err := visibleRecord(v, sessionRole(a), idx)
			if err != nil {
				return err
			}
			boldOut.Println(rec.Name)
			if rec.Username != "" {
				fmt.Println("  username:", rec.Username)
			}
			if rec.Email != "" {
				fmt.Println("  email:   ", rec.Email)
			}
			if rec.Website != "" {
				fmt.Println("  website: ", rec.Website)
			}
			if rec.Notes != "" {
				fmt.Println("  notes:   ", rec.Notes)
			}
			if copyPassword {
				if err := platform.CopySecret(rec.Password, cfg.ClipboardTTL); err != nil {
					return err
				}
				okOut.Fprintf(os.Stderr, "password copied; clipboard clears in %s\n", cfg.ClipboardTTL)
			} else if rec.Password != "" {
				fmt.Println("  password:", rec.Password)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&copyPassword, "copy", "c", false, "copy the password to the clipboard instead of printing it")
	return cmd
}

func accountRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <index>",
		Aliases: []string{"remove"},
		Short:   "Delete a credential",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be a number: %q", args[0])
			}
			a, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			v, err := a.Vault()
			if err != nil {
				return err
			}
			role := sessionRole(a)
			rec, err := visibleRecord(v, role, idx)
			if err != nil {
				return err
			}
			if !rec.DeletableBy(role) {
				return fmt.Errorf("account %q can only be deleted by an administrator", rec.Name)
			}
			if err := v.Accounts().Delete(v.Accounts().IndexOf(rec.ID)); err != nil {
				return err
			}
			return a.Save()
		},
	}
}

func accountMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <from> <to>",
		Short: "Move a credential to a new display position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("positions must be numbers")
			}
			to, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("positions must be numbers")
			}
			a, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			v, err := a.Vault()
			if err != nil {
				return err
			}
			if err := v.Accounts().Reorder(from, to); err != nil {
				return err
			}
			return a.Save()
		},
	}
}

func accountSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search names, usernames, websites, and tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			v, err := a.Vault()
			if err != nil {
				return err
			}
			hits := v.Accounts().SearchFor(args[0], sessionRole(a))
			if len(hits) == 0 {
				fmt.Println("no matches")
				return nil
			}
			printAccounts(hits)
			return nil
		},
	}
}
