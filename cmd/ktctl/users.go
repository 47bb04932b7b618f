package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tjdeveng/KeepTower-sub010/internal/vault"
)

func userCmds() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage vault users (administrator only)",
	}
	cmd.AddCommand(userListCmd(), userAddCmd(), userRemoveCmd(), userResetCmd(), userEnrollCmd())
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List key slots",
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
			for _, slot := range v.Slots() {
				marker := " "
				if slot.Role == vault.RoleAdministrator {
					marker = "*"
				}
				fmt.Printf("%s %-20s %s", marker, slot.Username, slot.Role)
				if slot.HardwareKeyEnrolled {
					fmt.Print("  [hwkey]")
				}
				if slot.MustChangePassword {
					fmt.Print("  [must change password]")
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func userAddCmd() *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a key slot for a new user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			password, err := promptNewPassword()
			if err != nil {
				return err
			}
			role := vault.RoleStandardUser
			if admin {
				role = vault.RoleAdministrator
			}
			if err := a.AddUser(args[0], password, role); err != nil {
				return err
			}
			if err := a.Save(); err != nil {
				return err
			}
			okOut.Printf("added %s (%s); they must change the password at first login\n", args[0], role)
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the administrator role")
	return cmd
}

func userRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <username>",
		Aliases: []string{"remove"},
		Short:   "Delete a user's key slot",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.RemoveUser(args[0]); err != nil {
				return err
			}
			return a.Save()
		},
	}
}

func userResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <username>",
		Short: "Set a temporary password for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			password, err := promptNewPassword()
			if err != nil {
				return err
			}
			if err := a.AdminResetUserPassword(args[0], password); err != nil {
				return err
			}
			if err := a.Save(); err != nil {
				return err
			}
			okOut.Printf("password reset for %s; they must change it at next login\n", args[0])
			return nil
		},
	}
}

func userEnrollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enroll-hwkey",
		Short: "Bind your key slot to the hardware key",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			password, err := promptPassword("Confirm password: ")
			if err != nil {
				return err
			}
			if err := a.EnrollHardwareKey(cmd.Context(), password); err != nil {
				return err
			}
			if err := a.Save(); err != nil {
				return err
			}
			okOut.Println("hardware key enrolled; it is now required to open the vault")
			return nil
		},
	}
}

func passwdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change your own password",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			old, err := promptPassword("Current password: ")
			if err != nil {
				return err
			}
			next, err := promptNewPassword()
			if err != nil {
				return err
			}
			if err := a.ChangePassword(cmd.Context(), old, next); err != nil {
				return err
			}
			if err := a.Save(); err != nil {
				return err
			}
			okOut.Println("password changed")
			return nil
		},
	}
}
