package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func groupCmds() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage account groups",
	}
	cmd.AddCommand(groupListCmd(), groupAddCmd(), groupRemoveCmd(),
		groupRenameCmd(), groupMoveCmd(), groupAssignCmd(), groupUnassignCmd())
	return cmd
}

func groupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List groups in display order",
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
			for _, g := range v.Groups().Snapshot() {
				if g.System {
					boldOut.Printf("* %s  (%s)\n", g.Name, g.ID)
					continue
				}
				fmt.Printf("  %s  (%s)\n", g.Name, g.ID)
			}
			return nil
		},
	}
}

func groupAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Create a group",
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
			id, err := v.Groups().Create(args[0])
			if err != nil {
				return err
			}
			if err := a.Save(); err != nil {
				return err
			}
			okOut.Printf("created %s (%s)\n", args[0], id)
			return nil
		},
	}
}

func groupRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Delete a group and detach its accounts",
		Args:    cobra.ExactArgs(1),
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
			if err := v.Groups().Delete(args[0]); err != nil {
				return err
			}
			return a.Save()
		},
	}
}

func groupRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <new-name>",
		Short: "Rename a group",
		Args:  cobra.ExactArgs(2),
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
			if err := v.Groups().Rename(args[0], args[1]); err != nil {
				return err
			}
			return a.Save()
		},
	}
}

func groupMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <position>",
		Short: "Move a group among the user groups",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("position must be a number: %q", args[1])
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
			if err := v.Groups().Reorder(args[0], pos); err != nil {
				return err
			}
			return a.Save()
		},
	}
}

func groupAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <account-index> <group-id>",
		Short: "Add an account to a group",
		Args:  cobra.ExactArgs(2),
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
			rec, err := v.Accounts().Get(idx)
			if err != nil {
				return err
			}
			if err := v.Accounts().AddToGroup(rec.ID, args[1]); err != nil {
				return err
			}
			return a.Save()
		},
	}
}

func groupUnassignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unassign <account-index> <group-id>",
		Short: "Remove an account from a group",
		Args:  cobra.ExactArgs(2),
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
			rec, err := v.Accounts().Get(idx)
			if err != nil {
				return err
			}
			if err := v.Accounts().RemoveFromGroup(rec.ID, args[1]); err != nil {
				return err
			}
			return a.Save()
		},
	}
}
