package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-gate/internal/auth"
	"github.com/nerrad567/gray-logic-gate/migrations"
)

func newUserCmd(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newUserAddCmd(configPath))
	return cmd
}

// newUserAddCmd creates an account directly in the store. It is the
// recovery path when no admin can log in.
func newUserAddCmd(configPath func() string) *cobra.Command {
	var (
		password string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]
			if password == "" {
				return fmt.Errorf("--password is required")
			}
			r := auth.Role(role)
			if err := auth.ValidateNewUser(username, r); err != nil {
				return err
			}

			db, err := openForMaintenance(cmd, configPath())
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // CLI exit

			if err := db.Migrate(cmd.Context(), migrations.FS); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}
			user := &auth.User{Username: username, PasswordHash: hash, Role: r}
			if err := auth.NewSQLiteUserStore(db).Create(cmd.Context(), user); err != nil {
				return fmt.Errorf("creating user: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created %s %q (id %d)\n", user.Role, user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().StringVarP(&role, "role", "r", string(auth.RoleUser), "account role (user or admin)")
	return cmd
}
