package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"biodata/internal/app"
	"biodata/internal/authz"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}
	cmd.AddCommand(newAdminCreateCmd())
	return cmd
}

func newAdminCreateCmd() *cobra.Command {
	var (
		username string
		password string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			roleID, ok := authz.ParseRole(role)
			if !ok {
				return fmt.Errorf("invalid --role %q (admin, reviewer, auditor)", role)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.AdminAuth.CreateAdmin(cmd.Context(), username, password, roleID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %q (id=%d, role=%s)\n", u.Username, u.ID, authz.RoleName(u.Role))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Login name (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password, at least 8 characters (required)")
	cmd.Flags().StringVar(&role, "role", "admin", "Role: admin, reviewer or auditor")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
