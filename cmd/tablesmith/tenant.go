package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Onboard a new tenant and print its credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := cliApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.svc.Onboard(cmd.Context())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]string{"token": t.Token, "database": t.Database})
	},
}

func init() {
	tenantCmd.AddCommand(tenantCreateCmd)
}
