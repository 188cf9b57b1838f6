// Command tablesmith serves the table definition API and offers offline
// administration of tenants and generated model modules.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tablesmith",
	Short: "Multi-tenant table definition service",
	Long: `Tablesmith lets each tenant declare tables over HTTP, keeps the canonical
definition in a registry database and regenerates the tenant's Django model
module whenever a definition changes.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (env TABLESMITH_* overrides it)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tenantCmd)
	rootCmd.AddCommand(renderCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
