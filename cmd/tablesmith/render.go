package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/koustreak/tablesmith/internal/config"
	"github.com/koustreak/tablesmith/internal/logger"
)

var renderDatabase string

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print a tenant's model module from its stored definitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := cliApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		src, err := a.svc.Render(cmd.Context(), renderDatabase)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(src)
		return err
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderDatabase, "database", "d", "", "tenant database name")
	_ = renderCmd.MarkFlagRequired("database")
}

// cliApp builds an app for one-shot commands, logging to stderr so stdout
// stays machine readable.
func cliApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Log.Output = os.Stderr
	return newApp(cmd.Context(), cfg, logger.New(cfg.Log))
}
