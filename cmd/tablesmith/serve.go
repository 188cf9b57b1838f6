package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koustreak/tablesmith/internal/config"
	"github.com/koustreak/tablesmith/internal/logger"
	"github.com/koustreak/tablesmith/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log := logger.New(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, log)
		if err != nil {
			log.ErrorWith("startup failed", err, nil)
			return err
		}
		defer a.Close()

		log.InfoWith("tablesmith starting", map[string]any{
			"driver":      string(cfg.Database.Driver),
			"workspace":   string(cfg.Workspace.Backend),
			"on_mismatch": string(cfg.Policy()),
		})

		srv := server.New(cfg.Server, server.Options{
			Service:  a.svc,
			Resolver: a.resolver,
			Logger:   log,
			Metrics:  a.metrics,
			AdminKey: cfg.Auth.AdminKey,
		})
		return srv.Run(ctx)
	},
}
