package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/netchat-io/netchat-server/internal/app"
	"github.com/netchat-io/netchat-server/internal/config"
	"github.com/netchat-io/netchat-server/internal/log"
)

func main() {
	var (
		configPath string
		addr       string
		httpAddr   string
		logLevel   string
	)

	rootCmd := &cobra.Command{
		Use:   "netchat-server",
		Short: "TCP chat relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := log.New(logLevel)

			cfg, path, err := config.Load(logger, configPath)
			if err != nil {
				return err
			}

			// Flags beat the config file and environment.
			var overrides config.Config
			if cmd.Flags().Changed("addr") {
				overrides.Addr = addr
			}
			if cmd.Flags().Changed("http-addr") {
				overrides.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("log-level") {
				overrides.LogLevel = logLevel
			}
			cfg.UpdateFrom(overrides)

			logger = log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Msg("configuration loaded")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application := app.New(cfg, logger)
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "TCP listen address")
	rootCmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
