package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"dmkit-hq/dmkit/pkg/cli"
	"dmkit-hq/dmkit/pkg/config"
)

var runFlags struct {
	listenAddress string
	productsFile  string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the dmkit server",
	Long: `Start the dmkit server with the specified configuration.

The rule set is loaded before the listener opens; a failed initial load
aborts startup. Later reloads that fail keep the previous rule set.

Examples:
  # Start with built-in defaults
  dmkit run

  # Start with a config file
  dmkit run --config /etc/dmkit/config.yaml

  # Override listen address and product index
  dmkit run --listen 0.0.0.0:8010 --products conf/dm/products.json

  # Validate config without starting the server
  dmkit run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVarP(&runFlags.productsFile, "products", "p", "", "override products index file")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.productsFile != "" {
		cfg.Policy.ProductsFile = runFlags.productsFile
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewFlagError("config", err.Error())
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration valid")
		return nil
	}

	logger.Info("Starting dmkit",
		"version", Version,
		"config", cfgFile,
		"products_file", cfg.Policy.ProductsFile,
		"watch_mode", cfg.Policy.WatchMode,
		"journal", cfg.Evidence.Enabled,
	)

	a, err := newApp(cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	if err := a.run(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	logger.Info("Server stopped")
	return nil
}
