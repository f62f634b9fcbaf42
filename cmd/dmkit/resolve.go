package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"dmkit-hq/dmkit/pkg/cli"
	"dmkit-hq/dmkit/pkg/config"
	"dmkit-hq/dmkit/pkg/functions"
	"dmkit-hq/dmkit/pkg/policy/engine"
	"dmkit-hq/dmkit/pkg/policy/manager"
	"dmkit-hq/dmkit/pkg/remote"
	"dmkit-hq/dmkit/pkg/server"
)

var resolveFlags struct {
	request      string
	productsFile string
	compact      bool
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve one request without starting a server",
	Long: `Resolve a single request body, in the same JSON shape the server accepts,
against the configured rule set and print the response.

Examples:
  dmkit resolve --request turn.json
  cat turn.json | dmkit resolve --request -`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVarP(&resolveFlags.request, "request", "r", "-", "request JSON file, - for stdin")
	resolveCmd.Flags().StringVarP(&resolveFlags.productsFile, "products", "p", "", "products index file (default from config)")
	resolveCmd.Flags().BoolVar(&resolveFlags.compact, "compact", false, "print the response on one line")
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if resolveFlags.productsFile != "" {
		cfg.Policy.ProductsFile = resolveFlags.productsFile
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	req, err := readRequest(cmd.InOrStdin(), resolveFlags.request)
	if err != nil {
		return err
	}

	handler, err := newOfflineResolver(cfg, logger)
	if err != nil {
		return cli.NewCommandError("resolve", err)
	}
	resp := handler.Handle(cmd.Context(), req)

	return (&cli.JSONFormatter{Indent: !resolveFlags.compact}).FormatTo(cmd.OutOrStdout(), resp)
}

func readRequest(stdin io.Reader, path string) (*server.ResolveRequest, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, cli.NewFlagError("request", err.Error())
		}
		defer f.Close()
		r = f
	}

	var req server.ResolveRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, cli.NewFlagError("request", fmt.Sprintf("invalid request body: %v", err))
	}
	return &req, nil
}

// newOfflineResolver builds a resolve handler over a one-shot rule set
// load. Nothing is watched and no turns are journaled.
func newOfflineResolver(cfg *config.Config, logger *slog.Logger) (*server.ResolveHandler, error) {
	policies, err := manager.New(&manager.Config{
		ProductsFile: cfg.Policy.ProductsFile,
		Strict:       cfg.Policy.Strict,
		MaxFileSize:  cfg.Policy.MaxFileSize,
	}, nil, logger)
	if err != nil {
		return nil, err
	}
	if err := policies.Start(); err != nil {
		return nil, err
	}

	fns := functions.NewRegistry(logger)
	functions.RegisterBuiltins(fns)
	if cfg.Policy.DemoFunctions {
		functions.RegisterDemo(fns)
	}

	eng, err := engine.New(policies.Store(), fns, &engine.Config{NotInFailOpen: cfg.Policy.NotInFailOpen}, logger)
	if err != nil {
		return nil, err
	}

	opts := server.Options{Resolver: eng}
	if cfg.Remote.ServicesFile != "" {
		services := remote.NewServiceManager(nil, logger)
		if err := services.LoadFile(cfg.Remote.ServicesFile); err != nil {
			return nil, err
		}
		opts.Remote = services
	}
	return server.NewResolveHandler(opts, cfg.Server.MaxBodyBytes, logger), nil
}
