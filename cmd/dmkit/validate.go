package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"dmkit-hq/dmkit/pkg/cli"
	"dmkit-hq/dmkit/pkg/policy/manager"
)

var validateFlags struct {
	productsFile string
	strict       bool
	format       string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a product index and its domain files",
	Long: `Load the product index and every domain configuration it names without
starting a server. Invalid policies are reported as warnings; with --strict
any invalid policy fails the whole load, as it would in a strict server.

Exit status is 0 when the rule set would load and 1 when it would not.

Examples:
  dmkit validate --products conf/dm/products.json
  dmkit validate --strict --format json`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.productsFile, "products", "p", "", "products index file (default from config)")
	validateCmd.Flags().BoolVar(&validateFlags.strict, "strict", false, "fail on any invalid domain or policy")
	validateCmd.Flags().StringVarP(&validateFlags.format, "format", "f", "text", "output format (text, json)")
}

// validateResult is the printed outcome of a validate run.
type validateResult struct {
	ProductsFile string   `json:"products_file"`
	Valid        bool     `json:"valid"`
	Error        string   `json:"error,omitempty"`
	Products     int      `json:"products"`
	Domains      int      `json:"domains"`
	Policies     int      `json:"policies"`
	Skipped      int      `json:"skipped"`
	Warnings     []string `json:"warnings,omitempty"`
}

func (r *validateResult) RenderText(w io.Writer) error {
	tw := cli.NewTable(w)
	fmt.Fprintf(tw, "Products file:\t%s\n", r.ProductsFile)
	fmt.Fprintf(tw, "Products:\t%d\n", r.Products)
	fmt.Fprintf(tw, "Domains:\t%d\n", r.Domains)
	fmt.Fprintf(tw, "Policies:\t%d\n", r.Policies)
	fmt.Fprintf(tw, "Skipped:\t%d\n", r.Skipped)
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	if !r.Valid {
		_, err := fmt.Fprintf(w, "INVALID: %s\n", r.Error)
		return err
	}
	_, err := fmt.Fprintln(w, "OK")
	return err
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(validateFlags.format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	mcfg := &manager.Config{
		ProductsFile: cfg.Policy.ProductsFile,
		Strict:       cfg.Policy.Strict || validateFlags.strict,
		MaxFileSize:  cfg.Policy.MaxFileSize,
	}
	if validateFlags.productsFile != "" {
		mcfg.ProductsFile = validateFlags.productsFile
	}

	result, verr := validateProducts(mcfg, logger)
	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if verr != nil {
		return cli.NewCommandError("validate", verr)
	}
	return nil
}

func validateProducts(mcfg *manager.Config, logger *slog.Logger) (*validateResult, error) {
	result := &validateResult{ProductsFile: mcfg.ProductsFile}

	m, err := manager.New(mcfg, nil, logger)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	report, err := m.Validate()
	if report != nil {
		result.Products = report.Products
		result.Domains = report.Domains
		result.Policies = report.Policies
		result.Skipped = report.Skipped
		result.Warnings = report.Warnings
	}
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	result.Valid = true
	return result, nil
}
