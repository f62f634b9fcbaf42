package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"dmkit-hq/dmkit/pkg/cli"
	"dmkit-hq/dmkit/pkg/config"
	"dmkit-hq/dmkit/pkg/evidence"
	"dmkit-hq/dmkit/pkg/evidence/export"
	"dmkit-hq/dmkit/pkg/evidence/query"
	"dmkit-hq/dmkit/pkg/evidence/retention"
	"dmkit-hq/dmkit/pkg/evidence/storage"
)

var journalFlags struct {
	since   time.Duration
	until   string
	logID   string
	product string
	domain  string
	outcome string
	limit   int
	offset  int
	order   string
	format  string
	count   bool

	days       int
	maxRecords int64
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the turn journal",
	Long: `Query and prune the turn journal configured under evidence in the
config file. The journal does not need to be enabled for the server to
inspect an existing database.`,
}

var journalQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query recorded turns",
	Long: `Query recorded turns, newest first.

Examples:
  # Turns in the last hour that matched no policy
  dmkit journal query --since 1h --outcome no_policy

  # Every turn of one request chain as JSON lines
  dmkit journal query --log-id dmkit_abc --format jsonl

  # Count turns per product
  dmkit journal query --product default --count`,
	RunE: runJournalQuery,
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete turns past the retention limits",
	Long: `Run one retention pass immediately. --days and --max-records override
the configured limits.`,
	RunE: runJournalPrune,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalQueryCmd, journalPruneCmd)

	f := journalQueryCmd.Flags()
	f.DurationVar(&journalFlags.since, "since", 0, "only turns recorded within this duration")
	f.StringVar(&journalFlags.until, "until", "", "only turns recorded at or before this RFC3339 time")
	f.StringVar(&journalFlags.logID, "log-id", "", "filter by log id")
	f.StringVar(&journalFlags.product, "product", "", "filter by product")
	f.StringVar(&journalFlags.domain, "domain", "", "filter by domain")
	f.StringVar(&journalFlags.outcome, "outcome", "", "filter by outcome (resolved, no_policy, unknown_product, not_loaded)")
	f.IntVar(&journalFlags.limit, "limit", query.DefaultLimit, "maximum number of turns")
	f.IntVar(&journalFlags.offset, "offset", 0, "number of turns to skip")
	f.StringVar(&journalFlags.order, "order", "desc", "sort order by record time (asc, desc)")
	f.StringVarP(&journalFlags.format, "format", "f", "text", "output format (text, json, jsonl)")
	f.BoolVar(&journalFlags.count, "count", false, "print only the number of matching turns")

	p := journalPruneCmd.Flags()
	p.IntVar(&journalFlags.days, "days", -1, "retention in days (default from config)")
	p.Int64Var(&journalFlags.maxRecords, "max-records", -1, "maximum journal size (default from config)")
}

func buildJournalQuery(now time.Time) (*evidence.Query, error) {
	q := &evidence.Query{
		LogID:     journalFlags.logID,
		Product:   journalFlags.product,
		Domain:    journalFlags.domain,
		Outcome:   journalFlags.outcome,
		Limit:     journalFlags.limit,
		Offset:    journalFlags.offset,
		SortOrder: journalFlags.order,
	}
	if journalFlags.since < 0 {
		return nil, cli.NewFlagError("since", "duration must not be negative")
	}
	if journalFlags.since > 0 {
		start := now.Add(-journalFlags.since)
		q.StartTime = &start
	}
	if journalFlags.until != "" {
		end, err := time.Parse(time.RFC3339, journalFlags.until)
		if err != nil {
			return nil, cli.NewFlagError("until", err.Error())
		}
		q.EndTime = &end
	}
	if err := query.Validate(q); err != nil {
		return nil, cli.NewFlagError("query", err.Error())
	}
	query.ApplyDefaults(q)
	return q, nil
}

func openJournal() (evidence.Storage, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(cfg.Evidence, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func runJournalQuery(cmd *cobra.Command, args []string) error {
	switch journalFlags.format {
	case "text", "json", "jsonl":
	default:
		return cli.NewFlagError("format", fmt.Sprintf("unknown format %q: must be 'text', 'json' or 'jsonl'", journalFlags.format))
	}
	q, err := buildJournalQuery(time.Now())
	if err != nil {
		return err
	}

	store, _, err := openJournal()
	if err != nil {
		return cli.NewCommandError("journal query", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if journalFlags.count {
		n, err := store.Count(ctx, q)
		if err != nil {
			return cli.NewCommandError("journal query", err)
		}
		_, err = fmt.Fprintln(out, n)
		return err
	}

	records, err := store.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("journal query", err)
	}
	return writeRecords(ctx, out, journalFlags.format, records)
}

func writeRecords(ctx context.Context, w io.Writer, format string, records []*evidence.TurnRecord) error {
	switch format {
	case "json":
		return export.NewJSONExporter(true).Export(ctx, records, w)
	case "jsonl":
		return (&export.JSONExporter{Lines: true}).Export(ctx, records, w)
	}

	tw := cli.NewTable(w)
	fmt.Fprintln(tw, "RECORDED\tLOG ID\tPRODUCT\tDOMAIN\tINTENT\tOUTCOME\tDURATION")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RecordedAt.Format(time.RFC3339), r.LogID, r.Product,
			dash(r.Domain), dash(r.Intent), r.Outcome, r.Duration)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runJournalPrune(cmd *cobra.Command, args []string) error {
	store, cfg, err := openJournal()
	if err != nil {
		return cli.NewCommandError("journal prune", err)
	}
	defer store.Close()

	rcfg := retention.FromConfig(cfg.Evidence.Retention)
	if journalFlags.days >= 0 {
		rcfg.RetentionDays = journalFlags.days
	}
	if journalFlags.maxRecords >= 0 {
		rcfg.MaxRecords = journalFlags.maxRecords
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	deleted, err := retention.NewPruner(store, rcfg, logger).Prune(cmd.Context())
	if err != nil {
		return cli.NewCommandError("journal prune", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d turns\n", deleted)
	return err
}
