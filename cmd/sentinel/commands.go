package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/agi-sentinel/internal/audit"
	"github.com/raaihank/agi-sentinel/internal/bulk"
	"github.com/raaihank/agi-sentinel/internal/config"
	"github.com/raaihank/agi-sentinel/internal/report"
	"github.com/raaihank/agi-sentinel/internal/sentinel"
)

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "sentinel",
		Short:         "Data loss prevention shield for AI systems",
		Long:          "Sentinel scans text for personal data, secrets and prompt injection and replaces every finding with a redaction placeholder.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Flags().Changed("workers"))
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "Path to configuration file")
	pf.IntVar(&a.flags.workers, "workers", 4, "Parallel workers (capped at 16)")
	pf.StringVar(&a.flags.policy, "policy", "", "Overlap policy: exact, longest, or merge")
	pf.StringVar(&a.flags.reportPath, "report", "", "Export an engine report to this file on exit")
	pf.Lookup("report").NoOptDefVal = "sentinel_report.json"
	pf.StringVar(&a.flags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	root.AddCommand(
		newScanCmd(a),
		newFileCmd(a),
		newWatchCmd(a),
		newRulesCmd(a),
		newIncidentsCmd(a),
		newStatsCmd(a),
		newSelftestCmd(a),
		newVersionCmd(a),
	)
	return root
}

type scanFlags struct {
	text    string
	verbose bool
	export  string
	diff    bool
	json    bool
}

func newScanCmd(a *app) *cobra.Command {
	var flags scanFlags
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a single text from --text or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), a, flags, cmd.Flags().Changed("text"))
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.text, "text", "t", "", "Text to scan (reads stdin when omitted)")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "Print a summary and the incident table")
	f.StringVar(&flags.export, "export", "", "Export the scan summary as JSON to this file")
	f.BoolVar(&flags.diff, "diff", false, "Print an inline diff of original and processed text")
	f.BoolVar(&flags.json, "json", false, "Print the scan summary as JSON instead of the processed text")
	return cmd
}

func runScan(ctx context.Context, a *app, flags scanFlags, textSet bool) error {
	text := flags.text
	if !textSet {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return codeError(2, "failed to read stdin: %s", err)
		}
		text = strings.TrimRight(string(data), "\r\n")
	}
	if text == "" {
		return codeError(2, "no input text provided (use --text or pipe text on stdin)")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	result, err := a.engine.ScanContext(ctx, text)
	if err != nil {
		return codeError(1, "scan failed: %s", err)
	}
	summary := report.Summarize(result)
	a.log.WithComponent("cli").WithScanID(result.Metadata.ScanID).Debug("Scan finished",
		zap.String("status", string(result.Status)),
		zap.Int("incidents", len(result.Incidents)))

	if flags.json {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, string(data))
	} else {
		fmt.Fprintln(a.stdout, result.ProcessedText)
	}

	if flags.verbose {
		fmt.Fprintf(a.stdout, "\n[*] Scanned %s\n", plural(summary.OriginalLength, "character"))
		fmt.Fprintf(a.stdout, "[+] Status: %s (%s)\n", result.Status, plural(len(result.Incidents), "threat"))
		if len(result.Incidents) > 0 {
			report.RenderIncidents(a.stdout, result.Incidents)
		}
		report.RenderStatistics(a.stdout, a.engine.Statistics())
	}

	if flags.diff {
		fmt.Fprintln(a.stdout, report.Diff(result.OriginalText, result.ProcessedText))
	}

	if flags.export != "" {
		if err := report.Export(flags.export, summary); err != nil {
			return codeError(1, "%s", err)
		}
		fmt.Fprintf(a.stdout, "[+] Results exported to: %s\n", flags.export)
	}

	if result.Status == sentinel.StatusError {
		return codeError(1, "scan error: %s", result.Metadata.Error)
	}
	return nil
}

type fileFlags struct {
	cols   []string
	output string
}

func newFileCmd(a *app) *cobra.Command {
	var flags fileFlags
	cmd := &cobra.Command{
		Use:     "csv <file>",
		Aliases: []string{"file"},
		Short:   "Scan a CSV, JSON lines or Parquet file and write a shielded copy",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(cmd.Context(), a, args[0], flags)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&flags.cols, "cols", nil, "Columns to scan (default: all)")
	f.StringVarP(&flags.output, "output", "o", "", "Output file (default: <name>_shielded.<ext>)")
	return cmd
}

func runFile(ctx context.Context, a *app, path string, flags fileFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pipeline := bulk.NewPipeline(a.engine, a.cfg.Bulk, a.log.Logger)

	result, err := pipeline.ProcessFileTo(ctx, path, flags.output, flags.cols)
	if err != nil {
		return codeError(1, "bulk scan failed: %s", err)
	}

	printBulkResult(a.stdout, result)
	return nil
}

func printBulkResult(w io.Writer, result *bulk.Result) {
	fmt.Fprintf(w, "[+] Scan completed: %s\n", result.InputFile)
	fmt.Fprintf(w, "[+] Output file: %s\n", result.OutputFile)
	fmt.Fprintf(w, "[+] Rows processed: %d (skipped %d)\n", result.RowsProcessed, result.RowsSkipped)
	fmt.Fprintf(w, "[+] Columns shielded: %s\n", strings.Join(result.ColumnsShielded, ", "))
	fmt.Fprintf(w, "[+] Total incidents: %d\n", result.TotalIncidents)
}

func newWatchCmd(a *app) *cobra.Command {
	var cols []string
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch an inbox directory and shield every file dropped into it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, a, args[0], cols)
		},
	}
	cmd.Flags().StringSliceVar(&cols, "cols", nil, "Columns to scan (default: all)")
	return cmd
}

func runWatch(ctx context.Context, a *app, dir string, cols []string) error {
	scanner := newSwappableScanner(a.engine)
	pipeline := bulk.NewPipeline(scanner, a.cfg.Bulk, a.log.Logger)

	a.loader.Watch(func(next *config.Config) {
		onReload(a, scanner, next)
	})

	watcher := bulk.NewWatcher(pipeline, dir, cols, a.log.Logger)
	watcher.OnResult = func(result *bulk.Result, err error) {
		if err == nil {
			printBulkResult(a.stdout, result)
		}
	}

	fmt.Fprintf(a.stdout, "[*] Watching %s (Ctrl+C to stop)\n", dir)
	if err := watcher.Run(ctx); err != nil {
		return codeError(1, "%s", err)
	}
	return nil
}

// onReload rebuilds the engine from a changed configuration and hands it to
// the running pipeline
func onReload(a *app, scanner *swappableScanner, next *config.Config) {
	engine, err := a.reload(next)
	if err != nil {
		a.log.Warn("Ignoring configuration change", zap.Error(err))
		return
	}
	scanner.Swap(engine)
	a.log.Info("Rules reloaded",
		zap.Int("rules_loaded", engine.Rules().Len()),
		zap.String("overlap_policy", string(engine.Policy())))
}

func newRulesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the loaded detection rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report.RenderRules(a.stdout, a.engine.Rules())
			fmt.Fprintf(a.stdout, "%s loaded, overlap policy %s\n", plural(a.engine.Rules().Len(), "rule"), a.engine.Policy())
			return nil
		},
	}
}

func newIncidentsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "List recent incidents from the Postgres audit store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Audit.Postgres.Enabled {
				return codeError(2, "postgres audit store is not enabled")
			}
			store, err := audit.NewPostgresSink(a.cfg.Audit.Postgres, a.log.Logger)
			if err != nil {
				return codeError(3, "%s", err)
			}
			defer store.Close()

			records, err := store.RecentIncidents(context.Background(), limit)
			if err != nil {
				return codeError(1, "%s", err)
			}
			data, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, string(data))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of incidents")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-status scan counters from the Redis audit store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Audit.Redis.Enabled {
				return codeError(2, "redis audit store is not enabled")
			}
			store, err := audit.NewRedisSink(a.cfg.Audit.Redis, a.log.Logger)
			if err != nil {
				return codeError(3, "%s", err)
			}
			defer store.Close()

			counts, err := store.Counts(context.Background())
			if err != nil {
				return codeError(1, "%s", err)
			}

			var total int64
			for _, n := range counts {
				total += n
			}
			report.RenderCounts(a.stdout, counts)
			fmt.Fprintf(a.stdout, "%s recorded\n", plural(int(total), "scan"))
			return nil
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// no configuration is needed to print the version
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.stdout, "AGI-Sentinel %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}
