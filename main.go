package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"laptop-price-tracker/api"
	"laptop-price-tracker/config"
	"laptop-price-tracker/scraper"
	"laptop-price-tracker/scraper/browser"
	"laptop-price-tracker/scraper/serpapi"
	"laptop-price-tracker/services"
	"laptop-price-tracker/storage"
	"laptop-price-tracker/utils"
)

// app carries what every subcommand needs once the root command has run.
type app struct {
	cfg    *config.Config
	logger *utils.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "pricewatch",
		Short:         "Track laptop prices across daily snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = utils.NewLogger(utils.ParseLevel(cfg.LogLevel))
			return nil
		},
	}

	root.AddCommand(
		a.runCmd(),
		a.mergeCmd(),
		a.reportCmd(),
		a.exportCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Collect a fresh snapshot and merge it into the history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			collector, err := a.collector()
			if err != nil {
				return err
			}
			return a.withStore(func(store storage.HistoryStore) error {
				a.logger.Info("=== Laptop price tracker: %s collector, %s store ===",
					a.cfg.Collector, a.cfg.StoreDriver)

				p := services.NewPipeline(collector, store, a.cfg.RawCSVPath, a.logger)
				result, err := p.Run(cmd.Context())
				a.finish(result)
				return err
			})
		},
	}
}

func (a *app) mergeCmd() *cobra.Command {
	var snapshot string
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge a saved raw snapshot CSV into the history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(store storage.HistoryStore) error {
				p := services.NewPipeline(nil, store, "", a.logger)
				result, err := p.MergeFile(cmd.Context(), snapshot)
				a.finish(result)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "raw snapshot CSV to merge")
	_ = cmd.MarkFlagRequired("snapshot")
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print price insights over the stored history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(store storage.HistoryStore) error {
				rows, err := store.ReadAll(cmd.Context())
				if err != nil {
					return err
				}
				insights := services.NewInsightService(a.logger)
				report := insights.Generate(rows)
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}
				insights.Print(report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the stored history to an xlsx workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				out = a.cfg.ExportPath
			}
			return a.withStore(func(store storage.HistoryStore) error {
				rows, err := store.ReadAll(cmd.Context())
				if err != nil {
					return err
				}
				if err := storage.ExportXLSX(out, rows); err != nil {
					return err
				}
				a.logger.Info("Exported %d observations to %s", len(rows), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "workbook path (defaults to EXPORT_PATH)")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stored history over a read-only JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			return a.withStore(func(store storage.HistoryStore) error {
				return api.Serve(cmd.Context(), addr, store, a.logger)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to HTTP_ADDR)")
	return cmd
}

func (a *app) withStore(fn func(storage.HistoryStore) error) error {
	store, err := storage.Open(storage.Options{
		Driver: a.cfg.StoreDriver,
		DSN:    a.cfg.StoreDSN(),
	}, a.logger)
	if err != nil {
		a.logger.Error("Failed to open %s store: %v", a.cfg.StoreDriver, err)
		return err
	}
	defer store.Close()
	return fn(store)
}

func (a *app) collector() (scraper.Collector, error) {
	switch strings.ToLower(a.cfg.Collector) {
	case "serpapi", "":
		return serpapi.New(serpapi.Options{
			BaseURL:        a.cfg.SerpAPIURL,
			APIKey:         a.cfg.SerpAPIKey,
			Query:          a.cfg.SearchQuery,
			MaxPages:       a.cfg.MaxPages,
			MaxConcurrency: a.cfg.MaxConcurrency,
			RateLimitMs:    a.cfg.RateLimitMs,
			MaxRetries:     a.cfg.MaxRetries,
		}, a.logger), nil
	case "browser":
		return browser.New(browser.Options{
			ChromeBin:   a.cfg.ChromeBin,
			Query:       a.cfg.SearchQuery,
			MaxPages:    a.cfg.MaxPages,
			RateLimitMs: a.cfg.RateLimitMs,
			MaxRetries:  a.cfg.MaxRetries,
		}, a.logger), nil
	default:
		return nil, fmt.Errorf("unknown collector %q", a.cfg.Collector)
	}
}

// finish prints whatever the pipeline produced, even after a failed merge.
func (a *app) finish(result *services.RunResult) {
	if result == nil {
		return
	}
	for _, d := range result.CleanDropped {
		a.logger.Warn("Dropped raw listing %d: %s", d.Index, d.Reason)
	}
	if m := result.Merge; m != nil {
		for _, d := range m.Dropped {
			a.logger.Warn("Dropped row %d (%s): %s", d.Index, d.ProductKey, d.Reason)
		}
		a.logger.Info("Run %s: %d accepted, %d rows written for %d products in %v",
			m.RunID, m.Accepted, m.Written, m.Products, m.Duration)
	}
	if result.Insights != nil {
		services.NewInsightService(a.logger).Print(result.Insights)
	}
}
