// Command mailsheet logs unread Gmail messages to a Google Sheet.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/akarpov/mailsheet/internal/auth"
	"github.com/akarpov/mailsheet/internal/config"
	"github.com/akarpov/mailsheet/internal/gmail"
	"github.com/akarpov/mailsheet/internal/ingest"
	"github.com/akarpov/mailsheet/internal/sheets"
	"github.com/akarpov/mailsheet/internal/state"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mailsheet",
		Short: "Log unread Gmail messages to a Google Sheet",
		Long:  "mailsheet polls a Gmail inbox for unread mail, appends one row per message to a Google Sheet, marks the mail read, and remembers where it left off.",
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/mailsheet/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process one batch of unread mail and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger := setupLogger()

			ctx := context.Background()
			ctrl, err := newPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}

			summary, err := runOnce(ctx, ctrl, cfg, logger)
			if err != nil {
				return err
			}

			fmt.Printf("Processed %d of %d unread messages (%d already recorded).\n",
				summary.Processed, summary.Listed, summary.Skipped)
			fmt.Printf("Sheet: https://docs.google.com/spreadsheets/d/%s/edit\n", cfg.Sheet.SpreadsheetID)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run continuously, processing a batch every poll interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger := setupLogger()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.Info("shutting down...")
				cancel()
			}()

			ctrl, err := newPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}

			logger.Info("mailsheet started", "poll_interval", cfg.PollInterval())

			ticker := time.NewTicker(cfg.PollInterval())
			defer ticker.Stop()

			for {
				if _, err := runOnce(ctx, ctrl, cfg, logger); err != nil {
					logger.Error("run failed", "error", err)
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the watermark and recent run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			wm := state.NewWatermark(cfg.State.WatermarkFile)
			if last, ok := wm.Load(); ok {
				fmt.Printf("Watermark: %s\n", last.Format(time.RFC3339))
			} else {
				fmt.Println("Watermark: none (next run processes everything unread)")
			}

			history, err := state.OpenHistory(cfg.State.HistoryDB)
			if err != nil {
				return fmt.Errorf("failed to open run history: %w", err)
			}
			defer history.Close()

			runs, err := history.Recent(10)
			if err != nil {
				return fmt.Errorf("failed to read run history: %w", err)
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded yet.")
				return nil
			}

			fmt.Println("\nRecent runs:")
			for _, r := range runs {
				fmt.Printf("  %s  processed %d/%d (skipped %d) in %s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Processed, r.Listed, r.Skipped, r.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}
}

// newPipeline wires auth, the two API clients and the controller.
// Failures here are setup faults: nothing has been mutated yet.
func newPipeline(ctx context.Context, cfg *config.Config, logger *log.Logger) (*ingest.Controller, error) {
	httpClient, err := auth.Client(ctx, auth.Options{
		CredentialsFile: cfg.Google.CredentialsFile,
		TokenFile:       cfg.Google.TokenFile,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	source, err := gmail.New(ctx, httpClient, cfg.Ingest.Query, logger)
	if err != nil {
		return nil, err
	}

	sink, err := sheets.New(ctx, httpClient, cfg.Sheet.SpreadsheetID, cfg.Sheet.Name, logger)
	if err != nil {
		return nil, err
	}
	if err := sink.EnsureFormatted(ctx); err != nil {
		return nil, err
	}

	watermark := state.NewWatermark(cfg.State.WatermarkFile)

	return ingest.New(source, sink, watermark, ingest.Config{
		BatchLimit: cfg.Ingest.BatchLimit,
		ItemDelay:  cfg.ItemDelay(),
	}, logger), nil
}

func runOnce(ctx context.Context, ctrl *ingest.Controller, cfg *config.Config, logger *log.Logger) (ingest.Summary, error) {
	start := time.Now()
	summary, err := ctrl.Run(ctx)
	if err != nil {
		return summary, err
	}
	recordRun(cfg, logger, start, summary)
	return summary, nil
}

// recordRun appends the run to the history database. History is
// informational, so failures are logged and swallowed.
func recordRun(cfg *config.Config, logger *log.Logger, start time.Time, summary ingest.Summary) {
	history, err := state.OpenHistory(cfg.State.HistoryDB)
	if err != nil {
		logger.Warn("failed to open run history", "error", err)
		return
	}
	defer history.Close()

	if _, err := history.Record(state.Run{
		StartedAt:  start,
		Listed:     summary.Listed,
		Skipped:    summary.Skipped,
		Processed:  summary.Processed,
		NewestDate: summary.Newest,
		Duration:   time.Since(start),
	}); err != nil {
		logger.Warn("failed to record run", "error", err)
	}
}

func setupLogger() *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})
}
