package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Guizzs26/go-imei-sync/internal/config"
	"github.com/Guizzs26/go-imei-sync/internal/models"
	"github.com/Guizzs26/go-imei-sync/pkg/infra"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "imeisync",
	Short: "Reconcile partner IMEI spreadsheets against the activation table",
	Long: `imeisync reads partner workbooks (from disk or from a mailbox), removes
duplicate identifiers, normalises their dates and merges them into the
reconciliation table: new identifiers are inserted, changed or inactive ones
updated, and identifiers missing from the latest batch deactivated.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if lvl, _ := cmd.Flags().GetString("loglevel"); lvl != "" {
			cfg.LogLevel = lvl
		}
		logger = infra.SetupLogger(cfg)
		slog.SetDefault(logger)
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		infra.CloseLogger()
	},
}

// Execute runs the CLI with a context canceled on SIGINT/SIGTERM
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("loglevel", "l", "", "Override LOG_LEVEL. Available: DEBUG, INFO, WARN, ERROR")
}

// printProgress echoes pipeline events until ch is closed
func printProgress(ch <-chan models.ProgressEvent, done chan<- struct{}) {
	defer close(done)
	for ev := range ch {
		if ev.Total > 0 {
			fmt.Printf("[%s] %3.0f%% %s\n", ev.Level, ev.Fraction()*100, ev.Message)
			continue
		}
		fmt.Printf("[%s] %s\n", ev.Level, ev.Message)
	}
}

// withProgress runs fn with a progress channel drained to stdout
func withProgress(fn func(chan<- models.ProgressEvent) error) error {
	ch := make(chan models.ProgressEvent, 64)
	done := make(chan struct{})
	go printProgress(ch, done)
	err := fn(ch)
	close(ch)
	<-done
	return err
}
