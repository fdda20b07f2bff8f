package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"payments/internal/app"
	"payments/internal/config"
	"payments/internal/domain"
	"payments/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	driver   string
	boltPath string
	timeout  time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Inspect payment ledgers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.driver, "driver", "", "Storage driver (postgres, bolt); defaults to STORAGE_DRIVER")
	rootCmd.PersistentFlags().StringVar(&opts.boltPath, "bolt-path", "", "Bolt database file; defaults to BOLT_PATH")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Overall command timeout")

	rootCmd.AddCommand(eventsCmd(opts))
	rootCmd.AddCommand(summaryCmd(opts))
	rootCmd.AddCommand(statementCmd(opts))

	return rootCmd
}

func eventsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "events <reference-id>",
		Short: "List the events recorded for a reference id, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd.Context(), opts, func(ctx context.Context, storage *app.Storage) error {
				events, err := storage.Events.FindByReferenceID(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), events)
				}
				return writeEvents(cmd.OutOrStdout(), events)
			})
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")

	return cmd
}

func summaryCmd(opts *rootOptions) *cobra.Command {
	var currency string

	cmd := &cobra.Command{
		Use:   "summary <reference-id>",
		Short: "Reconcile the charged and refunded totals of a reference id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd.Context(), opts, func(ctx context.Context, storage *app.Storage) error {
				events, err := storage.Events.FindByReferenceID(ctx, args[0])
				if err != nil {
					return err
				}
				summary, err := service.Reconcile(currency, events)
				if err != nil {
					return err
				}
				return writeSummary(cmd.OutOrStdout(), args[0], summary)
			})
		},
	}

	cmd.Flags().StringVarP(&currency, "currency", "c", "", "Ledger currency; defaults to the first event's")

	return cmd
}

func statementCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "statement <reference-id>",
		Short: "Print the settlement statement of a reference id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStorage(cmd.Context(), opts, func(ctx context.Context, storage *app.Storage) error {
				events, err := storage.Events.FindByReferenceID(ctx, args[0])
				if err != nil {
					return err
				}
				statement, err := service.BuildStatement(args[0], events, time.Now())
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), service.FormatStatement(statement))
				return err
			})
		},
	}
}

func withStorage(ctx context.Context, opts *rootOptions, fn func(context.Context, *app.Storage) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	cfg := config.Load()
	if opts.driver != "" {
		cfg.Storage.Driver = opts.driver
	}
	if opts.boltPath != "" {
		cfg.Storage.BoltPath = opts.boltPath
	}
	// Read-only tool: never create tables.
	cfg.Database.AutoMigrate = false

	storage, err := app.NewStorage(ctx, cfg, nil, zap.NewNop())
	if err != nil {
		return err
	}
	defer func() { _ = storage.Close() }()

	return fn(ctx, storage)
}

func writeEvents(w io.Writer, events []*domain.PaymentEvent) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPARENT\tTYPE\tSTATUS\tAMOUNT\tINSTRUMENT\tORIGINAL\tCREATED")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			e.ID, valueOrDash(e.ParentID), e.Type, e.Status, e.Amount, e.InstrumentID,
			e.OriginalInstrument, e.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func writeSummary(w io.Writer, referenceID string, s service.LedgerSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Reference:\t%s\n", referenceID)
	fmt.Fprintf(tw, "Currency:\t%s\n", valueOrDash(s.Currency))
	fmt.Fprintf(tw, "Charged:\t%s\n", s.AmountCharged.Amount())
	fmt.Fprintf(tw, "Refunded:\t%s\n", s.AmountRefunded.Amount())
	fmt.Fprintf(tw, "Net:\t%s\n", s.Net.Amount())
	fmt.Fprintf(tw, "Events:\t%d\n", s.EventCount)
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
