package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/deltaclient"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/logger"
)

type watchFlags struct {
	url      string
	interval time.Duration
	cursor   int64
	sinceNow bool
	limit    int
	username string
	password string
}

func newWatchCmd() *cobra.Command {
	var flags watchFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll a running server for changes and print them as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.url, "url", "http://localhost:9000", "Base URL of the catalog server")
	cmd.Flags().DurationVar(&flags.interval, "interval", 5*time.Second, "Polling interval")
	cmd.Flags().Int64Var(&flags.cursor, "cursor", 0, "Audit sequence to resume after")
	cmd.Flags().BoolVar(&flags.sinceNow, "since-now", false, "Poll by timestamp starting now instead of by sequence")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "Page size for sequence polls (server default when 0)")
	cmd.Flags().StringVar(&flags.username, "user", "", "Basic auth username")
	cmd.Flags().StringVar(&flags.password, "password", "", "Basic auth password")

	return cmd
}

func runWatch(cmd *cobra.Command, flags watchFlags) error {
	log, err := logger.New("warn")
	if err != nil {
		return err
	}

	var opts []deltaclient.Option
	if flags.username != "" {
		opts = append(opts, deltaclient.WithBasicAuth(flags.username, flags.password))
	}
	client := deltaclient.New(flags.url, opts...)

	cursor := flags.cursor
	if flags.sinceNow {
		cursor = -1
	}

	out := cmd.OutOrStdout()
	w := deltaclient.NewWatcher(client, deltaclient.WatcherConfig{
		Interval: flags.interval,
		Cursor:   cursor,
		Limit:    flags.limit,
	}, func(b deltaclient.Batch) {
		if err := printBatch(out, b); err != nil {
			log.Error("watch: failed to print batch", zap.Error(err))
		}
	}, log)

	if err := w.Run(cmd.Context()); err != nil {
		return fmt.Errorf("watching changes: %w", err)
	}
	if !flags.sinceNow {
		fmt.Fprintf(cmd.ErrOrStderr(), "stopped at cursor %d\n", w.Cursor())
	}
	return nil
}

func printBatch(out io.Writer, b deltaclient.Batch) error {
	enc := json.NewEncoder(out)
	for _, p := range b.Products {
		if err := enc.Encode(map[string]interface{}{"kind": "product", "change": p}); err != nil {
			return err
		}
	}
	for _, o := range b.Orders {
		if err := enc.Encode(map[string]interface{}{"kind": "order", "change": o}); err != nil {
			return err
		}
	}
	for _, a := range b.Audit {
		if err := enc.Encode(map[string]interface{}{"kind": "audit", "change": a}); err != nil {
			return err
		}
	}
	return nil
}
