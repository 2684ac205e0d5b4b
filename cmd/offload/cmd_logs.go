package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"offload/pkg/eventlog"
)

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	tail      int
	follow    bool
	eventType string
}

// eventQuerier is the read side of the event log.
type eventQuerier interface {
	Query(ctx context.Context, opts eventlog.QueryOpts) ([]eventlog.Event, error)
}

// newLogsCmd creates the "offload logs" subcommand.
func newLogsCmd(flags *rootFlags) *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs [package-id]",
		Short: "Query and tail pipeline event logs",
		Long:  "Displays events from the pipeline event log.\nOptionally filter by package id or event type and follow new events.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var packageID string
			if len(args) == 1 {
				packageID = args[0]
			}

			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			reader, err := eventlog.NewReader(a.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer reader.Close()

			opts := eventlog.QueryOpts{PackageID: packageID, EventType: cfg.eventType, Limit: cfg.tail}
			w := cmd.OutOrStdout()
			if cfg.follow {
				return followLogs(cmd.Context(), reader, w, opts, time.Second)
			}
			return printLogs(cmd.Context(), reader, w, opts)
		},
	}

	cmd.Flags().IntVar(&cfg.tail, "tail", 20, "number of recent events to show")
	cmd.Flags().BoolVarP(&cfg.follow, "follow", "f", false, "poll for new events every 1s")
	cmd.Flags().StringVar(&cfg.eventType, "type", "", "only show events of this type (submitted, claimed, failed, ...)")

	return cmd
}

// printLogs displays the last N events, oldest first.
func printLogs(ctx context.Context, q eventQuerier, w io.Writer, opts eventlog.QueryOpts) error {
	events, err := q.Query(ctx, opts)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "no events found")
		return nil
	}
	for i := len(events) - 1; i >= 0; i-- {
		formatEvent(w, events[i])
	}
	return nil
}

// followLogs prints the initial batch, then polls for events with a higher
// id than the last one shown.
func followLogs(ctx context.Context, q eventQuerier, w io.Writer, opts eventlog.QueryOpts, interval time.Duration) error {
	events, err := q.Query(ctx, opts)
	if err != nil {
		return err
	}
	var lastID int64
	for i := len(events) - 1; i >= 0; i-- {
		formatEvent(w, events[i])
		lastID = events[i].ID
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	poll := opts
	poll.Limit = 100
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			batch, err := q.Query(ctx, poll)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			for i := len(batch) - 1; i >= 0; i-- {
				if batch[i].ID <= lastID {
					continue
				}
				formatEvent(w, batch[i])
				lastID = batch[i].ID
			}
		}
	}
}

// formatEvent writes one event line.
func formatEvent(w io.Writer, e eventlog.Event) {
	ts := e.CreatedAt.Local().Format(time.DateTime)
	line := fmt.Sprintf("%s  %-10s %-8s", ts, e.Type, shortID(e.PackageID))
	if e.Payload != "" {
		line += "  " + e.Payload
	}
	fmt.Fprintln(w, line)
}
