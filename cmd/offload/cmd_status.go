package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"offload/pkg/protocol"
	"offload/pkg/statusstore"
)

// statusConfig holds flags for the status command.
type statusConfig struct {
	all    bool
	asJSON bool
	watch  bool
}

// newStatusCmd creates the "offload status" subcommand.
func newStatusCmd(flags *rootFlags) *cobra.Command {
	var cfg statusConfig

	cmd := &cobra.Command{
		Use:   "status [package-id]",
		Short: "Show package status records",
		Long: "With a package id, shows that package's status record. Without one, lists\n" +
			"the packages that are queued or processing (--all lists every package).",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.statusStore()
			if err != nil {
				return err
			}
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			w := cmd.OutOrStdout()
			if !cfg.watch {
				return printStatus(w, store, id, cfg)
			}
			return watchStatus(cmd.Context(), w, store, id, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.all, "all", false, "list finished packages too")
	cmd.Flags().BoolVar(&cfg.asJSON, "json", false, "print records as JSON")
	cmd.Flags().BoolVarP(&cfg.watch, "watch", "w", false, "re-render whenever a status record changes")
	return cmd
}

func printStatus(w io.Writer, store *statusstore.Store, id string, cfg statusConfig) error {
	if id != "" {
		rec, err := store.Get(id)
		if err != nil {
			return err
		}
		if cfg.asJSON {
			return writeJSON(w, rec)
		}
		renderRecord(w, stylesFor(w), rec)
		return nil
	}

	var (
		recs []protocol.StatusRecord
		err  error
	)
	if cfg.all {
		recs, err = store.List()
	} else {
		recs, err = store.Active()
	}
	if err != nil {
		return err
	}
	if cfg.asJSON {
		if recs == nil {
			recs = []protocol.StatusRecord{}
		}
		return writeJSON(w, recs)
	}
	renderTable(w, stylesFor(w), recs)
	return nil
}

// watchStatus prints the status once, then again after every change in
// the status directory, until ctx is cancelled or a watched package
// reaches a terminal state.
func watchStatus(ctx context.Context, w io.Writer, store *statusstore.Store, id string, cfg statusConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes, err := store.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		if err := printStatus(w, store, id, cfg); err != nil {
			return err
		}
		if id != "" {
			if rec, err := store.Get(id); err == nil && rec.Status.Terminal() {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			fmt.Fprintln(w)
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
