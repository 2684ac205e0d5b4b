package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"offload/pkg/protocol"
	"offload/pkg/workpkg"
)

// newRunCmd creates the "offload run" subcommand.
func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		in     packageInput
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "run [text...]",
		Short: "Detect tasks in text and run every resulting package to completion",
		Long: "Detects delegable tasks (IMPLEMENT:, FIX_BUG:, /delegate/<kind>, ...) in the\n" +
			"given text or stdin, queues one package per task, and waits for all of them.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readTaskText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			input, err := in.input()
			if err != nil {
				return err
			}

			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.newPipeline(nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := requireHealthy(ctx, p.client); err != nil {
				return err
			}
			pkgs, err := p.factory.CreateAll(ctx, text, input)
			if err != nil {
				return err
			}
			if len(pkgs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no delegable tasks found")
				return nil
			}
			recs, err := runPackages(ctx, p, pkgs, a.log)
			if err != nil {
				return err
			}
			return reportRecords(cmd.OutOrStdout(), recs, asJSON, time.Since(pkgs[0].CreatedAt))
		},
	}

	in.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print final status records as JSON")
	return cmd
}

// newSubmitCmd creates the "offload submit" subcommand.
func newSubmitCmd(flags *rootFlags) *cobra.Command {
	var (
		in       packageInput
		taskType string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "submit <description...>",
		Short: "Run one task description as a single package",
		Long: "Creates exactly one package from the description, without trigger detection,\n" +
			"and runs it to completion. Use --type to set the task type.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description, err := readTaskText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			input, err := in.input()
			if err != nil {
				return err
			}

			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.newPipeline(nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := requireHealthy(ctx, p.client); err != nil {
				return err
			}
			pkg, err := p.factory.Create(ctx, candidate(description, taskType), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "submitted %s (%s)\n", pkg.ID, pkg.TaskType)
			recs, err := runPackages(ctx, p, []protocol.WorkPackage{pkg}, a.log)
			if err != nil {
				return err
			}
			return reportRecords(cmd.OutOrStdout(), recs, asJSON, time.Since(pkg.CreatedAt))
		},
	}

	in.register(cmd)
	cmd.Flags().StringVar(&taskType, "type", string(protocol.TaskGeneral), "task type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the final status record as JSON")
	return cmd
}

// runPackages starts the dispatcher, submits pkgs in order, and waits for
// each to reach a terminal state. Packages the queue rejects are reported
// from their status records.
func runPackages(ctx context.Context, p *pipeline, pkgs []protocol.WorkPackage, log *zap.Logger) ([]protocol.StatusRecord, error) {
	if err := p.dispatcher.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := p.dispatcher.Shutdown(sctx); err != nil {
			log.Warn("dispatcher shutdown", zap.Error(err))
		}
	}()

	refused := make(map[string]error)
	for _, pkg := range pkgs {
		if _, err := p.dispatcher.Submit(ctx, pkg); err != nil {
			log.Warn("package not queued", zap.String("package_id", pkg.ID), zap.Error(err))
			refused[pkg.ID] = err
		}
	}

	recs := make([]protocol.StatusRecord, 0, len(pkgs))
	for _, pkg := range pkgs {
		if err, ok := refused[pkg.ID]; ok {
			rec, getErr := p.status.Get(pkg.ID)
			if getErr != nil {
				rec = protocol.StatusRecord{
					PackageID: pkg.ID, TaskType: pkg.TaskType, Description: pkg.Description,
					Status: protocol.StatusError, Message: "rejected: " + err.Error(), Error: err.Error(),
				}
			}
			recs = append(recs, rec)
			continue
		}
		rec, err := p.dispatcher.Wait(ctx, pkg.ID)
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func candidate(description, taskType string) workpkg.Candidate {
	return workpkg.Candidate{TaskType: protocol.ParseTaskType(taskType), Description: description}
}

func reportRecords(w io.Writer, recs []protocol.StatusRecord, asJSON bool, elapsed time.Duration) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	s := stylesFor(w)
	for i, r := range recs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		renderRecord(w, s, r)
	}
	renderRunSummary(w, s, recs, elapsed)
	return nil
}
