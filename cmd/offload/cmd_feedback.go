package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"offload/pkg/feedback"
	"offload/pkg/protocol"
)

// newFeedbackCmd creates the "offload feedback" command group.
func newFeedbackCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record reviewer decisions and report model performance",
	}
	cmd.AddCommand(newFeedbackReportCmd(flags), newFeedbackRecordCmd(flags), newFeedbackListCmd(flags))
	return cmd
}

func newFeedbackReportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the markdown performance report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			fb, err := a.feedbackStore()
			if err != nil {
				return err
			}
			report, err := fb.Report(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

// feedbackRecordConfig holds flags for feedback record.
type feedbackRecordConfig struct {
	decision string
	improved string
}

func newFeedbackRecordCmd(flags *rootFlags) *cobra.Command {
	var cfg feedbackRecordConfig

	cmd := &cobra.Command{
		Use:   "record <package-id>",
		Short: "Record a reviewer decision for a finished package",
		Long: "Records whether the reviewer kept the package's artifact. With --improved,\n" +
			"the corrected file is compared with the artifact and the observed\n" +
			"improvements are stored to steer future prompts.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision := strings.ToLower(cfg.decision)
			if decision != protocol.DecisionApproved && decision != protocol.DecisionRejected {
				return fmt.Errorf("--decision must be %q or %q", protocol.DecisionApproved, protocol.DecisionRejected)
			}

			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.statusStore()
			if err != nil {
				return err
			}
			rec, err := status.Get(args[0])
			if err != nil {
				return err
			}
			if rec.Model == "" {
				return fmt.Errorf("package %s has no model recorded", rec.PackageID)
			}

			var improvements []string
			if cfg.improved != "" {
				improvements, err = compareArtifact(rec.ArtifactPath, cfg.improved)
				if err != nil {
					return err
				}
			}

			fb, err := a.feedbackStore()
			if err != nil {
				return err
			}
			id, err := fb.Record(cmd.Context(), protocol.FeedbackEntry{
				PackageID:    rec.PackageID,
				TaskType:     rec.TaskType,
				Model:        rec.Model,
				Decision:     decision,
				Improvements: improvements,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "recorded feedback #%d: %s %s for %s\n", id, rec.Model, decision, rec.TaskType)
			for _, imp := range improvements {
				fmt.Fprintf(w, "  - %s\n", imp)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.decision, "decision", protocol.DecisionApproved, "approved or rejected")
	cmd.Flags().StringVar(&cfg.improved, "improved", "", "path to the reviewer's corrected version of the artifact")
	return cmd
}

func compareArtifact(artifactPath, improvedPath string) ([]string, error) {
	if artifactPath == "" {
		return nil, fmt.Errorf("package has no artifact to compare against")
	}
	//nolint:gosec // artifact path comes from our own status record
	original, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	//nolint:gosec // user-supplied path is the point of the flag
	improved, err := os.ReadFile(improvedPath)
	if err != nil {
		return nil, fmt.Errorf("read improved file: %w", err)
	}
	return feedback.AnalyzeImprovements(string(original), string(improved)), nil
}

func newFeedbackListCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent feedback entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			fb, err := a.feedbackStore()
			if err != nil {
				return err
			}
			entries, err := fb.Entries(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "no feedback recorded")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(w, "#%-4d %s  %-9s %-24s %-20s %s\n",
					e.ID, e.CreatedAt.Local().Format(time.DateTime), e.Decision, e.TaskType, e.Model, shortID(e.PackageID))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
