package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"offload/pkg/modelselect"
	"offload/pkg/protocol"
)

// newModelsCmd creates the "offload models" subcommand.
func newModelsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Check the generation service and show the model chosen per task type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			client := a.client()
			w := cmd.OutOrStdout()
			s := stylesFor(w)

			if !client.Healthy(ctx) {
				fmt.Fprintf(w, "%s %s is not responding\n", s.Fail.Render("DOWN"), client.BaseURL())
				return requireHealthy(ctx, client)
			}
			models, err := client.ListModels(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s %s\n", s.Pass.Render("UP"), client.BaseURL())

			fb, err := a.feedbackStore()
			if err != nil {
				return err
			}
			stats, err := fb.AllStats(ctx)
			if err != nil {
				return err
			}
			renderModels(w, s, models, stats)
			return nil
		},
	}
}

func renderModels(w io.Writer, s Styles, models []string, stats []protocol.ModelStats) {
	fmt.Fprintf(w, "\n%s\n", s.Title.Render("installed"))
	if len(models) == 0 {
		fmt.Fprintf(w, "  none (falls back to %s)\n", protocol.FallbackModel)
	}
	for _, m := range models {
		fmt.Fprintf(w, "  %s\n", m)
	}

	fmt.Fprintf(w, "\n%s\n", s.Title.Render("selection"))
	for _, tt := range protocol.AllTaskTypes() {
		choice := modelselect.Choose(tt, models, stats)
		fmt.Fprintf(w, "  %-26s %-24s %s\n", tt, choice.Model, s.Muted.Render(string(choice.Reason)))
	}
}
