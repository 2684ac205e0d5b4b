package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"offload/internal/version"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	logLevel  string
	logFormat string
}

// newRootCmd creates the root offload command with all subcommands attached.
func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "offload",
		Short: "Delegate well-scoped coding tasks to a local model",
		Long: "offload turns task descriptions into work packages, generates code for them\n" +
			"on a local model, and runs each artifact through a quality gate and a\n" +
			"validation pass before reporting the result.",
		Version:       fmt.Sprintf("offload %s", version.Full()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (auto, console, json); overrides config")

	cmd.AddCommand(
		newInitCmd(),
		newDetectCmd(flags),
		newRunCmd(flags),
		newSubmitCmd(flags),
		newStatusCmd(flags),
		newDashCmd(flags),
		newModelsCmd(flags),
		newFeedbackCmd(flags),
		newLogsCmd(flags),
		newMCPCmd(flags),
	)

	return cmd
}
