package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"offload/pkg/protocol"
	"offload/pkg/workpkg"
)

// packageInput holds the flags that shape a new work package.
type packageInput struct {
	project  string
	file     string
	language string
}

func (in *packageInput) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.project, "project", "", "project root (default: current directory)")
	cmd.Flags().StringVar(&in.file, "file", "", "file being worked on, used for language detection")
	cmd.Flags().StringVar(&in.language, "lang", "", "target language (default: detected)")
}

func (in *packageInput) input() (workpkg.Input, error) {
	root := in.project
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return workpkg.Input{}, fmt.Errorf("get working dir: %w", err)
		}
		root = wd
	}
	return workpkg.Input{ProjectRoot: root, CurrentFile: in.file, Language: in.language}, nil
}

// newDetectCmd creates the "offload detect" subcommand.
func newDetectCmd(_ *rootFlags) *cobra.Command {
	var (
		in     packageInput
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "detect [text...]",
		Short: "Show the work packages a text would produce, without running them",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readTaskText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			input, err := in.input()
			if err != nil {
				return err
			}
			factory := workpkg.NewFactory(nil)
			var pkgs []protocol.WorkPackage
			for _, c := range workpkg.Detect(text) {
				pkgs = append(pkgs, factory.Build(c, input))
			}
			return printPackages(cmd.OutOrStdout(), pkgs, asJSON)
		},
	}

	in.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print packages as JSON")
	return cmd
}

// readTaskText joins args, or reads stdin when no args are given and stdin
// is not a terminal.
func readTaskText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if f, ok := stdin.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return "", errNoInput
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", errNoInput
	}
	return text, nil
}

func printPackages(w io.Writer, pkgs []protocol.WorkPackage, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if pkgs == nil {
			pkgs = []protocol.WorkPackage{}
		}
		return enc.Encode(pkgs)
	}
	if len(pkgs) == 0 {
		fmt.Fprintln(w, "no delegable tasks found")
		return nil
	}
	for i, p := range pkgs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s  %s\n", p.ShortID(), p.TaskType)
		fmt.Fprintf(w, "  description: %s\n", p.Description)
		fmt.Fprintf(w, "  language:    %s\n", orDash(p.Context.Language))
		if p.Context.Framework != "" {
			fmt.Fprintf(w, "  framework:   %s\n", p.Context.Framework)
		}
		fmt.Fprintf(w, "  command:     %s\n", orDash(p.Command))
		fmt.Fprintf(w, "  checks:      %s\n", describeChecks(p.Checks))
	}
	return nil
}

func describeChecks(c protocol.CheckPlan) string {
	parts := []string{"compile", "secrets"}
	if c.Lint {
		parts = append(parts, "lint")
	}
	if c.TypeCheck {
		parts = append(parts, "type-check")
	}
	if c.SecurityScan {
		parts = append(parts, "security")
	}
	if c.UnitTests {
		parts = append(parts, "tests")
	}
	if c.CoverageThreshold > 0 {
		parts = append(parts, fmt.Sprintf("coverage>=%d%%", c.CoverageThreshold))
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
