package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"offload/internal/config"
	"offload/pkg/langprofile"
	"offload/pkg/protocol"
)

// Tool status constants.
const (
	statusOK      = "OK"
	statusMissing = "MISSING"
)

// initConfig holds flags for the init command.
type initConfig struct {
	project string
	force   bool
}

// newInitCmd creates the "offload init" subcommand.
func newInitCmd() *cobra.Command {
	var cfg initConfig

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config and detect project quality tools",
		Long: "Creates $OFFLOAD_HOME (default ~/.offload) with a starter config.yaml,\n" +
			"then detects the project's languages and writes <project>/.offload/quality.yaml\n" +
			"with the tools the quality gate will run.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, err := config.ResolveHome()
			if err != nil {
				return err
			}
			project := cfg.project
			if project == "" {
				if project, err = os.Getwd(); err != nil {
					return fmt.Errorf("get working dir: %w", err)
				}
			}
			return runInit(cmd.OutOrStdout(), home, project, cfg.force, exec.LookPath)
		},
	}

	cmd.Flags().StringVar(&cfg.project, "project", "", "project root to scan (default: current directory)")
	cmd.Flags().BoolVar(&cfg.force, "force", false, "overwrite existing config files")

	return cmd
}

// runInit writes the starter config under home and the quality overrides
// under project, then reports which tools are installed.
func runInit(w io.Writer, home, project string, force bool, lookPath func(string) (string, error)) error {
	cfgPath := filepath.Join(home, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil && !force {
		fmt.Fprintf(w, "kept %s (exists)\n", cfgPath)
	} else {
		if err := config.Starter().Write(cfgPath, true); err != nil {
			return err
		}
		fmt.Fprintf(w, "wrote %s\n", cfgPath)
	}

	cfg, err := config.LoadFile(home, cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	qcfg := langprofile.GenerateConfig(project, langprofile.All())
	text, err := langprofile.BuildYAML(qcfg)
	if err != nil {
		return err
	}
	qpath := filepath.Join(project, protocol.OffloadDir, langprofile.QualityFile)
	if _, statErr := os.Stat(qpath); statErr == nil && !force {
		fmt.Fprintf(w, "kept %s (exists)\n", qpath)
	} else {
		if err := os.MkdirAll(filepath.Dir(qpath), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(qpath), err)
		}
		//nolint:gosec // project config is not secret
		if err := os.WriteFile(qpath, []byte(text), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", qpath, err)
		}
		fmt.Fprintf(w, "wrote %s\n", qpath)
	}

	langs := make([]string, 0, len(qcfg.Languages))
	for lang := range qcfg.Languages {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	if len(langs) == 0 {
		fmt.Fprintln(w, "no languages detected")
		return nil
	}

	for _, lang := range langs {
		profile, _ := langprofile.Resolve(project, lang)
		fmt.Fprintf(w, "\n%s:\n", lang)
		for _, t := range profileTools(profile) {
			status := statusOK
			if _, err := lookPath(t.Binary()); err != nil {
				status = statusMissing
			}
			line := fmt.Sprintf("  %-8s %s", status, t.Name)
			if status == statusMissing && t.InstallHint != "" {
				line += "  (install: " + t.InstallHint + ")"
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

// profileTools lists every tool a profile may run, in gate order.
func profileTools(p langprofile.LangProfile) []langprofile.Tool {
	var tools []langprofile.Tool
	if p.Compile != nil {
		tools = append(tools, *p.Compile)
	}
	tools = append(tools, p.Formatters...)
	tools = append(tools, p.Linters...)
	if p.TypeCheck != nil {
		tools = append(tools, *p.TypeCheck)
	}
	if p.Security != nil {
		tools = append(tools, *p.Security)
	}
	return tools
}
