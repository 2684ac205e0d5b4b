package qualitygate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Output is the captured result of one tool invocation.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout and stderr joined, trimmed.
func (o Output) Combined() string {
	return strings.TrimSpace(strings.TrimSpace(o.Stdout) + "\n" + strings.TrimSpace(o.Stderr))
}

// CommandRunner abstracts process execution so the gate can be tested
// without real tools installed.
type CommandRunner interface {
	// LookPath reports whether the named executable is installed.
	LookPath(name string) (string, error)
	// Run executes name with args in dir. A non-zero exit is reported in
	// Output.ExitCode, not as an error; errors mean the process could not
	// run or was killed.
	Run(ctx context.Context, dir, name string, args ...string) (Output, error)
}

// ExecCommandRunner implements CommandRunner using os/exec.
type ExecCommandRunner struct{}

// LookPath implements CommandRunner.
func (ExecCommandRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run implements CommandRunner.
func (ExecCommandRunner) Run(ctx context.Context, dir, name string, args ...string) (Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
}
