// Package qualitygate runs compilation, lint, type, security, test and
// coverage checks over a generated artifact. A check whose tool is not
// installed is skipped and counts as passed.
package qualitygate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"offload/pkg/langprofile"
	"offload/pkg/protocol"
)

// Defaults for Config fields left zero.
const (
	DefaultToolTimeout = 30 * time.Second
	maxOutputChars     = 2000
)

// Check messages.
const (
	MsgNotConfigured = "not configured"
	MsgDisabled      = "disabled for this task"
	MsgNoTests       = "no associated tests"
)

// ErrToolMissing marks a check whose tool is not installed.
var ErrToolMissing = errors.New("check tool missing")

// Config configures a Gate.
type Config struct {
	ToolTimeout time.Duration
}

// Request describes one gate run.
type Request struct {
	ArtifactPath string
	Language     string
	ProjectRoot  string             // consulted for tool overrides; may be empty
	Plan         protocol.CheckPlan // zero value runs only compilation and the secret scan
}

// Gate runs quality checks. It is safe for concurrent use.
type Gate struct {
	cfg     Config
	runner  CommandRunner
	secrets SecretScanner
	logger  *zap.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithRunner replaces the process runner.
func WithRunner(r CommandRunner) Option { return func(g *Gate) { g.runner = r } }

// WithSecretScanner replaces the secret scanner; nil disables it.
func WithSecretScanner(s SecretScanner) Option { return func(g *Gate) { g.secrets = s } }

// WithLogger sets the gate's logger.
func WithLogger(l *zap.Logger) Option { return func(g *Gate) { g.logger = l } }

// New returns a Gate using os/exec and gitleaks unless overridden.
func New(cfg Config, opts ...Option) *Gate {
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	g := &Gate{
		cfg:     cfg,
		runner:  ExecCommandRunner{},
		secrets: &GitleaksScanner{},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// DefaultPlan enables every check with an 80% coverage threshold.
func DefaultPlan() protocol.CheckPlan {
	return protocol.CheckPlan{Lint: true, TypeCheck: true, SecurityScan: true, UnitTests: true, CoverageThreshold: 80}
}

// Run checks artifactPath with the default plan.
func (g *Gate) Run(ctx context.Context, artifactPath, language string) protocol.QualityResult {
	return g.Check(ctx, Request{ArtifactPath: artifactPath, Language: language, Plan: DefaultPlan()})
}

// Check runs every check for req. Overall pass is compilation AND lint AND
// security; tests and coverage are advisory.
func (g *Gate) Check(ctx context.Context, req Request) protocol.QualityResult {
	res := protocol.QualityResult{Checks: make(map[string]protocol.CheckResult, 6)}

	profile, ok := langprofile.Resolve(req.ProjectRoot, req.Language)
	if !ok {
		for _, name := range []string{
			protocol.CheckCompilation, protocol.CheckLint, protocol.CheckTypeCheck,
			protocol.CheckTests, protocol.CheckCoverage,
		} {
			res.Checks[name] = skipped(MsgNotConfigured)
		}
		res.Checks[protocol.CheckSecurity] = g.securityCheck(ctx, req, nil)
		res.OverallPassed = overall(res)
		return res
	}

	res.Checks[protocol.CheckCompilation] = g.toolCheck(ctx, profile.Compile, req.ArtifactPath, true)

	if req.Plan.Lint {
		res.Checks[protocol.CheckLint] = g.lintCheck(ctx, profile, req.ArtifactPath)
	} else {
		res.Checks[protocol.CheckLint] = skipped(MsgDisabled)
	}

	res.Checks[protocol.CheckTypeCheck] = g.toolCheck(ctx, profile.TypeCheck, req.ArtifactPath, req.Plan.TypeCheck)

	var secTool *langprofile.Tool
	if req.Plan.SecurityScan {
		secTool = profile.Security
	}
	res.Checks[protocol.CheckSecurity] = g.securityCheck(ctx, req, secTool)

	testFile := FindTestFile(req.ArtifactPath, profile.Extension)
	res.Checks[protocol.CheckTests] = g.testCheck(ctx, profile, testFile, req.Plan.UnitTests)
	res.Checks[protocol.CheckCoverage] = g.coverageCheck(ctx, profile, testFile, req.Plan)

	res.OverallPassed = overall(res)
	g.logger.Info("quality gate finished",
		zap.String("artifact", req.ArtifactPath),
		zap.String("language", profile.Language),
		zap.Bool("overall_passed", res.OverallPassed),
		zap.Bool("tests_passed", res.Checks[protocol.CheckTests].Passed),
	)
	return res
}

func overall(res protocol.QualityResult) bool {
	return res.Checks[protocol.CheckCompilation].Passed &&
		res.Checks[protocol.CheckLint].Passed &&
		res.Checks[protocol.CheckSecurity].Passed
}

func skipped(msg string) protocol.CheckResult {
	return protocol.CheckResult{Passed: true, Skipped: true, Message: msg}
}

// toolCheck runs a single optional tool against file.
func (g *Gate) toolCheck(ctx context.Context, tool *langprofile.Tool, file string, enabled bool) protocol.CheckResult {
	if !enabled {
		return skipped(MsgDisabled)
	}
	if tool == nil {
		return skipped(MsgNotConfigured)
	}
	r, _ := g.runTool(ctx, *tool, tool.Argv(file), filepath.Dir(file))
	return r
}

// runTool executes argv with the per-tool timeout and interprets the result.
func (g *Gate) runTool(ctx context.Context, tool langprofile.Tool, argv []string, dir string) (protocol.CheckResult, error) {
	if len(argv) == 0 {
		return skipped(MsgNotConfigured), ErrToolMissing
	}
	cmdline := strings.Join(argv, " ")
	if _, err := g.runner.LookPath(argv[0]); err != nil {
		g.logger.Debug("check tool missing", zap.String("tool", tool.Name), zap.String("hint", tool.InstallHint))
		r := skipped(MsgNotConfigured)
		r.Command = cmdline
		if tool.InstallHint != "" {
			r.Output = "install: " + tool.InstallHint
		}
		return r, ErrToolMissing
	}

	tctx, cancel := context.WithTimeout(ctx, g.cfg.ToolTimeout)
	defer cancel()

	out, err := g.runner.Run(tctx, dir, argv[0], argv[1:]...)
	r := protocol.CheckResult{Command: cmdline, Output: truncate(out.Combined())}
	switch {
	case err != nil && tctx.Err() != nil:
		r.Message = fmt.Sprintf("%s timed out after %s", tool.Name, g.cfg.ToolTimeout)
	case err != nil:
		r.Message = fmt.Sprintf("%s could not run: %v", tool.Name, err)
	case out.ExitCode != 0:
		r.Message = fmt.Sprintf("%s exited %d", tool.Name, out.ExitCode)
	case tool.FailOnOutput && strings.TrimSpace(out.Stdout) != "":
		r.Message = fmt.Sprintf("%s reported issues", tool.Name)
	default:
		r.Passed = true
		r.Message = tool.Name + " passed"
	}
	return r, nil
}

// lintCheck runs every formatter and linter; all that run must pass.
func (g *Gate) lintCheck(ctx context.Context, profile langprofile.LangProfile, file string) protocol.CheckResult {
	tools := append(append([]langprofile.Tool(nil), profile.Formatters...), profile.Linters...)
	if len(tools) == 0 {
		return skipped(MsgNotConfigured)
	}

	var (
		ran      int
		failed   []string
		outputs  []string
		commands []string
	)
	for _, tool := range tools {
		r, err := g.runTool(ctx, tool, tool.Argv(file), filepath.Dir(file))
		if errors.Is(err, ErrToolMissing) {
			continue
		}
		ran++
		commands = append(commands, r.Command)
		if !r.Passed {
			failed = append(failed, r.Message)
			if r.Output != "" {
				outputs = append(outputs, r.Output)
			}
		}
	}
	if ran == 0 {
		return skipped(MsgNotConfigured)
	}
	res := protocol.CheckResult{
		Passed:  len(failed) == 0,
		Command: strings.Join(commands, "; "),
		Output:  truncate(strings.Join(outputs, "\n")),
	}
	if res.Passed {
		res.Message = fmt.Sprintf("%d lint tool(s) passed", ran)
	} else {
		res.Message = strings.Join(failed, "; ")
	}
	return res
}

// securityCheck combines the language scanner (if any) with the in-process
// secret scan. Secrets always fail the check.
func (g *Gate) securityCheck(ctx context.Context, req Request, tool *langprofile.Tool) protocol.CheckResult {
	res := skipped(MsgNotConfigured)
	if tool != nil {
		res = g.toolCheck(ctx, tool, req.ArtifactPath, true)
	}

	if g.secrets == nil {
		return res
	}
	//nolint:gosec // artifact path is produced by the extractor
	data, err := os.ReadFile(req.ArtifactPath)
	if err != nil {
		g.logger.Warn("secret scan skipped", zap.String("artifact", req.ArtifactPath), zap.Error(err))
		return res
	}
	findings, err := g.secrets.Scan(string(data))
	if err != nil {
		g.logger.Warn("secret scan failed", zap.Error(err))
		return res
	}
	if len(findings) == 0 {
		if res.Skipped {
			return protocol.CheckResult{Passed: true, Message: "no secrets found"}
		}
		return res
	}

	lines := make([]string, 0, len(findings))
	for _, f := range findings {
		lines = append(lines, fmt.Sprintf("line %d: %s (%s)", f.Line, f.Description, f.RuleID))
	}
	return protocol.CheckResult{
		Passed:  false,
		Message: fmt.Sprintf("%d secret(s) found", len(findings)),
		Command: res.Command,
		Output:  truncate(strings.Join(append(lines, res.Output), "\n")),
	}
}

func (g *Gate) testCheck(ctx context.Context, profile langprofile.LangProfile, testFile string, enabled bool) protocol.CheckResult {
	if !enabled {
		return skipped(MsgDisabled)
	}
	if testFile == "" {
		return skipped(MsgNoTests)
	}
	tool := langprofile.Tool{Name: "tests", Cmd: profile.TestCmd}
	r, _ := g.runTool(ctx, tool, tool.Argv(testFile), filepath.Dir(testFile))
	return r
}

//nolint:gochecknoglobals // compiled once
var percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)

// ParseCoverage returns the last percentage printed in out.
func ParseCoverage(out string) (float64, bool) {
	matches := percentRe.FindAllStringSubmatch(out, -1)
	if len(matches) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (g *Gate) coverageCheck(ctx context.Context, profile langprofile.LangProfile, testFile string, plan protocol.CheckPlan) protocol.CheckResult {
	threshold := plan.CoverageThreshold
	if threshold <= 0 || !plan.UnitTests {
		return skipped(MsgDisabled)
	}
	if profile.CoverageMin > 0 {
		threshold = profile.CoverageMin
	}
	if profile.CoverageCmd == "" {
		return skipped(MsgNotConfigured)
	}
	if testFile == "" {
		return skipped(MsgNoTests)
	}

	tool := langprofile.Tool{Name: "coverage", Cmd: profile.CoverageCmd}
	r, err := g.runTool(ctx, tool, tool.Argv(testFile), filepath.Dir(testFile))
	if errors.Is(err, ErrToolMissing) || !r.Passed {
		return r
	}
	pct, ok := ParseCoverage(r.Output)
	if !ok {
		r.Passed = false
		r.Message = "coverage percentage not found in output"
		return r
	}
	r.Passed = pct >= float64(threshold)
	r.Message = fmt.Sprintf("coverage %.1f%% (threshold %d%%)", pct, threshold)
	return r
}

// FindTestFile looks for a test file associated with artifact:
// test_<name>, tests/test_<name>, ../tests/test_<name>, <stem>_test.<ext>
// and <stem>.test.<ext>. Returns "" when none exists.
func FindTestFile(artifact, ext string) string {
	dir := filepath.Dir(artifact)
	name := filepath.Base(artifact)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if ext == "" {
		ext = strings.TrimPrefix(filepath.Ext(name), ".")
	}
	candidates := []string{
		filepath.Join(dir, "test_"+name),
		filepath.Join(dir, "tests", "test_"+name),
		filepath.Join(dir, "..", "tests", "test_"+name),
		filepath.Join(dir, stem+"_test."+ext),
		filepath.Join(dir, stem+".test."+ext),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return filepath.Clean(c)
		}
	}
	return ""
}

// truncate keeps the tail of s, where tools print their summaries.
func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxOutputChars {
		return s
	}
	return "(truncated) ...\n" + string(r[len(r)-maxOutputChars:])
}
