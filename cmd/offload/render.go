package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"offload/pkg/protocol"
)

// checkOrder is the order checks are listed in summaries.
//
//nolint:gochecknoglobals // read-only
var checkOrder = []string{
	protocol.CheckCompilation, protocol.CheckLint, protocol.CheckTypeCheck,
	protocol.CheckSecurity, protocol.CheckTests, protocol.CheckCoverage,
}

// renderRecord writes a human-readable summary of one status record.
func renderRecord(w io.Writer, s Styles, rec protocol.StatusRecord) {
	fmt.Fprintf(w, "%s %s  %s\n", s.Title.Render("package"), rec.PackageID, s.status(rec.Status))
	line := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(w, "  %s %s\n", s.Label.Render(fmt.Sprintf("%-11s", label+":")), value)
	}
	line("task", string(rec.TaskType))
	line("description", rec.Description)
	line("message", rec.Message)
	if rec.Status == protocol.StatusQueued && rec.QueuePosition > 0 {
		line("position", fmt.Sprint(rec.QueuePosition))
	}
	line("model", rec.Model)
	if rec.GenerationSeconds > 0 {
		line("generation", fmt.Sprintf("%.1fs", rec.GenerationSeconds))
	}
	if rec.ArtifactPath != "" {
		line("artifact", fmt.Sprintf("%s (%s, %d lines)", rec.ArtifactPath, rec.Method, rec.CodeLines))
	}
	if rec.Quality != nil {
		fmt.Fprintf(w, "  %s %s\n", s.Label.Render(fmt.Sprintf("%-11s", "quality:")), s.verdict(rec.Quality.OverallPassed, "passed", "failed"))
		for _, name := range sortedChecks(rec.Quality.Checks) {
			c := rec.Quality.Checks[name]
			mark := s.verdict(c.Passed, "ok  ", "FAIL")
			if c.Skipped {
				mark = s.Muted.Render("skip")
			}
			fmt.Fprintf(w, "    %s %-11s %s\n", mark, name, s.Muted.Render(c.Message))
		}
	}
	if v := rec.Validation; v != nil {
		val := s.verdict(v.IsValid, "valid", "invalid")
		if v.QualityScore != nil {
			val += fmt.Sprintf(" (score %d)", *v.QualityScore)
		}
		if v.Heuristic {
			val += s.Muted.Render(" heuristic")
		}
		fmt.Fprintf(w, "  %s %s\n", s.Label.Render(fmt.Sprintf("%-11s", "validation:")), val)
		for _, group := range [][]string{v.CompilationIssues, v.MissingDependencies, v.CompletenessIssues, v.Recommendations} {
			for _, issue := range group {
				fmt.Fprintf(w, "    - %s\n", issue)
			}
		}
	}
	line("error", rec.Error)
	if rec.ResponsePreview != "" {
		line("response", strings.ReplaceAll(rec.ResponsePreview, "\n", " "))
	}
	if !rec.UpdatedAt.IsZero() {
		line("updated", rec.UpdatedAt.Local().Format(time.DateTime))
	}
}

// renderTable writes one line per record.
func renderTable(w io.Writer, s Styles, recs []protocol.StatusRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no packages")
		return
	}
	for _, r := range recs {
		id := shortID(r.PackageID)
		fmt.Fprintf(w, "%-8s  %-10s  %-24s  %s\n", id, s.status(r.Status), r.TaskType, truncate(r.Message, 60))
	}
}

// renderRunSummary writes the closing summary of a run.
func renderRunSummary(w io.Writer, s Styles, recs []protocol.StatusRecord, elapsed time.Duration) {
	var accepted, rejected, failed int
	for _, r := range recs {
		switch {
		case r.Status == protocol.StatusError:
			failed++
		case r.Quality != nil && r.Quality.OverallPassed && r.Validation != nil && r.Validation.IsValid:
			accepted++
		default:
			rejected++
		}
	}
	fmt.Fprintf(w, "\n%s %d package(s) in %s: %s accepted, %s rejected, %s failed\n",
		s.Title.Render("summary"), len(recs), elapsed.Round(time.Millisecond),
		s.Pass.Render(fmt.Sprint(accepted)), s.Fail.Render(fmt.Sprint(rejected)), s.Fail.Render(fmt.Sprint(failed)))
}

func (s Styles) verdict(ok bool, yes, no string) string {
	if ok {
		return s.Pass.Render(yes)
	}
	return s.Fail.Render(no)
}

func sortedChecks(checks map[string]protocol.CheckResult) []string {
	rank := make(map[string]int, len(checkOrder))
	for i, n := range checkOrder {
		rank[n] = i
	}
	names := make([]string, 0, len(checks))
	for n := range checks {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, iok := rank[names[i]]
		rj, jok := rank[names[j]]
		if iok != jok {
			return iok
		}
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
	return names
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
