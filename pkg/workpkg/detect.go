// Package workpkg turns free text into structured work packages: it detects
// delegable tasks, derives requirements and checks from the task type, and
// persists each package before handing it out.
package workpkg

import (
	"regexp"
	"sort"
	"strings"

	"offload/pkg/protocol"
)

// Candidate is one delegable task found in free text.
type Candidate struct {
	TaskType    protocol.TaskType `json:"task_type"`
	Description string            `json:"description"`
	Marker      string            `json:"marker"` // trigger that matched, e.g. "FIX_BUG:"
}

type trigger struct {
	marker   string
	taskType protocol.TaskType
	re       *regexp.Regexp
}

func tagTrigger(tag string, tt protocol.TaskType) trigger {
	return trigger{
		marker:   tag + ":",
		taskType: tt,
		re:       regexp.MustCompile(`(?im)\b` + regexp.QuoteMeta(tag) + `:[ \t]*(.*)$`),
	}
}

func slashTrigger(name string, tt protocol.TaskType) trigger {
	cmd := "/delegate/" + name
	return trigger{
		marker:   cmd,
		taskType: tt,
		re:       regexp.MustCompile(`(?im)(?:^|[\s(])` + regexp.QuoteMeta(cmd) + `\b[ \t:-]*(.*)$`),
	}
}

//nolint:gochecknoglobals // compiled once, read-only
var triggers = []trigger{
	tagTrigger("IMPLEMENT_FUNCTION", protocol.TaskFunctionImplementation),
	tagTrigger("WRITE_TESTS", protocol.TaskTestGeneration),
	tagTrigger("FIX_BUG", protocol.TaskBugFix),
	tagTrigger("REFACTOR", protocol.TaskRefactoring),
	tagTrigger("DOCUMENT", protocol.TaskDocumentation),
	tagTrigger("CREATE_API", protocol.TaskAPIEndpoint),
	tagTrigger("OPTIMIZE", protocol.TaskPerformanceOptimization),
	tagTrigger("SECURE", protocol.TaskSecurityAudit),
	tagTrigger("REVIEW", protocol.TaskCodeReview),
	tagTrigger("IMPLEMENT", protocol.TaskGeneral),
	slashTrigger("implement", protocol.TaskFunctionImplementation),
	slashTrigger("debug", protocol.TaskBugFix),
	slashTrigger("refactor", protocol.TaskRefactoring),
	slashTrigger("review", protocol.TaskCodeReview),
	slashTrigger("security", protocol.TaskSecurityAudit),
	slashTrigger("performance", protocol.TaskPerformanceOptimization),
	slashTrigger("docs", protocol.TaskDocumentation),
	slashTrigger("test", protocol.TaskTestGeneration),
	slashTrigger("general", protocol.TaskGeneral),
}

// Detect scans text for trigger markers and returns one candidate per match,
// in the order the matches appear. Matches with no trailing description are
// dropped. No match yields an empty slice.
func Detect(text string) []Candidate {
	type hit struct {
		offset int
		cand   Candidate
	}
	var hits []hit
	for _, t := range triggers {
		for _, loc := range t.re.FindAllStringSubmatchIndex(text, -1) {
			desc := strings.TrimSpace(text[loc[2]:loc[3]])
			if desc == "" {
				continue
			}
			hits = append(hits, hit{
				offset: loc[0],
				cand: Candidate{
					TaskType:    t.taskType,
					Description: desc,
					Marker:      t.marker,
				},
			})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].offset < hits[j].offset })

	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.cand)
	}
	return out
}
