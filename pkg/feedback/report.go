package feedback

import (
	"context"
	"fmt"
	"strings"

	"offload/pkg/protocol"
)

// Report renders a markdown summary of model performance and common
// reviewer improvements per task type.
func (s *Store) Report(ctx context.Context) (string, error) {
	stats, err := s.AllStats(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("# Generation Feedback Report\n\n")
	b.WriteString("## Model Performance by Task Type\n\n")
	if len(stats) == 0 {
		b.WriteString("No feedback recorded yet.\n\n")
	}

	var taskTypes []protocol.TaskType
	var current protocol.TaskType
	for _, st := range stats {
		if st.TaskType != current {
			if current != "" {
				b.WriteString("\n")
			}
			current = st.TaskType
			taskTypes = append(taskTypes, current)
			fmt.Fprintf(&b, "### %s\n", current)
		}
		fmt.Fprintf(&b, "- **%s**: %.1f%% success (%d/%d)\n",
			st.Model, st.SuccessRate()*100, st.Successes, st.Attempts)
	}
	if len(stats) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("## Common Improvements by Task Type\n\n")
	for _, tt := range taskTypes {
		imps, err := s.Improvements(ctx, tt, 5)
		if err != nil {
			return "", err
		}
		if len(imps) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n", tt)
		for _, imp := range imps {
			fmt.Fprintf(&b, "- %s: %d times\n", imp.Improvement, imp.Count)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
