package feedback

import "strings"

// AnalyzeImprovements compares generated code with a reviewer's corrected
// version and names the kinds of change made.
func AnalyzeImprovements(original, improved string) []string {
	var out []string
	added := func(token string) bool {
		return strings.Contains(improved, token) && !strings.Contains(original, token)
	}

	if added(`"""`) {
		out = append(out, "Added docstrings")
	}
	if added("try:") || added("catch (") || added("if err != nil") {
		out = append(out, "Added error handling")
	}
	if (strings.Contains(improved, "from typing import") || strings.Contains(improved, "import typing")) &&
		!strings.Contains(original, "typing") {
		out = append(out, "Added type hints")
	}
	if float64(strings.Count(improved, "\n")) > float64(strings.Count(original, "\n"))*1.2 {
		out = append(out, "Expanded implementation")
	}
	if added("logger") || added("logging.") {
		out = append(out, "Added logging")
	}
	if strings.Contains(strings.ToLower(improved), "validate") && !strings.Contains(strings.ToLower(original), "validate") {
		out = append(out, "Added validation")
	}
	return out
}
