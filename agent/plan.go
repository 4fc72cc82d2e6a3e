package agent

import "strings"

// CountPlanSteps counts the steps in a textual plan: lines whose first
// non-whitespace character is a digit. The planner numbers steps the same
// way, so the two stay consistent by sharing this one function.
func CountPlanSteps(plan string) int {
	count := 0
	for _, line := range strings.Split(plan, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if trimmed[0] >= '0' && trimmed[0] <= '9' {
			count++
		}
	}
	return count
}
