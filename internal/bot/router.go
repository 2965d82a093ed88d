package bot

import "strings"

// Intent is a quick action matched from idle free text.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentShowIssues
	IntentShowProjects
	IntentLogTimeHint
)

var intentKeywords = []struct {
	intent Intent
	words  []string
}{
	{IntentShowIssues, []string{"issue", "task", "bug"}},
	{IntentShowProjects, []string{"project", "projects"}},
	{IntentLogTimeHint, []string{"time", "log", "work"}},
}

// RouteIntent classifies idle free text by keyword containment. The
// keyword sets are tested in fixed order and the first match wins.
func RouteIntent(text string) Intent {
	lower := strings.ToLower(text)
	for _, set := range intentKeywords {
		for _, w := range set.words {
			if strings.Contains(lower, w) {
				return set.intent
			}
		}
	}
	return IntentUnknown
}
