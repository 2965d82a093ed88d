package bot

import (
	"strings"

	"github.com/avoytenko/timetalk/internal/nlp"
	"github.com/avoytenko/timetalk/internal/tracker"
)

// Reconcile resolves each entry's free-text activity label against the
// live activity list, storing the resolved id and display name on the
// entry. Matching is case-insensitive substring containment in either
// direction; the first activity in taxonomy order wins ties. An entry
// matching nothing falls back to the first activity rather than
// failing.
func Reconcile(entries []nlp.Entry, activities []tracker.Activity) {
	if len(activities) == 0 {
		return
	}
	for i := range entries {
		label := strings.ToLower(entries[i].Activity)
		matched := activities[0]
		for _, a := range activities {
			name := strings.ToLower(a.Name)
			if strings.Contains(name, label) || strings.Contains(label, name) {
				matched = a
				break
			}
		}
		entries[i].ActivityID = matched.ID
		entries[i].ActivityName = matched.Name
	}
}
