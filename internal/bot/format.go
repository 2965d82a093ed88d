package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/avoytenko/timetalk/internal/nlp"
	"github.com/avoytenko/timetalk/internal/store"
	"github.com/avoytenko/timetalk/internal/tracker"
)

const welcomeText = `Welcome to timetalk!

I can help you manage your tracker issues and projects and log time
from chat.

Get started:
  /setup  - connect your tracker account
  /help   - view available commands
  /menu   - open the main menu`

const helpText = `Available commands:

Setup
  /setup       - configure tracker credentials
  /settings    - show your stored settings
  /menu        - show the main menu

Quick actions
  /logtime     - log time entries from a work description
  /myissues    - view your open issues
  /projects    - view your projects
  /createissue - create a new issue
  /summary     - summarize your last week of logged time

Other
  /help        - show this help
  /cancel      - cancel the current operation

Tip: plain text works too, e.g. "show my open issues" or
"log 2 hours for bug fix".`

const logTimeIntro = `Log time entries.

Describe your work. Include:
- what you worked on
- how long you spent
- when (if not today)
- issue ids

Example: "Today I worked on bug fixes for 3 hours and code review for
1.5 hours for issue #1234 and #5678."

Type your work log below:`

func formatIssueCard(issue tracker.Issue) string {
	project := issue.Project.Name
	if project == "" {
		project = "Unknown Project"
	}
	status := issue.Status.Name
	if status == "" {
		status = "Unknown Status"
	}
	priority := issue.Priority.Name
	if priority == "" {
		priority = "N/A"
	}
	return fmt.Sprintf("#%d - %s\nProject: %s\nStatus: %s\nPriority: %s",
		issue.ID, issue.Subject, project, status, priority)
}

func formatProjects(projects []tracker.Project) string {
	if len(projects) == 0 {
		return "No projects found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your projects (showing %d):\n\n", len(projects))
	for _, p := range projects {
		desc := p.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&b, "%s\nID: %d | Identifier: %s\n%s\n\n",
			p.Name, p.ID, p.Identifier, truncate(desc, 100))
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatEntriesSummary renders the multi-entry confirmation shown
// before submission, with a running total of hours.
func formatEntriesSummary(heading string, entries []nlp.Entry) string {
	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n\n")
	total := 0.0
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s - %gh\n   Activity: %s\n   Description: %s\n   Issue ID: %s\n\n",
			i+1, e.Date, e.Hours, e.ActivityName, e.Comments, e.IssueID)
		total += e.Hours
	}
	fmt.Fprintf(&b, "Total: %g hours\n\nIs this correct?", total)
	return b.String()
}

// formatBatchReport renders the partial-success outcome of a batch
// submission: a success count when anything landed, plus at most the
// first five failure lines.
func formatBatchReport(successCount int, errors []string) string {
	var b strings.Builder
	if successCount >= 1 {
		fmt.Fprintf(&b, "Logged %d time entries successfully!\n\n", successCount)
	}
	if len(errors) > 0 {
		b.WriteString("Some entries failed:\n")
		for i, e := range errors {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	b.WriteString("\nUse /menu to continue.")
	return b.String()
}

// formatSettings echoes the stored profile with the API key masked to
// a short prefix. The full key is never displayed or logged.
func formatSettings(p *store.Profile) string {
	project := p.DefaultProjectID
	if project == "" {
		project = "Not set"
	}
	return fmt.Sprintf(`Your settings:

Employee ID: %s
Name: %s
Tracker URL: %s
API key: %s
Default project: %s

To update settings, use /setup again.`,
		p.EmployeeID, p.Name, p.TrackerURL, maskKey(p.APIKey), project)
}

// maskKey always hides the tail of the key; short keys show at most
// their first half.
func maskKey(key string) string {
	if len(key) > 10 {
		return key[:10] + "..."
	}
	return key[:len(key)/2] + "..."
}

// truncate shortens s to at most max bytes, cutting only on a rune
// boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
