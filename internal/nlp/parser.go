// Package nlp turns free-form work logs into structured time entries
// with one language-model call per message.
package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformed marks a model response that is not the expected JSON
// array of complete entries. The whole batch is rejected; there is no
// partial acceptance.
var ErrMalformed = errors.New("malformed model response")

// UnknownIssue is the sentinel issue id for entries where the user
// named no issue.
const UnknownIssue = "Unknown"

const dateLayout = "2006-01-02"

// Entry is one time entry extracted from a work log. ActivityID and
// ActivityName are zero until reconciliation against the live activity
// list resolves them.
type Entry struct {
	Date     string  `json:"date"`
	Hours    float64 `json:"hours"`
	Activity string  `json:"activity"`
	Comments string  `json:"comments"`
	IssueID  string  `json:"issue_id"`

	ActivityID   int    `json:"-"`
	ActivityName string `json:"-"`
}

// Parser extracts entries via a Completer. It holds no mutable state.
type Parser struct {
	llm Completer
}

func NewParser(llm Completer) *Parser {
	return &Parser{llm: llm}
}

// ParseEntries sends the work log to the model and returns the parsed
// entries in order. Every entry is normalized: an empty issue id
// becomes the UnknownIssue sentinel and an absent or unparsable date
// becomes today.
func (p *Parser) ParseEntries(ctx context.Context, workLog string, activityNames []string, today time.Time) ([]Entry, error) {
	prompt := buildParsePrompt(workLog, activityNames, today)

	raw, err := p.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}

	text := stripFences(raw)

	var objects []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &objects); err != nil {
		return nil, fmt.Errorf("%w: not a JSON array: %v", ErrMalformed, err)
	}

	todayStr := today.Format(dateLayout)
	entries := make([]Entry, 0, len(objects))
	for i, obj := range objects {
		for _, key := range []string{"date", "hours", "activity", "comments", "issue_id"} {
			if _, ok := obj[key]; !ok {
				return nil, fmt.Errorf("%w: entry %d missing field %q", ErrMalformed, i+1, key)
			}
		}

		var e Entry
		if err := json.Unmarshal(mustMarshal(obj), &e); err != nil {
			// issue_id may come back as a bare number
			e, err = decodeLoose(obj)
			if err != nil {
				return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformed, i+1, err)
			}
		}

		if e.IssueID == "" {
			e.IssueID = UnknownIssue
		}
		if e.Date == "" {
			e.Date = todayStr
		} else if _, err := time.Parse(dateLayout, e.Date); err != nil {
			e.Date = todayStr
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// decodeLoose retries decoding with issue_id accepted as a JSON number.
func decodeLoose(obj map[string]json.RawMessage) (Entry, error) {
	var e Entry
	var issueNum json.Number
	if err := json.Unmarshal(obj["issue_id"], &issueNum); err != nil {
		return e, fmt.Errorf("bad issue_id")
	}
	obj["issue_id"] = mustMarshal(issueNum.String())
	if err := json.Unmarshal(mustMarshal(obj), &e); err != nil {
		return e, err
	}
	return e, nil
}

func mustMarshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

// stripFences removes a surrounding ``` or ```json code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+len("```"):]
	} else {
		return s
	}
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

func buildParsePrompt(workLog string, activityNames []string, today time.Time) string {
	todayStr := today.Format(dateLayout)
	return fmt.Sprintf(`Parse the following work log into structured time entries. Use today's date if no date is mentioned.

Work Log:
%s

Available Activities: %s

Return ONLY a JSON array like this:
[
  {
    "date": "YYYY-MM-DD, default to '%s' if the work log gives no date",
    "hours": float,
    "activity": "activity_name",
    "comments": "description",
    "issue_id": "mandatory issue id"
  }
]

Rules:
- Match activities to the closest available activity name
- Use decimal hours (e.g., 1.5 for 1 hour 30 minutes)
- If no date mentioned, use the provided default date: %s
- Comments should be concise
- Issue ID is mandatory; return a placeholder like 'Unknown' if not mentioned
- Return valid JSON only, no extra text`,
		workLog, strings.Join(activityNames, ", "), todayStr, todayStr)
}

// SummarizeWork produces a short prose summary of logged entries.
// Entries here are display rows, already resolved.
func (p *Parser) SummarizeWork(ctx context.Context, entries []Entry) (string, error) {
	if len(entries) == 0 {
		return "No work entries found for the specified period.", nil
	}

	var lines []string
	for _, e := range entries {
		activity := e.ActivityName
		if activity == "" {
			activity = e.Activity
		}
		lines = append(lines, fmt.Sprintf("- %s: %gh on %s - %s (Issue: %s)",
			e.Date, e.Hours, activity, e.Comments, e.IssueID))
	}

	prompt := fmt.Sprintf(`Create a concise professional summary from these time entries:

%s

Provide:
1. Total hours worked
2. Key activities breakdown
3. Brief highlights

Keep it under 150 words.`, strings.Join(lines, "\n"))

	out, err := p.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	return strings.TrimSpace(out), nil
}
