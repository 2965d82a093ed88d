package nlp_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/avoytenko/timetalk/internal/nlp"
)

type fakeCompleter struct {
	response string
	err      error
	prompt   string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

var today = time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

func TestParseEntries(t *testing.T) {
	llm := &fakeCompleter{response: `[
		{"date": "2026-08-28", "hours": 3, "activity": "Development", "comments": "bug fixes", "issue_id": "1234"},
		{"date": "2026-08-29", "hours": 1.5, "activity": "Review", "comments": "code review", "issue_id": "5678"}
	]`}
	p := nlp.NewParser(llm)

	entries, err := p.ParseEntries(context.Background(), "worked on stuff", []string{"Development", "Review"}, today)
	if err != nil {
		t.Fatalf("ParseEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Hours != 3 || entries[0].IssueID != "1234" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Date != "2026-08-29" || entries[1].Activity != "Review" {
		t.Errorf("entry 1 = %+v", entries[1])
	}
	if !strings.Contains(llm.prompt, "Available Activities: Development, Review") {
		t.Error("prompt missing activity list")
	}
	if !strings.Contains(llm.prompt, "2026-08-29") {
		t.Error("prompt missing default date")
	}
}

func TestParseEntriesStripsFences(t *testing.T) {
	for _, fence := range []string{
		"```json\n[{\"date\": \"2026-08-29\", \"hours\": 2, \"activity\": \"Dev\", \"comments\": \"c\", \"issue_id\": \"1\"}]\n```",
		"```\n[{\"date\": \"2026-08-29\", \"hours\": 2, \"activity\": \"Dev\", \"comments\": \"c\", \"issue_id\": \"1\"}]\n```",
	} {
		p := nlp.NewParser(&fakeCompleter{response: fence})
		entries, err := p.ParseEntries(context.Background(), "text", nil, today)
		if err != nil {
			t.Fatalf("ParseEntries(%q): %v", fence[:10], err)
		}
		if len(entries) != 1 || entries[0].Hours != 2 {
			t.Errorf("entries = %+v", entries)
		}
	}
}

func TestParseEntriesMissingFieldRejectsBatch(t *testing.T) {
	// second entry lacks comments: the whole batch must fail
	p := nlp.NewParser(&fakeCompleter{response: `[
		{"date": "2026-08-29", "hours": 2, "activity": "Dev", "comments": "ok", "issue_id": "1"},
		{"date": "2026-08-29", "hours": 1, "activity": "Dev", "issue_id": "2"}
	]`})
	_, err := p.ParseEntries(context.Background(), "text", nil, today)
	if !errors.Is(err, nlp.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestParseEntriesNonJSON(t *testing.T) {
	p := nlp.NewParser(&fakeCompleter{response: "I could not parse that, sorry."})
	_, err := p.ParseEntries(context.Background(), "text", nil, today)
	if !errors.Is(err, nlp.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestParseEntriesNormalizesDateAndIssue(t *testing.T) {
	p := nlp.NewParser(&fakeCompleter{response: `[
		{"date": "not-a-date", "hours": 1, "activity": "Dev", "comments": "a", "issue_id": ""},
		{"date": "", "hours": 2, "activity": "Dev", "comments": "b", "issue_id": "77"}
	]`})
	entries, err := p.ParseEntries(context.Background(), "text", nil, today)
	if err != nil {
		t.Fatalf("ParseEntries: %v", err)
	}
	if entries[0].Date != "2026-08-29" {
		t.Errorf("bad date normalized to %q, want today", entries[0].Date)
	}
	if entries[0].IssueID != nlp.UnknownIssue {
		t.Errorf("empty issue id = %q, want %q", entries[0].IssueID, nlp.UnknownIssue)
	}
	if entries[1].Date != "2026-08-29" {
		t.Errorf("absent date normalized to %q, want today", entries[1].Date)
	}
	if entries[1].IssueID != "77" {
		t.Errorf("issue id = %q, want 77", entries[1].IssueID)
	}
}

func TestParseEntriesNumericIssueID(t *testing.T) {
	p := nlp.NewParser(&fakeCompleter{response: `[
		{"date": "2026-08-29", "hours": 1, "activity": "Dev", "comments": "a", "issue_id": 4321}
	]`})
	entries, err := p.ParseEntries(context.Background(), "text", nil, today)
	if err != nil {
		t.Fatalf("ParseEntries: %v", err)
	}
	if entries[0].IssueID != "4321" {
		t.Errorf("issue id = %q, want 4321", entries[0].IssueID)
	}
}

func TestSummarizeWorkEmpty(t *testing.T) {
	p := nlp.NewParser(&fakeCompleter{})
	out, err := p.SummarizeWork(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No work entries") {
		t.Errorf("summary = %q", out)
	}
}

func TestSummarizeWork(t *testing.T) {
	llm := &fakeCompleter{response: "You logged 4.5 hours."}
	p := nlp.NewParser(llm)
	out, err := p.SummarizeWork(context.Background(), []nlp.Entry{
		{Date: "2026-08-28", Hours: 3, ActivityName: "Development", Comments: "bug fixes", IssueID: "12"},
		{Date: "2026-08-29", Hours: 1.5, ActivityName: "Review", Comments: "review", IssueID: "13"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "You logged 4.5 hours." {
		t.Errorf("summary = %q", out)
	}
	if !strings.Contains(llm.prompt, "3h on Development") {
		t.Errorf("prompt missing entry line: %q", llm.prompt)
	}
}
