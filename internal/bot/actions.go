package bot

import (
	"context"
	"fmt"

	"github.com/avoytenko/timetalk/internal/nlp"
	"github.com/avoytenko/timetalk/internal/session"
	"github.com/avoytenko/timetalk/internal/tracker"
)

// showMyIssues lists the user's open issues, one card per issue with a
// quick-log button that selects the issue for the next work log.
func (e *Engine) showMyIssues(ctx context.Context, s *session.Session) error {
	client, _, err := e.trackerFor(s)
	if err != nil {
		e.replyProfileError(s, err)
		return nil
	}

	issues, err := client.ListIssues(ctx, tracker.IssueFilter{Limit: 10})
	if err != nil {
		e.flowLog(s).Error("fetching issues failed", "error", err)
		e.send(s, "Failed to fetch issues. Please check your setup with /setup.")
		return nil
	}
	if len(issues) == 0 {
		e.send(s, "You have no open issues!")
		return nil
	}

	for _, issue := range issues {
		e.sendButtons(s, formatIssueCard(issue), []ButtonSpec{
			{
				Label:   fmt.Sprintf("Log time to issue #%d", issue.ID),
				Payload: fmt.Sprintf("logtime_%d", issue.ID),
			},
		})
	}
	return nil
}

func (e *Engine) showProjects(ctx context.Context, s *session.Session) error {
	client, _, err := e.trackerFor(s)
	if err != nil {
		e.replyProfileError(s, err)
		return nil
	}

	projects, err := client.ListProjects(ctx, 20)
	if err != nil {
		e.flowLog(s).Error("fetching projects failed", "error", err)
		e.send(s, "Failed to fetch projects. Please check your setup with /setup.")
		return nil
	}
	e.send(s, formatProjects(projects))
	return nil
}

func (e *Engine) showSettings(ctx context.Context, s *session.Session) error {
	profile, err := e.profileFor(s)
	if err != nil {
		e.replyProfileError(s, err)
		return nil
	}
	e.send(s, formatSettings(profile))
	return nil
}

// showSummary fetches the last week of logged time and has the model
// turn it into a short prose report.
func (e *Engine) showSummary(ctx context.Context, s *session.Session) error {
	client, _, err := e.trackerFor(s)
	if err != nil {
		e.replyProfileError(s, err)
		return nil
	}

	now := e.now()
	entries, err := client.ListTimeEntries(ctx, tracker.TimeEntryFilter{
		From: now.AddDate(0, 0, -7).Format("2006-01-02"),
		To:   now.Format("2006-01-02"),
	})
	if err != nil {
		e.flowLog(s).Error("fetching time entries failed", "error", err)
		e.send(s, "Failed to fetch your time entries. Please check your setup with /setup.")
		return nil
	}

	rows := make([]nlp.Entry, len(entries))
	for i, t := range entries {
		issueID := nlp.UnknownIssue
		if t.Issue.ID != 0 {
			issueID = fmt.Sprintf("%d", t.Issue.ID)
		}
		rows[i] = nlp.Entry{
			Date:         t.SpentOn,
			Hours:        t.Hours,
			ActivityName: t.Activity.Name,
			Comments:     t.Comments,
			IssueID:      issueID,
		}
	}

	summary, err := e.parser.SummarizeWork(ctx, rows)
	if err != nil {
		e.flowLog(s).Error("summarizing work failed", "error", err)
		e.send(s, "Could not generate a summary. Please check your time entries manually.")
		return nil
	}
	e.send(s, summary)
	return nil
}
