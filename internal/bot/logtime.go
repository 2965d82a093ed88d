package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/avoytenko/timetalk/internal/nlp"
	"github.com/avoytenko/timetalk/internal/session"
	"github.com/avoytenko/timetalk/internal/tracker"
)

const (
	stateGettingWork session.State = "getting_work"
	stateConfirming  session.State = "confirming"
)

// startLogTime begins the time-logging flow with the usage prompt.
func (e *Engine) startLogTime(ctx context.Context, s *session.Session) error {
	if _, err := e.profileFor(s); err != nil {
		e.replyProfileError(s, err)
		return nil
	}
	s.Begin(session.FlowLogTime, stateGettingWork)
	e.send(s, logTimeIntro)
	return nil
}

// startQuickLog is the alternate entry path: the session already holds
// a selected issue id, so the incoming text is treated as a work log
// for that issue without the intro prompt.
func (e *Engine) startQuickLog(ctx context.Context, s *session.Session, workLog string) error {
	if _, err := e.profileFor(s); err != nil {
		// drop the selection, or every later idle text would retry
		// this failing path
		s.SelectedIssueID = ""
		e.replyProfileError(s, err)
		return nil
	}
	s.Begin(session.FlowLogTime, stateGettingWork)
	return e.processWorkLog(ctx, s, workLog)
}

func (e *Engine) logTimeWork(ctx context.Context, s *session.Session, trg Trigger) error {
	body, ok := textBody(trg)
	if !ok || body == "" {
		e.send(s, "Type your work log as plain text, or send 'cancel'.")
		return nil
	}
	return e.processWorkLog(ctx, s, body)
}

// processWorkLog runs the parse-reconcile-confirm pipeline for one
// work log: fetch the live activity list, extract entries, resolve
// activities, backfill a selected issue, and ask for confirmation.
func (e *Engine) processWorkLog(ctx context.Context, s *session.Session, workLog string) error {
	client, profile, err := e.trackerFor(s)
	if err != nil {
		s.Reset()
		e.replyProfileError(s, err)
		return nil
	}

	e.send(s, "Processing your work log... please wait.")

	activities, err := client.ListTimeEntryActivities(ctx)
	if err != nil {
		e.flowLog(s).Error("fetching activities failed", "error", err)
		s.Reset()
		e.send(s, "Failed to fetch time entry activities. Please check your setup with /setup.")
		return nil
	}
	if len(activities) == 0 {
		s.Reset()
		e.send(s, "No time entry activities found in the tracker.")
		return nil
	}

	names := make([]string, len(activities))
	for i, a := range activities {
		names[i] = a.Name
	}

	entries, err := e.parser.ParseEntries(ctx, workLog, names, e.now())
	if err != nil {
		if errors.Is(err, nlp.ErrMalformed) {
			e.flowLog(s).Warn("work log parse failed", "error", err)
		} else {
			e.flowLog(s).Error("work log parse failed", "error", err)
		}
		s.Reset()
		e.send(s, "Could not parse your work log. Please rephrase and try /logtime again.\nExample: \"worked 2h fixing login yesterday for issue #123\".")
		return nil
	}
	if len(entries) == 0 {
		s.Reset()
		e.send(s, "Could not find any time entries in your message. Try /logtime again.")
		return nil
	}

	Reconcile(entries, activities)

	if s.SelectedIssueID != "" {
		for i := range entries {
			if entries[i].IssueID == nlp.UnknownIssue {
				entries[i].IssueID = s.SelectedIssueID
			}
		}
	}

	s.LogTime.Entries = entries
	s.LogTime.ProjectID = profile.DefaultProjectID
	s.State = stateConfirming

	heading := "Work summary:"
	if s.SelectedIssueID != "" {
		heading = fmt.Sprintf("Quick log summary for issue #%s:", s.SelectedIssueID)
	}
	e.sendButtons(s, formatEntriesSummary(heading, entries), []ButtonSpec{
		{Label: "Confirm & Log", Payload: "confirm_log"},
		{Label: "Cancel", Payload: "cancel_log"},
	})
	return nil
}

// logTimeConfirm submits the pending entries. Each entry is sent
// independently; individual failures are collected and never stop the
// rest of the batch.
func (e *Engine) logTimeConfirm(ctx context.Context, s *session.Session, trg Trigger) error {
	btn, ok := trg.(Button)
	if !ok {
		e.send(s, "Please confirm or cancel using the buttons above.")
		return nil
	}
	if btn.Payload == "cancel_log" {
		s.Reset()
		e.send(s, "Time logging cancelled. Use /logtime to try again, or go back to /menu.")
		return nil
	}
	if btn.Payload != "confirm_log" {
		e.send(s, "Please confirm or cancel using the buttons above.")
		return nil
	}

	entries := s.LogTime.Entries
	projectID := s.LogTime.ProjectID
	if len(entries) == 0 || projectID == "" {
		s.Reset()
		e.send(s, "No entries or no default project set. Run /setup or /logtime again.")
		return nil
	}

	client, _, err := e.trackerFor(s)
	if err != nil {
		s.Reset()
		e.replyProfileError(s, err)
		return nil
	}

	log := e.flowLog(s)
	s.Reset()
	e.send(s, "Submitting time entries...")

	successCount := 0
	var failures []string
	for _, entry := range entries {
		_, err := client.CreateTimeEntry(ctx, tracker.TimeEntryFields{
			ProjectID:  projectID,
			IssueID:    entry.IssueID,
			SpentOn:    entry.Date,
			Hours:      entry.Hours,
			ActivityID: entry.ActivityID,
			Comments:   entry.Comments,
		})
		if err == nil {
			successCount++
			continue
		}
		var apiErr *tracker.APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.StatusCode == 422:
			failures = append(failures, fmt.Sprintf("%s: issue %s might be closed or invalid.", entry.Date, entry.IssueID))
		case errors.As(err, &apiErr):
			failures = append(failures, fmt.Sprintf("%s: %d error: %s", entry.Date, apiErr.StatusCode, apiErr.Body))
		default:
			failures = append(failures, fmt.Sprintf("%s: %v", entry.Date, err))
		}
		log.Warn("time entry submission failed", "spent_on", entry.Date, "issue_id", entry.IssueID, "error", err)
	}

	e.send(s, formatBatchReport(successCount, failures))
	return nil
}
