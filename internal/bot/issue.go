package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/avoytenko/timetalk/internal/session"
	"github.com/avoytenko/timetalk/internal/tracker"
)

const (
	stateAskProject     session.State = "ask_project"
	stateAskSubject     session.State = "ask_subject"
	stateAskDescription session.State = "ask_description"
	stateAskPriority    session.State = "ask_priority"
	stateAskTracker     session.State = "ask_tracker"
	stateConfirmCreate  session.State = "confirm_create"
)

const maxChoiceButtons = 10

// priorities is the fixed closed set; ids are not fetched remotely.
var priorities = []tracker.Ref{
	{ID: 1, Name: "Low"},
	{ID: 2, Name: "Normal"},
	{ID: 3, Name: "High"},
	{ID: 4, Name: "Urgent"},
}

// startCreateIssue begins the issue wizard with a live project list.
// No projects (or a failed fetch) ends the flow immediately.
func (e *Engine) startCreateIssue(ctx context.Context, s *session.Session) error {
	client, _, err := e.trackerFor(s)
	if err != nil {
		e.replyProfileError(s, err)
		return nil
	}

	projects, err := client.ListProjects(ctx, 0)
	if err != nil {
		e.flowLog(s).Error("listing projects failed", "error", err)
		e.send(s, "Failed to start issue creation. Please check your setup with /setup.")
		return nil
	}
	if len(projects) == 0 {
		e.send(s, "No projects available for issue creation.")
		return nil
	}

	s.Begin(session.FlowCreateIssue, stateAskProject)
	s.CreateIssue.ProjectNames = make(map[int]string, len(projects))
	var buttons []ButtonSpec
	for i, p := range projects {
		s.CreateIssue.ProjectNames[p.ID] = p.Name
		if i < maxChoiceButtons {
			buttons = append(buttons, ButtonSpec{Label: p.Name, Payload: "proj_" + strconv.Itoa(p.ID)})
		}
	}
	e.sendButtons(s, "Select a project:", buttons)
	return nil
}

func (e *Engine) issueProject(ctx context.Context, s *session.Session, trg Trigger) error {
	btn, ok := trg.(Button)
	if !ok || !strings.HasPrefix(btn.Payload, "proj_") {
		e.send(s, "Please pick a project using the buttons above.")
		return nil
	}
	id, err := strconv.Atoi(strings.TrimPrefix(btn.Payload, "proj_"))
	if err != nil {
		e.send(s, "Please pick a project using the buttons above.")
		return nil
	}

	s.CreateIssue.ProjectID = id
	s.State = stateAskSubject
	name := s.CreateIssue.ProjectNames[id]
	if name == "" {
		name = "Unknown Project"
	}
	e.send(s, fmt.Sprintf("Selected project: %s\n\nEnter the issue subject:", name))
	return nil
}

func (e *Engine) issueSubject(ctx context.Context, s *session.Session, trg Trigger) error {
	body, ok := textBody(trg)
	if !ok || body == "" {
		e.send(s, "Enter the issue subject:")
		return nil
	}
	s.CreateIssue.Subject = body
	s.State = stateAskDescription
	e.send(s, "Enter a short description for the issue:")
	return nil
}

func (e *Engine) issueDescription(ctx context.Context, s *session.Session, trg Trigger) error {
	body, ok := textBody(trg)
	if !ok || body == "" {
		e.send(s, "Enter a short description for the issue:")
		return nil
	}
	s.CreateIssue.Description = body
	s.State = stateAskPriority

	var buttons []ButtonSpec
	for _, p := range priorities {
		buttons = append(buttons, ButtonSpec{Label: p.Name, Payload: "priority_" + strconv.Itoa(p.ID)})
	}
	e.sendButtons(s, "Select priority:", buttons)
	return nil
}

func (e *Engine) issuePriority(ctx context.Context, s *session.Session, trg Trigger) error {
	btn, ok := trg.(Button)
	if !ok || !strings.HasPrefix(btn.Payload, "priority_") {
		e.send(s, "Please pick a priority using the buttons above.")
		return nil
	}
	id, err := strconv.Atoi(strings.TrimPrefix(btn.Payload, "priority_"))
	if err != nil || id < 1 || id > len(priorities) {
		e.send(s, "Please pick a priority using the buttons above.")
		return nil
	}
	s.CreateIssue.PriorityID = id

	client, _, err := e.trackerFor(s)
	if err != nil {
		e.replyProfileError(s, err)
		s.Reset()
		return nil
	}
	trackers, err := client.ListTrackers(ctx)
	if err != nil || len(trackers) == 0 {
		e.flowLog(s).Error("listing trackers failed", "error", err)
		s.Reset()
		e.send(s, "Failed to fetch tracker types. Please try again from /menu.")
		return nil
	}

	s.CreateIssue.TrackerNames = make(map[int]string, len(trackers))
	var buttons []ButtonSpec
	for i, t := range trackers {
		s.CreateIssue.TrackerNames[t.ID] = t.Name
		if i < maxChoiceButtons {
			buttons = append(buttons, ButtonSpec{Label: t.Name, Payload: "tracker_" + strconv.Itoa(t.ID)})
		}
	}
	s.State = stateAskTracker
	e.sendButtons(s, "Select tracker:", buttons)
	return nil
}

func (e *Engine) issueTracker(ctx context.Context, s *session.Session, trg Trigger) error {
	btn, ok := trg.(Button)
	if !ok || !strings.HasPrefix(btn.Payload, "tracker_") {
		e.send(s, "Please pick a tracker using the buttons above.")
		return nil
	}
	id, err := strconv.Atoi(strings.TrimPrefix(btn.Payload, "tracker_"))
	if err != nil {
		e.send(s, "Please pick a tracker using the buttons above.")
		return nil
	}
	s.CreateIssue.TrackerID = id
	s.State = stateConfirmCreate

	d := s.CreateIssue
	summary := fmt.Sprintf("Ready to create this issue?\n\nProject: %s\nSubject: %s\nDescription: %s\nPriority: %s\nTracker: %s",
		d.ProjectNames[d.ProjectID], d.Subject, d.Description,
		priorities[d.PriorityID-1].Name, d.TrackerNames[d.TrackerID])
	e.sendButtons(s, summary, []ButtonSpec{
		{Label: "Confirm", Payload: "confirm_create"},
		{Label: "Cancel", Payload: "cancel_create"},
	})
	return nil
}

func (e *Engine) issueConfirm(ctx context.Context, s *session.Session, trg Trigger) error {
	btn, ok := trg.(Button)
	if !ok {
		e.send(s, "Please confirm or cancel using the buttons above.")
		return nil
	}
	if btn.Payload == "cancel_create" {
		s.Reset()
		e.send(s, "Issue creation cancelled. Go to /menu.")
		return nil
	}
	if btn.Payload != "confirm_create" {
		e.send(s, "Please confirm or cancel using the buttons above.")
		return nil
	}

	// the flow ends after a confirm, whatever the outcome
	defer s.Reset()

	client, _, err := e.trackerFor(s)
	if err != nil {
		e.replyProfileError(s, err)
		return nil
	}

	d := s.CreateIssue
	me, err := client.CurrentUser(ctx)
	if err != nil {
		e.flowLog(s).Error("current user lookup failed", "error", err)
		e.send(s, "Failed to create issue. Please try again. Go to /menu.")
		return nil
	}

	e.send(s, "Creating issue...")
	created, err := client.CreateIssue(ctx, tracker.IssueFields{
		ProjectID:    d.ProjectID,
		Subject:      d.Subject,
		Description:  d.Description,
		PriorityID:   d.PriorityID,
		TrackerID:    d.TrackerID,
		AssignedToID: me.ID,
	})
	if err != nil {
		e.flowLog(s).Error("issue creation failed", "error", err)
		e.send(s, "Failed to create issue. Please try again. Go to /menu.")
		return nil
	}
	if created == nil || created.ID == 0 {
		e.send(s, "Issue created but no ID was returned. Go to /menu.")
		return nil
	}
	e.send(s, fmt.Sprintf("Issue created successfully! (ID: #%d). Go to /menu.", created.ID))
	return nil
}

// replyProfileError turns a profile lookup failure into the right
// user-facing message.
func (e *Engine) replyProfileError(s *session.Session, err error) {
	if errors.Is(err, ErrNotConfigured) {
		e.send(s, "No account found. Use /setup to configure your account.")
		return
	}
	e.flowLog(s).Error("profile lookup failed", "error", err)
	e.send(s, "Settings storage is unavailable right now. Please try again later.")
}
