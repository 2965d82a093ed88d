package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/avoytenko/timetalk/internal/session"
	"github.com/avoytenko/timetalk/internal/store"
)

const (
	stateAskEmployeeID  session.State = "ask_employee_id"
	stateAskTrackerURL  session.State = "ask_tracker_url"
	stateAskAPIKey      session.State = "ask_api_key"
	stateAskDefaultProj session.State = "ask_default_project"
)

// startSetup begins the credential wizard. An existing profile is
// noted up front; finishing the wizard overwrites it.
func (e *Engine) startSetup(ctx context.Context, s *session.Session) error {
	existing, err := e.store.GetBySessionID(s.ID)
	if err != nil {
		e.flowLog(s).Error("profile lookup failed", "error", err)
		e.send(s, "Settings storage is unavailable right now. Please try again later.")
		return nil
	}
	if existing != nil {
		e.send(s, fmt.Sprintf("You already have an account set up.\n\nEmployee ID: %s\nTracker URL: %s\n\nContinuing the setup will overwrite these settings.",
			existing.EmployeeID, existing.TrackerURL))
	}

	s.Begin(session.FlowSetup, stateAskEmployeeID)
	e.send(s, "Setup wizard. Let's configure your tracker account.\n\nStep 1/4: enter your employee ID:")
	return nil
}

func (e *Engine) setupEmployeeID(ctx context.Context, s *session.Session, trg Trigger) error {
	body, ok := textBody(trg)
	if !ok || body == "" {
		e.send(s, "Please enter your employee ID:")
		return nil
	}
	s.Setup.EmployeeID = body
	s.State = stateAskTrackerURL
	e.send(s, fmt.Sprintf("Employee ID: %s\n\nStep 2/4: enter your tracker URL (e.g. https://redmine.example.com):", body))
	return nil
}

func (e *Engine) setupTrackerURL(ctx context.Context, s *session.Session, trg Trigger) error {
	body, ok := textBody(trg)
	if !ok {
		return nil
	}
	trackerURL := strings.TrimRight(body, "/")
	if !hasHTTPScheme(trackerURL) {
		// stay in this state until the URL carries a scheme
		e.send(s, "Invalid URL. Please enter a URL starting with http:// or https://")
		return nil
	}
	s.Setup.TrackerURL = trackerURL
	s.State = stateAskAPIKey
	e.send(s, fmt.Sprintf("Tracker URL: %s\n\nStep 3/4: enter your API key.\nYou can find it under \"API access key\" in your tracker account settings.", trackerURL))
	return nil
}

func (e *Engine) setupAPIKey(ctx context.Context, s *session.Session, trg Trigger) error {
	body, ok := textBody(trg)
	if !ok || body == "" {
		e.send(s, "Please enter your API key:")
		return nil
	}

	client := e.newTracker(s.Setup.TrackerURL, body)
	user, err := client.CurrentUser(ctx)
	if err != nil {
		e.flowLog(s).Warn("API key validation failed", "error", err)
		e.send(s, "Invalid API key or unable to reach the tracker.\nPlease check and try again:")
		return nil
	}

	s.Setup.APIKey = body
	s.Setup.Login = user.Login
	s.State = stateAskDefaultProj
	e.send(s, fmt.Sprintf("API key validated! Tracker user: %s\n\nStep 4/4: enter your default project ID (optional, but recommended).\nYou can skip this by typing 'skip'.", user.Login))
	return nil
}

func (e *Engine) setupDefaultProject(ctx context.Context, s *session.Session, trg Trigger) error {
	body, ok := textBody(trg)
	if !ok || body == "" {
		e.send(s, "Enter a default project ID, or 'skip':")
		return nil
	}

	projectID := body
	if strings.EqualFold(projectID, "skip") {
		projectID = ""
	}

	err := e.store.Upsert(&store.Profile{
		SessionID:        s.ID,
		EmployeeID:       s.Setup.EmployeeID,
		Name:             s.Setup.Login,
		TrackerURL:       s.Setup.TrackerURL,
		APIKey:           s.Setup.APIKey,
		DefaultProjectID: projectID,
	})
	if err != nil {
		e.flowLog(s).Error("saving profile failed", "error", err)
		s.Reset()
		e.send(s, "Failed to save your settings. Please try again with /setup.")
		return nil
	}

	s.Reset()
	e.send(s, "Setup complete! Your account has been configured.\n\nUse /menu to get started.")
	return nil
}

// hasHTTPScheme reports whether the input begins with an explicit
// http:// or https:// scheme. Bare hosts are rejected.
func hasHTTPScheme(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
