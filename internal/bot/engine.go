// Package bot is the conversation core: it dispatches chat triggers to
// the active flow's state handler, routes idle free text to quick
// actions, and talks to the tracker, the credential store, and the
// language model on the session's behalf.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avoytenko/timetalk/internal/nlp"
	"github.com/avoytenko/timetalk/internal/session"
	"github.com/avoytenko/timetalk/internal/store"
	"github.com/avoytenko/timetalk/internal/tracker"
)

// Trigger is one inbound event for a session.
type Trigger interface{ isTrigger() }

// Command is a slash command without the leading slash.
type Command struct{ Name string }

// Text is free-form user text.
type Text struct{ Body string }

// Button is a button press carrying its payload.
type Button struct{ Payload string }

func (Command) isTrigger() {}
func (Text) isTrigger()    {}
func (Button) isTrigger()  {}

// ButtonSpec is one outbound button.
type ButtonSpec struct {
	Label   string
	Payload string
}

// Responder delivers outbound messages to a session.
type Responder interface {
	SendMessage(sessionID, text string) error
	SendButtons(sessionID, text string, buttons []ButtonSpec) error
}

// DispatchFunc is the single entry point a transport feeds triggers into.
type DispatchFunc func(ctx context.Context, sessionID string, trg Trigger)

// Transport is a pluggable chat frontend: it delivers outbound
// messages and runs an event loop that feeds inbound triggers to the
// dispatch function.
type Transport interface {
	Responder
	Run(ctx context.Context, dispatch DispatchFunc) error
}

// Tracker is the slice of the tracker client the engine needs. It is
// an interface so flows can be exercised against a fake server state.
type Tracker interface {
	CurrentUser(ctx context.Context) (*tracker.User, error)
	ListIssues(ctx context.Context, filter tracker.IssueFilter) ([]tracker.Issue, error)
	CreateIssue(ctx context.Context, fields tracker.IssueFields) (*tracker.Issue, error)
	ListProjects(ctx context.Context, limit int) ([]tracker.Project, error)
	ListTrackers(ctx context.Context) ([]tracker.Ref, error)
	ListTimeEntryActivities(ctx context.Context) ([]tracker.Activity, error)
	CreateTimeEntry(ctx context.Context, fields tracker.TimeEntryFields) (*tracker.TimeEntry, error)
	ListTimeEntries(ctx context.Context, filter tracker.TimeEntryFilter) ([]tracker.TimeEntry, error)
}

// EntryParser is the slice of the NLP parser the engine needs.
type EntryParser interface {
	ParseEntries(ctx context.Context, workLog string, activityNames []string, today time.Time) ([]nlp.Entry, error)
	SummarizeWork(ctx context.Context, entries []nlp.Entry) (string, error)
}

type handlerFunc func(ctx context.Context, s *session.Session, trg Trigger) error

type flowSpec struct {
	name   string
	states map[session.State]handlerFunc
}

// Config wires an Engine. Store, Parser, and Responder are required;
// the rest default sensibly.
type Config struct {
	Store     *store.Store
	Parser    EntryParser
	Responder Responder

	// NewTracker builds a tracker client from a profile's URL and
	// key. Nil means the real REST client.
	NewTracker func(baseURL, apiKey string) Tracker

	Logger *slog.Logger
	Now    func() time.Time
}

// Engine is the conversation state machine runner. One Engine serves
// all sessions; per-session serialization lives in the registry.
type Engine struct {
	store      *store.Store
	parser     EntryParser
	responder  Responder
	sessions   *session.Registry
	newTracker func(baseURL, apiKey string) Tracker
	logger     *slog.Logger
	now        func() time.Time
	flowTable  map[session.Flow]flowSpec
}

func New(cfg Config) *Engine {
	e := &Engine{
		store:      cfg.Store,
		parser:     cfg.Parser,
		responder:  cfg.Responder,
		sessions:   session.NewRegistry(),
		newTracker: cfg.NewTracker,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if e.newTracker == nil {
		e.newTracker = func(baseURL, apiKey string) Tracker {
			return tracker.New(baseURL, apiKey)
		}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.flowTable = map[session.Flow]flowSpec{
		session.FlowSetup: {name: "setup", states: map[session.State]handlerFunc{
			stateAskEmployeeID:  e.setupEmployeeID,
			stateAskTrackerURL:  e.setupTrackerURL,
			stateAskAPIKey:      e.setupAPIKey,
			stateAskDefaultProj: e.setupDefaultProject,
		}},
		session.FlowCreateIssue: {name: "create-issue", states: map[session.State]handlerFunc{
			stateAskProject:     e.issueProject,
			stateAskSubject:     e.issueSubject,
			stateAskDescription: e.issueDescription,
			stateAskPriority:    e.issuePriority,
			stateAskTracker:     e.issueTracker,
			stateConfirmCreate:  e.issueConfirm,
		}},
		session.FlowLogTime: {name: "log-time", states: map[session.State]handlerFunc{
			stateGettingWork: e.logTimeWork,
			stateConfirming:  e.logTimeConfirm,
		}},
	}
	return e
}

// HandleTrigger processes one inbound trigger for a session. It is the
// DispatchFunc handed to the transport. Triggers for the same session
// run one at a time; failures never escape — the session's flow is
// reset and the user is told.
func (e *Engine) HandleTrigger(ctx context.Context, sessionID string, trg Trigger) {
	err := e.sessions.With(sessionID, func(s *session.Session) error {
		if isCancel(trg) {
			s.Reset()
			e.send(s, "Operation cancelled. Use /menu to start over.")
			return nil
		}
		if s.Flow == session.FlowNone {
			return e.handleIdle(ctx, s, trg)
		}
		return e.dispatchFlow(ctx, s, trg)
	})
	if err != nil {
		e.logger.Error("trigger handling failed", "session_id", sessionID, "error", err)
	}
}

// isCancel reports whether the trigger is the always-available
// cancellation command.
func isCancel(trg Trigger) bool {
	switch t := trg.(type) {
	case Command:
		return t.Name == "cancel"
	case Text:
		return strings.EqualFold(strings.TrimSpace(t.Body), "cancel")
	}
	return false
}

func (e *Engine) dispatchFlow(ctx context.Context, s *session.Session, trg Trigger) error {
	spec, ok := e.flowTable[s.Flow]
	if !ok {
		e.logger.Error("unknown flow", "session_id", s.ID, "flow", s.Flow.String())
		s.Reset()
		return nil
	}

	// a command mid-flow (other than cancel, handled above) neither
	// advances nor aborts the wizard
	if cmd, isCmd := trg.(Command); isCmd {
		e.send(s, fmt.Sprintf("You're in the middle of %s. Send 'cancel' first to run /%s.", spec.name, cmd.Name))
		return nil
	}

	handler, ok := spec.states[s.State]
	if !ok {
		e.logger.Error("unknown state", "session_id", s.ID, "flow", spec.name, "state", string(s.State))
		s.Reset()
		e.send(s, "Something went wrong; the operation was cancelled. Use /menu to start over.")
		return nil
	}
	return handler(ctx, s, trg)
}

func (e *Engine) handleIdle(ctx context.Context, s *session.Session, trg Trigger) error {
	switch t := trg.(type) {
	case Command:
		return e.handleCommand(ctx, s, t.Name)
	case Button:
		return e.handleButton(ctx, s, t.Payload)
	case Text:
		if s.SelectedIssueID != "" {
			return e.startQuickLog(ctx, s, t.Body)
		}
		switch RouteIntent(t.Body) {
		case IntentShowIssues:
			return e.showMyIssues(ctx, s)
		case IntentShowProjects:
			return e.showProjects(ctx, s)
		case IntentLogTimeHint:
			e.send(s, "To log time, use /logtime or pick Log Time from /menu.")
			return nil
		default:
			e.send(s, "I'm not sure what you mean. Try /help or /menu.")
			return nil
		}
	}
	return nil
}

func (e *Engine) handleCommand(ctx context.Context, s *session.Session, name string) error {
	switch name {
	case "start":
		e.send(s, welcomeText)
	case "help":
		e.send(s, helpText)
	case "menu":
		e.showMenu(s)
	case "setup":
		return e.startSetup(ctx, s)
	case "logtime":
		return e.startLogTime(ctx, s)
	case "myissues":
		return e.showMyIssues(ctx, s)
	case "projects":
		return e.showProjects(ctx, s)
	case "createissue":
		return e.startCreateIssue(ctx, s)
	case "settings":
		return e.showSettings(ctx, s)
	case "summary":
		return e.showSummary(ctx, s)
	default:
		e.send(s, "Unknown command. Try /help.")
	}
	return nil
}

func (e *Engine) handleButton(ctx context.Context, s *session.Session, payload string) error {
	switch {
	case payload == "menu_issues":
		return e.showMyIssues(ctx, s)
	case payload == "menu_projects":
		return e.showProjects(ctx, s)
	case payload == "menu_logtime":
		return e.startLogTime(ctx, s)
	case payload == "menu_create_issue":
		return e.startCreateIssue(ctx, s)
	case payload == "menu_settings":
		return e.showSettings(ctx, s)
	case strings.HasPrefix(payload, "logtime_"):
		s.SelectedIssueID = strings.TrimPrefix(payload, "logtime_")
		e.send(s, fmt.Sprintf("Describe the work you did on issue #%s (e.g. \"worked 2h fixing login yesterday\"):", s.SelectedIssueID))
		return nil
	default:
		e.logger.Warn("unhandled button", "session_id", s.ID, "payload", payload)
		return nil
	}
}

func (e *Engine) showMenu(s *session.Session) {
	e.sendButtons(s, "Main menu. Choose an option:", []ButtonSpec{
		{Label: "My Issues", Payload: "menu_issues"},
		{Label: "My Projects", Payload: "menu_projects"},
		{Label: "Log Time", Payload: "menu_logtime"},
		{Label: "Create Issue", Payload: "menu_create_issue"},
		{Label: "Settings", Payload: "menu_settings"},
	})
}

// profileFor loads the stored profile, mapping absence to
// ErrNotConfigured so callers can tell it from a storage failure.
func (e *Engine) profileFor(s *session.Session) (*store.Profile, error) {
	p, err := e.store.GetBySessionID(s.ID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotConfigured
	}
	return p, nil
}

// trackerFor builds a tracker client from the session's profile.
func (e *Engine) trackerFor(s *session.Session) (Tracker, *store.Profile, error) {
	p, err := e.profileFor(s)
	if err != nil {
		return nil, nil, err
	}
	return e.newTracker(p.TrackerURL, p.APIKey), p, nil
}

func (e *Engine) send(s *session.Session, text string) {
	if err := e.responder.SendMessage(s.ID, text); err != nil {
		e.logger.Error("send failed", "session_id", s.ID, "error", err)
	}
}

func (e *Engine) sendButtons(s *session.Session, text string, buttons []ButtonSpec) {
	if err := e.responder.SendButtons(s.ID, text, buttons); err != nil {
		e.logger.Error("send buttons failed", "session_id", s.ID, "error", err)
	}
}

// flowLog returns a logger annotated with the session's flow position,
// enough to reconstruct any failure.
func (e *Engine) flowLog(s *session.Session) *slog.Logger {
	return e.logger.With("session_id", s.ID, "flow", s.Flow.String(), "state", string(s.State))
}

func textBody(trg Trigger) (string, bool) {
	t, ok := trg.(Text)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(t.Body), true
}
