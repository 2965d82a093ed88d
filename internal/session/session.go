// Package session holds the per-conversation working state of the bot.
// State is in-memory only; losing it resets the conversation to idle.
package session

import (
	"sync"

	"github.com/avoytenko/timetalk/internal/nlp"
)

// Flow identifies the active conversation flow.
type Flow int

const (
	FlowNone Flow = iota
	FlowSetup
	FlowCreateIssue
	FlowLogTime
)

func (f Flow) String() string {
	switch f {
	case FlowSetup:
		return "setup"
	case FlowCreateIssue:
		return "create-issue"
	case FlowLogTime:
		return "log-time"
	default:
		return "none"
	}
}

// State is a flow-specific state tag.
type State string

// SetupData is the scratch space of the setup wizard.
type SetupData struct {
	EmployeeID string
	TrackerURL string
	APIKey     string
	Login      string // remote display login captured during key validation
}

// CreateIssueData is the scratch space of the issue-creation wizard.
// ProjectNames and TrackerNames cache the fetched choice lists so the
// confirmation can echo names without refetching.
type CreateIssueData struct {
	ProjectID    int
	ProjectNames map[int]string
	Subject      string
	Description  string
	PriorityID   int
	TrackerID    int
	TrackerNames map[int]string
}

// LogTimeData is the scratch space of the time-logging flow.
type LogTimeData struct {
	Entries   []nlp.Entry
	ProjectID string
}

// Session is one conversation's mutable state. At most one of the
// per-flow data pointers is non-nil, matching Flow; stale keys cannot
// leak between flows because Begin replaces the whole set.
type Session struct {
	ID    string
	Flow  Flow
	State State

	Setup       *SetupData
	CreateIssue *CreateIssueData
	LogTime     *LogTimeData

	// SelectedIssueID is set by the "log time to this issue" button
	// while idle and consumed by the quick-log entry path.
	SelectedIssueID string
}

// Begin switches the session into flow, dropping all prior flow
// scratch first. SelectedIssueID survives: it is session-held, not
// flow scratch, and the log-time flow consumes it after entry.
func (s *Session) Begin(flow Flow, state State) {
	selected := s.SelectedIssueID
	s.Reset()
	s.SelectedIssueID = selected
	s.Flow = flow
	s.State = state
	switch flow {
	case FlowSetup:
		s.Setup = &SetupData{}
	case FlowCreateIssue:
		s.CreateIssue = &CreateIssueData{}
	case FlowLogTime:
		s.LogTime = &LogTimeData{}
	}
}

// Reset returns the session to idle and clears every scratch field.
func (s *Session) Reset() {
	s.Flow = FlowNone
	s.State = ""
	s.Setup = nil
	s.CreateIssue = nil
	s.LogTime = nil
	s.SelectedIssueID = ""
}

// Registry hands out sessions keyed by id, creating them lazily.
// Access is serialized per session: With holds the session's lock for
// the duration of fn, so two triggers for the same session never
// interleave, while different sessions proceed concurrently.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*slot
}

type slot struct {
	mu      sync.Mutex
	session *Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*slot)}
}

func (r *Registry) slotFor(id string) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	sl, ok := r.sessions[id]
	if !ok {
		sl = &slot{session: &Session{ID: id}}
		r.sessions[id] = sl
	}
	return sl
}

// With runs fn with exclusive access to the session for id.
func (r *Registry) With(id string, fn func(*Session) error) error {
	sl := r.slotFor(id)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return fn(sl.session)
}
