package session_test

import (
	"sync"
	"testing"

	"github.com/avoytenko/timetalk/internal/nlp"
	"github.com/avoytenko/timetalk/internal/session"
)

func TestBeginClearsPriorFlowData(t *testing.T) {
	s := &session.Session{ID: "s1"}

	s.Begin(session.FlowSetup, "ask_employee_id")
	s.Setup.EmployeeID = "E1"
	s.Setup.APIKey = "secret"
	s.SelectedIssueID = "99"

	s.Begin(session.FlowCreateIssue, "ask_project")
	if s.Setup != nil {
		t.Error("setup scratch survived flow switch")
	}
	if s.LogTime != nil {
		t.Error("log-time scratch allocated unexpectedly")
	}
	if s.CreateIssue == nil {
		t.Fatal("create-issue scratch not allocated")
	}
	if s.SelectedIssueID != "99" {
		t.Error("selected issue is session-held and must survive flow entry")
	}
	if s.Flow != session.FlowCreateIssue || s.State != "ask_project" {
		t.Errorf("flow/state = %v/%v", s.Flow, s.State)
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	s := &session.Session{ID: "s1"}
	s.Begin(session.FlowLogTime, "getting_work")
	s.LogTime.Entries = []nlp.Entry{{Hours: 2}}
	s.LogTime.ProjectID = "42"

	s.Reset()
	if s.Flow != session.FlowNone || s.State != "" {
		t.Errorf("flow/state after reset = %v/%v", s.Flow, s.State)
	}
	if s.LogTime != nil || s.Setup != nil || s.CreateIssue != nil {
		t.Error("scratch data survived reset")
	}
}

func TestRegistryCreatesLazilyAndKeepsState(t *testing.T) {
	r := session.NewRegistry()

	err := r.With("u1", func(s *session.Session) error {
		s.Begin(session.FlowSetup, "ask_employee_id")
		s.Setup.EmployeeID = "E7"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	r.With("u1", func(s *session.Session) error {
		if s.Setup == nil || s.Setup.EmployeeID != "E7" {
			t.Errorf("session state not retained: %+v", s)
		}
		return nil
	})

	r.With("u2", func(s *session.Session) error {
		if s.Flow != session.FlowNone {
			t.Error("new session not idle")
		}
		return nil
	})
}

func TestRegistrySerializesPerSession(t *testing.T) {
	r := session.NewRegistry()
	const n = 50
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.With("same", func(s *session.Session) error {
				counter++ // safe only if With is exclusive
				return nil
			})
		}()
	}
	wg.Wait()
	if counter != n {
		t.Errorf("counter = %d, want %d", counter, n)
	}
}
