package bot_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/avoytenko/timetalk/internal/bot"
	"github.com/avoytenko/timetalk/internal/nlp"
	"github.com/avoytenko/timetalk/internal/store"
	"github.com/avoytenko/timetalk/internal/tracker"
)

var fixedNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

type sentMsg struct {
	session string
	text    string
	buttons []bot.ButtonSpec
}

type fakeResponder struct {
	msgs []sentMsg
}

func (f *fakeResponder) SendMessage(sessionID, text string) error {
	f.msgs = append(f.msgs, sentMsg{session: sessionID, text: text})
	return nil
}

func (f *fakeResponder) SendButtons(sessionID, text string, buttons []bot.ButtonSpec) error {
	f.msgs = append(f.msgs, sentMsg{session: sessionID, text: text, buttons: buttons})
	return nil
}

func (f *fakeResponder) last(t *testing.T) sentMsg {
	t.Helper()
	if len(f.msgs) == 0 {
		t.Fatal("no messages sent")
	}
	return f.msgs[len(f.msgs)-1]
}

func (f *fakeResponder) reset() { f.msgs = nil }

func (f *fakeResponder) allText() string {
	var parts []string
	for _, m := range f.msgs {
		parts = append(parts, m.text)
	}
	return strings.Join(parts, "\n---\n")
}

type fakeTracker struct {
	lastURL, lastKey string

	user    *tracker.User
	userErr error

	projects    []tracker.Project
	projectsErr error
	trackers    []tracker.Ref
	activities  []tracker.Activity
	issues      []tracker.Issue
	timeEntries []tracker.TimeEntry

	createdIssue      *tracker.Issue
	createIssueFields *tracker.IssueFields

	createTimeEntry func(tracker.TimeEntryFields) error
	submitted       []tracker.TimeEntryFields
}

func (f *fakeTracker) CurrentUser(context.Context) (*tracker.User, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.user, nil
}

func (f *fakeTracker) ListIssues(context.Context, tracker.IssueFilter) ([]tracker.Issue, error) {
	return f.issues, nil
}

func (f *fakeTracker) CreateIssue(_ context.Context, fields tracker.IssueFields) (*tracker.Issue, error) {
	f.createIssueFields = &fields
	return f.createdIssue, nil
}

func (f *fakeTracker) ListProjects(context.Context, int) ([]tracker.Project, error) {
	return f.projects, f.projectsErr
}

func (f *fakeTracker) ListTrackers(context.Context) ([]tracker.Ref, error) {
	return f.trackers, nil
}

func (f *fakeTracker) ListTimeEntryActivities(context.Context) ([]tracker.Activity, error) {
	return f.activities, nil
}

func (f *fakeTracker) CreateTimeEntry(_ context.Context, fields tracker.TimeEntryFields) (*tracker.TimeEntry, error) {
	f.submitted = append(f.submitted, fields)
	if f.createTimeEntry != nil {
		if err := f.createTimeEntry(fields); err != nil {
			return nil, err
		}
	}
	return &tracker.TimeEntry{ID: len(f.submitted)}, nil
}

func (f *fakeTracker) ListTimeEntries(context.Context, tracker.TimeEntryFilter) ([]tracker.TimeEntry, error) {
	return f.timeEntries, nil
}

type fakeParser struct {
	entries       []nlp.Entry
	err           error
	gotWorkLog    string
	gotActivities []string
	summary       string
}

func (f *fakeParser) ParseEntries(_ context.Context, workLog string, activityNames []string, _ time.Time) ([]nlp.Entry, error) {
	f.gotWorkLog = workLog
	f.gotActivities = activityNames
	return f.entries, f.err
}

func (f *fakeParser) SummarizeWork(context.Context, []nlp.Entry) (string, error) {
	return f.summary, nil
}

type testRig struct {
	engine    *bot.Engine
	responder *fakeResponder
	tracker   *fakeTracker
	parser    *fakeParser
	store     *store.Store
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rig := &testRig{
		responder: &fakeResponder{},
		tracker: &fakeTracker{
			user: &tracker.User{ID: 55, Login: "jdoe"},
			activities: []tracker.Activity{
				{ID: 8, Name: "Design"},
				{ID: 9, Name: "Development"},
			},
		},
		parser: &fakeParser{},
		store:  st,
	}
	rig.engine = bot.New(bot.Config{
		Store:     st,
		Parser:    rig.parser,
		Responder: rig.responder,
		NewTracker: func(baseURL, apiKey string) bot.Tracker {
			rig.tracker.lastURL = baseURL
			rig.tracker.lastKey = apiKey
			return rig.tracker
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return fixedNow },
	})
	return rig
}

const sess = "sess-1"

func (r *testRig) trigger(trg bot.Trigger) {
	r.engine.HandleTrigger(context.Background(), sess, trg)
}

func (r *testRig) seedProfile(t *testing.T, defaultProject string) {
	t.Helper()
	err := r.store.Upsert(&store.Profile{
		SessionID:        sess,
		EmployeeID:       "E100",
		Name:             "jdoe",
		TrackerURL:       "https://redmine.example.com",
		APIKey:           "valid-api-key-123",
		DefaultProjectID: defaultProject,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSetupFlowURLValidationAndSkip(t *testing.T) {
	rig := newRig(t)

	rig.trigger(bot.Command{Name: "setup"})
	rig.trigger(bot.Text{Body: "E100"})

	// no scheme: rejected, state does not advance
	rig.trigger(bot.Text{Body: "example.com/redmine"})
	if !strings.Contains(rig.responder.last(t).text, "Invalid URL") {
		t.Fatalf("bare host accepted: %q", rig.responder.last(t).text)
	}

	// still in the URL state: a valid URL now advances
	rig.trigger(bot.Text{Body: "https://redmine.example.com"})
	if !strings.Contains(rig.responder.last(t).text, "Step 3/4") {
		t.Fatalf("valid URL did not advance: %q", rig.responder.last(t).text)
	}

	rig.trigger(bot.Text{Body: "my-api-key"})
	if !strings.Contains(rig.responder.last(t).text, "jdoe") {
		t.Fatalf("key validation did not echo login: %q", rig.responder.last(t).text)
	}
	if rig.tracker.lastURL != "https://redmine.example.com" || rig.tracker.lastKey != "my-api-key" {
		t.Errorf("validation client built with %q/%q", rig.tracker.lastURL, rig.tracker.lastKey)
	}

	// skip is case-insensitive and stores no default project
	rig.trigger(bot.Text{Body: "Skip"})
	if !strings.Contains(rig.responder.last(t).text, "Setup complete") {
		t.Fatalf("setup did not complete: %q", rig.responder.last(t).text)
	}

	p, err := rig.store.GetBySessionID(sess)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Fatal("no profile stored")
	}
	if p.DefaultProjectID != "" {
		t.Errorf("default project = %q, want empty after skip", p.DefaultProjectID)
	}
	if p.EmployeeID != "E100" || p.APIKey != "my-api-key" || p.Name != "jdoe" {
		t.Errorf("profile = %+v", p)
	}
}

func TestSetupStoresDefaultProject(t *testing.T) {
	rig := newRig(t)
	rig.trigger(bot.Command{Name: "setup"})
	rig.trigger(bot.Text{Body: "E100"})
	rig.trigger(bot.Text{Body: "https://redmine.example.com"})
	rig.trigger(bot.Text{Body: "key"})
	rig.trigger(bot.Text{Body: "42"})

	p, _ := rig.store.GetBySessionID(sess)
	if p == nil || p.DefaultProjectID != "42" {
		t.Fatalf("profile = %+v, want default project 42", p)
	}
}

func TestSetupInvalidAPIKeyStaysInState(t *testing.T) {
	rig := newRig(t)
	rig.trigger(bot.Command{Name: "setup"})
	rig.trigger(bot.Text{Body: "E100"})
	rig.trigger(bot.Text{Body: "https://redmine.example.com"})

	rig.tracker.userErr = fmt.Errorf("redmine API error 401: unauthorized")
	rig.trigger(bot.Text{Body: "bad-key"})
	if !strings.Contains(rig.responder.last(t).text, "Invalid API key") {
		t.Fatalf("bad key not rejected: %q", rig.responder.last(t).text)
	}

	// same state accepts a corrected key
	rig.tracker.userErr = nil
	rig.trigger(bot.Text{Body: "good-key"})
	if !strings.Contains(rig.responder.last(t).text, "Step 4/4") {
		t.Fatalf("corrected key did not advance: %q", rig.responder.last(t).text)
	}
}

func TestCancelAlwaysWins(t *testing.T) {
	rig := newRig(t)
	rig.trigger(bot.Command{Name: "setup"})
	rig.trigger(bot.Text{Body: "E100"})

	rig.trigger(bot.Command{Name: "cancel"})
	if !strings.Contains(rig.responder.last(t).text, "cancelled") {
		t.Fatalf("cancel not acknowledged: %q", rig.responder.last(t).text)
	}

	// the session is idle again: free text hits the intent router,
	// not the setup wizard
	rig.responder.reset()
	rig.trigger(bot.Text{Body: "hello"})
	if !strings.Contains(rig.responder.last(t).text, "not sure what you mean") {
		t.Fatalf("session not idle after cancel: %q", rig.responder.last(t).text)
	}
}

func TestFlowsRequireProfile(t *testing.T) {
	rig := newRig(t)
	for _, trg := range []bot.Trigger{
		bot.Command{Name: "logtime"},
		bot.Command{Name: "myissues"},
		bot.Command{Name: "projects"},
		bot.Command{Name: "createissue"},
		bot.Command{Name: "settings"},
	} {
		rig.responder.reset()
		rig.trigger(trg)
		if !strings.Contains(rig.responder.last(t).text, "/setup") {
			t.Errorf("%+v without profile: %q, want a /setup hint", trg, rig.responder.last(t).text)
		}
	}
}

func TestLogTimeBatchResilience(t *testing.T) {
	rig := newRig(t)
	rig.seedProfile(t, "42")

	entries := make([]nlp.Entry, 5)
	for i := range entries {
		entries[i] = nlp.Entry{
			Date:     fmt.Sprintf("2026-08-2%d", i+1),
			Hours:    1,
			Activity: "development",
			Comments: fmt.Sprintf("work %d", i+1),
			IssueID:  fmt.Sprintf("%d", 100+i),
		}
	}
	rig.parser.entries = entries

	// entries 2 and 4 (issues 101, 103) are rejected with a 422
	rig.tracker.createTimeEntry = func(f tracker.TimeEntryFields) error {
		if f.IssueID == "101" || f.IssueID == "103" {
			return &tracker.APIError{StatusCode: 422, Body: "Issue is invalid"}
		}
		return nil
	}

	rig.trigger(bot.Command{Name: "logtime"})
	rig.trigger(bot.Text{Body: "five days of work"})

	summary := rig.responder.last(t)
	if !strings.Contains(summary.text, "Total: 5 hours") {
		t.Fatalf("summary = %q, want total of 5 hours", summary.text)
	}
	if len(summary.buttons) != 2 {
		t.Fatalf("confirmation buttons = %+v", summary.buttons)
	}

	rig.trigger(bot.Button{Payload: "confirm_log"})
	report := rig.responder.last(t).text
	if !strings.Contains(report, "Logged 3 time entries successfully") {
		t.Fatalf("report = %q, want success count 3", report)
	}
	if n := strings.Count(report, "might be closed or invalid"); n != 2 {
		t.Errorf("report has %d failure lines, want 2:\n%s", n, report)
	}

	// all five were attempted despite the failures
	if len(rig.tracker.submitted) != 5 {
		t.Fatalf("submitted %d entries, want 5 (no fail-fast)", len(rig.tracker.submitted))
	}
	for _, f := range rig.tracker.submitted {
		if f.ProjectID != "42" {
			t.Errorf("entry submitted with project %q, want 42", f.ProjectID)
		}
		if f.ActivityID != 9 {
			t.Errorf("entry submitted with activity %d, want reconciled 9", f.ActivityID)
		}
	}

	// scratch fully cleared: next text is routed as idle
	rig.responder.reset()
	rig.trigger(bot.Text{Body: "hello"})
	if !strings.Contains(rig.responder.last(t).text, "not sure") {
		t.Errorf("session not idle after batch: %q", rig.responder.last(t).text)
	}
}

func TestLogTimeConfirmWithoutProjectFails(t *testing.T) {
	rig := newRig(t)
	rig.seedProfile(t, "") // no default project
	rig.parser.entries = []nlp.Entry{{Date: "2026-08-29", Hours: 2, Activity: "dev", Comments: "c", IssueID: "7"}}

	rig.trigger(bot.Command{Name: "logtime"})
	rig.trigger(bot.Text{Body: "worked 2h"})
	rig.trigger(bot.Button{Payload: "confirm_log"})

	if !strings.Contains(rig.responder.last(t).text, "Run /setup or /logtime again") {
		t.Fatalf("missing-project message = %q", rig.responder.last(t).text)
	}
	if len(rig.tracker.submitted) != 0 {
		t.Errorf("entries submitted without a project: %+v", rig.tracker.submitted)
	}
}

func TestLogTimeCancelSubmitsNothing(t *testing.T) {
	rig := newRig(t)
	rig.seedProfile(t, "42")
	rig.parser.entries = []nlp.Entry{{Date: "2026-08-29", Hours: 2, Activity: "dev", Comments: "c", IssueID: "7"}}

	rig.trigger(bot.Command{Name: "logtime"})
	rig.trigger(bot.Text{Body: "worked 2h"})
	rig.trigger(bot.Button{Payload: "cancel_log"})

	if !strings.Contains(rig.responder.last(t).text, "cancelled") {
		t.Fatalf("cancel message = %q", rig.responder.last(t).text)
	}
	if len(rig.tracker.submitted) != 0 {
		t.Errorf("entries submitted after cancel: %+v", rig.tracker.submitted)
	}
}

func TestLogTimeParseFailureEndsFlow(t *testing.T) {
	rig := newRig(t)
	rig.seedProfile(t, "42")
	rig.parser.err = fmt.Errorf("completion: %w", nlp.ErrMalformed)

	rig.trigger(bot.Command{Name: "logtime"})
	rig.trigger(bot.Text{Body: "gibberish"})
	if !strings.Contains(rig.responder.last(t).text, "Could not parse") {
		t.Fatalf("parse failure message = %q", rig.responder.last(t).text)
	}

	// flow ended; next text routes as idle
	rig.responder.reset()
	rig.trigger(bot.Text{Body: "hello"})
	if !strings.Contains(rig.responder.last(t).text, "not sure") {
		t.Errorf("flow still active after parse failure: %q", rig.responder.last(t).text)
	}
}

func TestQuickLogBackfillsSelectedIssue(t *testing.T) {
	rig := newRig(t)
	rig.seedProfile(t, "42")
	rig.parser.entries = []nlp.Entry{
		{Date: "2026-08-29", Hours: 2, Activity: "dev", Comments: "login fix", IssueID: nlp.UnknownIssue},
		{Date: "2026-08-29", Hours: 1, Activity: "dev", Comments: "explicit", IssueID: "500"},
	}

	rig.trigger(bot.Button{Payload: "logtime_777"})
	if !strings.Contains(rig.responder.last(t).text, "#777") {
		t.Fatalf("issue selection prompt = %q", rig.responder.last(t).text)
	}

	// free text while an issue is selected goes straight to parsing
	rig.trigger(bot.Text{Body: "worked 2h fixing login"})
	summary := rig.responder.last(t)
	if !strings.Contains(summary.text, "issue #777") {
		t.Fatalf("quick log heading missing: %q", summary.text)
	}

	rig.trigger(bot.Button{Payload: "confirm_log"})
	if len(rig.tracker.submitted) != 2 {
		t.Fatalf("submitted %d, want 2", len(rig.tracker.submitted))
	}
	if rig.tracker.submitted[0].IssueID != "777" {
		t.Errorf("sentinel entry submitted with issue %q, want backfilled 777", rig.tracker.submitted[0].IssueID)
	}
	if rig.tracker.submitted[1].IssueID != "500" {
		t.Errorf("explicit entry submitted with issue %q, want 500 untouched", rig.tracker.submitted[1].IssueID)
	}
}

func TestQuickLogWithoutProfileDropsSelection(t *testing.T) {
	rig := newRig(t)
	// no profile seeded

	rig.trigger(bot.Button{Payload: "logtime_777"})
	rig.trigger(bot.Text{Body: "worked 2h"})
	if !strings.Contains(rig.responder.last(t).text, "/setup") {
		t.Fatalf("quick log without profile: %q, want a /setup hint", rig.responder.last(t).text)
	}

	// the stale selection is gone: later text routes as plain idle
	// input instead of retrying the quick-log path
	rig.responder.reset()
	rig.trigger(bot.Text{Body: "hello"})
	if !strings.Contains(rig.responder.last(t).text, "not sure") {
		t.Errorf("selection survived the failure: %q", rig.responder.last(t).text)
	}
}

func TestCreateIssueFlow(t *testing.T) {
	rig := newRig(t)
	rig.seedProfile(t, "")
	rig.tracker.projects = []tracker.Project{
		{ID: 3, Name: "Website", Identifier: "web"},
		{ID: 4, Name: "Backend", Identifier: "api"},
	}
	rig.tracker.trackers = []tracker.Ref{{ID: 1, Name: "Bug"}, {ID: 2, Name: "Feature"}}
	rig.tracker.createdIssue = &tracker.Issue{ID: 9001}

	rig.trigger(bot.Command{Name: "createissue"})
	choice := rig.responder.last(t)
	if len(choice.buttons) != 2 || choice.buttons[0].Payload != "proj_3" {
		t.Fatalf("project buttons = %+v", choice.buttons)
	}

	rig.trigger(bot.Button{Payload: "proj_4"})
	if !strings.Contains(rig.responder.last(t).text, "Backend") {
		t.Fatalf("project echo = %q", rig.responder.last(t).text)
	}

	rig.trigger(bot.Text{Body: "Login breaks on Safari"})
	rig.trigger(bot.Text{Body: "Session cookie is dropped"})

	prio := rig.responder.last(t)
	if len(prio.buttons) != 4 || prio.buttons[3].Payload != "priority_4" {
		t.Fatalf("priority buttons = %+v", prio.buttons)
	}
	rig.trigger(bot.Button{Payload: "priority_3"})

	trk := rig.responder.last(t)
	if len(trk.buttons) != 2 || trk.buttons[0].Payload != "tracker_1" {
		t.Fatalf("tracker buttons = %+v", trk.buttons)
	}
	rig.trigger(bot.Button{Payload: "tracker_1"})

	confirm := rig.responder.last(t)
	for _, want := range []string{"Backend", "Login breaks on Safari", "High", "Bug"} {
		if !strings.Contains(confirm.text, want) {
			t.Errorf("confirmation missing %q:\n%s", want, confirm.text)
		}
	}

	rig.trigger(bot.Button{Payload: "confirm_create"})
	if !strings.Contains(rig.responder.last(t).text, "#9001") {
		t.Fatalf("creation report = %q", rig.responder.last(t).text)
	}

	got := rig.tracker.createIssueFields
	if got == nil {
		t.Fatal("CreateIssue not called")
	}
	if got.ProjectID != 4 || got.PriorityID != 3 || got.TrackerID != 1 {
		t.Errorf("issue fields = %+v", got)
	}
	if got.AssignedToID != 55 {
		t.Errorf("assignee = %d, want self (55)", got.AssignedToID)
	}
}

func TestCreateIssueNoProjectsEndsFlow(t *testing.T) {
	rig := newRig(t)
	rig.seedProfile(t, "")
	rig.tracker.projects = nil

	rig.trigger(bot.Command{Name: "createissue"})
	if !strings.Contains(rig.responder.last(t).text, "No projects available") {
		t.Fatalf("message = %q", rig.responder.last(t).text)
	}

	// no flow was entered
	rig.responder.reset()
	rig.trigger(bot.Text{Body: "hello"})
	if !strings.Contains(rig.responder.last(t).text, "not sure") {
		t.Errorf("flow unexpectedly active: %q", rig.responder.last(t).text)
	}
}

func TestIdleIntentRouting(t *testing.T) {
	rig := newRig(t)
	rig.seedProfile(t, "")
	rig.tracker.issues = []tracker.Issue{{ID: 12, Subject: "Fix header"}}

	rig.trigger(bot.Text{Body: "show my issues please"})
	card := rig.responder.last(t)
	if !strings.Contains(card.text, "#12 - Fix header") {
		t.Fatalf("issue card = %q", card.text)
	}
	if len(card.buttons) != 1 || card.buttons[0].Payload != "logtime_12" {
		t.Errorf("issue card buttons = %+v", card.buttons)
	}

	rig.responder.reset()
	rig.trigger(bot.Text{Body: "how do I log my hours"})
	if !strings.Contains(rig.responder.last(t).text, "/logtime") {
		t.Errorf("time hint = %q", rig.responder.last(t).text)
	}
}

func TestSettingsMasksAPIKey(t *testing.T) {
	rig := newRig(t)
	rig.seedProfile(t, "42")

	rig.trigger(bot.Command{Name: "settings"})
	text := rig.responder.last(t).text
	if strings.Contains(text, "valid-api-key-123") {
		t.Fatal("full API key displayed in settings")
	}
	if !strings.Contains(text, "valid-api-...") {
		t.Errorf("masked key prefix missing: %q", text)
	}
	if !strings.Contains(text, "42") {
		t.Errorf("default project missing: %q", text)
	}
}

func TestCommandMidFlowDoesNotAdvance(t *testing.T) {
	rig := newRig(t)
	rig.trigger(bot.Command{Name: "setup"})
	rig.trigger(bot.Text{Body: "E100"})

	rig.trigger(bot.Command{Name: "menu"})
	if !strings.Contains(rig.responder.last(t).text, "middle of setup") {
		t.Fatalf("mid-flow command reply = %q", rig.responder.last(t).text)
	}

	// wizard still waiting for the URL
	rig.trigger(bot.Text{Body: "https://redmine.example.com"})
	if !strings.Contains(rig.responder.last(t).text, "Step 3/4") {
		t.Errorf("wizard state lost: %q", rig.responder.last(t).text)
	}
}
