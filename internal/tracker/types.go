package tracker

// Ref is the id+name pair Redmine embeds for associations
// (project, status, priority, tracker, activity, assignee).
type Ref struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Issue is a Redmine issue as returned by issues.json.
type Issue struct {
	ID          int    `json:"id"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Project     Ref    `json:"project"`
	Status      Ref    `json:"status"`
	Priority    Ref    `json:"priority"`
	Tracker     Ref    `json:"tracker"`
	AssignedTo  Ref    `json:"assigned_to"`
}

// Project is a Redmine project.
type Project struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Identifier  string `json:"identifier"`
	Description string `json:"description"`
}

// Activity is one entry of the time-entry activity enumeration.
type Activity struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// User is the authenticated Redmine account from users/current.json.
type User struct {
	ID        int    `json:"id"`
	Login     string `json:"login"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

// TimeEntry is a logged time entry as returned by time_entries.json.
type TimeEntry struct {
	ID       int     `json:"id"`
	SpentOn  string  `json:"spent_on"`
	Hours    float64 `json:"hours"`
	Activity Ref     `json:"activity"`
	Comments string  `json:"comments"`
	Project  Ref     `json:"project"`
	Issue    struct {
		ID int `json:"id"`
	} `json:"issue"`
}

// IssueFields is the payload for creating or updating an issue.
type IssueFields struct {
	ProjectID    int    `json:"project_id,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Description  string `json:"description,omitempty"`
	PriorityID   int    `json:"priority_id,omitempty"`
	TrackerID    int    `json:"tracker_id,omitempty"`
	AssignedToID int    `json:"assigned_to_id,omitempty"`
	StatusID     int    `json:"status_id,omitempty"`
}

// TimeEntryFields is the payload for creating or updating a time entry.
// IssueID stays a string on purpose: unresolved entries carry a sentinel
// value and the server decides whether to accept it.
type TimeEntryFields struct {
	ProjectID  string  `json:"project_id,omitempty"`
	IssueID    string  `json:"issue_id,omitempty"`
	SpentOn    string  `json:"spent_on,omitempty"`
	Hours      float64 `json:"hours,omitempty"`
	ActivityID int     `json:"activity_id,omitempty"`
	Comments   string  `json:"comments,omitempty"`
}

// IssueFilter narrows ListIssues. Zero values fall back to the
// "my open issues" defaults.
type IssueFilter struct {
	AssignedToID string // default "me"
	StatusID     string // default "open"
	ProjectID    string
	Limit        int // default 25
}

// TimeEntryFilter narrows ListTimeEntries. Dates are YYYY-MM-DD.
type TimeEntryFilter struct {
	UserID string // default "me"
	From   string
	To     string
}
