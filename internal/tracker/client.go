package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response from the Redmine API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("redmine API error %d: %s", e.StatusCode, e.Body)
}

// Client is an authenticated Redmine REST client. It is stateless and
// safe for concurrent use once constructed.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a client for the Redmine instance at baseURL. A trailing
// slash on the URL is tolerated.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// do issues one API call. payload (if non-nil) is sent as the JSON body;
// out (if non-nil) receives the decoded response. A 204 response is
// success with no body regardless of out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Redmine-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("redmine request failed: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding redmine response: %w", err)
	}
	return nil
}

// ListIssues returns issues matching the filter, defaulting to open
// issues assigned to the authenticated user.
func (c *Client) ListIssues(ctx context.Context, filter IssueFilter) ([]Issue, error) {
	if filter.AssignedToID == "" {
		filter.AssignedToID = "me"
	}
	if filter.StatusID == "" {
		filter.StatusID = "open"
	}
	if filter.Limit <= 0 {
		filter.Limit = 25
	}
	q := url.Values{
		"assigned_to_id": {filter.AssignedToID},
		"status_id":      {filter.StatusID},
		"limit":          {strconv.Itoa(filter.Limit)},
	}
	if filter.ProjectID != "" {
		q.Set("project_id", filter.ProjectID)
	}
	var out struct {
		Issues []Issue `json:"issues"`
	}
	if err := c.do(ctx, http.MethodGet, "issues.json", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Issues, nil
}

func (c *Client) GetIssue(ctx context.Context, id int) (*Issue, error) {
	var out struct {
		Issue Issue `json:"issue"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("issues/%d.json", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Issue, nil
}

// CreateIssue creates an issue and returns it as echoed by the server.
func (c *Client) CreateIssue(ctx context.Context, fields IssueFields) (*Issue, error) {
	payload := map[string]IssueFields{"issue": fields}
	var out struct {
		Issue Issue `json:"issue"`
	}
	if err := c.do(ctx, http.MethodPost, "issues.json", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out.Issue, nil
}

func (c *Client) UpdateIssue(ctx context.Context, id int, fields IssueFields) error {
	payload := map[string]IssueFields{"issue": fields}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("issues/%d.json", id), nil, payload, nil)
}

func (c *Client) ListProjects(ctx context.Context, limit int) ([]Project, error) {
	if limit <= 0 {
		limit = 100
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	var out struct {
		Projects []Project `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, "projects.json", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var out struct {
		Project Project `json:"project"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("projects/%s.json", url.PathEscape(id)), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Project, nil
}

func (c *Client) ListTrackers(ctx context.Context) ([]Ref, error) {
	var out struct {
		Trackers []Ref `json:"trackers"`
	}
	if err := c.do(ctx, http.MethodGet, "trackers.json", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Trackers, nil
}

// ListTimeEntryActivities returns the live activity enumeration in
// server order. Callers rely on that order for fallback matching.
func (c *Client) ListTimeEntryActivities(ctx context.Context) ([]Activity, error) {
	var out struct {
		Activities []Activity `json:"time_entry_activities"`
	}
	if err := c.do(ctx, http.MethodGet, "enumerations/time_entry_activities.json", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Activities, nil
}

func (c *Client) CreateTimeEntry(ctx context.Context, fields TimeEntryFields) (*TimeEntry, error) {
	payload := map[string]TimeEntryFields{"time_entry": fields}
	var out struct {
		TimeEntry TimeEntry `json:"time_entry"`
	}
	if err := c.do(ctx, http.MethodPost, "time_entries.json", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out.TimeEntry, nil
}

func (c *Client) ListTimeEntries(ctx context.Context, filter TimeEntryFilter) ([]TimeEntry, error) {
	if filter.UserID == "" {
		filter.UserID = "me"
	}
	q := url.Values{"user_id": {filter.UserID}}
	if filter.From != "" {
		q.Set("from", filter.From)
	}
	if filter.To != "" {
		q.Set("to", filter.To)
	}
	var out struct {
		TimeEntries []TimeEntry `json:"time_entries"`
	}
	if err := c.do(ctx, http.MethodGet, "time_entries.json", q, nil, &out); err != nil {
		return nil, err
	}
	return out.TimeEntries, nil
}

func (c *Client) UpdateTimeEntry(ctx context.Context, id int, fields TimeEntryFields) error {
	payload := map[string]TimeEntryFields{"time_entry": fields}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("time_entries/%d.json", id), nil, payload, nil)
}

// CurrentUser fetches the account the API key belongs to. It doubles as
// a credential check during setup.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "users/current.json", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}
