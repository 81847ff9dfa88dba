package siteworksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Sitework HTTP API client.
type Client struct {
	BaseURL      string
	BasePath     string
	BearerToken  string
	RefreshToken string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "api/v1",
		Timeout:  10 * time.Second,
	}
}

// TokenPair is the login/refresh response.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// ProjectSummary is one project listing entry.
type ProjectSummary struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
}

// ShiftEntry is one flattened history record.
type ShiftEntry struct {
	Type        string  `json:"type"`
	ProjectID   string  `json:"project_id"`
	ProjectName string  `json:"project_name"`
	TaskID      string  `json:"task_id"`
	TaskName    string  `json:"task_name"`
	SubtaskID   string  `json:"subtask_id"`
	SubtaskName string  `json:"subtask_name"`
	StartTime   string  `json:"start_time"`
	EndTime     *string `json:"end_time"`
	Status      string  `json:"status"`
}

// ReportLink is uploaded file metadata.
type ReportLink struct {
	Title string `json:"title,omitempty"`
	Href  string `json:"href"`
}

// OperationResult is the structured outcome of a targeted mutation.
type OperationResult struct {
	Result    string `json:"result"`
	ProjectID string `json:"project_id,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login authenticates and stores the returned tokens on the client.
func (c *Client) Login(ctx context.Context, email, password string) (TokenPair, error) {
	var pair TokenPair
	err := c.do(ctx, http.MethodPost, c.apiPath("auth/login"), map[string]any{
		"email":    email,
		"password": password,
	}, &pair)
	if err != nil {
		return TokenPair{}, err
	}
	c.BearerToken = pair.AccessToken
	c.RefreshToken = pair.RefreshToken
	return pair, nil
}

// Refresh rotates the stored refresh token.
func (c *Client) Refresh(ctx context.Context) (TokenPair, error) {
	var pair TokenPair
	err := c.do(ctx, http.MethodPost, c.apiPath("auth/refresh"), map[string]any{
		"refresh_token": c.RefreshToken,
	}, &pair)
	if err != nil {
		return TokenPair{}, err
	}
	c.BearerToken = pair.AccessToken
	c.RefreshToken = pair.RefreshToken
	return pair, nil
}

// Projects lists the caller's projects.
func (c *Client) Projects(ctx context.Context) ([]ProjectSummary, error) {
	var resp []ProjectSummary
	err := c.do(ctx, http.MethodGet, c.apiPath("projects"), nil, &resp)
	return resp, err
}

// StartShift opens intervals on the selected tasks and subtasks.
func (c *Client) StartShift(ctx context.Context, projectID string, taskIDs, subtaskIDs []string) error {
	return c.do(ctx, http.MethodPost, c.apiPath("shifts/start"), map[string]any{
		"project_id":  projectID,
		"task_ids":    taskIDs,
		"subtask_ids": subtaskIDs,
	}, nil)
}

// StopShift closes open intervals on the selected tasks and subtasks.
func (c *Client) StopShift(ctx context.Context, projectID string, taskIDs, subtaskIDs []string) error {
	return c.do(ctx, http.MethodPost, c.apiPath("shifts/stop"), map[string]any{
		"project_id":  projectID,
		"task_ids":    taskIDs,
		"subtask_ids": subtaskIDs,
	}, nil)
}

// ShiftStatus returns "working" or "not_working".
func (c *Client) ShiftStatus(ctx context.Context, projectID string) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	endpoint := c.apiPath("shifts/status")
	if projectID != "" {
		endpoint += "?project_id=" + url.QueryEscape(projectID)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Status, err
}

// ShiftHistory returns the flattened interval log.
func (c *Client) ShiftHistory(ctx context.Context, projectID string) ([]ShiftEntry, error) {
	var resp []ShiftEntry
	endpoint := c.apiPath("shifts/history")
	if projectID != "" {
		endpoint += "?project_id=" + url.QueryEscape(projectID)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AttachReportLinks appends link metadata to a subtask.
func (c *Client) AttachReportLinks(ctx context.Context, projectID, stageID, workKindID, workTypeID, taskID, subtaskID string, links []ReportLink) (OperationResult, error) {
	var resp OperationResult
	endpoint := c.apiPath(fmt.Sprintf("projects/%s/reports", url.PathEscape(projectID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{
		"stage_id":     stageID,
		"work_kind_id": workKindID,
		"work_type_id": workTypeID,
		"task_id":      taskID,
		"subtask_id":   subtaskID,
		"links":        links,
	}, &resp)
	return resp, err
}

// SetField writes a value at a dot-separated document path.
func (c *Client) SetField(ctx context.Context, projectID, fieldPath string, value any) (OperationResult, error) {
	var resp OperationResult
	endpoint := c.apiPath(fmt.Sprintf("projects/%s/fields", url.PathEscape(projectID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{
		"path":  fieldPath,
		"value": value,
	}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) apiPath(p string) string {
	base := strings.Trim(c.BasePath, "/")
	if base == "" {
		base = "api/v1"
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
