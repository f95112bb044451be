// Package agentapi is the REST + SSE client for the hosted agent backend.
// It covers session CRUD, the historical event log, artifact access,
// evaluation-set management, and the streaming run endpoint.
package agentapi

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

	"github.com/charmbracelet/log"

	"cosmconsole/internal/logger"
	"cosmconsole/pkg/cosmtypes"
)

// APIError is a non-2xx response from the backend, carrying the HTTP status
// and the backend's detail message when its error body could be decoded.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// Client talks to one agent backend on behalf of one app and user.
type Client struct {
	baseURL string
	appName string
	userID  string
	http    *http.Client
	log     *log.Logger
}

// New creates a backend client. The base URL may point at either the server
// root or a run_live URL; run URLs are derived by rewriting (see runURL).
func New(baseURL, appName, userID string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		appName: appName,
		userID:  userID,
		http:    &http.Client{},
		log:     logger.NewStyledLogger("Stream"),
	}
}

// NewWithHTTPClient creates a client with a caller-supplied HTTP client,
// used by tests and by callers that need custom transports.
func NewWithHTTPClient(baseURL, appName, userID string, httpClient *http.Client) *Client {
	c := New(baseURL, appName, userID)
	c.http = httpClient
	return c
}

// AppName returns the app identifier this client addresses.
func (c *Client) AppName() string { return c.appName }

// ForApp returns a client addressing a different app on the same backend,
// sharing the underlying HTTP client.
func (c *Client) ForApp(appName string) *Client {
	return &Client{
		baseURL: c.baseURL,
		appName: appName,
		userID:  c.userID,
		http:    c.http,
		log:     c.log,
	}
}

// UserID returns the user identifier this client addresses.
func (c *Client) UserID() string { return c.userID }

// sessionsPath is the base path for this client's session collection.
func (c *Client) sessionsPath() string {
	return fmt.Sprintf("/apps/%s/users/%s/sessions", url.PathEscape(c.appName), url.PathEscape(c.userID))
}

// runURL derives the streaming run endpoint. Operators sometimes configure
// the backend's run_live URL; the SSE endpoint lives at run_sse on the same
// server, so a trailing /run_live is rewritten rather than appended to.
func (c *Client) runURL() string {
	if strings.HasSuffix(c.baseURL, "/run_live") {
		return strings.TrimSuffix(c.baseURL, "/run_live") + "/run_sse"
	}
	if strings.HasSuffix(c.baseURL, "/run_sse") {
		return c.baseURL
	}
	return c.baseURL + "/run_sse"
}

// serverRoot strips a configured run endpoint back to the server root so the
// REST paths resolve correctly regardless of which form was configured.
func (c *Client) serverRoot() string {
	root := strings.TrimSuffix(c.baseURL, "/run_live")
	root = strings.TrimSuffix(root, "/run_sse")
	return root
}

// ListApps returns the app identifiers the backend serves.
func (c *Client) ListApps(ctx context.Context) ([]string, error) {
	var apps []string
	if err := c.doJSON(ctx, http.MethodGet, "/list-apps", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// CreateSession creates and returns a new session record.
func (c *Client) CreateSession(ctx context.Context) (*cosmtypes.Session, error) {
	var session cosmtypes.Session
	body := map[string]interface{}{"state": map[string]interface{}{}}
	if err := c.doJSON(ctx, http.MethodPost, c.sessionsPath(), body, &session); err != nil {
		return nil, err
	}
	c.log.Debug("session created", "session", session.ID)
	return &session, nil
}

// ListSessions returns all of this user's sessions, including their events.
func (c *Client) ListSessions(ctx context.Context) ([]cosmtypes.Session, error) {
	var sessions []cosmtypes.Session
	if err := c.doJSON(ctx, http.MethodGet, c.sessionsPath(), nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession fetches one session with its full event history.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*cosmtypes.Session, error) {
	var session cosmtypes.Session
	path := c.sessionsPath() + "/" + url.PathEscape(sessionID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes one session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	path := c.sessionsPath() + "/" + url.PathEscape(sessionID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// ListArtifacts returns the artifact names stored for a session.
func (c *Client) ListArtifacts(ctx context.Context, sessionID string) ([]string, error) {
	var names []string
	path := c.sessionsPath() + "/" + url.PathEscape(sessionID) + "/artifacts"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// GetArtifact downloads the latest version of one artifact. The payload shape
// depends on the artifact's mime type, so it is returned undecoded.
func (c *Client) GetArtifact(ctx context.Context, sessionID, name string) (json.RawMessage, error) {
	var raw json.RawMessage
	path := c.sessionsPath() + "/" + url.PathEscape(sessionID) + "/artifacts/" + url.PathEscape(name)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ListArtifactVersions returns the stored version numbers of one artifact.
func (c *Client) ListArtifactVersions(ctx context.Context, sessionID, name string) ([]int, error) {
	var versions []int
	path := c.sessionsPath() + "/" + url.PathEscape(sessionID) + "/artifacts/" + url.PathEscape(name) + "/versions"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// GetArtifactVersion downloads one specific version of an artifact.
func (c *Client) GetArtifactVersion(ctx context.Context, sessionID, name string, version int) (json.RawMessage, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("%s/%s/artifacts/%s/versions/%d",
		c.sessionsPath(), url.PathEscape(sessionID), url.PathEscape(name), version)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) evalSetsPath() string {
	return fmt.Sprintf("/apps/%s/eval_sets", url.PathEscape(c.appName))
}

// CreateEvalSet creates a named evaluation set for this app.
func (c *Client) CreateEvalSet(ctx context.Context, name string) error {
	return c.doJSON(ctx, http.MethodPost, c.evalSetsPath()+"/"+url.PathEscape(name), nil, nil)
}

// ListEvalSets returns the app's evaluation-set names.
func (c *Client) ListEvalSets(ctx context.Context) ([]string, error) {
	var sets []string
	if err := c.doJSON(ctx, http.MethodGet, c.evalSetsPath(), nil, &sets); err != nil {
		return nil, err
	}
	return sets, nil
}

// AddSessionToEvalSet records a session as an evaluation case.
func (c *Client) AddSessionToEvalSet(ctx context.Context, evalSet, evalID, sessionID string) error {
	body := map[string]string{
		"eval_id":    evalID,
		"session_id": sessionID,
		"user_id":    c.userID,
	}
	path := c.evalSetsPath() + "/" + url.PathEscape(evalSet) + "/add_session"
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

// ListEvals returns the evaluation case ids within one set.
func (c *Client) ListEvals(ctx context.Context, evalSet string) ([]string, error) {
	var evals []string
	path := c.evalSetsPath() + "/" + url.PathEscape(evalSet) + "/evals"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &evals); err != nil {
		return nil, err
	}
	return evals, nil
}

// RunEval runs evaluation cases and returns the backend's raw result report.
func (c *Client) RunEval(ctx context.Context, evalSet string, evalIDs []string) (json.RawMessage, error) {
	var raw json.RawMessage
	body := map[string]interface{}{"eval_ids": evalIDs, "eval_metrics": []interface{}{}}
	path := c.evalSetsPath() + "/" + url.PathEscape(evalSet) + "/run_eval"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Run sends one user message to the streaming run endpoint and returns the
// resulting event stream. A non-2xx status surfaces as *APIError before any
// event is produced; cancelling ctx aborts the stream.
func (c *Client) Run(ctx context.Context, sessionID, text string) (*EventStream, error) {
	payload := map[string]interface{}{
		"app_name":   c.appName,
		"user_id":    c.userID,
		"session_id": sessionID,
		"new_message": map[string]interface{}{
			"role":  "user",
			"parts": []map[string]string{{"text": text}},
		},
		"streaming": true,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.runURL(), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	c.log.Debug("stream open", "session", sessionID, "url", c.runURL())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("run request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readErrorDetail(resp.Body)
		_ = resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode, Detail: detail}
	}

	return newEventStream(resp.Body, c.log), nil
}

// doJSON issues one JSON request against the server root and decodes the
// response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverRoot()+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Detail: readErrorDetail(resp.Body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// readErrorDetail extracts the backend's {"detail": ...} message when present,
// otherwise a trimmed slice of the raw body.
func readErrorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var envelope struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Detail != "" {
		return envelope.Detail
	}
	return strings.TrimSpace(string(data))
}

// MostRecent picks the newest session by creation timestamp, or nil.
func MostRecent(sessions []cosmtypes.Session) *cosmtypes.Session {
	var newest *cosmtypes.Session
	var newestAt time.Time
	for i := range sessions {
		at := sessions[i].CreatedAt()
		if newest == nil || at.After(newestAt) {
			newest = &sessions[i]
			newestAt = at
		}
	}
	return newest
}
