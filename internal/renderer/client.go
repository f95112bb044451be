// Package renderer is the client for the landing-page renderer/deployment
// microservice. The builder agents hand their generated assets to this
// service; the console uses it to deploy, inspect metrics, and record
// tracking events.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Assets are the generated site files handed to the renderer.
type Assets struct {
	HTMLTemplate string `json:"html_template"`
	CSSStyles    string `json:"css_styles"`
	JavaScript   string `json:"javascript"`
}

// DeploymentRequest is the deploy payload: assets plus the content and
// metadata the template is rendered with.
type DeploymentRequest struct {
	SiteName    string                 `json:"site_name"`
	Assets      Assets                 `json:"assets"`
	ContentData map[string]interface{} `json:"content_data"`
	MetaData    map[string]interface{} `json:"meta_data"`
}

// PitchRequest deploys a generated startup pitch deck.
type PitchRequest struct {
	SiteName  string                 `json:"site_name"`
	PitchData map[string]interface{} `json:"pitch_data"`
	MetaData  map[string]interface{} `json:"meta_data"`
}

// Deployment is the renderer's response to a deploy call.
type Deployment struct {
	Success           bool                   `json:"success"`
	SiteID            string                 `json:"site_id"`
	LiveURL           string                 `json:"live_url"`
	PreviewURL        string                 `json:"preview_url,omitempty"`
	AdminURL          string                 `json:"admin_url,omitempty"`
	AnalyticsURL      string                 `json:"analytics_url,omitempty"`
	Status            string                 `json:"status,omitempty"`
	PerformanceScore  float64                `json:"performance_score,omitempty"`
	SEOScore          float64                `json:"seo_score,omitempty"`
	ConversionScore   float64                `json:"conversion_score,omitempty"`
	DeploymentDetails map[string]interface{} `json:"deployment_details,omitempty"`
}

// Metrics is a deployed site's analytics snapshot.
type Metrics struct {
	SiteID      string                 `json:"site_id"`
	Views       int                    `json:"views"`
	Visitors    int                    `json:"visitors"`
	Conversions int                    `json:"conversions"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// TrackEvent records one visitor interaction on a deployed site.
type TrackEvent struct {
	SiteID    string                 `json:"site_id"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Client talks to one renderer service.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a renderer client.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// NewWithHTTPClient creates a client with a caller-supplied HTTP client.
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	c := New(baseURL)
	c.http = httpClient
	return c
}

// Deploy publishes a landing page and returns its live URLs.
func (c *Client) Deploy(ctx context.Context, req DeploymentRequest) (*Deployment, error) {
	var deployment Deployment
	if err := c.post(ctx, "/api/deploy", req, &deployment); err != nil {
		return nil, err
	}
	return &deployment, nil
}

// DeployPitch publishes a pitch deck site.
func (c *Client) DeployPitch(ctx context.Context, req PitchRequest) (*Deployment, error) {
	var deployment Deployment
	if err := c.post(ctx, "/api/pitch/deploy", req, &deployment); err != nil {
		return nil, err
	}
	return &deployment, nil
}

// SiteMetrics fetches a deployed site's analytics snapshot.
func (c *Client) SiteMetrics(ctx context.Context, siteID string) (*Metrics, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/sites/"+url.PathEscape(siteID)+"/metrics", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build metrics request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metrics request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError(resp)
	}

	var metrics Metrics
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics response: %w", err)
	}
	return &metrics, nil
}

// Track records a visitor interaction event.
func (c *Client) Track(ctx context.Context, event TrackEvent) error {
	return c.post(ctx, "/api/track", event, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("renderer request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode renderer response: %w", err)
	}
	return nil
}

func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	detail := strings.TrimSpace(string(body))
	if detail != "" {
		return fmt.Errorf("renderer returned %d: %s", resp.StatusCode, detail)
	}
	return fmt.Errorf("renderer returned %d", resp.StatusCode)
}
