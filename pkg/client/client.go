// Package client is a Go client for the mocklens REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperengineering/mocklens/pkg/item"
)

const (
	defaultTimeout = 30 * time.Second
	// analyzeTimeout covers a slow vision model answering a large image.
	analyzeTimeout = 3 * time.Minute
)

// Client talks to one mocklens server. It holds no global state and is safe
// for concurrent use.
type Client struct {
	config Config
	http   *http.Client
}

// New creates a Client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	return &Client{config: config, http: &http.Client{}}, nil
}

// Health checks server status. It needs no API key.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ListProjects returns every project with its screens.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp struct {
		Projects []Project `json:"projects"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/projects", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// CreateProject creates a project. Names are unique, ignoring case.
func (c *Client) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	body := map[string]string{"name": name, "description": description}
	var p Project
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/projects", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProject returns one project with its screens.
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var p Project
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/projects/"+url.PathEscape(projectID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AddScreen appends a screen to a project. imageRef may be empty.
func (c *Client) AddScreen(ctx context.Context, projectID, name, imageRef string) (*Screen, error) {
	body := map[string]string{"name": name}
	if imageRef != "" {
		body["image_ref"] = imageRef
	}
	var s Screen
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/projects/"+url.PathEscape(projectID)+"/screens", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveResult persists a record set for a screen.
func (c *Client) SaveResult(ctx context.Context, projectID, screenID string, params SaveParams) (*SavedResult, error) {
	if params.Items == nil {
		params.Items = []item.Record{}
	}
	var r SavedResult
	if err := c.doJSON(ctx, http.MethodPost, screenPath(projectID, screenID)+"/results", params, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// LatestResult returns the most recently saved record set for a screen.
// A screen with no results yields an error matching ErrNotFound.
func (c *Client) LatestResult(ctx context.Context, projectID, screenID string) (*SavedResult, error) {
	var r SavedResult
	if err := c.doJSON(ctx, http.MethodGet, screenPath(projectID, screenID)+"/results/latest", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Upload stores an image and returns its reference.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	var resp struct {
		ImageRef string `json:"image_ref"`
	}
	if err := c.doMultipart(ctx, "/api/v1/uploads", filename, data, defaultTimeout, &resp); err != nil {
		return "", err
	}
	return resp.ImageRef, nil
}

// Analyze sends one image to the server for analysis.
func (c *Client) Analyze(ctx context.Context, filename string, data []byte) (*AnalyzeResult, error) {
	var r AnalyzeResult
	if err := c.doMultipart(ctx, "/api/v1/analyze", filename, data, analyzeTimeout, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func screenPath(projectID, screenID string) string {
	return "/api/v1/projects/" + url.PathEscape(projectID) + "/screens/" + url.PathEscape(screenID)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	return c.send(ctx, method, path, reader, "application/json", c.config.Timeout, out)
}

func (c *Client) doMultipart(ctx context.Context, path, filename string, data []byte, timeout time.Duration, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return fmt.Errorf("build form: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("build form: %w", err)
	}
	if c.config.Timeout > timeout {
		timeout = c.config.Timeout
	}
	return c.send(ctx, http.MethodPost, path, &buf, mw.FormDataContentType(), timeout, out)
}

// send issues an authenticated request and decodes a 2xx JSON body into out.
func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	op := method + " " + path
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if len(data) > 0 {
		// Non-problem bodies still produce an APIError with the status.
		_ = json.Unmarshal(data, apiErr)
	}
	apiErr.StatusCode = resp.StatusCode
	if apiErr.Title == "" {
		apiErr.Title = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
