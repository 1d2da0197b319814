package client

import (
	"time"

	"github.com/hyperengineering/mocklens/pkg/item"
)

// Config holds the client configuration.
type Config struct {
	BaseURL string        // Server URL, e.g. http://localhost:8080
	APIKey  string        // Bearer token
	Timeout time.Duration // Per-request timeout (default: 30s; analysis uses 3m)
}

// Project groups the screens of one mockup set.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Screens     []Screen  `json:"screens"`
}

// Screen is one mockup image within a project.
type Screen struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	ImageRef  string    `json:"image_ref,omitempty"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveParams describes a record set to persist.
type SaveParams struct {
	Items     []item.Record `json:"items"`
	Model     string        `json:"model,omitempty"`
	Truncated bool          `json:"truncated"`
	Degraded  bool          `json:"degraded"`
}

// SavedResult is a persisted record set with server-assigned ids.
type SavedResult struct {
	ID        string        `json:"id"`
	ScreenID  string        `json:"screen_id"`
	Model     string        `json:"model,omitempty"`
	Truncated bool          `json:"truncated"`
	Degraded  bool          `json:"degraded"`
	Items     []item.Record `json:"items"`
	CreatedAt time.Time     `json:"created_at"`
}

// AnalyzeResult is the normalized answer for one image.
type AnalyzeResult struct {
	Items     []item.Record `json:"items"`
	Model     string        `json:"model"`
	Strategy  string        `json:"strategy"`
	Truncated bool          `json:"truncated"`
	Degraded  bool          `json:"degraded"`
	Warnings  []string      `json:"warnings"`
}

// Health is the server health report.
type Health struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	VisionModel  string `json:"vision_model"`
	ProjectCount int64  `json:"project_count"`
	ResultCount  int64  `json:"result_count"`
}
