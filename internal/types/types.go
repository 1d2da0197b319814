package types

import (
	"encoding/json"
	"time"

	"github.com/hyperengineering/mocklens/pkg/item"
)

// Project groups the screens of one mockup set.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Screens     []Screen  `json:"screens"`
}

// MarshalJSON ensures nil slices in Project marshal as [] not null.
func (p Project) MarshalJSON() ([]byte, error) {
	if p.Screens == nil {
		p.Screens = []Screen{}
	}
	type Alias Project
	return json.Marshal(Alias(p))
}

// ProjectList is the response body for listing projects.
type ProjectList struct {
	Projects []Project `json:"projects"`
}

// MarshalJSON ensures nil slices in ProjectList marshal as [] not null.
func (l ProjectList) MarshalJSON() ([]byte, error) {
	if l.Projects == nil {
		l.Projects = []Project{}
	}
	type Alias ProjectList
	return json.Marshal(Alias(l))
}

// UploadURL is a time-limited download link for an upload.
type UploadURL struct {
	ImageRef  string    `json:"image_ref"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
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

// NewProject is the request body for creating a project.
type NewProject struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NewScreen is the request body for adding a screen to a project.
type NewScreen struct {
	Name     string `json:"name"`
	ImageRef string `json:"image_ref,omitempty"`
}

// SaveResultRequest is the request body for saving a screen's record set.
type SaveResultRequest struct {
	Items     []item.Record `json:"items"`
	Model     string        `json:"model,omitempty"`
	Truncated bool          `json:"truncated"`
	Degraded  bool          `json:"degraded"`
}

// SavedResult is a persisted record set. Item ids are reassigned from their
// stored position on every read.
type SavedResult struct {
	ID        string        `json:"id"`
	ScreenID  string        `json:"screen_id"`
	Model     string        `json:"model,omitempty"`
	Truncated bool          `json:"truncated"`
	Degraded  bool          `json:"degraded"`
	Items     []item.Record `json:"items"`
	CreatedAt time.Time     `json:"created_at"`
}

// MarshalJSON ensures nil slices in SavedResult marshal as [] not null.
func (r SavedResult) MarshalJSON() ([]byte, error) {
	if r.Items == nil {
		r.Items = []item.Record{}
	}
	type Alias SavedResult
	return json.Marshal(Alias(r))
}

// AnalyzeResponse is the normalized answer for one analyzed image.
type AnalyzeResponse struct {
	Items     []item.Record `json:"items"`
	Model     string        `json:"model"`
	Strategy  string        `json:"strategy"`
	Truncated bool          `json:"truncated"`
	Degraded  bool          `json:"degraded"`
	Warnings  []string      `json:"warnings"`
}

// MarshalJSON ensures nil slices in AnalyzeResponse marshal as [] not null.
func (r AnalyzeResponse) MarshalJSON() ([]byte, error) {
	if r.Items == nil {
		r.Items = []item.Record{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	type Alias AnalyzeResponse
	return json.Marshal(Alias(r))
}

// Upload describes a stored image.
type Upload struct {
	ImageRef  string `json:"image_ref"`
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
	Size      int64  `json:"size"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	VisionModel  string `json:"vision_model"`
	ProjectCount int64  `json:"project_count"`
	ResultCount  int64  `json:"result_count"`
}

// StoreStats contains aggregate store statistics.
type StoreStats struct {
	ProjectCount int64 `json:"project_count"`
	ScreenCount  int64 `json:"screen_count"`
	ResultCount  int64 `json:"result_count"`
}
