package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyperengineering/mocklens/internal/store"
	"github.com/hyperengineering/mocklens/internal/types"
	"github.com/hyperengineering/mocklens/internal/vision"
)

// ImageStore holds uploaded images. *upload.Dir satisfies it.
type ImageStore interface {
	Save(ctx context.Context, data []byte, mediaType string) (string, error)
	Load(ref string) ([]byte, error)
	Exists(ref string) bool
	PresignedURL(ctx context.Context, ref string) (string, time.Time, error)
}

// Handler implements the API handlers
type Handler struct {
	store         store.Store
	analyzer      vision.ImageAnalyzer
	images        ImageStore
	apiKey        string
	version       string
	maxImageBytes int64
}

// NewHandler creates a new Handler. maxImageBytes bounds uploads and
// analysis requests; zero uses vision.DefaultMaxImageBytes.
func NewHandler(s store.Store, a vision.ImageAnalyzer, images ImageStore, apiKey, version string, maxImageBytes int64) *Handler {
	if maxImageBytes <= 0 {
		maxImageBytes = vision.DefaultMaxImageBytes
	}
	return &Handler{
		store:         s,
		analyzer:      a,
		images:        images,
		apiKey:        apiKey,
		version:       version,
		maxImageBytes: maxImageBytes,
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		slog.Error("health stats failed", "component", "api", "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	resp := types.HealthResponse{
		Status:       "healthy",
		Version:      h.version,
		VisionModel:  h.analyzer.ModelName(),
		ProjectCount: stats.ProjectCount,
		ResultCount:  stats.ResultCount,
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// decodeJSON decodes the request body into v, writing a 400 problem on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 8 << 20
