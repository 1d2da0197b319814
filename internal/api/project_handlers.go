package api

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/mocklens/internal/table"
	"github.com/hyperengineering/mocklens/internal/types"
	"github.com/hyperengineering/mocklens/internal/validation"
)

// ListProjects handles GET /api/v1/projects
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		slog.Error("list projects failed", "component", "api", "error", err)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ProjectList{Projects: projects})
}

// CreateProject handles POST /api/v1/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req types.NewProject
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	if errs := validation.ValidateNewProject(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	p, err := h.store.CreateProject(r.Context(), req)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	slog.Info("project created",
		"component", "api",
		"action", "create_project",
		"project_id", p.ID,
	)
	writeJSON(w, http.StatusCreated, p)
}

// GetProject handles GET /api/v1/projects/{projectID}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MustProjectFromContext(r.Context()))
}

// DeleteProject handles DELETE /api/v1/projects/{projectID}
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	p := MustProjectFromContext(r.Context())
	if err := h.store.DeleteProject(r.Context(), p.ID); err != nil {
		MapStoreError(w, r, err)
		return
	}
	slog.Info("project deleted",
		"component", "api",
		"action", "delete_project",
		"project_id", p.ID,
	)
	w.WriteHeader(http.StatusNoContent)
}

// AddScreen handles POST /api/v1/projects/{projectID}/screens
func (h *Handler) AddScreen(w http.ResponseWriter, r *http.Request) {
	p := MustProjectFromContext(r.Context())

	var req types.NewScreen
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	errs := validation.ValidateNewScreen(req)
	if len(errs) == 0 && req.ImageRef != "" && !h.images.Exists(req.ImageRef) {
		errs = append(errs, validation.ValidationError{
			Field:   "image_ref",
			Message: "does not name an uploaded image",
		})
	}
	if len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	screen, err := h.store.AddScreen(r.Context(), p.ID, req)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, screen)
}

// DeleteScreen handles DELETE /api/v1/projects/{projectID}/screens/{screenID}
func (h *Handler) DeleteScreen(w http.ResponseWriter, r *http.Request) {
	p, screen, ok := h.resolveScreen(w, r)
	if !ok {
		return
	}
	if err := h.store.DeleteScreen(r.Context(), p.ID, screen.ID); err != nil {
		MapStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveResult handles POST /api/v1/projects/{projectID}/screens/{screenID}/results
func (h *Handler) SaveResult(w http.ResponseWriter, r *http.Request) {
	p, screen, ok := h.resolveScreen(w, r)
	if !ok {
		return
	}

	var req types.SaveResultRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateSaveResult(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Record set contains invalid items", errs)
		return
	}

	saved, err := h.store.SaveResult(r.Context(), p.ID, screen.ID, req)
	if err != nil {
		slog.Error("save result failed",
			"component", "api",
			"project_id", p.ID,
			"screen_id", screen.ID,
			"error", err,
		)
		MapStoreError(w, r, err)
		return
	}

	slog.Info("result saved",
		"component", "api",
		"action", "save_result",
		"project_id", p.ID,
		"screen_id", screen.ID,
		"result_id", saved.ID,
		"items", len(saved.Items),
	)
	writeJSON(w, http.StatusCreated, saved)
}

// LatestResult handles GET /api/v1/projects/{projectID}/screens/{screenID}/results/latest
func (h *Handler) LatestResult(w http.ResponseWriter, r *http.Request) {
	p, screen, ok := h.resolveScreen(w, r)
	if !ok {
		return
	}
	res, err := h.store.LatestResult(r.Context(), p.ID, screen.ID)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExportLatestCSV handles GET /api/v1/projects/{projectID}/screens/{screenID}/results/latest/export.csv
func (h *Handler) ExportLatestCSV(w http.ResponseWriter, r *http.Request) {
	p, screen, ok := h.resolveScreen(w, r)
	if !ok {
		return
	}
	res, err := h.store.LatestResult(r.Context(), p.ID, screen.ID)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	// Render fully before writing headers so a failure can still be a problem response.
	var buf bytes.Buffer
	if err := table.New(res.Items).ExportCSV(&buf); err != nil {
		slog.Error("csv export failed", "component", "api", "result_id", res.ID, "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, csvFilename(p.Name, screen.Name)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// resolveScreen finds {screenID} within the context project, writing a 404
// problem when it does not belong there.
func (h *Handler) resolveScreen(w http.ResponseWriter, r *http.Request) (*types.Project, *types.Screen, bool) {
	p := MustProjectFromContext(r.Context())
	screen := screenByID(p, chi.URLParam(r, "screenID"))
	if screen == nil {
		WriteProblem(w, r, http.StatusNotFound, "Screen not found")
		return nil, nil, false
	}
	return p, screen, true
}

// csvFilename builds an ASCII-safe download name from project and screen names.
func csvFilename(project, screen string) string {
	slug := func(s string) string {
		s = strings.Map(func(r rune) rune {
			switch {
			case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
				return unicode.ToLower(r)
			default:
				return '-'
			}
		}, s)
		for strings.Contains(s, "--") {
			s = strings.ReplaceAll(s, "--", "-")
		}
		return strings.Trim(s, "-")
	}
	name := strings.Trim(slug(project)+"-"+slug(screen), "-")
	if name == "" {
		name = "export"
	}
	return name + ".csv"
}
