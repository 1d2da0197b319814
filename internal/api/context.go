package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/mocklens/internal/store"
	"github.com/hyperengineering/mocklens/internal/types"
)

// projectContextKey is the context key for the resolved project.
type projectContextKey struct{}

// ErrNoProjectInContext indicates no project was found in the context.
var ErrNoProjectInContext = errors.New("no project in context")

// WithProject returns a new context with the project attached.
func WithProject(ctx context.Context, p *types.Project) context.Context {
	return context.WithValue(ctx, projectContextKey{}, p)
}

// ProjectFromContext extracts the project from the context.
// Returns ErrNoProjectInContext if not present or nil.
func ProjectFromContext(ctx context.Context) (*types.Project, error) {
	p, ok := ctx.Value(projectContextKey{}).(*types.Project)
	if !ok || p == nil {
		return nil, ErrNoProjectInContext
	}
	return p, nil
}

// MustProjectFromContext extracts the project or panics.
// Use only when ProjectMiddleware guarantees project presence.
func MustProjectFromContext(ctx context.Context) *types.Project {
	p, err := ProjectFromContext(ctx)
	if err != nil {
		panic("project not in context: middleware misconfiguration")
	}
	return p
}

// ProjectMiddleware resolves the {projectID} URL parameter and attaches the
// project, with its screens, to the request context. Unknown ids get 404.
func ProjectMiddleware(s store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := s.GetProject(r.Context(), chi.URLParam(r, "projectID"))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					WriteProblem(w, r, http.StatusNotFound, "Project not found")
					return
				}
				MapStoreError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithProject(r.Context(), p)))
		})
	}
}

// screenByID returns the project's screen with the given id, or nil.
func screenByID(p *types.Project, id string) *types.Screen {
	for i := range p.Screens {
		if p.Screens[i].ID == id {
			return &p.Screens[i]
		}
	}
	return nil
}
