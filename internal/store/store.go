package store

import (
	"context"

	"github.com/hyperengineering/mocklens/internal/types"
)

// Store defines the interface contract for project and result persistence.
type Store interface {
	CreateProject(ctx context.Context, p types.NewProject) (*types.Project, error)
	ListProjects(ctx context.Context) ([]types.Project, error)
	GetProject(ctx context.Context, id string) (*types.Project, error)
	DeleteProject(ctx context.Context, id string) error
	AddScreen(ctx context.Context, projectID string, s types.NewScreen) (*types.Screen, error)
	DeleteScreen(ctx context.Context, projectID, screenID string) error
	SaveResult(ctx context.Context, projectID, screenID string, req types.SaveResultRequest) (*types.SavedResult, error)
	GetResult(ctx context.Context, id string) (*types.SavedResult, error)
	LatestResult(ctx context.Context, projectID, screenID string) (*types.SavedResult, error)
	ListImageRefs(ctx context.Context) ([]string, error)
	GetStats(ctx context.Context) (*types.StoreStats, error)
	Close() error
}
