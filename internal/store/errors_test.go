package store

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperengineering/mocklens/internal/types"
)

type fakeResult struct {
	rows int64
	err  error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestRequireAffected(t *testing.T) {
	boom := errors.New("driver gone")
	tests := []struct {
		name   string
		result fakeResult
		want   error
	}{
		{"one row", fakeResult{rows: 1}, nil},
		{"many rows", fakeResult{rows: 3}, nil},
		{"no rows", fakeResult{}, ErrNotFound},
		{"driver error", fakeResult{err: boom}, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := requireAffected(tt.result)
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Errorf("requireAffected() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStore_SentinelsSurfaceFromOperations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.DeleteProject(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteProject(missing) = %v, want ErrNotFound", err)
	}
	if _, err := s.LatestResult(ctx, "p", "s"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestResult(missing) = %v, want ErrNotFound", err)
	}

	if _, err := s.CreateProject(ctx, types.NewProject{Name: "Checkout"}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := s.CreateProject(ctx, types.NewProject{Name: "  Checkout "}); !errors.Is(err, ErrDuplicateProject) {
		t.Errorf("CreateProject(duplicate) = %v, want ErrDuplicateProject", err)
	}
}
