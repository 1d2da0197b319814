package store

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a project, screen or result does not exist,
	// or exists under a different parent than the one addressed.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateProject is returned when a project name is already taken.
	ErrDuplicateProject = errors.New("project name already exists")
)

// requireAffected maps a write that touched no rows to ErrNotFound.
func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
