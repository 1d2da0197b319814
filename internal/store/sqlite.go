package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperengineering/mocklens/internal/types"
	"github.com/hyperengineering/mocklens/pkg/item"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore represents the SQLite-backed project database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Connection-scoped pragmas go in the DSN so every pooled connection gets them.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every pooled connection to :memory: would otherwise get its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if _, err := RunMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateProject stores a new project. Names are unique ignoring case.
func (s *SQLiteStore) CreateProject(ctx context.Context, p types.NewProject) (*types.Project, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	name := strings.TrimSpace(p.Name)
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check project name: %w", err)
	}
	if exists > 0 {
		return nil, ErrDuplicateProject
	}

	ts := now()
	project := types.Project{
		ID:          ulid.Make().String(),
		Name:        name,
		Description: strings.TrimSpace(p.Description),
		CreatedAt:   parseTime(ts),
		UpdatedAt:   parseTime(ts),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, project.ID, project.Name, project.Description, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &project, nil
}

// ListProjects returns every project with its screens, newest first.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]types.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM projects
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}

	projects := []types.Project{}
	index := make(map[string]int)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan project: %w", err)
		}
		index[p.ID] = len(projects)
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	rows.Close()

	screens, err := s.queryScreens(ctx, `SELECT id, project_id, name, image_ref, position, created_at
		FROM screens ORDER BY project_id, position`)
	if err != nil {
		return nil, err
	}
	for _, sc := range screens {
		if i, ok := index[sc.ProjectID]; ok {
			projects[i].Screens = append(projects[i].Screens, sc)
		}
	}
	return projects, nil
}

// GetProject retrieves a project and its screens in position order.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM projects
		WHERE id = ?
	`, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan row: %w", err)
	}

	p.Screens, err = s.queryScreens(ctx, `SELECT id, project_id, name, image_ref, position, created_at
		FROM screens WHERE project_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProject removes a project with its screens and results.
func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return requireAffected(result)
}

// AddScreen appends a screen to a project.
func (s *SQLiteStore) AddScreen(ctx context.Context, projectID string, ns types.NewScreen) (*types.Screen, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var position int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(s.position), -1) + 1
		FROM projects p LEFT JOIN screens s ON s.project_id = p.id
		WHERE p.id = ?
		GROUP BY p.id
	`, projectID).Scan(&position)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("next screen position: %w", err)
	}

	ts := now()
	screen := types.Screen{
		ID:        ulid.Make().String(),
		ProjectID: projectID,
		Name:      strings.TrimSpace(ns.Name),
		ImageRef:  strings.TrimSpace(ns.ImageRef),
		Position:  position,
		CreatedAt: parseTime(ts),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO screens (id, project_id, name, image_ref, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, screen.ID, screen.ProjectID, screen.Name, nullString(screen.ImageRef), screen.Position, ts)
	if err != nil {
		return nil, fmt.Errorf("insert screen: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, ts, projectID); err != nil {
		return nil, fmt.Errorf("touch project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &screen, nil
}

// DeleteScreen removes a screen and its results.
func (s *SQLiteStore) DeleteScreen(ctx context.Context, projectID, screenID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM screens WHERE id = ? AND project_id = ?`, screenID, projectID)
	if err != nil {
		return fmt.Errorf("delete screen: %w", err)
	}
	return requireAffected(result)
}

// SaveResult stores a new record set for a screen. Item ids are not stored;
// each item keeps its position in the set.
func (s *SQLiteStore) SaveResult(ctx context.Context, projectID, screenID string, req types.SaveResultRequest) (*types.SavedResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM screens WHERE id = ? AND project_id = ?`, screenID, projectID).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("check screen: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	ts := now()
	result := types.SavedResult{
		ID:        ulid.Make().String(),
		ScreenID:  screenID,
		Model:     req.Model,
		Truncated: req.Truncated,
		Degraded:  req.Degraded,
		Items:     []item.Record{},
		CreatedAt: parseTime(ts),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO results (id, screen_id, model, truncated, degraded, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, result.ID, screenID, result.Model, result.Truncated, result.Degraded, ts)
	if err != nil {
		return nil, fmt.Errorf("insert result: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO result_items (
			result_id, position, content, element_type, data_type, io_role,
			data_source, required, description, db_field, sequence_index
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, r := range item.StripIDs(req.Items) {
		_, err = stmt.ExecContext(ctx,
			result.ID,
			i,
			r.Content,
			r.ElementType,
			string(r.DataType),
			string(r.IORole),
			r.DataSource,
			int(r.Required),
			r.Description,
			r.DBField,
			r.SequenceIndex,
		)
		if err != nil {
			return nil, fmt.Errorf("insert item %d: %w", i, err)
		}
		r.ID = i + 1
		result.Items = append(result.Items, r)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &result, nil
}

// GetResult retrieves a saved result by ID.
func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*types.SavedResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, screen_id, model, truncated, degraded, created_at
		FROM results
		WHERE id = ?
	`, id)
	return s.loadResult(ctx, row)
}

// LatestResult retrieves the most recently saved result for a screen.
func (s *SQLiteStore) LatestResult(ctx context.Context, projectID, screenID string) (*types.SavedResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.screen_id, r.model, r.truncated, r.degraded, r.created_at
		FROM results r JOIN screens s ON s.id = r.screen_id
		WHERE r.screen_id = ? AND s.project_id = ?
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT 1
	`, screenID, projectID)
	return s.loadResult(ctx, row)
}

func (s *SQLiteStore) loadResult(ctx context.Context, row *sql.Row) (*types.SavedResult, error) {
	var result types.SavedResult
	var createdAt string
	err := row.Scan(&result.ID, &result.ScreenID, &result.Model, &result.Truncated, &result.Degraded, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan row: %w", err)
	}
	result.CreatedAt = parseTime(createdAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, content, element_type, data_type, io_role,
		       data_source, required, description, db_field, sequence_index
		FROM result_items
		WHERE result_id = ?
		ORDER BY position
	`, result.ID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	result.Items = []item.Record{}
	for rows.Next() {
		var r item.Record
		var position, required int
		var dataType, ioRole string
		var dataSource sql.NullString
		err := rows.Scan(&position, &r.Content, &r.ElementType, &dataType, &ioRole,
			&dataSource, &required, &r.Description, &r.DBField, &r.SequenceIndex)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		r.ID = position + 1
		r.DataType = item.DataType(dataType)
		r.IORole = item.IORole(ioRole)
		r.Required = item.Required(required)
		if dataSource.Valid {
			ds := dataSource.String
			r.DataSource = &ds
		}
		result.Items = append(result.Items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return &result, nil
}

// ListImageRefs returns every image reference held by a screen.
func (s *SQLiteStore) ListImageRefs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT image_ref FROM screens WHERE image_ref IS NOT NULL ORDER BY image_ref`)
	if err != nil {
		return nil, fmt.Errorf("query image refs: %w", err)
	}
	defer rows.Close()

	refs := []string{}
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan image ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// GetStats returns aggregate store statistics
func (s *SQLiteStore) GetStats(ctx context.Context) (*types.StoreStats, error) {
	var stats types.StoreStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM screens),
			(SELECT COUNT(*) FROM results)
	`).Scan(&stats.ProjectCount, &stats.ScreenCount, &stats.ResultCount)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *SQLiteStore) queryScreens(ctx context.Context, query string, args ...any) ([]types.Screen, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query screens: %w", err)
	}
	defer rows.Close()

	screens := []types.Screen{}
	for rows.Next() {
		var sc types.Screen
		var imageRef sql.NullString
		var createdAt string
		if err := rows.Scan(&sc.ID, &sc.ProjectID, &sc.Name, &imageRef, &sc.Position, &createdAt); err != nil {
			return nil, fmt.Errorf("scan screen: %w", err)
		}
		sc.ImageRef = imageRef.String
		sc.CreatedAt = parseTime(createdAt)
		screens = append(screens, sc)
	}
	return screens, rows.Err()
}

// scanProject scans a row into a Project without its screens.
func scanProject(scanner interface{ Scan(...any) error }) (*types.Project, error) {
	var p types.Project
	var createdAt, updatedAt string
	if err := scanner.Scan(&p.ID, &p.Name, &p.Description, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
