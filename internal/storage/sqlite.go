package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/gosum-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Project operations

func (s *SQLiteStorage) CreateProject(ctx context.Context, project *Project) error {
	query := `
		INSERT INTO projects (root_path, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`
	now := time.Now()
	result, err := s.db.ExecContext(ctx, query, project.RootPath, project.Name, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	project.ID = id
	project.CreatedAt = now
	project.UpdatedAt = now
	return nil
}

const projectColumns = `id, root_path, name, total_files, last_batch_at, created_at, updated_at`

func scanProject(row *sql.Row) (*Project, error) {
	var project Project
	var lastBatchAt sql.NullTime
	err := row.Scan(
		&project.ID, &project.RootPath, &project.Name, &project.TotalFiles,
		&lastBatchAt, &project.CreatedAt, &project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastBatchAt.Valid {
		project.LastBatchAt = &lastBatchAt.Time
	}
	return &project, nil
}

func (s *SQLiteStorage) GetProject(ctx context.Context, rootPath string) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE root_path = ?`
	return scanProject(s.db.QueryRowContext(ctx, query, rootPath))
}

func (s *SQLiteStorage) GetProjectByID(ctx context.Context, projectID int64) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`
	return scanProject(s.db.QueryRowContext(ctx, query, projectID))
}

func (s *SQLiteStorage) UpdateProject(ctx context.Context, project *Project) error {
	query := `
		UPDATE projects
		SET name = ?, total_files = ?, last_batch_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	_, err := s.db.ExecContext(ctx, query,
		project.Name, project.TotalFiles, project.LastBatchAt, now, project.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	project.UpdatedAt = now
	return nil
}

// SetLastBatchAt records the completion time of the most recent batch
func (s *SQLiteStorage) SetLastBatchAt(ctx context.Context, projectID int64, at time.Time) error {
	query := `UPDATE projects SET last_batch_at = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, at, time.Now(), projectID)
	if err != nil {
		return fmt.Errorf("failed to set last batch time: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// File operations

// UpsertFile creates or updates a file record together with its content.
// Summary fields are preserved on update; only syncable fields change.
func (s *SQLiteStorage) UpsertFile(ctx context.Context, file *types.FileRecord, content string) error {
	imports, err := json.Marshal(file.Imports)
	if err != nil {
		return fmt.Errorf("failed to encode imports: %w", err)
	}
	identifiers, err := json.Marshal(file.Identifiers)
	if err != nil {
		return fmt.Errorf("failed to encode identifiers: %w", err)
	}

	query := `
		INSERT INTO files (project_id, file_path, size_bytes, content, content_hash, mod_time,
		                   status, imports, identifiers, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path) DO UPDATE SET
			size_bytes = excluded.size_bytes,
			content = excluded.content,
			content_hash = excluded.content_hash,
			mod_time = excluded.mod_time,
			status = excluded.status,
			imports = excluded.imports,
			identifiers = excluded.identifiers,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err = s.db.QueryRowContext(ctx, query,
		file.ProjectID, file.Path, file.SizeBytes, content, file.ContentHash[:],
		file.ModTime, string(file.Status), string(imports), string(identifiers),
		now, now).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	return nil
}

const fileColumns = `id, project_id, file_path, size_bytes, content_hash, mod_time,
       summary, summary_updated_at, summarized_hash, status, imports, identifiers`

// scanFileRow scans one file row from either a *sql.Row or *sql.Rows
func scanFileRow(scan func(dest ...interface{}) error) (*types.FileRecord, error) {
	var file types.FileRecord
	var hash, summarizedHash []byte
	var summary sql.NullString
	var summaryUpdatedAt sql.NullTime
	var status, imports, identifiers string

	err := scan(
		&file.ID, &file.ProjectID, &file.Path, &file.SizeBytes, &hash, &file.ModTime,
		&summary, &summaryUpdatedAt, &summarizedHash, &status, &imports, &identifiers,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	copy(file.ContentHash[:], hash)
	copy(file.SummarizedHash[:], summarizedHash)
	if summary.Valid {
		file.Summary = summary.String
	}
	if summaryUpdatedAt.Valid {
		file.SummaryUpdatedAt = &summaryUpdatedAt.Time
	}
	file.Status = types.SummaryStatus(status)
	if err := json.Unmarshal([]byte(imports), &file.Imports); err != nil {
		return nil, fmt.Errorf("failed to decode imports: %w", err)
	}
	if err := json.Unmarshal([]byte(identifiers), &file.Identifiers); err != nil {
		return nil, fmt.Errorf("failed to decode identifiers: %w", err)
	}
	return &file, nil
}

func (s *SQLiteStorage) GetFile(ctx context.Context, projectID int64, path string) (*types.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id = ? AND file_path = ?`
	return scanFileRow(s.db.QueryRowContext(ctx, query, projectID, path).Scan)
}

func (s *SQLiteStorage) GetFileByID(ctx context.Context, fileID int64) (*types.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = ?`
	return scanFileRow(s.db.QueryRowContext(ctx, query, fileID).Scan)
}

func (s *SQLiteStorage) listFiles(ctx context.Context, query string, args ...interface{}) ([]*types.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []*types.FileRecord
	for rows.Next() {
		file, err := scanFileRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) ListFiles(ctx context.Context, projectID int64) ([]*types.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id = ? ORDER BY file_path`
	return s.listFiles(ctx, query, projectID)
}

func (s *SQLiteStorage) ListFilesByStatus(ctx context.Context, projectID int64, statuses ...types.SummaryStatus) ([]*types.FileRecord, error) {
	if len(statuses) == 0 {
		return s.ListFiles(ctx, projectID)
	}
	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id = ? AND status IN (` +
		placeholders + `) ORDER BY file_path`

	args := make([]interface{}, 0, len(statuses)+1)
	args = append(args, projectID)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	return s.listFiles(ctx, query, args...)
}

func (s *SQLiteStorage) GetFileContent(ctx context.Context, fileID int64) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM files WHERE id = ?`, fileID).Scan(&content)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return content, nil
}

// Summary operations

// UpdateFileSummary stores a fresh summary and marks the file summarized
func (s *SQLiteStorage) UpdateFileSummary(ctx context.Context, fileID int64, summary string, updatedAt time.Time, summarizedHash [32]byte) error {
	query := `
		UPDATE files
		SET summary = ?, summary_updated_at = ?, summarized_hash = ?, status = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		summary, updatedAt, summarizedHash[:], string(types.StatusSummarized), time.Now(), fileID)
	if err != nil {
		return fmt.Errorf("failed to update summary: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) UpdateFileStatus(ctx context.Context, fileID int64, status types.SummaryStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE files SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), fileID)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveFileSummaries clears summaries from the given files and resets their
// status to unsummarized. Returns the number of files actually cleared.
func (s *SQLiteStorage) RemoveFileSummaries(ctx context.Context, projectID int64, fileIDs []int64) (int, error) {
	if len(fileIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat("?,", len(fileIDs))
	placeholders = placeholders[:len(placeholders)-1]
	query := `
		UPDATE files
		SET summary = NULL, summary_updated_at = NULL, summarized_hash = NULL,
		    status = ?, updated_at = ?
		WHERE project_id = ? AND id IN (` + placeholders + `) AND summary IS NOT NULL
	`
	args := make([]interface{}, 0, len(fileIDs)+3)
	args = append(args, string(types.StatusUnsummarized), time.Now(), projectID)
	for _, id := range fileIDs {
		args = append(args, id)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to remove summaries: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// DeleteFiles removes the given file records entirely, used when files
// disappear from disk. Returns the number of records deleted.
func (s *SQLiteStorage) DeleteFiles(ctx context.Context, projectID int64, fileIDs []int64) (int, error) {
	if len(fileIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat("?,", len(fileIDs))
	placeholders = placeholders[:len(placeholders)-1]
	query := `DELETE FROM files WHERE project_id = ? AND id IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(fileIDs)+1)
	args = append(args, projectID)
	for _, id := range fileIDs {
		args = append(args, id)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete files: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

// Aggregate queries

// SummaryStats returns counts by status plus the average heuristic token
// count of stored summaries. Returns ErrNotFound for an unknown project and
// zero-valued stats for a known, empty one.
func (s *SQLiteStorage) SummaryStats(ctx context.Context, projectID int64) (*SummaryStats, error) {
	project, err := s.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	stats := &SummaryStats{
		ProjectID:   projectID,
		ByStatus:    make(map[types.SummaryStatus]int),
		LastBatchAt: project.LastBatchAt,
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM files WHERE project_id = ? GROUP BY status`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[types.SummaryStatus(status)] = count
		stats.TotalFiles += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// chars/4 matches the heuristic used for group token budgets
	var avgTokens sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT AVG(LENGTH(summary) / 4.0) FROM files WHERE project_id = ? AND summary IS NOT NULL`,
		projectID).Scan(&avgTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to average summary tokens: %w", err)
	}
	if avgTokens.Valid {
		stats.AvgSummaryTokens = avgTokens.Float64
	}

	return stats, nil
}
