package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"deltashare/internal/db"
	"deltashare/internal/domain"
)

// CrawlerExecutionRepository is the SQLite implementation of
// domain.CrawlerExecutionRepository.
type CrawlerExecutionRepository struct {
	db *db.DB
}

var _ domain.CrawlerExecutionRepository = (*CrawlerExecutionRepository)(nil)

func NewCrawlerExecutionRepository(d *db.DB) *CrawlerExecutionRepository {
	return &CrawlerExecutionRepository{db: d}
}

const executionColumns = `id, started_at, finished_at, duration_ms, status, storage_type,
discovery_pattern, discovered_tables, created_schemas, created_tables, error_message, dry_run`

func (r *CrawlerExecutionRepository) Create(ctx context.Context, exec *domain.CrawlerExecution) (*domain.CrawlerExecution, error) {
	res, err := r.db.Write.ExecContext(ctx,
		`INSERT INTO crawler_executions (started_at, status, storage_type, discovery_pattern, dry_run)
		 VALUES (?, ?, ?, ?, ?)`,
		exec.StartedAt, exec.Status, exec.StorageType, exec.DiscoveryPattern, exec.DryRun)
	if err != nil {
		return nil, fmt.Errorf("creating crawler execution: %w", err)
	}
	id, _ := res.LastInsertId()

	created := *exec
	created.ID = id
	return &created, nil
}

func (r *CrawlerExecutionRepository) Finish(ctx context.Context, exec *domain.CrawlerExecution) error {
	_, err := r.db.Write.ExecContext(ctx,
		`UPDATE crawler_executions
		 SET finished_at = ?, duration_ms = ?, status = ?, discovered_tables = ?,
		     created_schemas = ?, created_tables = ?, error_message = ?
		 WHERE id = ?`,
		exec.FinishedAt, exec.DurationMs, exec.Status, exec.DiscoveredTables,
		exec.CreatedSchemas, exec.CreatedTables, exec.ErrorMessage, exec.ID)
	if err != nil {
		return fmt.Errorf("finishing crawler execution %d: %w", exec.ID, err)
	}
	return nil
}

func (r *CrawlerExecutionRepository) List(ctx context.Context, limit int) ([]domain.CrawlerExecution, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Read.QueryContext(ctx,
		"SELECT "+executionColumns+" FROM crawler_executions ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing crawler executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.CrawlerExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *e)
	}
	return execs, rows.Err()
}

func (r *CrawlerExecutionRepository) Latest(ctx context.Context) (*domain.CrawlerExecution, error) {
	row := r.db.Read.QueryRowContext(ctx,
		"SELECT "+executionColumns+" FROM crawler_executions ORDER BY id DESC LIMIT 1")
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func scanExecution(row rowScanner) (*domain.CrawlerExecution, error) {
	var e domain.CrawlerExecution
	var finishedAt sql.NullTime
	if err := row.Scan(&e.ID, &e.StartedAt, &finishedAt, &e.DurationMs, &e.Status,
		&e.StorageType, &e.DiscoveryPattern, &e.DiscoveredTables, &e.CreatedSchemas,
		&e.CreatedTables, &e.ErrorMessage, &e.DryRun); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning crawler execution: %w", err)
	}
	if finishedAt.Valid {
		e.FinishedAt = &finishedAt.Time
	}
	return &e, nil
}
