package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"deltashare/internal/db"
	"deltashare/internal/domain"
)

// TableRepository is the SQLite implementation of domain.TableRepository.
type TableRepository struct {
	db *db.DB
}

var _ domain.TableRepository = (*TableRepository)(nil)

func NewTableRepository(d *db.DB) *TableRepository {
	return &TableRepository{db: d}
}

const tableSelect = `
SELECT t.id, t.public_id, t.name, t.description, t.schema_id, sc.name, sh.name,
       t.location, t.format, t.share_as_view, t.discovered_at, t.discovered_by,
       t.created_at, t.updated_at
FROM tables t
JOIN schemas sc ON sc.id = t.schema_id
JOIN shares sh ON sh.id = sc.share_id`

func (r *TableRepository) ListBySchema(ctx context.Context, shareName, schemaName string) ([]domain.Table, error) {
	rows, err := r.db.Read.QueryContext(ctx,
		tableSelect+" WHERE sh.name = ? AND sc.name = ? ORDER BY t.name",
		shareName, schemaName)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()
	return collectTables(rows)
}

func (r *TableRepository) ListByShare(ctx context.Context, shareName string) ([]domain.Table, error) {
	rows, err := r.db.Read.QueryContext(ctx,
		tableSelect+" WHERE sh.name = ? ORDER BY sc.name, t.name", shareName)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()
	return collectTables(rows)
}

func (r *TableRepository) GetByName(ctx context.Context, shareName, schemaName, tableName string) (*domain.Table, error) {
	row := r.db.Read.QueryRowContext(ctx,
		tableSelect+" WHERE sh.name = ? AND sc.name = ? AND t.name = ?",
		shareName, schemaName, tableName)
	t, err := scanTable(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("table %q not found in %s.%s", tableName, shareName, schemaName)
	}
	return t, err
}

func (r *TableRepository) Create(ctx context.Context, table *domain.Table) (*domain.Table, error) {
	now := time.Now().UTC()
	publicID := table.PublicID
	if publicID == "" {
		publicID = uuid.NewString()
	}
	res, err := r.db.Write.ExecContext(ctx,
		`INSERT INTO tables (public_id, name, description, schema_id, location, format,
		                     share_as_view, discovered_at, discovered_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		publicID, table.Name, table.Description, table.SchemaID, table.Location,
		table.Format, table.ShareAsView, table.DiscoveredAt, table.DiscoveredBy, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrConflict("table %q already exists in schema", table.Name)
		}
		return nil, fmt.Errorf("creating table: %w", err)
	}
	id, _ := res.LastInsertId()

	created := *table
	created.ID = id
	created.PublicID = publicID
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

func collectTables(rows *sql.Rows) ([]domain.Table, error) {
	var tables []domain.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *t)
	}
	return tables, rows.Err()
}

func scanTable(row rowScanner) (*domain.Table, error) {
	var t domain.Table
	var discoveredAt sql.NullTime
	if err := row.Scan(&t.ID, &t.PublicID, &t.Name, &t.Description, &t.SchemaID,
		&t.SchemaName, &t.ShareName, &t.Location, &t.Format, &t.ShareAsView,
		&discoveredAt, &t.DiscoveredBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning table: %w", err)
	}
	if discoveredAt.Valid {
		t.DiscoveredAt = &discoveredAt.Time
	}
	return &t, nil
}
