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

// SchemaRepository is the SQLite implementation of domain.SchemaRepository.
type SchemaRepository struct {
	db *db.DB
}

var _ domain.SchemaRepository = (*SchemaRepository)(nil)

func NewSchemaRepository(d *db.DB) *SchemaRepository {
	return &SchemaRepository{db: d}
}

const schemaSelect = `
SELECT sc.id, sc.public_id, sc.name, sc.description, sc.share_id, sh.name,
       sc.created_at, sc.updated_at
FROM schemas sc
JOIN shares sh ON sh.id = sc.share_id`

func (r *SchemaRepository) ListByShare(ctx context.Context, shareName string) ([]domain.Schema, error) {
	rows, err := r.db.Read.QueryContext(ctx,
		schemaSelect+" WHERE sh.name = ? ORDER BY sc.name", shareName)
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}
	defer rows.Close()

	var schemas []domain.Schema
	for rows.Next() {
		s, err := scanSchema(rows)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, *s)
	}
	return schemas, rows.Err()
}

func (r *SchemaRepository) GetByName(ctx context.Context, shareName, schemaName string) (*domain.Schema, error) {
	row := r.db.Read.QueryRowContext(ctx,
		schemaSelect+" WHERE sh.name = ? AND sc.name = ?", shareName, schemaName)
	s, err := scanSchema(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("schema %q not found in share %q", schemaName, shareName)
	}
	return s, err
}

func (r *SchemaRepository) Create(ctx context.Context, schema *domain.Schema) (*domain.Schema, error) {
	now := time.Now().UTC()
	publicID := schema.PublicID
	if publicID == "" {
		publicID = uuid.NewString()
	}
	res, err := r.db.Write.ExecContext(ctx,
		`INSERT INTO schemas (public_id, name, description, share_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		publicID, schema.Name, schema.Description, schema.ShareID, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrConflict("schema %q already exists in share", schema.Name)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	id, _ := res.LastInsertId()

	created := *schema
	created.ID = id
	created.PublicID = publicID
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

func scanSchema(row rowScanner) (*domain.Schema, error) {
	var s domain.Schema
	if err := row.Scan(&s.ID, &s.PublicID, &s.Name, &s.Description, &s.ShareID,
		&s.ShareName, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning schema: %w", err)
	}
	return &s, nil
}
