// Package repository provides SQLite implementations of the catalog ports.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"deltashare/internal/db"
	"deltashare/internal/domain"
)

// ShareRepository is the SQLite implementation of domain.ShareRepository.
type ShareRepository struct {
	db *db.DB
}

var _ domain.ShareRepository = (*ShareRepository)(nil)

func NewShareRepository(d *db.DB) *ShareRepository {
	return &ShareRepository{db: d}
}

const shareColumns = "id, public_id, name, description, active, created_at, updated_at"

func (r *ShareRepository) ListActive(ctx context.Context) ([]domain.Share, error) {
	rows, err := r.db.Read.QueryContext(ctx,
		"SELECT "+shareColumns+" FROM shares WHERE active = 1 ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing shares: %w", err)
	}
	defer rows.Close()

	var shares []domain.Share
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, *s)
	}
	return shares, rows.Err()
}

func (r *ShareRepository) GetByName(ctx context.Context, name string) (*domain.Share, error) {
	row := r.db.Read.QueryRowContext(ctx,
		"SELECT "+shareColumns+" FROM shares WHERE name = ?", name)
	s, err := scanShare(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("share %q not found", name)
	}
	return s, err
}

func (r *ShareRepository) Create(ctx context.Context, share *domain.Share) (*domain.Share, error) {
	now := time.Now().UTC()
	publicID := share.PublicID
	if publicID == "" {
		publicID = uuid.NewString()
	}
	res, err := r.db.Write.ExecContext(ctx,
		`INSERT INTO shares (public_id, name, description, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		publicID, share.Name, share.Description, share.Active, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrConflict("share %q already exists", share.Name)
		}
		return nil, fmt.Errorf("creating share: %w", err)
	}
	id, _ := res.LastInsertId()

	created := *share
	created.ID = id
	created.PublicID = publicID
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShare(row rowScanner) (*domain.Share, error) {
	var s domain.Share
	if err := row.Scan(&s.ID, &s.PublicID, &s.Name, &s.Description, &s.Active,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning share: %w", err)
	}
	return &s, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
