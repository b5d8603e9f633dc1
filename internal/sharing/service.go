package sharing

import (
	"context"
	"log/slog"

	"deltashare/internal/delta"
	"deltashare/internal/domain"
	"deltashare/internal/storage"
)

// Service answers protocol requests from the catalog and the active
// storage backend.
type Service struct {
	shares  domain.ShareRepository
	schemas domain.SchemaRepository
	tables  domain.TableRepository
	backend storage.Backend
	logger  *slog.Logger
}

func NewService(
	shares domain.ShareRepository,
	schemas domain.SchemaRepository,
	tables domain.TableRepository,
	backend storage.Backend,
	logger *slog.Logger,
) *Service {
	return &Service{
		shares:  shares,
		schemas: schemas,
		tables:  tables,
		backend: backend,
		logger:  logger.With("component", "sharing"),
	}
}

// QueryRequest carries the optional body parameters of a table query.
type QueryRequest struct {
	Version        *int64
	PredicateHints []string
	LimitHint      *int64
}

// ListShares returns one page of active shares.
func (s *Service) ListShares(ctx context.Context, page domain.PageRequest) ([]domain.Share, string, error) {
	shares, err := s.shares.ListActive(ctx)
	if err != nil {
		return nil, "", err
	}
	items, next := domain.Paginate(shares, page)
	return items, next, nil
}

// GetShare returns one active share. Inactive shares are reported as not
// found.
func (s *Service) GetShare(ctx context.Context, name string) (*domain.Share, error) {
	return s.requireShare(ctx, name)
}

// ListSchemas returns one page of a share's schemas.
func (s *Service) ListSchemas(ctx context.Context, shareName string, page domain.PageRequest) ([]domain.Schema, string, error) {
	if _, err := s.requireShare(ctx, shareName); err != nil {
		return nil, "", err
	}
	schemas, err := s.schemas.ListByShare(ctx, shareName)
	if err != nil {
		return nil, "", err
	}
	items, next := domain.Paginate(schemas, page)
	return items, next, nil
}

// ListTables returns one page of a schema's tables.
func (s *Service) ListTables(ctx context.Context, shareName, schemaName string, page domain.PageRequest) ([]domain.Table, string, error) {
	if _, err := s.requireShare(ctx, shareName); err != nil {
		return nil, "", err
	}
	if _, err := s.schemas.GetByName(ctx, shareName, schemaName); err != nil {
		return nil, "", err
	}
	tables, err := s.tables.ListBySchema(ctx, shareName, schemaName)
	if err != nil {
		return nil, "", err
	}
	items, next := domain.Paginate(tables, page)
	return items, next, nil
}

// ListAllTables returns one page of all tables across a share's schemas.
func (s *Service) ListAllTables(ctx context.Context, shareName string, page domain.PageRequest) ([]domain.Table, string, error) {
	if _, err := s.requireShare(ctx, shareName); err != nil {
		return nil, "", err
	}
	tables, err := s.tables.ListByShare(ctx, shareName)
	if err != nil {
		return nil, "", err
	}
	items, next := domain.Paginate(tables, page)
	return items, next, nil
}

// Version resolves the table's current log version, 0 when the backend
// cannot determine one.
func (s *Service) Version(ctx context.Context, shareName, schemaName, tableName string) (int64, error) {
	table, err := s.resolveTable(ctx, shareName, schemaName, tableName)
	if err != nil {
		return 0, err
	}
	if !s.backend.Available() {
		return 0, nil
	}
	v, err := s.backend.LatestVersion(ctx, table)
	if err != nil {
		s.logger.Warn("version resolution failed", "table", tableName, "error", err)
		return 0, nil
	}
	return v, nil
}

// Metadata builds the protocol and metaData lines for a table.
func (s *Service) Metadata(ctx context.Context, shareName, schemaName, tableName string, caps Capabilities) (*Response, error) {
	table, err := s.resolveTable(ctx, shareName, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	if !s.backend.Available() {
		return nil, domain.ErrBackendUnavailable("storage backend %s is unavailable", s.backend.Kind())
	}

	snap, meta, err := s.tableState(ctx, table, nil)
	if err != nil {
		return nil, err
	}

	wrap := UseLogWrapping(table.Format, caps)
	var version *int64
	if wrap {
		version = &snap.Version
	}
	return &Response{
		Lines: []map[string]any{
			protocolLine(snap.Protocol, wrap),
			metadataLine(meta, wrap, version),
		},
		Version: snap.Version,
	}, nil
}

// Query builds the full NDJSON body for a table query: protocol, metaData,
// one file line per surviving file, and an optional endStreamAction.
func (s *Service) Query(ctx context.Context, shareName, schemaName, tableName string, req QueryRequest, caps Capabilities) (*Response, error) {
	table, err := s.resolveTable(ctx, shareName, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	if !s.backend.Available() {
		return nil, domain.ErrBackendUnavailable("storage backend %s is unavailable", s.backend.Kind())
	}

	snap, meta, err := s.tableState(ctx, table, req.Version)
	if err != nil {
		return nil, err
	}

	files := delta.Prune(snap.Files, req.PredicateHints)
	if req.LimitHint != nil && *req.LimitHint >= 0 && int64(len(files)) > *req.LimitHint {
		files = files[:*req.LimitHint]
	}

	wrap := UseLogWrapping(table.Format, caps)
	var version *int64
	if wrap {
		version = &snap.Version
	}
	lines := []map[string]any{
		protocolLine(snap.Protocol, wrap),
		metadataLine(meta, wrap, version),
	}

	var minExpiration *int64
	for _, f := range files {
		grant, err := s.backend.ResolveFile(ctx, table, f, snap.Version)
		if err != nil {
			return nil, err
		}
		if grant.ExpirationTimestamp != nil {
			if minExpiration == nil || *grant.ExpirationTimestamp < *minExpiration {
				exp := *grant.ExpirationTimestamp
				minExpiration = &exp
			}
		}
		lines = append(lines, fileLine(grant, f, wrap))
	}

	if caps.IncludeEndStreamAction {
		token := NewRefreshToken(shareName, schemaName, tableName)
		lines = append(lines, endStreamActionLine(token, minExpiration))
	}
	return &Response{Lines: lines, Version: snap.Version}, nil
}

// Changes builds the change-feed body for a version range. Backends
// without incremental history yield an empty body.
func (s *Service) Changes(ctx context.Context, shareName, schemaName, tableName string, startingVersion int64, endingVersion *int64, caps Capabilities) (*Response, error) {
	table, err := s.resolveTable(ctx, shareName, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	if !s.backend.Available() {
		return nil, domain.ErrBackendUnavailable("storage backend %s is unavailable", s.backend.Kind())
	}
	if startingVersion < 0 {
		return nil, domain.ErrValidation("startingVersion must not be negative")
	}

	end := startingVersion
	if endingVersion != nil {
		end = *endingVersion
	} else if latest, err := s.backend.LatestVersion(ctx, table); err == nil && latest > end {
		end = latest
	}
	if end < startingVersion {
		return nil, domain.ErrValidation("endingVersion %d precedes startingVersion %d", end, startingVersion)
	}

	snaps, err := s.backend.Changes(ctx, table, startingVersion, end)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return &Response{Lines: []map[string]any{}, Version: end}, nil
	}

	wrap := UseLogWrapping(table.Format, caps)
	latest := snaps[len(snaps)-1]
	meta := latest.Metadata
	if meta == nil {
		_, meta, err = s.tableState(ctx, table, nil)
		if err != nil {
			return nil, err
		}
	}
	var version *int64
	if wrap {
		version = &latest.Version
	}
	lines := []map[string]any{
		protocolLine(latest.Protocol, wrap),
		metadataLine(meta, wrap, version),
	}
	for _, snap := range snaps {
		for _, f := range snap.Files {
			grant, err := s.backend.ResolveFile(ctx, table, f, snap.Version)
			if err != nil {
				return nil, err
			}
			lines = append(lines, fileLine(grant, f, wrap))
		}
	}
	return &Response{Lines: lines, Version: latest.Version}, nil
}

func (s *Service) requireShare(ctx context.Context, name string) (*domain.Share, error) {
	share, err := s.shares.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !share.Active {
		return nil, domain.ErrNotFound("share %q not found", name)
	}
	return share, nil
}

func (s *Service) resolveTable(ctx context.Context, shareName, schemaName, tableName string) (*domain.Table, error) {
	if _, err := s.requireShare(ctx, shareName); err != nil {
		return nil, err
	}
	return s.tables.GetByName(ctx, shareName, schemaName, tableName)
}

// tableState resolves the snapshot and table metadata, synthesizing
// metadata from the backend's schema and partition lookups when the log
// declares none and the table is not a delta table.
func (s *Service) tableState(ctx context.Context, table *domain.Table, version *int64) (*delta.Snapshot, *delta.Metadata, error) {
	snap, err := s.backend.Snapshot(ctx, table, version)
	if err != nil {
		return nil, nil, err
	}
	if snap.Metadata != nil {
		return snap, snap.Metadata, nil
	}
	if table.Format == domain.FormatDelta {
		return nil, nil, domain.ErrSchemaUnavailable("delta table %s declares no schema", table.Name)
	}

	schema, err := s.backend.TableSchema(ctx, table)
	if err != nil {
		return nil, nil, err
	}
	cols, err := s.backend.PartitionColumns(ctx, table)
	if err != nil {
		cols = nil
	}
	if cols == nil {
		cols = []string{}
	}
	return snap, &delta.Metadata{
		ID:               table.PublicID,
		Name:             table.Name,
		Format:           delta.Format{Provider: "parquet"},
		SchemaString:     schema,
		PartitionColumns: cols,
	}, nil
}
