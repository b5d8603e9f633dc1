package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deltashare/internal/delta"
	"deltashare/internal/domain"
)

// localBackend serves tables whose transaction logs live on the local
// filesystem. The http kind stamps a public URL prefix onto file grants;
// the filesystem kind issues file:// locators. Neither expires URLs.
type localBackend struct {
	kind     string
	basePath string
	baseURL  string
	schemas  *schemaCache
	logger   *slog.Logger
}

var _ Backend = (*localBackend)(nil)

// NewHTTPBackend serves tables under basePath with URLs under baseURL.
func NewHTTPBackend(basePath, baseURL string, cacheTTL time.Duration, cacheEntries int, logger *slog.Logger) Backend {
	return &localBackend{
		kind:     KindHTTP,
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		schemas:  newSchemaCache(cacheTTL, cacheEntries),
		logger:   logger.With("component", "storage.http"),
	}
}

// NewFilesystemBackend serves tables under basePath with file:// locators.
func NewFilesystemBackend(basePath string, cacheTTL time.Duration, cacheEntries int, logger *slog.Logger) Backend {
	return &localBackend{
		kind:     KindFilesystem,
		basePath: basePath,
		schemas:  newSchemaCache(cacheTTL, cacheEntries),
		logger:   logger.With("component", "storage.filesystem"),
	}
}

func (b *localBackend) Kind() string { return b.kind }

func (b *localBackend) Available() bool {
	info, err := os.Stat(b.basePath)
	return err == nil && info.IsDir()
}

// tableDir resolves a table location against the backend base path.
func (b *localBackend) tableDir(table *domain.Table) (string, error) {
	loc := strings.TrimPrefix(table.Location, "file://")
	if loc == "" {
		return "", domain.ErrInvalidLocation("table %s has no location", table.Name)
	}
	if filepath.IsAbs(loc) {
		return filepath.Clean(loc), nil
	}
	return filepath.Join(b.basePath, loc), nil
}

func (b *localBackend) LatestVersion(_ context.Context, table *domain.Table) (int64, error) {
	dir, err := b.tableDir(table)
	if err != nil {
		return 0, err
	}
	logDir := filepath.Join(dir, "_delta_log")

	if data, err := os.ReadFile(filepath.Join(logDir, delta.LastCheckpointFile)); err == nil {
		if v, err := delta.ParseLastCheckpoint(data); err == nil {
			return v, nil
		}
		b.logger.Warn("ignoring unreadable checkpoint marker", "table", table.Name)
	}

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return 0, nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if v, ok := delta.LatestVersionFromNames(names); ok {
		return v, nil
	}
	return 0, nil
}

func (b *localBackend) Snapshot(ctx context.Context, table *domain.Table, version *int64) (*delta.Snapshot, error) {
	dir, err := b.tableDir(table)
	if err != nil {
		return nil, err
	}

	v := int64(0)
	if version != nil {
		v = *version
	} else if latest, err := b.LatestVersion(ctx, table); err == nil {
		v = latest
	}

	path := filepath.Join(dir, "_delta_log", delta.VersionFileName(v))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			if table.Format != domain.FormatDelta {
				return b.nativeSnapshot(table, dir)
			}
			return nil, domain.ErrNotFound("table %s has no transaction log at version %d", table.Name, v)
		}
		return nil, err
	}
	defer f.Close()

	return delta.ReadLog(f, v, b.logger)
}

// nativeSnapshot lists the table's data files directly when a non-delta
// table carries no transaction log. The fallback is attempted once, never
// retried.
func (b *localBackend) nativeSnapshot(table *domain.Table, dir string) (*delta.Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, domain.ErrNotFound("table %s has no data directory", table.Name)
	}

	snap := &delta.Snapshot{
		Version: 0,
		Protocol: delta.Protocol{
			MinReaderVersion: delta.DefaultMinReaderVersion,
			MinWriterVersion: delta.DefaultMinWriterVersion,
		},
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snap.Files = append(snap.Files, delta.Add{
			Path:             e.Name(),
			PartitionValues:  map[string]string{},
			Size:             info.Size(),
			ModificationTime: info.ModTime().UnixMilli(),
			DataChange:       true,
		})
	}
	return snap, nil
}

func (b *localBackend) Changes(_ context.Context, _ *domain.Table, _, _ int64) ([]*delta.Snapshot, error) {
	return []*delta.Snapshot{}, nil
}

func (b *localBackend) TableSchema(ctx context.Context, table *domain.Table) (string, error) {
	key := table.ShareName + "." + table.SchemaName + "." + table.Name + "|" + table.Format
	if schema, ok := b.schemas.get(key); ok {
		return schema, nil
	}

	schema, err := b.resolveSchema(ctx, table)
	if err != nil {
		return "", err
	}
	b.schemas.put(key, schema)
	return schema, nil
}

func (b *localBackend) resolveSchema(ctx context.Context, table *domain.Table) (string, error) {
	snap, err := b.Snapshot(ctx, table, nil)
	if err == nil {
		if schema, serr := snap.SchemaString(); serr == nil {
			return schema, nil
		}
	}
	if table.Format == domain.FormatDelta {
		return "", domain.ErrSchemaUnavailable("delta table %s declares no schema", table.Name)
	}
	return b.schemaFromParquet(table, snap)
}

// schemaFromParquet reads the footer of any data file of the table.
func (b *localBackend) schemaFromParquet(table *domain.Table, snap *delta.Snapshot) (string, error) {
	dir, err := b.tableDir(table)
	if err != nil {
		return "", err
	}

	var candidates []string
	if snap != nil {
		for _, f := range snap.Files {
			candidates = append(candidates, filepath.Join(dir, f.Path))
		}
	}
	if len(candidates) == 0 {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", domain.ErrSchemaUnavailable("table %s: %v", table.Name, err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".parquet") {
				candidates = append(candidates, filepath.Join(dir, e.Name()))
			}
		}
	}

	for _, path := range candidates {
		schema, err := SchemaFromParquetPath(path)
		if err == nil {
			return schema, nil
		}
		b.logger.Warn("unreadable parquet footer", "path", path, "error", err)
	}
	return "", domain.ErrSchemaUnavailable("table %s has no readable data file", table.Name)
}

func (b *localBackend) PartitionColumns(ctx context.Context, table *domain.Table) ([]string, error) {
	snap, err := b.Snapshot(ctx, table, nil)
	if err != nil {
		return nil, nil
	}
	return snap.PartitionColumns(), nil
}

func (b *localBackend) ResolveFile(_ context.Context, table *domain.Table, add delta.Add, version int64) (domain.FileGrant, error) {
	dir, err := b.tableDir(table)
	if err != nil {
		return domain.FileGrant{}, err
	}

	var url string
	if b.kind == KindFilesystem {
		url = "file://" + filepath.Join(dir, add.Path)
	} else {
		rel, err := filepath.Rel(b.basePath, dir)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = table.Name
		}
		url = b.baseURL + "/" + filepath.ToSlash(filepath.Join(rel, add.Path))
	}

	grant := domain.FileGrant{
		URL:             url,
		ID:              grantID(table, add.Path),
		PartitionValues: add.PartitionValues,
		Size:            add.Size,
		Version:         version,
		Timestamp:       add.ModificationTime,
	}
	if stats := add.ParsedStats(); stats != nil {
		grant.Stats = statsMap(stats)
	}
	return grant, nil
}
