// Package storage resolves table locations into transaction log snapshots,
// schemas, and client-fetchable file URLs across backend kinds.
package storage

import (
	"context"

	"deltashare/internal/delta"
	"deltashare/internal/domain"
)

// Backend kinds.
const (
	KindS3         = "s3"
	KindHTTP       = "http"
	KindFilesystem = "filesystem"
	KindSynthetic  = "synthetic"
)

// Backend turns catalog tables into protocol responses. Implementations
// are safe for concurrent use.
type Backend interface {
	// ResolveFile projects one live file into an accessible URL.
	ResolveFile(ctx context.Context, table *domain.Table, add delta.Add, version int64) (domain.FileGrant, error)

	// TableSchema returns the table schema as a schemaString. Backends
	// fall back to reading a Parquet footer when the transaction log
	// declares no metadata and the table is not a delta table.
	TableSchema(ctx context.Context, table *domain.Table) (string, error)

	// PartitionColumns returns the partition columns of the table.
	PartitionColumns(ctx context.Context, table *domain.Table) ([]string, error)

	// Snapshot folds the transaction log at the given version, or at the
	// latest version when version is nil.
	Snapshot(ctx context.Context, table *domain.Table, version *int64) (*delta.Snapshot, error)

	// LatestVersion resolves the newest transaction log version.
	LatestVersion(ctx context.Context, table *domain.Table) (int64, error)

	// Changes returns the per-version snapshots in [startingVersion,
	// endingVersion]. Backends without history return an empty slice.
	Changes(ctx context.Context, table *domain.Table, startingVersion, endingVersion int64) ([]*delta.Snapshot, error)

	// Available reports whether the backend is usable.
	Available() bool

	// Kind identifies the backend.
	Kind() string
}
