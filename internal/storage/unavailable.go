package storage

import (
	"context"

	"deltashare/internal/delta"
	"deltashare/internal/domain"
)

// unavailableBackend stands in when a backend fails to initialize, so the
// process can come up and degrade instead of crashing.
type unavailableBackend struct {
	kind string
}

var _ Backend = (*unavailableBackend)(nil)

// NewUnavailableBackend returns a backend that reports unavailable and
// fails every operation with a typed error.
func NewUnavailableBackend(kind string) Backend {
	return &unavailableBackend{kind: kind}
}

func (b *unavailableBackend) Kind() string    { return b.kind }
func (b *unavailableBackend) Available() bool { return false }

func (b *unavailableBackend) err() error {
	return domain.ErrBackendUnavailable("storage backend %s failed to initialize", b.kind)
}

func (b *unavailableBackend) ResolveFile(context.Context, *domain.Table, delta.Add, int64) (domain.FileGrant, error) {
	return domain.FileGrant{}, b.err()
}

func (b *unavailableBackend) TableSchema(context.Context, *domain.Table) (string, error) {
	return "", b.err()
}

func (b *unavailableBackend) PartitionColumns(context.Context, *domain.Table) ([]string, error) {
	return nil, b.err()
}

func (b *unavailableBackend) Snapshot(context.Context, *domain.Table, *int64) (*delta.Snapshot, error) {
	return nil, b.err()
}

func (b *unavailableBackend) LatestVersion(context.Context, *domain.Table) (int64, error) {
	return 0, b.err()
}

func (b *unavailableBackend) Changes(context.Context, *domain.Table, int64, int64) ([]*delta.Snapshot, error) {
	return nil, b.err()
}
