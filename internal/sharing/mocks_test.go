package sharing

import (
	"context"

	"deltashare/internal/delta"
	"deltashare/internal/domain"
	"deltashare/internal/storage"
)

type mockShareRepo struct {
	listActive func(ctx context.Context) ([]domain.Share, error)
	getByName  func(ctx context.Context, name string) (*domain.Share, error)
}

func (m *mockShareRepo) ListActive(ctx context.Context) ([]domain.Share, error) {
	return m.listActive(ctx)
}

func (m *mockShareRepo) GetByName(ctx context.Context, name string) (*domain.Share, error) {
	return m.getByName(ctx, name)
}

func (m *mockShareRepo) Create(_ context.Context, share *domain.Share) (*domain.Share, error) {
	return share, nil
}

type mockSchemaRepo struct {
	listByShare func(ctx context.Context, shareName string) ([]domain.Schema, error)
	getByName   func(ctx context.Context, shareName, schemaName string) (*domain.Schema, error)
}

func (m *mockSchemaRepo) ListByShare(ctx context.Context, shareName string) ([]domain.Schema, error) {
	return m.listByShare(ctx, shareName)
}

func (m *mockSchemaRepo) GetByName(ctx context.Context, shareName, schemaName string) (*domain.Schema, error) {
	return m.getByName(ctx, shareName, schemaName)
}

func (m *mockSchemaRepo) Create(_ context.Context, schema *domain.Schema) (*domain.Schema, error) {
	return schema, nil
}

type mockTableRepo struct {
	listBySchema func(ctx context.Context, shareName, schemaName string) ([]domain.Table, error)
	listByShare  func(ctx context.Context, shareName string) ([]domain.Table, error)
	getByName    func(ctx context.Context, shareName, schemaName, tableName string) (*domain.Table, error)
}

func (m *mockTableRepo) ListBySchema(ctx context.Context, shareName, schemaName string) ([]domain.Table, error) {
	return m.listBySchema(ctx, shareName, schemaName)
}

func (m *mockTableRepo) ListByShare(ctx context.Context, shareName string) ([]domain.Table, error) {
	return m.listByShare(ctx, shareName)
}

func (m *mockTableRepo) GetByName(ctx context.Context, shareName, schemaName, tableName string) (*domain.Table, error) {
	return m.getByName(ctx, shareName, schemaName, tableName)
}

func (m *mockTableRepo) Create(_ context.Context, table *domain.Table) (*domain.Table, error) {
	return table, nil
}

type mockBackend struct {
	kind          string
	available     bool
	snapshot      func(ctx context.Context, table *domain.Table, version *int64) (*delta.Snapshot, error)
	latestVersion func(ctx context.Context, table *domain.Table) (int64, error)
	changes       func(ctx context.Context, table *domain.Table, starting, ending int64) ([]*delta.Snapshot, error)
	resolveFile   func(ctx context.Context, table *domain.Table, add delta.Add, version int64) (domain.FileGrant, error)
	tableSchema   func(ctx context.Context, table *domain.Table) (string, error)
}

var _ storage.Backend = (*mockBackend)(nil)

func (m *mockBackend) Kind() string {
	if m.kind == "" {
		return "mock"
	}
	return m.kind
}

func (m *mockBackend) Available() bool { return m.available }

func (m *mockBackend) Snapshot(ctx context.Context, table *domain.Table, version *int64) (*delta.Snapshot, error) {
	return m.snapshot(ctx, table, version)
}

func (m *mockBackend) LatestVersion(ctx context.Context, table *domain.Table) (int64, error) {
	if m.latestVersion == nil {
		return 0, nil
	}
	return m.latestVersion(ctx, table)
}

func (m *mockBackend) Changes(ctx context.Context, table *domain.Table, starting, ending int64) ([]*delta.Snapshot, error) {
	if m.changes == nil {
		return []*delta.Snapshot{}, nil
	}
	return m.changes(ctx, table, starting, ending)
}

func (m *mockBackend) ResolveFile(ctx context.Context, table *domain.Table, add delta.Add, version int64) (domain.FileGrant, error) {
	if m.resolveFile == nil {
		return domain.FileGrant{
			URL:             "https://files.test/" + add.Path,
			ID:              add.Path,
			PartitionValues: add.PartitionValues,
			Size:            add.Size,
			Version:         version,
		}, nil
	}
	return m.resolveFile(ctx, table, add, version)
}

func (m *mockBackend) TableSchema(ctx context.Context, table *domain.Table) (string, error) {
	if m.tableSchema == nil {
		return `{"type":"struct","fields":[]}`, nil
	}
	return m.tableSchema(ctx, table)
}

func (m *mockBackend) PartitionColumns(_ context.Context, _ *domain.Table) ([]string, error) {
	return nil, nil
}
