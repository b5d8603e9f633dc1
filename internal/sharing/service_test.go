package sharing

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltashare/internal/delta"
	"deltashare/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func activeShare(name string) *domain.Share {
	return &domain.Share{ID: 1, PublicID: "pub-" + name, Name: name, Active: true}
}

func testTable(format string) *domain.Table {
	return &domain.Table{
		ID: 1, PublicID: "tbl-1", Name: "orders",
		SchemaName: "finance", ShareName: "sales-share",
		Location: "s3://lake/orders", Format: format,
	}
}

func serviceWith(backend *mockBackend, format string) *Service {
	shares := &mockShareRepo{
		getByName: func(_ context.Context, name string) (*domain.Share, error) {
			if name == "sales-share" {
				return activeShare(name), nil
			}
			if name == "dormant" {
				return &domain.Share{ID: 2, Name: name, Active: false}, nil
			}
			return nil, domain.ErrNotFound("share %q not found", name)
		},
	}
	schemas := &mockSchemaRepo{
		getByName: func(_ context.Context, shareName, schemaName string) (*domain.Schema, error) {
			return &domain.Schema{ID: 1, Name: schemaName, ShareName: shareName}, nil
		},
	}
	tables := &mockTableRepo{
		getByName: func(_ context.Context, _, _, _ string) (*domain.Table, error) {
			return testTable(format), nil
		},
	}
	return NewService(shares, schemas, tables, backend, testLogger())
}

func snapshotWith(files ...delta.Add) *delta.Snapshot {
	return &delta.Snapshot{
		Version:  1,
		Protocol: delta.Protocol{MinReaderVersion: 1, MinWriterVersion: 2},
		Metadata: &delta.Metadata{
			ID:               "meta-1",
			Format:           delta.Format{Provider: "parquet"},
			SchemaString:     `{"type":"struct","fields":[]}`,
			PartitionColumns: []string{},
		},
		Files: files,
	}
}

func TestListSharesPagination(t *testing.T) {
	all := make([]domain.Share, 25)
	for i := range all {
		all[i] = domain.Share{ID: int64(i), Name: fmt.Sprintf("share-%02d", i), Active: true}
	}
	svc := NewService(
		&mockShareRepo{listActive: func(context.Context) ([]domain.Share, error) { return all, nil }},
		&mockSchemaRepo{}, &mockTableRepo{}, &mockBackend{available: true}, testLogger())
	ctx := context.Background()

	page1, token1, err := svc.ListShares(ctx, domain.PageRequest{MaxResults: 10})
	require.NoError(t, err)
	assert.Len(t, page1, 10)
	require.NotEmpty(t, token1)

	decoded, err := base64.StdEncoding.DecodeString(token1)
	require.NoError(t, err)
	assert.Equal(t, "10", string(decoded))

	page2, token2, err := svc.ListShares(ctx, domain.PageRequest{MaxResults: 10, PageToken: token1})
	require.NoError(t, err)
	require.Len(t, page2, 10)
	assert.Equal(t, "share-10", page2[0].Name)
	require.NotEmpty(t, token2)

	page3, token3, err := svc.ListShares(ctx, domain.PageRequest{MaxResults: 10, PageToken: token2})
	require.NoError(t, err)
	assert.Len(t, page3, 5)
	assert.Empty(t, token3)
}

func TestListSharesBadTokenResets(t *testing.T) {
	all := []domain.Share{{Name: "a", Active: true}, {Name: "b", Active: true}}
	svc := NewService(
		&mockShareRepo{listActive: func(context.Context) ([]domain.Share, error) { return all, nil }},
		&mockSchemaRepo{}, &mockTableRepo{}, &mockBackend{available: true}, testLogger())

	page, _, err := svc.ListShares(context.Background(), domain.PageRequest{PageToken: "!!not-base64!!"})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].Name)
}

func TestInactiveShareIsNotFound(t *testing.T) {
	svc := serviceWith(&mockBackend{available: true}, domain.FormatDelta)

	_, err := svc.GetShare(context.Background(), "dormant")
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)

	_, _, err = svc.ListSchemas(context.Background(), "dormant", domain.PageRequest{})
	require.ErrorAs(t, err, &notFound)
}

func TestVersionDegradesToZero(t *testing.T) {
	svc := serviceWith(&mockBackend{available: false}, domain.FormatDelta)
	v, err := svc.Version(context.Background(), "sales-share", "finance", "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestMetadataDialects(t *testing.T) {
	backend := &mockBackend{
		available: true,
		snapshot: func(context.Context, *domain.Table, *int64) (*delta.Snapshot, error) {
			return snapshotWith(), nil
		},
	}

	// delta table always wraps
	svc := serviceWith(backend, domain.FormatDelta)
	resp, err := svc.Metadata(context.Background(), "sales-share", "finance", "orders",
		ParseCapabilities("responseformat=parquet", "", ""))
	require.NoError(t, err)
	require.Len(t, resp.Lines, 2)
	protoBody := resp.Lines[0]["protocol"].(map[string]any)
	require.Contains(t, protoBody, "deltaProtocol")
	inner := protoBody["deltaProtocol"].(map[string]any)
	assert.Equal(t, 2, inner["minWriterVersion"])
	metaBody := resp.Lines[1]["metaData"].(map[string]any)
	assert.Contains(t, metaBody, "deltaMetadata")

	// parquet table with explicit parquet preference stays flat
	svc = serviceWith(backend, domain.FormatParquet)
	resp, err = svc.Metadata(context.Background(), "sales-share", "finance", "orders",
		ParseCapabilities("responseformat=parquet", "", ""))
	require.NoError(t, err)
	protoBody = resp.Lines[0]["protocol"].(map[string]any)
	assert.NotContains(t, protoBody, "deltaProtocol")
	assert.NotContains(t, protoBody, "minWriterVersion")
	metaBody = resp.Lines[1]["metaData"].(map[string]any)
	assert.Equal(t, "meta-1", metaBody["id"])
}

func TestQueryPruning(t *testing.T) {
	files := []delta.Add{
		{Path: "f1", PartitionValues: map[string]string{}, Size: 1, Stats: `{"maxValues":{"amount":100}}`},
		{Path: "f2", PartitionValues: map[string]string{}, Size: 1, Stats: `{"maxValues":{"amount":600}}`},
		{Path: "f3", PartitionValues: map[string]string{}, Size: 1},
	}
	backend := &mockBackend{
		available: true,
		snapshot: func(context.Context, *domain.Table, *int64) (*delta.Snapshot, error) {
			return snapshotWith(files...), nil
		},
	}
	svc := serviceWith(backend, domain.FormatParquet)

	resp, err := svc.Query(context.Background(), "sales-share", "finance", "orders",
		QueryRequest{PredicateHints: []string{"amount > 500"}},
		ParseCapabilities("responseformat=parquet", "", ""))
	require.NoError(t, err)

	// protocol + metadata + two surviving files
	require.Len(t, resp.Lines, 4)
	f2 := resp.Lines[2]["file"].(map[string]any)
	f3 := resp.Lines[3]["file"].(map[string]any)
	assert.Equal(t, "https://files.test/f2", f2["url"])
	assert.Equal(t, "https://files.test/f3", f3["url"])
}

func TestQueryLimitHint(t *testing.T) {
	files := []delta.Add{
		{Path: "f1", PartitionValues: map[string]string{}},
		{Path: "f2", PartitionValues: map[string]string{}},
		{Path: "f3", PartitionValues: map[string]string{}},
	}
	backend := &mockBackend{
		available: true,
		snapshot: func(context.Context, *domain.Table, *int64) (*delta.Snapshot, error) {
			return snapshotWith(files...), nil
		},
	}
	svc := serviceWith(backend, domain.FormatParquet)

	limit := int64(2)
	resp, err := svc.Query(context.Background(), "sales-share", "finance", "orders",
		QueryRequest{LimitHint: &limit}, ParseCapabilities("responseformat=parquet", "", ""))
	require.NoError(t, err)
	assert.Len(t, resp.Lines, 4)
}

func TestQueryEndStreamAction(t *testing.T) {
	expires := int64(1700000000000)
	backend := &mockBackend{
		available: true,
		snapshot: func(context.Context, *domain.Table, *int64) (*delta.Snapshot, error) {
			return snapshotWith(delta.Add{Path: "f1", PartitionValues: map[string]string{}}), nil
		},
		resolveFile: func(_ context.Context, _ *domain.Table, add delta.Add, version int64) (domain.FileGrant, error) {
			return domain.FileGrant{
				URL: "https://files.test/" + add.Path, ID: add.Path,
				PartitionValues: add.PartitionValues, Version: version,
				ExpirationTimestamp: &expires,
			}, nil
		},
	}
	svc := serviceWith(backend, domain.FormatParquet)

	resp, err := svc.Query(context.Background(), "sales-share", "finance", "orders",
		QueryRequest{}, ParseCapabilities("responseformat=parquet", "true", ""))
	require.NoError(t, err)

	last := resp.Lines[len(resp.Lines)-1]
	require.Contains(t, last, "endStreamAction")
	body := last["endStreamAction"].(map[string]any)
	assert.Equal(t, expires, body["minUrlExpirationTimestamp"])

	token, ok := body["refreshToken"].(string)
	require.True(t, ok)
	decoded, err := base64.URLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(decoded), "sales-share/finance/orders/"))
}

func TestChangesEmptyWithoutHistory(t *testing.T) {
	svc := serviceWith(&mockBackend{available: true}, domain.FormatDelta)
	resp, err := svc.Changes(context.Background(), "sales-share", "finance", "orders", 0, nil,
		Capabilities{})
	require.NoError(t, err)
	assert.Empty(t, resp.Lines)
}

func TestChangesRange(t *testing.T) {
	backend := &mockBackend{
		available: true,
		changes: func(_ context.Context, _ *domain.Table, starting, ending int64) ([]*delta.Snapshot, error) {
			assert.Equal(t, int64(0), starting)
			assert.Equal(t, int64(1), ending)
			s0 := snapshotWith(delta.Add{Path: "f0", PartitionValues: map[string]string{}})
			s0.Version = 0
			s1 := snapshotWith(delta.Add{Path: "f1", PartitionValues: map[string]string{}})
			s1.Version = 1
			return []*delta.Snapshot{s0, s1}, nil
		},
	}
	svc := serviceWith(backend, domain.FormatParquet)

	ending := int64(1)
	resp, err := svc.Changes(context.Background(), "sales-share", "finance", "orders", 0, &ending,
		ParseCapabilities("responseformat=parquet", "", ""))
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Version)
	assert.Len(t, resp.Lines, 4)
}

func TestChangesInvalidRange(t *testing.T) {
	svc := serviceWith(&mockBackend{available: true}, domain.FormatDelta)
	ending := int64(1)
	_, err := svc.Changes(context.Background(), "sales-share", "finance", "orders", 5, &ending,
		Capabilities{})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestWriteNDJSONCompactLines(t *testing.T) {
	var sb strings.Builder
	err := WriteNDJSON(&sb, []map[string]any{
		{"protocol": map[string]any{"minReaderVersion": 1}},
		{"metaData": map[string]any{"id": "m"}},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"protocol":{"minReaderVersion":1}}`, lines[0])
	assert.NotContains(t, sb.String(), "  ")
}
