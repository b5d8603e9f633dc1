package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltashare/internal/delta"
	"deltashare/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func writeTable(t *testing.T, base, name string, versions map[int64]string, checkpoint string) {
	t.Helper()
	logDir := filepath.Join(base, name, "_delta_log")
	require.NoError(t, os.MkdirAll(logDir, 0o755))
	for v, content := range versions {
		require.NoError(t, os.WriteFile(filepath.Join(logDir, delta.VersionFileName(v)), []byte(content), 0o644))
	}
	if checkpoint != "" {
		require.NoError(t, os.WriteFile(filepath.Join(logDir, delta.LastCheckpointFile), []byte(checkpoint), 0o644))
	}
}

const testLogV0 = `{"metaData":{"id":"m0","format":{"provider":"parquet"},"schemaString":"{\"type\":\"struct\",\"fields\":[]}","partitionColumns":["region"]}}
{"add":{"path":"part-0.parquet","partitionValues":{"region":"us"},"size":10,"modificationTime":1700000000000,"dataChange":true}}
`

const testLogV1 = `{"metaData":{"id":"m1","format":{"provider":"parquet"},"schemaString":"{\"type\":\"struct\",\"fields\":[]}","partitionColumns":["region"]}}
{"add":{"path":"part-1.parquet","partitionValues":{"region":"eu"},"size":20,"modificationTime":1700000001000,"dataChange":true}}
`

func tableFor(name string) *domain.Table {
	return &domain.Table{
		Name: name, SchemaName: "default", ShareName: "demo",
		Location: name, Format: domain.FormatDelta,
	}
}

func TestLocalLatestVersionFromListing(t *testing.T) {
	base := t.TempDir()
	writeTable(t, base, "orders", map[int64]string{0: testLogV0, 1: testLogV1}, "")

	b := NewFilesystemBackend(base, 0, 0, discardLogger())
	v, err := b.LatestVersion(context.Background(), tableFor("orders"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestLocalLatestVersionPrefersCheckpoint(t *testing.T) {
	base := t.TempDir()
	writeTable(t, base, "orders", map[int64]string{0: testLogV0, 1: testLogV1}, `{"version":0}`)

	b := NewFilesystemBackend(base, 0, 0, discardLogger())
	v, err := b.LatestVersion(context.Background(), tableFor("orders"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestLocalLatestVersionDefaultsToZero(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "empty"), 0o755))

	b := NewFilesystemBackend(base, 0, 0, discardLogger())
	v, err := b.LatestVersion(context.Background(), tableFor("empty"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestLocalSnapshotAtVersion(t *testing.T) {
	base := t.TempDir()
	writeTable(t, base, "orders", map[int64]string{0: testLogV0, 1: testLogV1}, "")

	b := NewFilesystemBackend(base, 0, 0, discardLogger())
	v0 := int64(0)
	snap, err := b.Snapshot(context.Background(), tableFor("orders"), &v0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Version)
	require.Len(t, snap.Files, 1)
	assert.Equal(t, "part-0.parquet", snap.Files[0].Path)

	snap, err = b.Snapshot(context.Background(), tableFor("orders"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)
}

func TestLocalSnapshotMissingVersion(t *testing.T) {
	base := t.TempDir()
	writeTable(t, base, "orders", map[int64]string{0: testLogV0}, "")

	b := NewFilesystemBackend(base, 0, 0, discardLogger())
	v9 := int64(9)
	_, err := b.Snapshot(context.Background(), tableFor("orders"), &v9)
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestLocalTableSchemaFromLog(t *testing.T) {
	base := t.TempDir()
	writeTable(t, base, "orders", map[int64]string{0: testLogV0}, "")

	b := NewFilesystemBackend(base, 0, 0, discardLogger())
	schema, err := b.TableSchema(context.Background(), tableFor("orders"))
	require.NoError(t, err)
	assert.Contains(t, schema, `"type":"struct"`)

	// second read is served from cache
	schema2, err := b.TableSchema(context.Background(), tableFor("orders"))
	require.NoError(t, err)
	assert.Equal(t, schema, schema2)
}

func TestLocalDeltaTableWithoutMetadataIsSchemaUnavailable(t *testing.T) {
	base := t.TempDir()
	noMeta := `{"add":{"path":"p.parquet","partitionValues":{},"size":1,"modificationTime":0,"dataChange":true}}
`
	writeTable(t, base, "bare", map[int64]string{0: noMeta}, "")

	b := NewFilesystemBackend(base, 0, 0, discardLogger())
	_, err := b.TableSchema(context.Background(), tableFor("bare"))
	var schemaErr *domain.SchemaUnavailableError
	require.ErrorAs(t, err, &schemaErr)
}

func TestLocalResolveFileURLs(t *testing.T) {
	base := t.TempDir()
	writeTable(t, base, "orders", map[int64]string{0: testLogV0}, "")
	add := delta.Add{Path: "part-0.parquet", PartitionValues: map[string]string{"region": "us"}, Size: 10}

	fs := NewFilesystemBackend(base, 0, 0, discardLogger())
	grant, err := fs.ResolveFile(context.Background(), tableFor("orders"), add, 0)
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(base, "orders", "part-0.parquet"), grant.URL)
	assert.Nil(t, grant.ExpirationTimestamp)
	assert.NotEmpty(t, grant.ID)

	httpB := NewHTTPBackend(base, "http://localhost:8080/files/", 0, 0, discardLogger())
	grant, err = httpB.ResolveFile(context.Background(), tableFor("orders"), add, 0)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/orders/part-0.parquet", grant.URL)
	assert.Nil(t, grant.ExpirationTimestamp)
}

func TestLocalPartitionColumns(t *testing.T) {
	base := t.TempDir()
	writeTable(t, base, "orders", map[int64]string{0: testLogV0}, "")

	b := NewFilesystemBackend(base, 0, 0, discardLogger())
	cols, err := b.PartitionColumns(context.Background(), tableFor("orders"))
	require.NoError(t, err)
	assert.Equal(t, []string{"region"}, cols)
}

func TestLocalMissingLocation(t *testing.T) {
	b := NewFilesystemBackend(t.TempDir(), 0, 0, discardLogger())
	table := &domain.Table{Name: "orphan", Format: domain.FormatDelta}
	_, err := b.Snapshot(context.Background(), table, nil)
	var invalidLoc *domain.InvalidLocationError
	require.ErrorAs(t, err, &invalidLoc)
}
