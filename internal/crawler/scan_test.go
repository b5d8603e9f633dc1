package crawler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltashare/internal/domain"
)

type fakeLister struct {
	keys []string
}

func (f *fakeLister) ListKeys(_ context.Context, _, _ string) ([]string, error) {
	return f.keys, nil
}

func TestS3ScannerClassification(t *testing.T) {
	lister := &fakeLister{keys: []string{
		"finance/orders/_delta_log/00000000000000000000.json",
		"finance/orders/_delta_log/00000000000000000001.json",
		"finance/orders/part-0.parquet",
		"marketing/events/data.parquet",
		"readme.md",
	}}
	s := NewS3Scanner(lister, "sales-share")

	discoveries, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, discoveries, 2)

	assert.Equal(t, Discovery{Root: "sales-share/finance/orders", Format: domain.FormatDelta}, discoveries[0])
	assert.Equal(t, Discovery{Root: "sales-share/marketing/events", Format: domain.FormatParquet}, discoveries[1])
}

func TestS3ScannerDeltaWinsOverParquet(t *testing.T) {
	lister := &fakeLister{keys: []string{
		"finance/orders/part-0.parquet",
		"finance/orders/_delta_log/00000000000000000000.json",
	}}
	s := NewS3Scanner(lister, "lake")

	discoveries, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, discoveries, 1)
	assert.Equal(t, domain.FormatDelta, discoveries[0].Format)
}

func TestS3ScannerRequiresBucket(t *testing.T) {
	s := NewS3Scanner(&fakeLister{}, "")
	_, err := s.Scan(context.Background())
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
}

func TestFSScanner(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "finance", "orders", "_delta_log"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(base, "finance", "orders", "_delta_log", "00000000000000000000.json"),
		[]byte("{}"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "marketing", "events"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(base, "marketing", "events", "data.parquet"), []byte("x"), 0o644))

	s := NewFSScanner(base, 4, "")
	discoveries, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, discoveries, 2)
	assert.Equal(t, Discovery{Root: "finance/orders", Format: domain.FormatDelta}, discoveries[0])
	assert.Equal(t, Discovery{Root: "marketing/events", Format: domain.FormatParquet}, discoveries[1])
}

func TestFSScannerMaxDepth(t *testing.T) {
	base := t.TempDir()
	deep := filepath.Join(base, "a", "b", "c", "d", "e", "table")
	require.NoError(t, os.MkdirAll(deep, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(deep, "data.parquet"), []byte("x"), 0o644))

	s := NewFSScanner(base, 3, "")
	discoveries, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, discoveries)
}

func TestFSScannerDeltaRootAtMaxDepth(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "finance", "orders")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_delta_log"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "_delta_log", "00000000000000000000.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "part-0.parquet"), []byte("x"), 0o644))

	s := NewFSScanner(base, 2, "")
	discoveries, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, discoveries, 1)
	assert.Equal(t, Discovery{Root: "finance/orders", Format: domain.FormatDelta}, discoveries[0])
}

func TestFSScannerSharePrefix(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "finance", "orders"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(base, "finance", "orders", "data.parquet"), []byte("x"), 0o644))

	s := NewFSScanner(base, 4, "sales-share")
	discoveries, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, discoveries, 1)
	assert.Equal(t, "sales-share/finance/orders", discoveries[0].Root)
}
