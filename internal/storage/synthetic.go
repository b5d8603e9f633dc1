package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"deltashare/internal/delta"
	"deltashare/internal/domain"
)

const (
	syntheticFilesPerTable = 10
	syntheticRowsPerFile   = 1000
	syntheticURLTTL        = time.Hour
)

// partitionTemplates is the fixed catalog of partition layouts. A table's
// name hash picks one, so the same name always yields the same layout.
var partitionTemplates = [][]string{
	{"year", "month"},
	{"region", "country"},
	{"category", "subcategory"},
	{"status", "type"},
	{"date"},
	{},
}

// SyntheticBackend fabricates deterministic tables with real Parquet
// files, for demos and integration testing without any storage service.
// Files are materialized once per table under a local directory and served
// through the synthetic file endpoint.
type SyntheticBackend struct {
	dir     string
	baseURL string
	mem     memory.Allocator
	logger  *slog.Logger

	mu     sync.Mutex
	tables map[string]*syntheticTable
}

type syntheticTable struct {
	schemaString  string
	partitionCols []string
	metadataID    string
	files         []delta.Add
}

var _ Backend = (*SyntheticBackend)(nil)

// NewSyntheticBackend materializes files under dir (a fresh temp directory
// when empty) and stamps baseURL onto file grants.
func NewSyntheticBackend(dir, baseURL string, logger *slog.Logger) (*SyntheticBackend, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "synthetic-tables-")
		if err != nil {
			return nil, fmt.Errorf("creating synthetic table directory: %w", err)
		}
		dir = tmp
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating synthetic table directory: %w", err)
	}

	return &SyntheticBackend{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		mem:     memory.NewGoAllocator(),
		logger:  logger.With("component", "storage.synthetic"),
		tables:  make(map[string]*syntheticTable),
	}, nil
}

func (b *SyntheticBackend) Kind() string    { return KindSynthetic }
func (b *SyntheticBackend) Available() bool { return true }

// Dir returns the directory holding the materialized files.
func (b *SyntheticBackend) Dir() string { return b.dir }

// FilePath maps a served file name back to its path on disk. Only names
// the backend generated itself resolve, so the file endpoint cannot be
// used to walk the filesystem.
func (b *SyntheticBackend) FilePath(name string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.tables {
		for _, f := range t.files {
			if f.Path == name {
				return filepath.Join(b.dir, name), true
			}
		}
	}
	return "", false
}

func (b *SyntheticBackend) LatestVersion(_ context.Context, _ *domain.Table) (int64, error) {
	return 0, nil
}

func (b *SyntheticBackend) Changes(_ context.Context, _ *domain.Table, _, _ int64) ([]*delta.Snapshot, error) {
	return []*delta.Snapshot{}, nil
}

func (b *SyntheticBackend) Snapshot(ctx context.Context, table *domain.Table, _ *int64) (*delta.Snapshot, error) {
	st, err := b.materialize(ctx, table.Name)
	if err != nil {
		return nil, err
	}
	return &delta.Snapshot{
		Version: 0,
		Protocol: delta.Protocol{
			MinReaderVersion: delta.DefaultMinReaderVersion,
			MinWriterVersion: delta.DefaultMinWriterVersion,
		},
		Metadata: &delta.Metadata{
			ID:               st.metadataID,
			Name:             table.Name,
			Format:           delta.Format{Provider: "parquet"},
			SchemaString:     st.schemaString,
			PartitionColumns: st.partitionCols,
		},
		Files: st.files,
	}, nil
}

func (b *SyntheticBackend) TableSchema(ctx context.Context, table *domain.Table) (string, error) {
	st, err := b.materialize(ctx, table.Name)
	if err != nil {
		return "", err
	}
	return st.schemaString, nil
}

func (b *SyntheticBackend) PartitionColumns(ctx context.Context, table *domain.Table) ([]string, error) {
	st, err := b.materialize(ctx, table.Name)
	if err != nil {
		return nil, err
	}
	return st.partitionCols, nil
}

func (b *SyntheticBackend) ResolveFile(ctx context.Context, table *domain.Table, add delta.Add, version int64) (domain.FileGrant, error) {
	if _, err := b.materialize(ctx, table.Name); err != nil {
		return domain.FileGrant{}, err
	}

	expires := time.Now().Add(syntheticURLTTL).UnixMilli()
	grant := domain.FileGrant{
		URL:                 b.baseURL + "/" + add.Path,
		ID:                  grantID(table, add.Path),
		PartitionValues:     add.PartitionValues,
		Size:                add.Size,
		Version:             version,
		Timestamp:           add.ModificationTime,
		ExpirationTimestamp: &expires,
	}
	if stats := add.ParsedStats(); stats != nil {
		grant.Stats = statsMap(stats)
	}
	return grant, nil
}

// materialize generates the table's file set on first use.
func (b *SyntheticBackend) materialize(ctx context.Context, tableName string) (*syntheticTable, error) {
	b.mu.Lock()
	if st, ok := b.tables[tableName]; ok {
		b.mu.Unlock()
		return st, nil
	}
	b.mu.Unlock()

	shape := shapeFor(tableName)
	partitionCols := partitionTemplates[int(nameHash(tableName))%len(partitionTemplates)]

	schema := shape.arrowSchema()
	schemaString, err := SchemaString(schema)
	if err != nil {
		return nil, err
	}

	files := make([]delta.Add, syntheticFilesPerTable)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := 0; i < syntheticFilesPerTable; i++ {
		i := i
		g.Go(func() error {
			add, err := b.writeFile(tableName, shape, schema, partitionCols, i)
			if err != nil {
				return err
			}
			files[i] = add
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("materializing synthetic table %s: %w", tableName, err)
	}

	st := &syntheticTable{
		schemaString:  schemaString,
		partitionCols: partitionCols,
		metadataID:    uuid.NewSHA1(uuid.NameSpaceURL, []byte("synthetic:"+tableName)).String(),
		files:         files,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.tables[tableName]; ok {
		return existing, nil
	}
	b.tables[tableName] = st
	b.logger.Info("materialized synthetic table", "table", tableName,
		"files", len(files), "partitions", strings.Join(partitionCols, ","))
	return st, nil
}

func (b *SyntheticBackend) writeFile(tableName string, shape tableShape, schema *arrow.Schema, partitionCols []string, index int) (delta.Add, error) {
	name := fmt.Sprintf("%s-part-%04d.parquet", tableName, index)
	path := filepath.Join(b.dir, name)

	rng := rand.New(rand.NewSource(int64(nameHash(tableName)) + int64(index)))
	rec, stats := shape.buildRecord(b.mem, schema, rng)
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return delta.Add{}, err
	}

	w, err := pqarrow.NewFileWriter(schema, f,
		parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy)),
		pqarrow.NewArrowWriterProperties())
	if err != nil {
		f.Close()
		return delta.Add{}, err
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return delta.Add{}, err
	}
	if err := w.Close(); err != nil {
		return delta.Add{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return delta.Add{}, err
	}

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return delta.Add{}, err
	}

	return delta.Add{
		Path:             name,
		PartitionValues:  partitionValuesFor(partitionCols, index, rng),
		Size:             info.Size(),
		ModificationTime: info.ModTime().UnixMilli(),
		DataChange:       true,
		Stats:            string(statsJSON),
	}, nil
}

// partitionValuesFor produces deterministic values for each partition
// column of the template.
func partitionValuesFor(cols []string, index int, rng *rand.Rand) map[string]string {
	values := make(map[string]string, len(cols))
	for _, col := range cols {
		switch col {
		case "year":
			values[col] = fmt.Sprintf("%d", 2020+index%5)
		case "month":
			values[col] = fmt.Sprintf("%02d", 1+index%12)
		case "region":
			values[col] = pick(rng, "amer", "emea", "apac")
		case "country":
			values[col] = pick(rng, "us", "de", "jp", "br")
		case "category":
			values[col] = pick(rng, "hardware", "software", "services")
		case "subcategory":
			values[col] = pick(rng, "standard", "premium")
		case "status":
			values[col] = pick(rng, "active", "inactive", "pending")
		case "type":
			values[col] = pick(rng, "internal", "external")
		case "date":
			values[col] = time.Date(2024, time.Month(1+index%12), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		default:
			values[col] = fmt.Sprintf("p%d", index)
		}
	}
	return values
}

func pick(rng *rand.Rand, options ...string) string {
	return options[rng.Intn(len(options))]
}

func nameHash(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}
