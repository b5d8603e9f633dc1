package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"deltashare/internal/delta"
	"deltashare/internal/domain"
)

// S3Options configures the object-store backend. The endpoint may point at
// any S3-compatible service.
type S3Options struct {
	Endpoint   string
	Region     string
	AccessKey  string
	SecretKey  string
	Bucket     string
	PresignTTL time.Duration
}

// S3Backend serves tables from an S3-compatible object store and hands out
// presigned, time-limited file URLs.
type S3Backend struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
	schemas *schemaCache
	logger  *slog.Logger
}

var _ Backend = (*S3Backend)(nil)

// NewS3Backend builds the object-store backend. Path-style addressing is
// used so MinIO and other S3-compatible endpoints work unchanged.
func NewS3Backend(opts S3Options, cacheTTL time.Duration, cacheEntries int, logger *slog.Logger) (*S3Backend, error) {
	if opts.Endpoint == "" || opts.Region == "" || opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, domain.ErrBackendUnavailable("incomplete object store configuration")
	}
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	client := s3.New(s3.Options{
		Region:       opts.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		BaseEndpoint: aws.String(opts.Endpoint),
		UsePathStyle: true,
	})

	return &S3Backend{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
		ttl:     ttl,
		schemas: newSchemaCache(cacheTTL, cacheEntries),
		logger:  logger.With("component", "storage.s3"),
	}, nil
}

func (b *S3Backend) Kind() string    { return KindS3 }
func (b *S3Backend) Available() bool { return b.client != nil }

// tableLocation splits a table location into bucket and key prefix. An
// s3:// location carries its own bucket; anything else is a prefix in the
// configured default bucket.
func (b *S3Backend) tableLocation(table *domain.Table) (bucket, prefix string, err error) {
	loc := table.Location
	if strings.HasPrefix(loc, "s3://") {
		rest := strings.TrimPrefix(loc, "s3://")
		bucket, prefix, _ = strings.Cut(rest, "/")
		if bucket == "" {
			return "", "", domain.ErrInvalidLocation("table %s has malformed location %q", table.Name, loc)
		}
		return bucket, strings.Trim(prefix, "/"), nil
	}
	if b.bucket == "" {
		return "", "", domain.ErrInvalidLocation("table %s has relative location %q and no default bucket is configured", table.Name, loc)
	}
	return b.bucket, strings.Trim(loc, "/"), nil
}

func (b *S3Backend) getObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func isNoSuchKey(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}

func (b *S3Backend) LatestVersion(ctx context.Context, table *domain.Table) (int64, error) {
	bucket, prefix, err := b.tableLocation(table)
	if err != nil {
		return 0, err
	}

	if data, err := b.getObject(ctx, bucket, path.Join(prefix, "_delta_log", delta.LastCheckpointFile)); err == nil {
		if v, err := delta.ParseLastCheckpoint(data); err == nil {
			return v, nil
		}
		b.logger.Warn("ignoring unreadable checkpoint marker", "table", table.Name)
	} else if !isNoSuchKey(err) {
		return 0, fmt.Errorf("reading checkpoint marker: %w", err)
	}

	names, err := b.listKeys(ctx, bucket, path.Join(prefix, "_delta_log")+"/")
	if err != nil {
		return 0, fmt.Errorf("listing transaction log: %w", err)
	}
	bases := make([]string, 0, len(names))
	for _, k := range names {
		bases = append(bases, path.Base(k))
	}
	if v, ok := delta.LatestVersionFromNames(bases); ok {
		return v, nil
	}
	return 0, nil
}

// ListKeys lists every object key under a prefix. An empty bucket falls
// back to the configured default bucket.
func (b *S3Backend) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	if bucket == "" {
		bucket = b.bucket
	}
	return b.listKeys(ctx, bucket, prefix)
}

// DefaultBucket returns the configured default bucket, possibly empty.
func (b *S3Backend) DefaultBucket() string { return b.bucket }

func (b *S3Backend) listKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (b *S3Backend) Snapshot(ctx context.Context, table *domain.Table, version *int64) (*delta.Snapshot, error) {
	bucket, prefix, err := b.tableLocation(table)
	if err != nil {
		return nil, err
	}

	v := int64(0)
	if version != nil {
		v = *version
	} else if latest, err := b.LatestVersion(ctx, table); err == nil {
		v = latest
	}

	key := path.Join(prefix, "_delta_log", delta.VersionFileName(v))
	data, err := b.getObject(ctx, bucket, key)
	if err != nil {
		if isNoSuchKey(err) {
			if table.Format != domain.FormatDelta {
				return b.nativeSnapshot(ctx, table, bucket, prefix)
			}
			return nil, domain.ErrNotFound("table %s has no transaction log at version %d", table.Name, v)
		}
		return nil, fmt.Errorf("reading transaction log: %w", err)
	}
	return delta.ReadLog(strings.NewReader(string(data)), v, b.logger)
}

// nativeSnapshot lists the table's data objects directly when a non-delta
// table carries no transaction log. The fallback is attempted once, never
// retried.
func (b *S3Backend) nativeSnapshot(ctx context.Context, table *domain.Table, bucket, prefix string) (*delta.Snapshot, error) {
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix + "/"),
	})
	if err != nil {
		return nil, domain.ErrNotFound("table %s has no listable data: %v", table.Name, err)
	}

	snap := &delta.Snapshot{
		Version: 0,
		Protocol: delta.Protocol{
			MinReaderVersion: delta.DefaultMinReaderVersion,
			MinWriterVersion: delta.DefaultMinWriterVersion,
		},
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if !strings.HasSuffix(key, ".parquet") || strings.Contains(key, "_delta_log/") {
			continue
		}
		add := delta.Add{
			Path:            strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/"),
			PartitionValues: map[string]string{},
			Size:            aws.ToInt64(obj.Size),
			DataChange:      true,
		}
		if obj.LastModified != nil {
			add.ModificationTime = obj.LastModified.UnixMilli()
		}
		snap.Files = append(snap.Files, add)
	}
	return snap, nil
}

// Changes reads each version file in the requested range. Gaps in the log
// are skipped.
func (b *S3Backend) Changes(ctx context.Context, table *domain.Table, startingVersion, endingVersion int64) ([]*delta.Snapshot, error) {
	snaps := make([]*delta.Snapshot, 0, endingVersion-startingVersion+1)
	for v := startingVersion; v <= endingVersion; v++ {
		version := v
		snap, err := b.Snapshot(ctx, table, &version)
		if err != nil {
			var notFound *domain.NotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (b *S3Backend) TableSchema(ctx context.Context, table *domain.Table) (string, error) {
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

func (b *S3Backend) resolveSchema(ctx context.Context, table *domain.Table) (string, error) {
	snap, err := b.Snapshot(ctx, table, nil)
	if err == nil {
		if schema, serr := snap.SchemaString(); serr == nil {
			return schema, nil
		}
	}
	if table.Format == domain.FormatDelta {
		return "", domain.ErrSchemaUnavailable("delta table %s declares no schema", table.Name)
	}
	return b.schemaFromParquet(ctx, table, snap)
}

func (b *S3Backend) schemaFromParquet(ctx context.Context, table *domain.Table, snap *delta.Snapshot) (string, error) {
	bucket, prefix, err := b.tableLocation(table)
	if err != nil {
		return "", err
	}

	var candidates []string
	if snap != nil {
		for _, f := range snap.Files {
			candidates = append(candidates, path.Join(prefix, f.Path))
		}
	}
	if len(candidates) == 0 {
		keys, err := b.listKeys(ctx, bucket, prefix+"/")
		if err != nil {
			return "", domain.ErrSchemaUnavailable("table %s: %v", table.Name, err)
		}
		for _, k := range keys {
			if strings.HasSuffix(k, ".parquet") && !strings.Contains(k, "_delta_log/") {
				candidates = append(candidates, k)
			}
		}
	}

	for _, key := range candidates {
		data, err := b.getObject(ctx, bucket, key)
		if err != nil {
			continue
		}
		schema, err := SchemaFromParquet(strings.NewReader(string(data)))
		if err == nil {
			return schema, nil
		}
		b.logger.Warn("unreadable parquet footer", "key", key, "error", err)
	}
	return "", domain.ErrSchemaUnavailable("table %s has no readable data file", table.Name)
}

func (b *S3Backend) PartitionColumns(ctx context.Context, table *domain.Table) ([]string, error) {
	snap, err := b.Snapshot(ctx, table, nil)
	if err != nil {
		return nil, nil
	}
	return snap.PartitionColumns(), nil
}

// ResolveFile presigns a GET for the file with the configured expiry.
func (b *S3Backend) ResolveFile(ctx context.Context, table *domain.Table, add delta.Add, version int64) (domain.FileGrant, error) {
	bucket, prefix, err := b.tableLocation(table)
	if err != nil {
		return domain.FileGrant{}, err
	}

	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path.Join(prefix, add.Path)),
	}, s3.WithPresignExpires(b.ttl))
	if err != nil {
		return domain.FileGrant{}, fmt.Errorf("presigning %s: %w", add.Path, err)
	}

	expires := time.Now().Add(b.ttl).UnixMilli()
	grant := domain.FileGrant{
		URL:                 req.URL,
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
