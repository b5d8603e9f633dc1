package crawler

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"deltashare/internal/domain"
)

// Discovery is one table root found in storage.
type Discovery struct {
	// Root is the slash-separated path of the table directory, including
	// the bucket name for object stores.
	Root   string
	Format string
}

// Scanner walks one storage tree and reports candidate table roots.
type Scanner interface {
	Scan(ctx context.Context) ([]Discovery, error)
}

// ObjectLister is the object-store capability the S3 scanner needs.
type ObjectLister interface {
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
}

// S3Scanner classifies every object key in a bucket: a key under a
// _delta_log segment marks a delta table root, a .parquet key marks a
// parquet table root. Delta classification wins when both apply.
type S3Scanner struct {
	lister ObjectLister
	bucket string
}

func NewS3Scanner(lister ObjectLister, bucket string) *S3Scanner {
	return &S3Scanner{lister: lister, bucket: bucket}
}

func (s *S3Scanner) Scan(ctx context.Context) ([]Discovery, error) {
	if s.bucket == "" {
		return nil, domain.ErrValidation("object store crawling requires a configured bucket")
	}
	keys, err := s.lister.ListKeys(ctx, s.bucket, "")
	if err != nil {
		return nil, err
	}

	formats := make(map[string]string)
	for _, key := range keys {
		if root, ok := deltaRootOf(key); ok {
			formats[root] = domain.FormatDelta
			continue
		}
		if strings.HasSuffix(key, ".parquet") {
			root := pathDir(key)
			if root == "" {
				continue
			}
			if _, exists := formats[root]; !exists {
				formats[root] = domain.FormatParquet
			}
		}
	}
	return collect(formats, s.bucket+"/"), nil
}

func deltaRootOf(key string) (string, bool) {
	idx := strings.Index(key, "/_delta_log/")
	if idx < 0 {
		return "", false
	}
	return key[:idx], true
}

func pathDir(key string) string {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return ""
	}
	return key[:idx]
}

// FSScanner walks a directory tree up to maxDepth levels below the base.
type FSScanner struct {
	basePath string
	maxDepth int
	// sharePrefix is prepended to discovered roots so patterns with a
	// {share} segment can resolve against filesystem trees too.
	sharePrefix string
}

func NewFSScanner(basePath string, maxDepth int, sharePrefix string) *FSScanner {
	if maxDepth <= 0 {
		maxDepth = 4
	}
	return &FSScanner{basePath: basePath, maxDepth: maxDepth, sharePrefix: sharePrefix}
}

func (s *FSScanner) Scan(_ context.Context) ([]Discovery, error) {
	formats := make(map[string]string)

	err := filepath.WalkDir(s.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(s.basePath, path)
		if rerr != nil || rel == "." {
			return nil
		}
		// classify log directories before the depth cutoff so a table
		// root at exactly maxDepth still reads as delta
		if d.IsDir() && d.Name() == "_delta_log" {
			root := filepath.ToSlash(filepath.Dir(rel))
			if root != "." {
				formats[root] = domain.FormatDelta
			}
			return filepath.SkipDir
		}
		depth := len(strings.Split(filepath.ToSlash(rel), "/"))
		if d.IsDir() && depth > s.maxDepth {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".parquet") {
			root := filepath.ToSlash(filepath.Dir(rel))
			if root == "." {
				return nil
			}
			if _, exists := formats[root]; !exists {
				formats[root] = domain.FormatParquet
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	prefix := ""
	if s.sharePrefix != "" {
		prefix = s.sharePrefix + "/"
	}
	return collect(formats, prefix), nil
}

// NoopScanner reports nothing. The synthetic backend has no storage tree
// to crawl.
type NoopScanner struct{}

func (NoopScanner) Scan(context.Context) ([]Discovery, error) {
	return []Discovery{}, nil
}

func collect(formats map[string]string, prefix string) []Discovery {
	discoveries := make([]Discovery, 0, len(formats))
	for root, format := range formats {
		discoveries = append(discoveries, Discovery{Root: prefix + root, Format: format})
	}
	sort.Slice(discoveries, func(i, j int) bool { return discoveries[i].Root < discoveries[j].Root })
	return discoveries
}
