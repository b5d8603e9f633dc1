package domain

import "time"

// Table formats understood by the server.
const (
	FormatDelta   = "delta"
	FormatParquet = "parquet"
)

// DiscoveredByCrawler marks catalog rows created by the table crawler
// rather than by hand.
const DiscoveredByCrawler = "crawler"

// Share is the top-level sharing unit. Inactive shares behave as absent
// for all protocol callers.
type Share struct {
	ID          int64
	PublicID    string // stable opaque id exposed to clients
	Name        string
	Description string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Schema groups tables inside a share. Names are unique per share.
type Schema struct {
	ID          int64
	PublicID    string
	Name        string
	Description string
	ShareID     int64
	ShareName   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Table is a shared table. Names are unique per schema.
type Table struct {
	ID           int64
	PublicID     string
	Name         string
	Description  string
	SchemaID     int64
	SchemaName   string
	ShareName    string
	Location     string // s3://bucket/path, file://..., http URL, or relative path
	Format       string // FormatDelta or FormatParquet
	ShareAsView  bool
	DiscoveredAt *time.Time // nil for manually created tables
	DiscoveredBy string     // empty, or DiscoveredByCrawler
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ExecutionStatus is the lifecycle state of one crawler run.
type ExecutionStatus string

// Crawler run states. A run never stays in StatusRunning after the
// crawler returns: it is finalized as success or failure.
const (
	StatusRunning ExecutionStatus = "RUNNING"
	StatusSuccess ExecutionStatus = "SUCCESS"
	StatusFailed  ExecutionStatus = "FAILED"
)

// CrawlerExecution records one crawler run. Rows are append-only except for
// the single finalizing update at run end.
type CrawlerExecution struct {
	ID               int64
	StartedAt        time.Time
	FinishedAt       *time.Time
	DurationMs       int64
	Status           ExecutionStatus
	StorageType      string
	DiscoveryPattern string
	DiscoveredTables int
	CreatedSchemas   int
	CreatedTables    int
	ErrorMessage     string
	DryRun           bool
}

// FileGrant is a response-time projection of one live table file into an
// accessible URL. Grants are built fresh per request and never persisted.
type FileGrant struct {
	URL                 string
	ID                  string
	PartitionValues     map[string]string
	Size                int64
	Stats               map[string]any
	Version             int64
	Timestamp           int64
	ExpirationTimestamp *int64 // nil when the backend issues permanent URLs
}
