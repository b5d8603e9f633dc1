package domain

import "context"

// ShareRepository is the catalog port for shares.
type ShareRepository interface {
	// ListActive returns all active shares ordered by name.
	ListActive(ctx context.Context) ([]Share, error)
	// GetByName returns a share by name, active or not.
	GetByName(ctx context.Context, name string) (*Share, error)
	Create(ctx context.Context, share *Share) (*Share, error)
}

// SchemaRepository is the catalog port for schemas.
type SchemaRepository interface {
	// ListByShare returns all schemas of a share ordered by name.
	ListByShare(ctx context.Context, shareName string) ([]Schema, error)
	GetByName(ctx context.Context, shareName, schemaName string) (*Schema, error)
	Create(ctx context.Context, schema *Schema) (*Schema, error)
}

// TableRepository is the catalog port for tables.
type TableRepository interface {
	// ListBySchema returns all tables of a schema ordered by name.
	ListBySchema(ctx context.Context, shareName, schemaName string) ([]Table, error)
	// ListByShare returns all tables across all schemas of a share,
	// ordered by schema name then table name.
	ListByShare(ctx context.Context, shareName string) ([]Table, error)
	GetByName(ctx context.Context, shareName, schemaName, tableName string) (*Table, error)
	Create(ctx context.Context, table *Table) (*Table, error)
}

// CrawlerExecutionRepository is the catalog port for crawler run history.
type CrawlerExecutionRepository interface {
	Create(ctx context.Context, exec *CrawlerExecution) (*CrawlerExecution, error)
	// Finish applies the single finalizing update for a run.
	Finish(ctx context.Context, exec *CrawlerExecution) error
	// List returns the most recent executions, newest first.
	List(ctx context.Context, limit int) ([]CrawlerExecution, error)
	Latest(ctx context.Context) (*CrawlerExecution, error)
}
