package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"deltashare/internal/domain"
)

// Options configure one crawler instance.
type Options struct {
	StorageType       string
	Pattern           string
	DryRun            bool
	AutoCreateSchemas bool
	DefaultShare      string
	DefaultSchema     string
}

// Crawler scans storage for table roots and registers the missing ones in
// the catalog. At most one run is active at a time, system-wide.
type Crawler struct {
	scanner Scanner
	pattern Pattern
	opts    Options

	shares  domain.ShareRepository
	schemas domain.SchemaRepository
	tables  domain.TableRepository
	execs   domain.CrawlerExecutionRepository

	running atomic.Bool
	logger  *slog.Logger
}

// Status is the crawler's externally visible state.
type Status struct {
	Running       bool
	LastExecution *domain.CrawlerExecution
}

func New(
	scanner Scanner,
	opts Options,
	shares domain.ShareRepository,
	schemas domain.SchemaRepository,
	tables domain.TableRepository,
	execs domain.CrawlerExecutionRepository,
	logger *slog.Logger,
) *Crawler {
	if opts.DefaultShare == "" {
		opts.DefaultShare = "default"
	}
	if opts.DefaultSchema == "" {
		opts.DefaultSchema = "default"
	}
	return &Crawler{
		scanner: scanner,
		pattern: ParsePattern(opts.Pattern),
		opts:    opts,
		shares:  shares,
		schemas: schemas,
		tables:  tables,
		execs:   execs,
		logger:  logger.With("component", "crawler"),
	}
}

// Trigger starts a manual run with the configured dry-run setting. A run
// already in progress is rejected.
func (c *Crawler) Trigger(ctx context.Context) (*domain.CrawlerExecution, error) {
	return c.Run(ctx, c.opts.DryRun)
}

// Status reports whether a run is active and the most recent execution.
func (c *Crawler) Status(ctx context.Context) (Status, error) {
	last, err := c.execs.Latest(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Running: c.running.Load(), LastExecution: last}, nil
}

// Executions returns the most recent run records, newest first.
func (c *Crawler) Executions(ctx context.Context, limit int) ([]domain.CrawlerExecution, error) {
	return c.execs.List(ctx, limit)
}

// Run performs one crawl. Every run leaves a finalized execution row, even
// when the scan fails.
func (c *Crawler) Run(ctx context.Context, dryRun bool) (*domain.CrawlerExecution, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, domain.ErrConflict("a crawler run is already in progress")
	}
	defer c.running.Store(false)

	started := time.Now().UTC()
	exec, err := c.execs.Create(ctx, &domain.CrawlerExecution{
		StartedAt:        started,
		Status:           domain.StatusRunning,
		StorageType:      c.opts.StorageType,
		DiscoveryPattern: c.pattern.String(),
		DryRun:           dryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("recording crawler run: %w", err)
	}

	crawlErr := c.crawl(ctx, exec, dryRun)

	finished := time.Now().UTC()
	exec.FinishedAt = &finished
	exec.DurationMs = finished.Sub(started).Milliseconds()
	if crawlErr != nil {
		exec.Status = domain.StatusFailed
		exec.ErrorMessage = crawlErr.Error()
		c.logger.Error("crawler run failed", "execution", exec.ID, "error", crawlErr)
	} else {
		exec.Status = domain.StatusSuccess
		c.logger.Info("crawler run finished", "execution", exec.ID,
			"discovered", exec.DiscoveredTables, "created_schemas", exec.CreatedSchemas,
			"created_tables", exec.CreatedTables, "dry_run", dryRun)
	}
	if err := c.execs.Finish(ctx, exec); err != nil {
		c.logger.Error("finalizing crawler run failed", "execution", exec.ID, "error", err)
	}
	return exec, nil
}

func (c *Crawler) crawl(ctx context.Context, exec *domain.CrawlerExecution, dryRun bool) error {
	discoveries, err := c.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scanning storage: %w", err)
	}

	for _, d := range discoveries {
		coords, ok := c.pattern.Resolve(d.Root, c.opts.DefaultShare, c.opts.DefaultSchema)
		if !ok {
			c.logger.Debug("skipping path outside discovery pattern", "root", d.Root)
			continue
		}
		exec.DiscoveredTables++

		if err := c.register(ctx, exec, coords, d, dryRun); err != nil {
			return err
		}
	}
	return nil
}

// register creates the schema and table rows a discovery needs. Existing
// rows are left untouched, so repeated crawls over an unchanged tree are
// no-ops.
func (c *Crawler) register(ctx context.Context, exec *domain.CrawlerExecution, coords TableCoords, d Discovery, dryRun bool) error {
	share, err := c.shares.GetByName(ctx, coords.Share)
	if err != nil {
		if !isNotFound(err) {
			return err
		}
		if !c.opts.AutoCreateSchemas {
			c.logger.Warn("skipping table in unknown share", "share", coords.Share, "table", coords.Table)
			return nil
		}
		if dryRun {
			share = &domain.Share{Name: coords.Share, Active: true}
		} else {
			share, err = c.shares.Create(ctx, &domain.Share{
				Name:        coords.Share,
				Description: "created by crawler",
				Active:      true,
			})
			if err != nil {
				return err
			}
		}
	}

	schema, err := c.schemas.GetByName(ctx, coords.Share, coords.Schema)
	if err != nil {
		if !isNotFound(err) {
			return err
		}
		if !c.opts.AutoCreateSchemas {
			c.logger.Warn("skipping table in unknown schema",
				"share", coords.Share, "schema", coords.Schema, "table", coords.Table)
			return nil
		}
		if dryRun {
			c.logger.Info("dry run, would create schema",
				"share", coords.Share, "schema", coords.Schema)
			schema = &domain.Schema{Name: coords.Schema, ShareName: coords.Share}
		} else {
			schema, err = c.schemas.Create(ctx, &domain.Schema{
				Name:    coords.Schema,
				ShareID: share.ID,
			})
			if err != nil {
				return err
			}
			exec.CreatedSchemas++
		}
	}

	if _, err := c.tables.GetByName(ctx, coords.Share, coords.Schema, coords.Table); err == nil {
		return nil
	} else if !isNotFound(err) {
		return err
	}

	if dryRun {
		c.logger.Info("dry run, would create table",
			"share", coords.Share, "schema", coords.Schema, "table", coords.Table, "root", d.Root)
		return nil
	}

	discoveredAt := time.Now().UTC()
	if _, err = c.tables.Create(ctx, &domain.Table{
		Name:         coords.Table,
		SchemaID:     schema.ID,
		Location:     c.locationFor(d),
		Format:       d.Format,
		DiscoveredAt: &discoveredAt,
		DiscoveredBy: domain.DiscoveredByCrawler,
	}); err != nil {
		return err
	}
	exec.CreatedTables++
	return nil
}

// locationFor renders a discovery root as a table location for the active
// backend.
func (c *Crawler) locationFor(d Discovery) string {
	if c.opts.StorageType == "s3" {
		return "s3://" + d.Root
	}
	return d.Root
}

func isNotFound(err error) bool {
	var notFound *domain.NotFoundError
	return errors.As(err, &notFound)
}
