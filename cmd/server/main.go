// Command server runs the table sharing service: the protocol HTTP
// surface, the catalog, and the table crawler.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"deltashare/internal/api"
	"deltashare/internal/config"
	"deltashare/internal/crawler"
	"deltashare/internal/db"
	"deltashare/internal/db/repository"
	"deltashare/internal/domain"
	"deltashare/internal/sharing"
	"deltashare/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "deltashare",
		Short:        "Table sharing server",
		SilenceUsage: true,
	}

	var configFile string
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the sharing server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configFile)
		},
	}

	var dryRun bool
	crawl := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), configFile, dryRun)
		},
	}
	crawl.Flags().BoolVar(&dryRun, "dry-run", false, "report discoveries without writing to the catalog")

	root.AddCommand(serve, crawl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles everything both subcommands need.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *db.DB
	shares    *repository.ShareRepository
	schemas   *repository.SchemaRepository
	tables    *repository.TableRepository
	execs     *repository.CrawlerExecutionRepository
	backend   storage.Backend
	synthetic *storage.SyntheticBackend
	crawler   *crawler.Crawler
}

func newApp(ctx context.Context, configFile string) (*app, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	database, err := db.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		database.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		db:      database,
		shares:  repository.NewShareRepository(database),
		schemas: repository.NewSchemaRepository(database),
		tables:  repository.NewTableRepository(database),
		execs:   repository.NewCrawlerExecutionRepository(database),
	}

	a.backend, a.synthetic = buildBackend(cfg, logger)
	a.crawler = crawler.New(buildScanner(cfg, a.backend), crawler.Options{
		StorageType:       cfg.StorageType,
		Pattern:           cfg.Crawler.DiscoveryPattern,
		DryRun:            cfg.Crawler.DryRun,
		AutoCreateSchemas: cfg.Crawler.AutoCreateSchemas,
		DefaultShare:      cfg.Crawler.DefaultShare,
		DefaultSchema:     cfg.Crawler.DefaultSchema,
	}, a.shares, a.schemas, a.tables, a.execs, logger)

	if err := a.seedDemo(ctx); err != nil {
		logger.Warn("seeding demo catalog failed", "error", err)
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}

// buildBackend constructs the configured storage backend. Initialization
// failures degrade to an unavailable backend instead of aborting startup.
func buildBackend(cfg *config.Config, logger *slog.Logger) (storage.Backend, *storage.SyntheticBackend) {
	switch cfg.StorageType {
	case config.StorageS3:
		if !cfg.HasS3Config() {
			return storage.NewUnavailableBackend(storage.KindS3), nil
		}
		opts := storage.S3Options{
			Endpoint:   *cfg.S3.Endpoint,
			Region:     *cfg.S3.Region,
			AccessKey:  *cfg.S3.AccessKey,
			SecretKey:  *cfg.S3.SecretKey,
			PresignTTL: cfg.S3.PresignTTL,
		}
		if cfg.S3.Bucket != nil {
			opts.Bucket = *cfg.S3.Bucket
		}
		b, err := storage.NewS3Backend(opts, cfg.SchemaCacheTTL, cfg.SchemaCacheEntries, logger)
		if err != nil {
			logger.Error("object store backend failed to initialize", "error", err)
			return storage.NewUnavailableBackend(storage.KindS3), nil
		}
		return b, nil
	case config.StorageHTTP:
		return storage.NewHTTPBackend(cfg.HTTPBasePath, cfg.HTTPBaseURL,
			cfg.SchemaCacheTTL, cfg.SchemaCacheEntries, logger), nil
	case config.StorageFilesystem:
		return storage.NewFilesystemBackend(cfg.HTTPBasePath,
			cfg.SchemaCacheTTL, cfg.SchemaCacheEntries, logger), nil
	default:
		baseURL := cfg.SyntheticBaseURL
		if baseURL == "" {
			baseURL = fmt.Sprintf("http://localhost:%d/synthetic-files", cfg.Port)
		}
		b, err := storage.NewSyntheticBackend(cfg.SyntheticDir, baseURL, logger)
		if err != nil {
			logger.Error("synthetic backend failed to initialize", "error", err)
			return storage.NewUnavailableBackend(storage.KindSynthetic), nil
		}
		return b, b
	}
}

func buildScanner(cfg *config.Config, backend storage.Backend) crawler.Scanner {
	switch cfg.StorageType {
	case config.StorageS3:
		if s3b, ok := backend.(*storage.S3Backend); ok {
			return crawler.NewS3Scanner(s3b, s3b.DefaultBucket())
		}
		return crawler.NoopScanner{}
	case config.StorageHTTP, config.StorageFilesystem:
		sharePrefix := ""
		if strings.Contains(cfg.Crawler.DiscoveryPattern, "{share}") {
			sharePrefix = cfg.Crawler.DefaultShare
		}
		return crawler.NewFSScanner(cfg.HTTPBasePath, cfg.Crawler.MaxDepth, sharePrefix)
	default:
		return crawler.NoopScanner{}
	}
}

// seedDemo creates a demo share with synthetic tables so a fresh install
// answers protocol requests immediately. Only an empty catalog on the
// synthetic backend is seeded.
func (a *app) seedDemo(ctx context.Context) error {
	if a.synthetic == nil {
		return nil
	}
	existing, err := a.shares.ListActive(ctx)
	if err != nil || len(existing) > 0 {
		return err
	}

	share, err := a.shares.Create(ctx, &domain.Share{
		Name:        "demo",
		Description: "demo share backed by synthetic tables",
		Active:      true,
	})
	if err != nil {
		return err
	}
	schema, err := a.schemas.Create(ctx, &domain.Schema{Name: "default", ShareID: share.ID})
	if err != nil {
		return err
	}
	for _, name := range []string{"fact_sales", "dim_customer", "agg_daily_sales"} {
		if _, err := a.tables.Create(ctx, &domain.Table{
			Name:     name,
			SchemaID: schema.ID,
			Location: name,
			Format:   domain.FormatParquet,
		}); err != nil {
			return err
		}
	}
	a.logger.Info("seeded demo share", "share", share.Name, "tables", 3)
	return nil
}

func runServe(ctx context.Context, configFile string) error {
	a, err := newApp(ctx, configFile)
	if err != nil {
		return err
	}
	defer a.Close()

	svc := sharing.NewService(a.shares, a.schemas, a.tables, a.backend, a.logger)
	handler := api.NewHandler(svc, a.crawler, a.synthetic, a.logger)

	if a.cfg.Crawler.Enabled {
		scheduler := crawler.NewScheduler(a.crawler,
			a.cfg.Crawler.Interval, a.cfg.Crawler.InitialDelay, a.logger)
		scheduler.Start()
		defer scheduler.Stop()
	}

	srv := &http.Server{
		Addr: a.cfg.ListenAddr(),
		Handler: handler.Routes(api.Options{
			CORSOrigins: a.cfg.CORSOrigins,
			RateLimit:   a.cfg.RateLimit,
			RateBurst:   a.cfg.RateBurst,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening",
			"addr", srv.Addr, "storage", a.backend.Kind(), "available", a.backend.Available())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runCrawl(ctx context.Context, configFile string, dryRun bool) error {
	a, err := newApp(ctx, configFile)
	if err != nil {
		return err
	}
	defer a.Close()

	exec, err := a.crawler.Run(ctx, dryRun)
	if err != nil {
		return err
	}
	a.logger.Info("crawl finished",
		"status", exec.Status, "discovered", exec.DiscoveredTables,
		"created_schemas", exec.CreatedSchemas, "created_tables", exec.CreatedTables,
		"duration_ms", exec.DurationMs, "dry_run", exec.DryRun)
	if exec.Status == domain.StatusFailed {
		return fmt.Errorf("crawl failed: %s", exec.ErrorMessage)
	}
	return nil
}
