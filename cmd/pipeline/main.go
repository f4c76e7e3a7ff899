package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/portops/cargoflow/internal/config"
	"github.com/portops/cargoflow/internal/drive"
	"github.com/portops/cargoflow/internal/engine"
	"github.com/portops/cargoflow/internal/pipeline"
	"github.com/portops/cargoflow/internal/storage"
	"github.com/portops/cargoflow/internal/taxonomy"
	"github.com/portops/cargoflow/pkg/logger"
)

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "db-url",
		Usage:   "Database connection string; empty disables run tracking",
		EnvVars: []string{"DATABASE_URL"},
	}
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		logger.Log.Debug().Err(err).Msg("no .env file loaded")
	}

	app := &cli.App{
		Name:  "pipeline",
		Usage: "Reconstruct cargo movements from location snapshot files",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Process local movement files",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:     "input-dir",
						Usage:    "Directory containing movement CSV/XLSX files",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "output-dir",
						Usage: "Directory for result CSVs",
						Value: "data/output",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent file loaders",
						Value: 4,
					},
				},
				Action: runLocal,
			},
			{
				Name:  "drive-sync",
				Usage: "Download movement files from a Drive folder and process them",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:     "folder-id",
						Usage:    "Drive folder ID containing movement files",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "credentials-file",
						Usage:   "Path to service account credentials JSON",
						EnvVars: []string{"GOOGLE_DRIVE_CREDENTIALS_FILE"},
					},
					&cli.StringFlag{
						Name:  "download-dir",
						Usage: "Local directory for downloaded files",
						Value: "data/drive",
					},
					&cli.StringFlag{
						Name:  "output-dir",
						Usage: "Directory for result CSVs",
						Value: "data/output",
					},
				},
				Action: runDriveSync,
			},
			{
				Name:  "storage-sync",
				Usage: "Download movement files from object storage and process them",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "Object key prefix containing movement files",
						Value: "incoming/",
					},
					&cli.StringFlag{
						Name:  "download-dir",
						Usage: "Local directory for downloaded files",
						Value: "data/storage",
					},
					&cli.StringFlag{
						Name:  "output-dir",
						Usage: "Directory for result CSVs",
						Value: "data/output",
					},
				},
				Action: runStorageSync,
			},
			{
				Name:  "retry",
				Usage: "Re-run batches that have failed file jobs with retries left",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:  "output-dir",
						Usage: "Directory for result CSVs",
						Value: "data/output",
					},
					&cli.DurationFlag{
						Name:  "backoff",
						Usage: "Delay before re-running each failed batch",
						Value: 30 * time.Second,
					},
				},
				Action: runRetry,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("pipeline failed")
	}
}

func runLocal(c *cli.Context) error {
	files, err := collectMovementFiles(c.String("input-dir"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no movement files found in %s", c.String("input-dir"))
	}

	orchestrator, cleanup, err := buildOrchestrator(c)
	if err != nil {
		return err
	}
	defer cleanup()

	pipe := pipeline.NewMovementPipeline(pipeline.MovementConfig{})
	return orchestrator.Run(c.Context, pipe, files)
}

func runDriveSync(c *cli.Context) error {
	credentials, err := loadCredentials(c.String("credentials-file"))
	if err != nil {
		return err
	}

	driveService, err := drive.NewService(credentials)
	if err != nil {
		return fmt.Errorf("failed to initialize drive service: %w", err)
	}

	orchestrator, cleanup, err := buildOrchestrator(c)
	if err != nil {
		return err
	}
	defer cleanup()

	pipe := pipeline.NewMovementPipeline(pipeline.MovementConfig{})
	sync := drive.NewSyncService(
		drive.NewDownloader(driveService),
		orchestrator,
		pipe,
		c.String("download-dir"),
	)

	n, err := sync.SyncFolder(c.Context, c.String("folder-id"))
	if err != nil {
		return err
	}
	logger.Log.Info().Int("files", n).Msg("drive sync finished")
	return nil
}

func runStorageSync(c *cli.Context) error {
	client, err := storage.NewMinioClient(config.Load().Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage client: %w", err)
	}

	downloadDir := c.String("download-dir")
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure download dir %s: %w", downloadDir, err)
	}

	files, err := storage.NewDownloader(client).DownloadPrefix(c.Context, c.String("prefix"), downloadDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no movement files found under prefix %s", c.String("prefix"))
	}

	orchestrator, cleanup, err := buildOrchestrator(c)
	if err != nil {
		return err
	}
	defer cleanup()

	pipe := pipeline.NewMovementPipeline(pipeline.MovementConfig{})
	return orchestrator.Run(c.Context, pipe, files)
}

func runRetry(c *cli.Context) error {
	if c.String("db-url") == "" {
		return fmt.Errorf("db-url is required: retry needs the run tracking store")
	}

	cfg := config.Load()

	reg, err := taxonomy.New(cfg.Taxonomy)
	if err != nil {
		return fmt.Errorf("invalid location taxonomy: %w", err)
	}

	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	pipeConfig := pipeline.DefaultPipelineConfig("cargo_movement")
	pipeConfig.OutputDir = c.String("output-dir")
	pipeConfig.RetryBackoff = c.Duration("backoff")

	worker := pipeline.NewWorker(
		pipeline.NewMovementPipeline(pipeline.MovementConfig{}),
		pipeConfig,
		pipeline.NewRepository(db),
		engine.New(reg, cfg.Engine),
		pipeline.NewCSVExporter(pipeConfig.OutputDir),
	)
	return worker.RetryFailed(c.Context)
}

func buildOrchestrator(c *cli.Context) (*pipeline.Orchestrator, func(), error) {
	cfg := config.Load()

	reg, err := taxonomy.New(cfg.Taxonomy)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid location taxonomy: %w", err)
	}

	eng := engine.New(reg, cfg.Engine)

	var (
		repo    *pipeline.Repository
		cleanup = func() {}
	)
	if url := c.String("db-url"); url != "" {
		db, err := sql.Open("pgx", url)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		repo = pipeline.NewRepository(db)
		cleanup = func() { db.Close() }
	}

	pipeConfig := pipeline.DefaultPipelineConfig("cargo_movement")
	if c.IsSet("workers") {
		pipeConfig.WorkerCount = c.Int("workers")
	}
	pipeConfig.OutputDir = c.String("output-dir")

	exporter := pipeline.NewCSVExporter(pipeConfig.OutputDir)
	return pipeline.NewOrchestrator(repo, pipeConfig, eng, exporter), cleanup, nil
}

func collectMovementFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".csv", ".xlsx":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func loadCredentials(path string) (string, error) {
	if path == "" {
		if env := os.Getenv("GOOGLE_DRIVE_CREDENTIALS_JSON"); env != "" {
			return env, nil
		}
		return "", fmt.Errorf("credentials-file or GOOGLE_DRIVE_CREDENTIALS_JSON is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read credentials file: %w", err)
	}
	return string(data), nil
}
