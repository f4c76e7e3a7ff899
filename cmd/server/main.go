package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/portops/cargoflow/internal/api"
	"github.com/portops/cargoflow/internal/cache"
	"github.com/portops/cargoflow/internal/config"
	"github.com/portops/cargoflow/internal/engine"
	"github.com/portops/cargoflow/internal/pipeline"
	"github.com/portops/cargoflow/internal/repository/postgres"
	"github.com/portops/cargoflow/internal/service"
	"github.com/portops/cargoflow/internal/storage"
	"github.com/portops/cargoflow/internal/taxonomy"
	"github.com/portops/cargoflow/pkg/logger"
)

func main() {
	cfg := config.Load()

	logger.SetLevel(cfg.Server.Mode)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	reg, err := taxonomy.New(cfg.Taxonomy)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("invalid location taxonomy")
	}

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	summaryCache, err := cache.NewSummaryCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("summary cache unavailable, continuing without it")
		summaryCache = cache.NewNoopSummaryCache()
	}

	eng := engine.New(reg, cfg.Engine)
	runRepo := pipeline.NewRepository(db.DB.DB)

	pipeConfig := pipeline.DefaultPipelineConfig("cargo_movement")
	pipeConfig.OutputDir = cfg.App.DataDir

	sinks := []pipeline.ResultSink{
		pipeline.NewCSVExporter(cfg.App.DataDir),
		postgres.NewResultsRepository(db),
	}
	if cfg.Storage.Enabled {
		store, err := storage.NewMinioClient(cfg.Storage)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("failed to initialize object storage")
		}
		sinks = append(sinks, pipeline.NewArchiveSink(store))
	}

	pipe := pipeline.NewMovementPipeline(pipeline.MovementConfig{})
	movementService := service.NewMovementService(pipe, pipeConfig, runRepo, eng, summaryCache, sinks...)

	router := api.NewRouter(&api.Services{
		MovementService: movementService,
		UploadDir:       cfg.App.UploadDir,
	}, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
