package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/portops/cargoflow/internal/config"
	"github.com/portops/cargoflow/internal/drive"
	"github.com/portops/cargoflow/internal/engine"
	"github.com/portops/cargoflow/internal/pipeline"
	"github.com/portops/cargoflow/internal/repository/postgres"
	"github.com/portops/cargoflow/internal/taxonomy"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	driveService, err := drive.NewService(os.Getenv("GOOGLE_DRIVE_CREDENTIALS_JSON"))
	if err != nil {
		log.Fatalf("Failed to initialize Google Drive service: %v", err)
	}

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	reg, err := taxonomy.New(cfg.Taxonomy)
	if err != nil {
		log.Fatalf("Invalid location taxonomy: %v", err)
	}

	eng := engine.New(reg, cfg.Engine)
	runRepo := pipeline.NewRepository(db.DB.DB)

	pipeConfig := pipeline.DefaultPipelineConfig("cargo_movement")
	pipeConfig.OutputDir = cfg.App.DataDir

	orchestrator := pipeline.NewOrchestrator(
		runRepo,
		pipeConfig,
		eng,
		pipeline.NewCSVExporter(cfg.App.DataDir),
		postgres.NewResultsRepository(db),
	)

	pipe := pipeline.NewMovementPipeline(pipeline.MovementConfig{})
	syncService := drive.NewSyncService(
		drive.NewDownloader(driveService),
		orchestrator,
		pipe,
		cfg.App.UploadDir,
	)

	r := mux.NewRouter()

	driveHandler := drive.NewHandler(driveService, syncService)
	driveHandler.RegisterRoutes(r)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Server starting on %s\n", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}
