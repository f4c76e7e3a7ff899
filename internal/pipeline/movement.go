package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/portops/cargoflow/internal/domain"
	"github.com/portops/cargoflow/internal/loader"
)

// MovementConfig holds configuration for the cargo movement pipeline.
type MovementConfig struct {
	// InputDateFormat is the date layout expected at the start of input
	// filenames, e.g. "20060102" for 20240115_master.xlsx.
	InputDateFormat string
	// Sheet selects the workbook sheet to read; empty means first sheet.
	Sheet string
}

// MovementPipeline loads wide item-by-location movement tables from CSV or
// XLSX files.
type MovementPipeline struct {
	config MovementConfig
}

// NewMovementPipeline creates a new cargo movement pipeline instance.
func NewMovementPipeline(cfg MovementConfig) *MovementPipeline {
	if cfg.InputDateFormat == "" {
		cfg.InputDateFormat = "20060102"
	}
	return &MovementPipeline{config: cfg}
}

// Name returns the unique identifier of this pipeline.
func (p *MovementPipeline) Name() string {
	return "cargo_movement"
}

// GetSnapshotDate extracts the snapshot date from the filename using the
// configured format.
func (p *MovementPipeline) GetSnapshotDate(filename string) (time.Time, error) {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	layout := p.config.InputDateFormat
	if len(base) < len(layout) {
		return time.Time{}, fmt.Errorf("filename %s does not contain date with layout %s", filename, layout)
	}

	return time.Parse(layout, base[:len(layout)])
}

// Validate performs basic validation on the input file.
func (p *MovementPipeline) Validate(inputFile string) error {
	info, err := os.Stat(inputFile)
	if err != nil {
		return fmt.Errorf("cannot stat input file %s: %w", inputFile, err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path %s is a directory, expected file", inputFile)
	}
	switch ext := strings.ToLower(filepath.Ext(inputFile)); ext {
	case ".csv", ".xlsx":
		return nil
	default:
		return fmt.Errorf("unsupported file extension %s for %s", ext, inputFile)
	}
}

// Load reads one input file into item rows.
func (p *MovementPipeline) Load(ctx context.Context, inputFile string) ([]domain.ItemRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(inputFile), ".xlsx") {
		return loader.ReadWorkbook(inputFile, p.config.Sheet)
	}
	return loader.ReadCSV(inputFile)
}
