// Package ingest turns an uploaded spreadsheet into the stored lead collection.
// A file is imported completely or not at all.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"leadboard/internal/models"
	"leadboard/internal/spreadsheet"
	"leadboard/internal/transformer"
)

var (
	// ErrNoData means the file held no non-blank rows.
	ErrNoData = errors.New("no data rows found in file")
	// ErrSave means the file was fine but the leads could not be stored.
	ErrSave = errors.New("failed to save leads")
)

const previewSize = 5

// LeadWriter replaces the stored lead collection.
type LeadWriter interface {
	ReplaceLeads(leads []models.Lead) error
}

// Recorder observes import outcomes.
type Recorder interface {
	ObserveImport(success bool, leads int)
}

type Importer struct {
	transformer *transformer.Transformer
	store       LeadWriter
	recorder    Recorder
	logger      *logrus.Logger
}

func NewImporter(t *transformer.Transformer, store LeadWriter, recorder Recorder, logger *logrus.Logger) *Importer {
	return &Importer{
		transformer: t,
		store:       store,
		recorder:    recorder,
		logger:      logger,
	}
}

// Import reads filename from r, maps its rows and replaces the stored leads.
// Every failure is reported as `parse file "<name>": <cause>`.
func (i *Importer) Import(ctx context.Context, filename string, r io.Reader) (*models.ImportResult, error) {
	name := filepath.Base(filename)
	log := i.logger.WithField("file", name)
	log.Info("Starting lead import")

	result, err := i.importFile(ctx, name, r)
	if err != nil {
		err = fmt.Errorf("parse file %q: %w", name, err)
		log.WithError(err).Error("Lead import failed")
		i.observe(false, 0)
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"leads":              result.Count,
		"header_detected":    result.Quality.HeaderDetected,
		"dropped_blank_rows": result.Quality.DroppedBlankRows,
		"unparseable_dates":  result.Quality.UnparseableDates,
		"quality_score":      fmt.Sprintf("%.1f%%", result.Quality.QualityScore),
	}).Info("Lead import completed")
	i.observe(true, result.Count)
	return result, nil
}

func (i *Importer) importFile(ctx context.Context, name string, r io.Reader) (*models.ImportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	grid, err := spreadsheet.Read(r, name)
	if err != nil {
		return nil, err
	}

	leads, quality := i.transformer.MapRows(grid)
	if len(leads) == 0 {
		return nil, ErrNoData
	}
	for _, issue := range quality.CommonIssues {
		i.logger.WithField("file", name).Debug(issue)
	}

	// The store is only touched once the whole file mapped cleanly.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := i.store.ReplaceLeads(leads); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSave, err)
	}

	preview := leads
	if len(preview) > previewSize {
		preview = preview[:previewSize]
	}

	return &models.ImportResult{
		Success:    true,
		Message:    fmt.Sprintf("Imported %d leads", len(leads)),
		Count:      len(leads),
		FileName:   name,
		Preview:    preview,
		ImportedAt: time.Now(),
		Quality:    quality,
	}, nil
}

func (i *Importer) observe(success bool, leads int) {
	if i.recorder != nil {
		i.recorder.ObserveImport(success, leads)
	}
}
