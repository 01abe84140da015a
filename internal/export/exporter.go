package export

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"leadboard/internal/models"
)

var (
	ErrNoRecords    = errors.New("no records to export")
	ErrSinkDisabled = errors.New("export sink is not configured")
)

// Poster delivers one signed payload.
type Poster interface {
	PostExportData(ctx context.Context, url string, data interface{}, signature string) error
}

type Exporter struct {
	secret     string
	httpClient Poster
	logger     *logrus.Logger
}

func NewExporter(secret string, httpClient Poster, logger *logrus.Logger) *Exporter {
	return &Exporter{
		secret:     secret,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Export posts each record to sinkURL, signed with HMAC-SHA256 of its JSON body.
// It stops at the first record that cannot be delivered.
func (e *Exporter) Export(ctx context.Context, sinkURL string, records []models.ExportRecord) error {
	if sinkURL == "" {
		return ErrSinkDisabled
	}
	if len(records) == 0 {
		return ErrNoRecords
	}

	for _, record := range records {
		signature, err := e.Sign(record)
		if err != nil {
			e.logger.WithError(err).Error("Failed to create signature")
			return fmt.Errorf("failed to create signature: %w", err)
		}

		if err := e.httpClient.PostExportData(ctx, sinkURL, record, signature); err != nil {
			e.logger.WithError(err).WithField("comparison_id", record.ComparisonID).Error("Failed to export record")
			return fmt.Errorf("failed to export record: %w", err)
		}

		e.logger.WithFields(logrus.Fields{
			"comparison_id": record.ComparisonID,
			"start_date":    record.StartDate,
			"end_date":      record.EndDate,
		}).Info("Successfully exported record")
	}

	return nil
}

// ToRecords flattens comparison results into export rows.
func ToRecords(results []models.ComparisonResult) []models.ExportRecord {
	records := make([]models.ExportRecord, 0, len(results))
	for _, r := range results {
		records = append(records, models.ExportRecord{
			ComparisonID:   r.Comparison.ID,
			Comparison:     r.Comparison.Name,
			StartDate:      r.Comparison.DateRange.StartDate.String(),
			EndDate:        r.Comparison.DateRange.EndDate.String(),
			Leads:          r.Metrics.OriginalTotal,
			Measurements:   r.Metrics.Measurements,
			Contracts:      r.Metrics.Contracts,
			Refusals:       r.Metrics.Refusals,
			Budget:         r.Metrics.Budget,
			ConversionRate: r.Metrics.ConversionRate,
			CostPerLead:    r.Metrics.CostPerLead,
			ROI:            r.Metrics.ROI,
		})
	}
	return records
}

// Sign returns "sha256=<hex>" for the JSON encoding of data.
func (e *Exporter) Sign(data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	h := hmac.New(sha256.New, []byte(e.secret))
	h.Write(jsonData)
	return "sha256=" + hex.EncodeToString(h.Sum(nil)), nil
}
