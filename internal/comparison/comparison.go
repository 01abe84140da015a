// Package comparison evaluates named filter configurations against the shared lead and
// expense collections and manages the ordered list of those configurations.
package comparison

import (
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"

	"leadboard/internal/allocation"
	"leadboard/internal/filter"
	"leadboard/internal/metrics"
	"leadboard/internal/models"
)

var (
	ErrPrimary  = errors.New("primary comparison cannot be removed")
	ErrNotFound = errors.New("comparison not found")
)

type Evaluator struct {
	calculator *metrics.Calculator
}

func NewEvaluator(calculator *metrics.Calculator) *Evaluator {
	return &Evaluator{calculator: calculator}
}

// Evaluate runs one comparison. full is the data range used to tell a custom period
// from the whole one; open bounds of the comparison range are taken from it and the
// result carries the effective range.
func (e *Evaluator) Evaluate(cfg models.Comparison, leads []models.Lead, expenses []models.Expense, full models.DateRange) models.ComparisonResult {
	selected := cfg.DateRange
	if selected.StartDate.IsZero() {
		selected.StartDate = full.StartDate
	}
	if selected.EndDate.IsZero() {
		selected.EndDate = full.EndDate
	}

	filtered := filter.Filter(leads, cfg.Filters, selected)
	allocated := allocation.Allocate(expenses, selected.StartDate, selected.EndDate, cfg.Filters.Sources)

	cfg.DateRange = selected
	return models.ComparisonResult{
		Comparison: cfg,
		LeadCount:  len(filtered),
		Metrics:    e.calculator.ComputeMetrics(filtered, allocated.TotalCost, selected, full),
		Funnel:     e.calculator.ComputeFunnel(filtered, allocated.TotalCost),
		Sources:    e.calculator.SourceStats(filtered),
		Operators:  e.calculator.OperatorStats(filtered),
		Expenses:   allocated.Breakdown,
	}
}

// EvaluateAll runs every comparison independently against the same collections.
func (e *Evaluator) EvaluateAll(cfgs []models.Comparison, leads []models.Lead, expenses []models.Expense, today models.Day) []models.ComparisonResult {
	full := filter.DataRange(leads, today)
	results := make([]models.ComparisonResult, 0, len(cfgs))
	for _, cfg := range cfgs {
		results = append(results, e.Evaluate(cfg, leads, expenses, full))
	}
	return results
}

// Add appends a comparison with no filters over dataRange.
func Add(list []models.Comparison, dataRange models.DateRange) []models.Comparison {
	next := make([]models.Comparison, len(list), len(list)+1)
	copy(next, list)
	return append(next, models.Comparison{
		ID:        ulid.Make().String(),
		Name:      fmt.Sprintf("Сравнение %d", len(list)+1),
		DateRange: dataRange,
	})
}

// Remove deletes the comparison with id. The primary one stays.
func Remove(list []models.Comparison, id string) ([]models.Comparison, error) {
	i := indexOf(list, id)
	switch {
	case i < 0:
		return list, ErrNotFound
	case i == 0:
		return list, ErrPrimary
	}
	next := make([]models.Comparison, 0, len(list)-1)
	next = append(next, list[:i]...)
	return append(next, list[i+1:]...), nil
}

// Update replaces the name, filters and range of comparison id. The id is kept.
func Update(list []models.Comparison, id string, patch models.Comparison) ([]models.Comparison, error) {
	i := indexOf(list, id)
	if i < 0 {
		return list, ErrNotFound
	}
	next := make([]models.Comparison, len(list))
	copy(next, list)
	patch.ID = id
	if patch.Name == "" {
		patch.Name = list[i].Name
	}
	next[i] = patch
	return next, nil
}

// Ensure guarantees a primary comparison exists.
func Ensure(list []models.Comparison, dataRange models.DateRange) []models.Comparison {
	if len(list) > 0 {
		return list
	}
	return Add(nil, dataRange)
}

func indexOf(list []models.Comparison, id string) int {
	for i, c := range list {
		if c.ID == id {
			return i
		}
	}
	return -1
}
