package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Placeholder replaces every missing or unreadable lead field.
const Placeholder = "Не указано"

// Lead is one imported spreadsheet row.
type Lead struct {
	Source          string `json:"source"`
	Status          string `json:"status"`
	ApplicationDate string `json:"applicationDate"`
	WhoMeasured     string `json:"whoMeasured"`
	Operator        string `json:"operator"`
	ID              int    `json:"id"`
}

// Expense is a manually entered advertising cost spread evenly over [StartDate, EndDate].
type Expense struct {
	ID          string  `json:"id"`
	StartDate   Day     `json:"startDate"`
	EndDate     Day     `json:"endDate"`
	Source      string  `json:"source"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// Validate reports every problem with the expense at once.
// An end date before the start date is accepted.
func (e Expense) Validate() error {
	var result *multierror.Error
	if e.StartDate.IsZero() {
		result = multierror.Append(result, errors.New("startDate is required"))
	}
	if e.EndDate.IsZero() {
		result = multierror.Append(result, errors.New("endDate is required"))
	}
	if strings.TrimSpace(e.Source) == "" {
		result = multierror.Append(result, errors.New("source is required"))
	}
	if strings.TrimSpace(e.Description) == "" {
		result = multierror.Append(result, errors.New("description is required"))
	}
	if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) {
		result = multierror.Append(result, fmt.Errorf("amount %v is not a number", e.Amount))
	} else if e.Amount == 0 {
		result = multierror.Append(result, errors.New("amount is required"))
	}
	return result.ErrorOrNil()
}

type ExpenseAllocation struct {
	Expense
	ExpenseTotalDays int     `json:"expenseTotalDays"`
	DailyCost        float64 `json:"dailyCost"`
	OverlapDays      int     `json:"overlapDays"`
	ProportionalCost float64 `json:"proportionalCost"`
}

type Allocation struct {
	TotalCost float64             `json:"totalCost"`
	Breakdown []ExpenseAllocation `json:"breakdown"`
}

type MonthlyExpense struct {
	Month    string             `json:"month"`
	Total    float64            `json:"total"`
	BySource map[string]float64 `json:"bySource"`
}

// Filters hold inclusion lists; an empty list means no restriction.
type Filters struct {
	Sources     []string `json:"sources"`
	Operators   []string `json:"operators"`
	Statuses    []string `json:"statuses"`
	WhoMeasured []string `json:"whoMeasured"`
}

func (f Filters) IsEmpty() bool {
	return len(f.Sources) == 0 && len(f.Operators) == 0 && len(f.Statuses) == 0 && len(f.WhoMeasured) == 0
}

type DateRange struct {
	StartDate Day `json:"startDate"`
	EndDate   Day `json:"endDate"`
}

func (r DateRange) IsSingleDay() bool {
	return !r.StartDate.IsZero() && r.StartDate.Equal(r.EndDate)
}

func (r DateRange) Equal(o DateRange) bool {
	return r.StartDate.Equal(o.StartDate) && r.EndDate.Equal(o.EndDate)
}

// Contains is inclusive on both ends. A zero bound is open.
func (r DateRange) Contains(d Day) bool {
	if !r.StartDate.IsZero() && d.Before(r.StartDate) {
		return false
	}
	if !r.EndDate.IsZero() && d.After(r.EndDate) {
		return false
	}
	return true
}

func (r DateRange) String() string {
	return r.StartDate.String() + ".." + r.EndDate.String()
}

// Comparison is a named filter + date range evaluated against the shared collections.
// The first comparison of a list is the primary one.
type Comparison struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Filters   Filters   `json:"filters"`
	DateRange DateRange `json:"dateRange"`
}

// ROI is undefined when there was no spend but there were contracts.
// The zero value is a defined ROI of 0.
type ROI struct {
	Value     float64
	Undefined bool
}

const roiUndefined = "none"

func (r ROI) MarshalJSON() ([]byte, error) {
	if r.Undefined {
		return json.Marshal(roiUndefined)
	}
	return json.Marshal(r.Value)
}

func (r *ROI) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != roiUndefined {
			return fmt.Errorf("unexpected roi value %q", s)
		}
		*r = ROI{Undefined: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = ROI{Value: v}
	return nil
}

func (r ROI) String() string {
	if r.Undefined {
		return roiUndefined
	}
	return fmt.Sprintf("%.1f", r.Value)
}

// Business metrics
type Metrics struct {
	Total          int     `json:"total"`
	OriginalTotal  int     `json:"originalTotal"`
	Measurements   int     `json:"measurements"`
	Contracts      int     `json:"contracts"`
	InProgress     int     `json:"inProgress"`
	Refusals       int     `json:"refusals"`
	ConversionRate float64 `json:"conversionRate"`
	CostPerLead    float64 `json:"costPerLead"`
	ROI            ROI     `json:"roi"`
	Budget         float64 `json:"budget"`

	// In-progress drill-down
	CallBeforeMeasurement          int `json:"callBeforeMeasurement"`
	CallBeforeMeasurementImportant int `json:"callBeforeMeasurementImportant"`
	PushAfterMeasurement           int `json:"pushAfterMeasurement"`
	MissedCalls                    int `json:"missedCalls"`
	MeasurementInProgress          int `json:"measurementInProgress"`
}

type FunnelStage struct {
	Name       string  `json:"name"`
	Value      int     `json:"value"`
	Cost       float64 `json:"cost"`
	Percentage float64 `json:"percentage"`
}

type OperatorStat struct {
	Name      string `json:"name"`
	Total     int    `json:"total"`
	Contracts int    `json:"contracts"`
	Refusals  int    `json:"refusals"`
}

type SourceStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type ComparisonResult struct {
	Comparison Comparison          `json:"comparison"`
	LeadCount  int                 `json:"leadCount"`
	Metrics    Metrics             `json:"metrics"`
	Funnel     []FunnelStage       `json:"funnel"`
	Sources    []SourceStat        `json:"sources"`
	Operators  []OperatorStat      `json:"operators"`
	Expenses   []ExpenseAllocation `json:"expenses"`
}

type FilterOptions struct {
	Sources     []string  `json:"sources"`
	Operators   []string  `json:"operators"`
	Statuses    []string  `json:"statuses"`
	WhoMeasured []string  `json:"whoMeasured"`
	DateRange   DateRange `json:"dateRange"`
}

// Data Quality Tracking Structures
type FieldQuality struct {
	IsValid       bool        `json:"is_valid"`
	Description   string      `json:"description"`
	OriginalValue interface{} `json:"original_value,omitempty"`
}

type RecordQuality struct {
	RecordID    string                  `json:"record_id"`
	Row         int                     `json:"row"`
	IsValid     bool                    `json:"is_valid"`
	FieldErrors map[string]FieldQuality `json:"field_errors"`
	ErrorCount  int                     `json:"error_count"`
}

type ImportQuality struct {
	TotalRows        int             `json:"total_rows"`
	HeaderDetected   bool            `json:"header_detected"`
	DroppedBlankRows int             `json:"dropped_blank_rows"`
	ImportedLeads    int             `json:"imported_leads"`
	LeadsWithIssues  int             `json:"leads_with_issues"`
	UnparseableDates int             `json:"unparseable_dates"`
	QualityScore     float64         `json:"quality_score"`
	CommonIssues     []string        `json:"common_issues"`
	Records          []RecordQuality `json:"records,omitempty"`
}

// API response structures
type ImportResult struct {
	Success    bool          `json:"success"`
	Message    string        `json:"message"`
	Count      int           `json:"count"`
	FileName   string        `json:"fileName"`
	Preview    []Lead        `json:"data"`
	ImportedAt time.Time     `json:"importedAt"`
	Quality    ImportQuality `json:"quality"`
}

type MetricsResponse struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	Limit   int         `json:"limit"`
	HasMore bool        `json:"has_more"`
}

type ExportRecord struct {
	ComparisonID   string  `json:"comparison_id"`
	Comparison     string  `json:"comparison"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	Leads          int     `json:"leads"`
	Measurements   int     `json:"measurements"`
	Contracts      int     `json:"contracts"`
	Refusals       int     `json:"refusals"`
	Budget         float64 `json:"budget"`
	ConversionRate float64 `json:"conversion_rate"`
	CostPerLead    float64 `json:"cost_per_lead"`
	ROI            ROI     `json:"roi"`
}
