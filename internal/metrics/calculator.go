package metrics

import (
	"math"

	"leadboard/internal/models"
)

// DefaultRevenuePerContract is the assumed revenue of one signed contract.
const DefaultRevenuePerContract = 50000

// Funnel stage names as shown on the dashboard.
const (
	StageLeads        = "Заявок"
	StageMeasurements = "Замеров"
	StageContracts    = "Договоров"
)

type Calculator struct {
	revenuePerContract float64
}

// NewCalculator falls back to DefaultRevenuePerContract for a non-positive revenue.
func NewCalculator(revenuePerContract float64) *Calculator {
	if revenuePerContract <= 0 || math.IsNaN(revenuePerContract) || math.IsInf(revenuePerContract, 0) {
		revenuePerContract = DefaultRevenuePerContract
	}
	return &Calculator{revenuePerContract: revenuePerContract}
}

func (c *Calculator) RevenuePerContract() float64 {
	return c.revenuePerContract
}

// ComputeMetrics derives the dashboard numbers for an already filtered lead set.
//
// When the selected range is neither the full data range nor a single day, one lead is
// taken off the total used for cost per lead. Conversion rate always uses the real count.
func (c *Calculator) ComputeMetrics(leads []models.Lead, budget float64, selected, full models.DateRange) models.Metrics {
	originalTotal := len(leads)
	total := originalTotal
	if !selected.Equal(full) && !selected.IsSingleDay() && total > 0 {
		total--
	}

	m := models.Metrics{
		Total:         total,
		OriginalTotal: originalTotal,
		Budget:        budget,
	}

	for _, lead := range leads {
		s := Classify(lead.Status)
		if s.Measurement {
			m.Measurements++
		}
		if s.Contract {
			m.Contracts++
		}
		if s.Refusal {
			m.Refusals++
		}
		if s.InProgress {
			m.InProgress++
		}
		if s.CallBeforeMeasurement {
			m.CallBeforeMeasurement++
		}
		if s.CallBeforeMeasurementImportant {
			m.CallBeforeMeasurementImportant++
		}
		if s.PushAfterMeasurement {
			m.PushAfterMeasurement++
		}
		if s.MissedCall {
			m.MissedCalls++
		}
		if s.MeasurementInProgress {
			m.MeasurementInProgress++
		}
	}

	m.ConversionRate = round1(c.safeDivide(float64(m.Contracts), float64(originalTotal)) * 100)
	m.CostPerLead = math.Round(c.safeDivide(budget, float64(total)))
	m.ROI = c.roi(budget, m.Contracts)

	return m
}

func (c *Calculator) roi(budget float64, contracts int) models.ROI {
	switch {
	case budget > 0 && contracts > 0:
		revenue := float64(contracts) * c.revenuePerContract
		return models.ROI{Value: round1((revenue - budget) / budget * 100)}
	case budget == 0 && contracts > 0:
		return models.ROI{Undefined: true}
	default:
		return models.ROI{}
	}
}

// ComputeFunnel returns the Заявок, Замеров and Договоров stages. Each stage percentage is
// relative to the stage before it; stages with no leads are left out.
func (c *Calculator) ComputeFunnel(leads []models.Lead, budget float64) []models.FunnelStage {
	total := len(leads)
	measurements, contracts := 0, 0
	for _, lead := range leads {
		s := Classify(lead.Status)
		if s.Measurement {
			measurements++
		}
		if s.Contract {
			contracts++
		}
	}

	stages := []models.FunnelStage{
		{Name: StageLeads, Value: total, Percentage: 100},
		{Name: StageMeasurements, Value: measurements, Percentage: math.Round(c.safeDivide(float64(measurements), float64(total)) * 100)},
		{Name: StageContracts, Value: contracts, Percentage: math.Round(c.safeDivide(float64(contracts), float64(measurements)) * 100)},
	}

	funnel := make([]models.FunnelStage, 0, len(stages))
	for _, stage := range stages {
		if stage.Value == 0 {
			continue
		}
		stage.Cost = math.Round(c.safeDivide(budget, float64(stage.Value)))
		funnel = append(funnel, stage)
	}
	return funnel
}

// OperatorStats groups leads by operator in first-seen order.
func (c *Calculator) OperatorStats(leads []models.Lead) []models.OperatorStat {
	index := make(map[string]int)
	stats := []models.OperatorStat{}
	for _, lead := range leads {
		i, ok := index[lead.Operator]
		if !ok {
			i = len(stats)
			index[lead.Operator] = i
			stats = append(stats, models.OperatorStat{Name: lead.Operator})
		}
		s := Classify(lead.Status)
		stats[i].Total++
		if s.Contract {
			stats[i].Contracts++
		}
		if s.Refusal {
			stats[i].Refusals++
		}
	}
	return stats
}

// SourceStats counts leads per source in first-seen order.
func (c *Calculator) SourceStats(leads []models.Lead) []models.SourceStat {
	index := make(map[string]int)
	stats := []models.SourceStat{}
	for _, lead := range leads {
		i, ok := index[lead.Source]
		if !ok {
			i = len(stats)
			index[lead.Source] = i
			stats = append(stats, models.SourceStat{Name: lead.Source})
		}
		stats[i].Count++
	}
	return stats
}

func (c *Calculator) safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	result := numerator / denominator
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0
	}
	return result
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
