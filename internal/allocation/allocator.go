// Package allocation spreads advertising expenses evenly over the calendar days they
// cover and charges an analysis window only for the days it shares with each expense.
package allocation

import (
	"math"
	"sort"

	"leadboard/internal/models"
)

const hoursPerDay = 24

// DaysBetween counts the calendar days from a to b inclusive, in either order.
func DaysBetween(a, b models.Day) int {
	diff := b.Sub(a.Time).Hours()
	return int(math.Ceil(math.Abs(diff)/hoursPerDay)) + 1
}

// OverlapDays returns the number of inclusive days shared by [s1, e1] and [s2, e2].
func OverlapDays(s1, e1, s2, e2 models.Day) int {
	start := s1
	if s2.After(start) {
		start = s2
	}
	end := e1
	if e2.Before(end) {
		end = e2
	}
	if start.After(end) {
		return 0
	}
	return DaysBetween(start, end)
}

// Allocate charges [rangeStart, rangeEnd] with the share of every expense that falls
// inside it. A non-empty sourceFilter excludes expenses of other sources entirely.
func Allocate(expenses []models.Expense, rangeStart, rangeEnd models.Day, sourceFilter []string) models.Allocation {
	result := models.Allocation{Breakdown: []models.ExpenseAllocation{}}

	for _, expense := range expenses {
		if len(sourceFilter) > 0 && !contains(sourceFilter, expense.Source) {
			continue
		}

		item, ok := allocateOne(expense, rangeStart, rangeEnd)
		if !ok {
			continue
		}
		result.TotalCost += item.ProportionalCost
		result.Breakdown = append(result.Breakdown, item)
	}

	return result
}

// MonthlyTrend distributes every expense over the calendar months it touches.
func MonthlyTrend(expenses []models.Expense) []models.MonthlyExpense {
	byMonth := make(map[string]*models.MonthlyExpense)

	for _, expense := range expenses {
		if expense.StartDate.IsZero() || expense.EndDate.IsZero() {
			continue
		}
		first, last := expense.StartDate, expense.EndDate
		if last.Before(first) {
			first, last = last, first
		}

		for month := monthStart(first); !month.After(last); month = monthStart(month.AddDays(32)) {
			item, ok := allocateOne(expense, month, monthEnd(month))
			if !ok {
				continue
			}

			key := month.Format("2006-01")
			entry, exists := byMonth[key]
			if !exists {
				entry = &models.MonthlyExpense{Month: key, BySource: make(map[string]float64)}
				byMonth[key] = entry
			}
			entry.Total += item.ProportionalCost
			entry.BySource[expense.Source] += item.ProportionalCost
		}
	}

	trend := make([]models.MonthlyExpense, 0, len(byMonth))
	for _, entry := range byMonth {
		trend = append(trend, *entry)
	}
	sort.Slice(trend, func(i, j int) bool {
		return trend[i].Month < trend[j].Month
	})
	return trend
}

func allocateOne(expense models.Expense, rangeStart, rangeEnd models.Day) (models.ExpenseAllocation, bool) {
	totalDays := DaysBetween(expense.StartDate, expense.EndDate)
	overlap := OverlapDays(expense.StartDate, expense.EndDate, rangeStart, rangeEnd)
	if overlap == 0 {
		return models.ExpenseAllocation{}, false
	}

	dailyCost := expense.Amount / float64(totalDays)
	return models.ExpenseAllocation{
		Expense:          expense,
		ExpenseTotalDays: totalDays,
		DailyCost:        dailyCost,
		OverlapDays:      overlap,
		ProportionalCost: dailyCost * float64(overlap),
	}, true
}

func monthStart(d models.Day) models.Day {
	return models.NewDay(d.Year(), d.Month(), 1)
}

func monthEnd(d models.Day) models.Day {
	return models.NewDay(d.Year(), d.Month()+1, 0)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
