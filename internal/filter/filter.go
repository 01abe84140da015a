// Package filter selects leads by field inclusion lists and application date.
package filter

import (
	"time"

	"leadboard/internal/dates"
	"leadboard/internal/models"
)

// DefaultStart is the range start used when no lead has a readable date.
var DefaultStart = models.NewDay(2024, time.January, 1)

// Filter keeps the leads whose application date parses, falls inside dateRange and whose
// fields are all allowed by filters. Order is preserved.
func Filter(leads []models.Lead, filters models.Filters, dateRange models.DateRange) []models.Lead {
	sources := toSet(filters.Sources)
	operators := toSet(filters.Operators)
	statuses := toSet(filters.Statuses)
	measurers := toSet(filters.WhoMeasured)

	result := []models.Lead{}
	for _, lead := range leads {
		d, ok := dates.ParseString(lead.ApplicationDate)
		if !ok || !dateRange.Contains(d) {
			continue
		}
		if !allowed(sources, lead.Source) ||
			!allowed(operators, lead.Operator) ||
			!allowed(statuses, lead.Status) ||
			!allowed(measurers, lead.WhoMeasured) {
			continue
		}
		result = append(result, lead)
	}
	return result
}

// Options lists the distinct values of every filterable field in first-seen order,
// together with the data range as of today.
func Options(leads []models.Lead, today models.Day) models.FilterOptions {
	return models.FilterOptions{
		Sources:     distinct(leads, func(l models.Lead) string { return l.Source }),
		Operators:   distinct(leads, func(l models.Lead) string { return l.Operator }),
		Statuses:    distinct(leads, func(l models.Lead) string { return l.Status }),
		WhoMeasured: distinct(leads, func(l models.Lead) string { return l.WhoMeasured }),
		DateRange:   DataRange(leads, today),
	}
}

// DataRange spans from the earliest readable application date to today.
func DataRange(leads []models.Lead, today models.Day) models.DateRange {
	var earliest models.Day
	for _, lead := range leads {
		d, ok := dates.ParseString(lead.ApplicationDate)
		if !ok {
			continue
		}
		if earliest.IsZero() || d.Before(earliest) {
			earliest = d
		}
	}
	if earliest.IsZero() {
		earliest = DefaultStart
	}
	return models.DateRange{StartDate: earliest, EndDate: today}
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// allowed treats a nil set as no restriction.
func allowed(set map[string]struct{}, v string) bool {
	if set == nil {
		return true
	}
	_, ok := set[v]
	return ok
}

func distinct(leads []models.Lead, field func(models.Lead) string) []string {
	seen := make(map[string]struct{})
	values := []string{}
	for _, lead := range leads {
		v := field(lead)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return values
}
