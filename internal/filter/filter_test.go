package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadboard/internal/models"
)

func sampleLeads() []models.Lead {
	return []models.Lead{
		{ID: 0, Source: "Авито", Status: "Договор", ApplicationDate: "01.12.2024", WhoMeasured: "Иванов", Operator: "Петров"},
		{ID: 1, Source: "Сайт", Status: "Отказ", ApplicationDate: "05.12.2024", WhoMeasured: "Сидоров", Operator: "Петров"},
		{ID: 2, Source: "Авито", Status: "Замер", ApplicationDate: "10.12.2024", WhoMeasured: "Иванов", Operator: "Кузнецов"},
		{ID: 3, Source: "Авито", Status: "Замер", ApplicationDate: models.Placeholder, WhoMeasured: "Иванов", Operator: "Петров"},
		{ID: 4, Source: "Яндекс Директ", Status: "Недозвон", ApplicationDate: "20.11.2024", WhoMeasured: models.Placeholder, Operator: "Кузнецов"},
	}
}

func ids(leads []models.Lead) []int {
	result := make([]int, len(leads))
	for i, lead := range leads {
		result[i] = lead.ID
	}
	return result
}

func TestFilter(t *testing.T) {
	december := models.DateRange{
		StartDate: models.NewDay(2024, time.December, 1),
		EndDate:   models.NewDay(2024, time.December, 10),
	}

	testCases := []struct {
		name      string
		filters   models.Filters
		dateRange models.DateRange
		expected  []int
	}{
		{"no restrictions drops unparseable dates", models.Filters{}, models.DateRange{}, []int{0, 1, 2, 4}},
		{"inclusive range bounds", models.Filters{}, december, []int{0, 1, 2}},
		{"single day", models.Filters{}, models.DateRange{StartDate: models.NewDay(2024, time.December, 5), EndDate: models.NewDay(2024, time.December, 5)}, []int{1}},
		{"membership is OR within a field", models.Filters{Sources: []string{"Сайт", "Яндекс Директ"}}, models.DateRange{}, []int{1, 4}},
		{"fields are ANDed", models.Filters{Sources: []string{"Авито"}, Operators: []string{"Петров"}}, december, []int{0}},
		{"status and measurer", models.Filters{Statuses: []string{"Замер"}, WhoMeasured: []string{"Иванов"}}, models.DateRange{}, []int{2}},
		{"nothing matches", models.Filters{Sources: []string{"Телевизор"}}, models.DateRange{}, []int{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ids(Filter(sampleLeads(), tc.filters, tc.dateRange)))
		})
	}
}

func TestOptions(t *testing.T) {
	today := models.NewDay(2025, time.January, 15)

	options := Options(sampleLeads(), today)

	assert.Equal(t, []string{"Авито", "Сайт", "Яндекс Директ"}, options.Sources)
	assert.Equal(t, []string{"Петров", "Кузнецов"}, options.Operators)
	assert.Equal(t, []string{"Договор", "Отказ", "Замер", "Недозвон"}, options.Statuses)
	assert.Equal(t, []string{"Иванов", "Сидоров", models.Placeholder}, options.WhoMeasured)
	assert.True(t, options.DateRange.StartDate.Equal(models.NewDay(2024, time.November, 20)))
	assert.True(t, options.DateRange.EndDate.Equal(today))
}

func TestDataRange_defaultStart(t *testing.T) {
	today := models.NewDay(2025, time.March, 1)

	r := DataRange([]models.Lead{{ApplicationDate: models.Placeholder}}, today)

	require.True(t, r.StartDate.Equal(DefaultStart))
	assert.True(t, r.EndDate.Equal(today))
}
