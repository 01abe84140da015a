package transformer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"leadboard/internal/dates"
	"leadboard/internal/models"
)

// Fixed column layout of a lead export.
const (
	colSource = iota
	colStatus
	colApplicationDate
	colWhoMeasured
	colOperator
	columnCount
)

var fieldNames = [columnCount]string{"source", "status", "applicationDate", "whoMeasured", "operator"}

var headerKeywords = []string{
	"источник", "статус", "дата", "кто", "оператор",
	"source", "status", "date", "who", "operator",
}

// minHeaderMatches is how many of the first five cells must look like column titles.
const minHeaderMatches = 2

type Transformer struct{}

func New() *Transformer {
	return &Transformer{}
}

// HasHeader reports whether row looks like a title row rather than data.
func (t *Transformer) HasHeader(row []models.CellValue) bool {
	matches := 0
	for col := 0; col < columnCount && col < len(row); col++ {
		value := strings.ToLower(strings.TrimSpace(cellString(row[col])))
		if value == "" {
			continue
		}
		for _, keyword := range headerKeywords {
			if strings.Contains(value, keyword) {
				matches++
				break
			}
		}
	}
	return matches >= minHeaderMatches
}

// MapRows converts a worksheet grid into leads. Fully blank rows are dropped and ids
// are the positions in the returned slice.
func (t *Transformer) MapRows(grid [][]models.CellValue) ([]models.Lead, models.ImportQuality) {
	quality := models.ImportQuality{TotalRows: len(grid)}
	leads := make([]models.Lead, 0, len(grid))

	start := 0
	if len(grid) > 0 && t.HasHeader(grid[0]) {
		quality.HeaderDetected = true
		start = 1
	}

	for rowIndex := start; rowIndex < len(grid); rowIndex++ {
		row := grid[rowIndex]
		record := models.RecordQuality{
			Row:         rowIndex + 1,
			IsValid:     true,
			FieldErrors: make(map[string]models.FieldQuality),
		}

		lead := models.Lead{
			Source:          t.validateText(cellAt(row, colSource), colSource, &record),
			Status:          t.validateText(cellAt(row, colStatus), colStatus, &record),
			ApplicationDate: t.validateDate(cellAt(row, colApplicationDate), &record),
			WhoMeasured:     t.validateText(cellAt(row, colWhoMeasured), colWhoMeasured, &record),
			Operator:        t.validateText(cellAt(row, colOperator), colOperator, &record),
		}

		if isBlankLead(lead) {
			quality.DroppedBlankRows++
			continue
		}

		lead.ID = len(leads)
		record.RecordID = fmt.Sprintf("lead_%d", lead.ID)
		record.IsValid = record.ErrorCount == 0
		if !record.IsValid {
			quality.LeadsWithIssues++
			quality.Records = append(quality.Records, record)
		}
		// Only unparseable values carry the original cell; blank dates do not.
		if fieldError, ok := record.FieldErrors[fieldNames[colApplicationDate]]; ok && fieldError.OriginalValue != nil {
			quality.UnparseableDates++
		}

		leads = append(leads, lead)
	}

	quality.ImportedLeads = len(leads)
	if len(leads) > 0 {
		quality.QualityScore = float64(len(leads)-quality.LeadsWithIssues) / float64(len(leads)) * 100
	}
	quality.CommonIssues = identifyCommonIssues(quality.Records)

	return leads, quality
}

func (t *Transformer) validateText(cell models.CellValue, col int, quality *models.RecordQuality) string {
	value := strings.TrimSpace(cellString(cell))
	if value == "" {
		quality.FieldErrors[fieldNames[col]] = models.FieldQuality{
			IsValid:     false,
			Description: fmt.Sprintf("Missing - %s is empty, using placeholder", fieldNames[col]),
		}
		quality.ErrorCount++
		return models.Placeholder
	}
	return value
}

func (t *Transformer) validateDate(cell models.CellValue, quality *models.RecordQuality) string {
	field := fieldNames[colApplicationDate]
	if cell.IsBlank() {
		quality.FieldErrors[field] = models.FieldQuality{
			IsValid:     false,
			Description: "Missing - applicationDate is empty, using placeholder",
		}
		quality.ErrorCount++
		return models.Placeholder
	}

	formatted, ok := dates.FormatCell(cell)
	if !ok {
		quality.FieldErrors[field] = models.FieldQuality{
			IsValid:       false,
			Description:   "Invalid date format - value kept out of date filtering",
			OriginalValue: cellString(cell),
		}
		quality.ErrorCount++
	}
	return formatted
}

// cellString renders any cell as text for a non-date column.
func cellString(cell models.CellValue) string {
	switch cell.Kind {
	case models.CellText:
		return cell.Text
	case models.CellNumeric:
		return strconv.FormatFloat(cell.Number, 'f', -1, 64)
	case models.CellCalendar:
		if cell.Time.IsZero() {
			return ""
		}
		return dates.Format(models.DayOf(cell.Time))
	default:
		return ""
	}
}

func cellAt(row []models.CellValue, col int) models.CellValue {
	if col < len(row) {
		return row[col]
	}
	return models.Empty()
}

func isBlankLead(lead models.Lead) bool {
	for _, v := range []string{lead.Source, lead.Status, lead.ApplicationDate, lead.WhoMeasured, lead.Operator} {
		if v != "" && v != models.Placeholder {
			return false
		}
	}
	return true
}

func identifyCommonIssues(records []models.RecordQuality) []string {
	issueCount := make(map[string]int)
	for _, record := range records {
		for _, fieldError := range record.FieldErrors {
			if !fieldError.IsValid {
				issueCount[fieldError.Description]++
			}
		}
	}

	var commonIssues []string
	for issue, count := range issueCount {
		if count > 1 {
			commonIssues = append(commonIssues, fmt.Sprintf("%s (occurs %d times)", issue, count))
		}
	}
	sort.Strings(commonIssues)
	return commonIssues
}
