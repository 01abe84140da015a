// Package dates turns the date representations found in lead spreadsheets into
// calendar days.
//
// Every result is a models.Day: a pure calendar date. Time of day is dropped as soon as
// a value is recognised, so parsing and formatting always agree on the day boundary.
package dates

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"leadboard/internal/models"
)

// CanonicalLayout is the lead application date format.
const CanonicalLayout = "02.01.2006"

// SerialThreshold separates spreadsheet serial dates from ordinary numbers.
// 40000 is 2009-07-06.
const SerialThreshold = 40000

var russianMonths = map[string]time.Month{
	"января":   time.January,
	"февраля":  time.February,
	"марта":    time.March,
	"апреля":   time.April,
	"мая":      time.May,
	"июня":     time.June,
	"июля":     time.July,
	"августа":  time.August,
	"сентября": time.September,
	"октября":  time.October,
	"ноября":   time.November,
	"декабря":  time.December,
}

var (
	// Dates may be embedded in text ("Заявка от 04.12.2024"). The leading (?:^|\D)
	// keeps a match from starting inside a longer number such as the year of 2024/12/04.
	russianRe = regexp.MustCompile(`(\d{1,2})[\s\x{00A0}]+([А-Яа-яЁё]+)[\s\x{00A0}]+(\d{4})`)
	slashRe   = regexp.MustCompile(`(?:^|\D)(\d{1,2})/(\d{1,2})/(\d{4}|\d{2})\b`)
	dotRe     = regexp.MustCompile(`(?:^|\D)(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	isoRe     = regexp.MustCompile(`(?:^|\D)(\d{4})[-/](\d{1,2})[-/](\d{1,2})\b`)
)

// Layouts tried last, after every known spreadsheet form failed.
var fallbackLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"January 2, 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"02-Jan-2006",
	"Mon Jan 2 2006",
}

// Parse converts one spreadsheet cell into a calendar day.
// The second result is false when the cell holds nothing recognisable.
func Parse(v models.CellValue) (models.Day, bool) {
	switch v.Kind {
	case models.CellText:
		return ParseString(v.Text)
	case models.CellNumeric:
		return fromSerial(v.Number)
	case models.CellCalendar:
		if v.Time.IsZero() {
			return models.Day{}, false
		}
		return models.DayOf(v.Time), true
	default:
		return models.Day{}, false
	}
}

// ParseString recognises, in order: Russian long form ("4 Декабря 2024 г. 12:45"),
// D/M/Y and D/M/YY, D.M.YYYY, ISO Y-M-D or Y/M/D, then a set of generic layouts.
func ParseString(s string) (models.Day, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == models.Placeholder {
		return models.Day{}, false
	}

	if m := russianRe.FindStringSubmatch(s); m != nil {
		if month, ok := russianMonths[strings.ToLower(m[2])]; ok {
			if d, ok := build(m[3], month, m[1]); ok {
				return d, true
			}
		}
	}

	if m := slashRe.FindStringSubmatch(s); m != nil {
		year := m[3]
		if len(year) == 2 {
			year = "20" + year
		}
		if d, ok := buildNumeric(year, m[2], m[1]); ok {
			return d, true
		}
	}

	if m := dotRe.FindStringSubmatch(s); m != nil {
		if d, ok := buildNumeric(m[3], m[2], m[1]); ok {
			return d, true
		}
	}

	if m := isoRe.FindStringSubmatch(s); m != nil {
		if d, ok := buildNumeric(m[1], m[2], m[3]); ok {
			return d, true
		}
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DayOf(t), true
		}
	}

	return models.Day{}, false
}

// Format renders a day as DD.MM.YYYY.
func Format(d models.Day) string {
	return d.Format(CanonicalLayout)
}

// FormatCell parses v and formats it, falling back to the placeholder.
func FormatCell(v models.CellValue) (string, bool) {
	d, ok := Parse(v)
	if !ok {
		return models.Placeholder, false
	}
	return Format(d), true
}

func fromSerial(serial float64) (models.Day, bool) {
	if math.IsNaN(serial) || serial <= SerialThreshold {
		return models.Day{}, false
	}
	t, err := excelize.ExcelDateToTime(math.Floor(serial), false)
	if err != nil {
		return models.Day{}, false
	}
	return models.DayOf(t), true
}

func buildNumeric(year, month, day string) (models.Day, bool) {
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return models.Day{}, false
	}
	return build(year, time.Month(m), day)
}

// build rejects impossible dates such as 31.02 instead of rolling them over.
func build(year string, month time.Month, day string) (models.Day, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return models.Day{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 {
		return models.Day{}, false
	}
	result := models.NewDay(y, month, d)
	if result.Month() != month || result.Day() != d {
		return models.Day{}, false
	}
	return result, true
}
