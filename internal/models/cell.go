package models

import (
	"strings"
	"time"
)

type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumeric
	CellCalendar
)

func (k CellKind) String() string {
	switch k {
	case CellText:
		return "text"
	case CellNumeric:
		return "numeric"
	case CellCalendar:
		return "calendar"
	default:
		return "empty"
	}
}

// CellValue is one typed spreadsheet cell. Only the field matching Kind is meaningful.
type CellValue struct {
	Kind   CellKind
	Text   string
	Number float64
	Time   time.Time
}

func Empty() CellValue { return CellValue{Kind: CellEmpty} }
func Text(s string) CellValue { return CellValue{Kind: CellText, Text: s} }
func Numeric(f float64) CellValue { return CellValue{Kind: CellNumeric, Number: f} }
func Calendar(t time.Time) CellValue { return CellValue{Kind: CellCalendar, Time: t} }

// IsBlank reports whether the cell carries no usable content.
func (c CellValue) IsBlank() bool {
	switch c.Kind {
	case CellEmpty:
		return true
	case CellText:
		return strings.TrimSpace(c.Text) == ""
	case CellCalendar:
		return c.Time.IsZero()
	default:
		return false
	}
}
