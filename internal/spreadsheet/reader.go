// Package spreadsheet reads the first worksheet of an uploaded lead export into a grid of
// typed cells. Workbooks are read with excelize; CSV exports are decoded from UTF-8,
// UTF-16 or Windows-1251.
package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"leadboard/internal/models"
)

var (
	ErrEmptyFile         = errors.New("file is empty")
	ErrNoSheets          = errors.New("workbook has no sheets or is corrupt")
	ErrEmptySheet        = errors.New("sheet is empty or corrupt")
	ErrUnsupportedFormat = errors.New("unsupported file type")
)

// SupportedExtensions lists the upload formats Read understands.
var SupportedExtensions = []string{".xlsx", ".xlsm", ".xltx", ".xltm", ".csv"}

// Grid is a worksheet as rows of typed cells. Rows may have different lengths.
type Grid = [][]models.CellValue

// Read decodes r according to the extension of filename.
func Read(r io.Reader, filename string) (Grid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return readWorkbook(bytes.NewReader(data))
	case ".csv":
		return readCSV(data)
	default:
		return nil, fmt.Errorf("%w %q, supported: %s", ErrUnsupportedFormat, ext, strings.Join(SupportedExtensions, ", "))
	}
}

// IsSupported reports whether filename has an extension Read accepts.
func IsSupported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, supported := range SupportedExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}

func readWorkbook(r io.Reader) (Grid, error) {
	xlFile, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSheets, err)
	}
	defer xlFile.Close()

	sheets := xlFile.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	sheet := sheets[0]

	// Raw values keep numeric cells (including date-formatted serials) as numbers
	// instead of the display string.
	rows, err := xlFile.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptySheet, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}

	grid := make(Grid, len(rows))
	for rowIndex, row := range rows {
		cells := make([]models.CellValue, len(row))
		for colIndex, raw := range row {
			cellType := excelize.CellTypeUnset
			if raw != "" {
				axis, err := excelize.CoordinatesToCellName(colIndex+1, rowIndex+1)
				if err == nil {
					if t, err := xlFile.GetCellType(sheet, axis); err == nil {
						cellType = t
					}
				}
			}
			cells[colIndex] = typedCell(raw, cellType)
		}
		grid[rowIndex] = cells
	}
	return grid, nil
}

func typedCell(raw string, cellType excelize.CellType) models.CellValue {
	if strings.TrimSpace(raw) == "" {
		return models.Empty()
	}
	switch cellType {
	case excelize.CellTypeDate:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return models.Calendar(t)
			}
		}
		return models.Text(raw)
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return models.Numeric(f)
		}
		return models.Text(raw)
	default:
		return models.Text(raw)
	}
}

func readCSV(data []byte) (Grid, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptySheet
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = detectDelimiter(text)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptySheet
	}

	grid := make(Grid, len(records))
	for i, record := range records {
		cells := make([]models.CellValue, len(record))
		for j, value := range record {
			cells[j] = csvCell(value)
		}
		grid[i] = cells
	}
	return grid, nil
}

func csvCell(value string) models.CellValue {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return models.Empty()
	}
	if looksNumeric(trimmed) {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return models.Numeric(f)
		}
	}
	return models.Text(value)
}

// looksNumeric accepts plain decimals only, so phone numbers with a leading zero
// and values like "1e5" or "Inf" stay text.
func looksNumeric(s string) bool {
	if len(s) > 1 && s[0] == '0' && s[1] != '.' {
		return false
	}
	dot := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !dot && i > 0:
			dot = true
		case r == '-' && i == 0 && len(s) > 1:
		default:
			return false
		}
	}
	return true
}

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

func decodeText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		return string(data[len(utf8BOM):]), nil
	case bytes.HasPrefix(data, utf16LEBOM), bytes.HasPrefix(data, utf16BEBOM):
		decoded, _, err := transform.Bytes(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), data)
		if err != nil {
			return "", fmt.Errorf("failed to decode utf-16 csv: %w", err)
		}
		return string(decoded), nil
	case utf8.Valid(data):
		return string(data), nil
	default:
		// Russian Excel saves CSV in the ANSI code page.
		decoded, _, err := transform.Bytes(charmap.Windows1251.NewDecoder(), data)
		if err != nil {
			return "", fmt.Errorf("failed to decode csv: %w", err)
		}
		return string(decoded), nil
	}
}

// detectDelimiter picks the most frequent of ',', ';' and tab in the first line.
func detectDelimiter(text string) rune {
	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}
	best, bestCount := ',', 0
	for _, candidate := range []rune{',', ';', '\t'} {
		if n := strings.Count(firstLine, string(candidate)); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}
