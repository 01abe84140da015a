package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadboard/internal/comparison"
	"leadboard/internal/models"
)

const leadsCSV = "Источник;Статус;Дата заявки;Кто замерял;Оператор\n" +
	"Авито;Договор;01.12.2024;Иванов;Петров\n" +
	"Авито;Отказ;03.12.2024;Иванов;Петров\n" +
	"Сайт;Замер;07.12.2024;Сидоров;Кузнецов\n" +
	"Сайт;👍Созвон до замера ВАЖНО;20.12.2024;;Кузнецов\n"

func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--data-dir", dataDir, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func seed(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "leads.csv")
	require.NoError(t, os.WriteFile(file, []byte(leadsCSV), 0o644))

	out, err := run(t, dir, "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 4 leads from leads.csv")

	_, err = run(t, dir, "expenses", "add",
		"--start", "2024-12-01", "--end", "10.12.2024", "--source", "Авито", "--amount", "1000", "--description", "Продвижение")
	require.NoError(t, err)
	return dir
}

func TestImport_missingFile(t *testing.T) {
	_, err := run(t, t.TempDir(), "import", "nope.csv")
	assert.Error(t, err)
}

func TestImport_unsupportedKeepsNothing(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "leads.pdf")
	require.NoError(t, os.WriteFile(file, []byte("%PDF"), 0o644))

	_, err := run(t, dir, "import", file)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `parse file "leads.pdf"`)
}

func TestExpenses(t *testing.T) {
	dir := seed(t)

	out, err := run(t, dir, "expenses", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-12-10")
	assert.Contains(t, out, "1000.00")

	out, err = run(t, dir, "expenses", "trend")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-12")
	assert.Contains(t, out, "Авито=1000.00")

	out, err = run(t, dir, "expenses", "allocate", "--start", "2024-12-05", "--end", "2024-12-10")
	require.NoError(t, err)
	assert.Contains(t, out, "600.00")

	_, err = run(t, dir, "expenses", "add", "--start", "someday", "--end", "2024-12-10", "--source", "Авито", "--amount", "5", "--description", "x")
	assert.Error(t, err)

	_, err = run(t, dir, "expenses", "delete", "missing")
	assert.Error(t, err)
}

func TestReport_savedComparisons(t *testing.T) {
	dir := seed(t)

	out, err := run(t, dir, "report", "--json")
	require.NoError(t, err)

	var results []models.ComparisonResult
	require.NoError(t, json.Unmarshal([]byte(out), &results), out)
	require.Len(t, results, 1)
	assert.Equal(t, "Сравнение 1", results[0].Comparison.Name)
	assert.Equal(t, 4, results[0].LeadCount)
	assert.InDelta(t, 1000, results[0].Metrics.Budget, 1e-9)

	_, err = run(t, dir, "report", "--comparison", "missing")
	assert.ErrorIs(t, err, comparison.ErrNotFound)
}

func TestReport_adHoc(t *testing.T) {
	dir := seed(t)

	out, err := run(t, dir, "report", "--json", "--start", "2024-12-01", "--end", "2024-12-07", "--source", "Авито")
	require.NoError(t, err)

	var results []models.ComparisonResult
	require.NoError(t, json.Unmarshal([]byte(out), &results), out)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].LeadCount)
	assert.Equal(t, models.NewDay(2024, 12, 7), results[0].Comparison.DateRange.EndDate)

	out, err = run(t, dir, "report", "--start", "2024-12-01")
	require.NoError(t, err)
	assert.Contains(t, out, "CONVERSION")

	_, err = run(t, dir, "report", "--start", "yesterday")
	assert.Error(t, err)
}
