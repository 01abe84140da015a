package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadboard/internal/client"
	"leadboard/internal/comparison"
	"leadboard/internal/config"
	"leadboard/internal/export"
	"leadboard/internal/ingest"
	"leadboard/internal/metrics"
	"leadboard/internal/models"
	"leadboard/internal/storage"
	"leadboard/internal/transformer"
)

const leadsCSV = "Источник;Статус;Дата заявки;Кто замерял;Оператор\n" +
	"Авито;Договор;01.12.2024;Иванов;Петров\n" +
	"Авито;Отказ;03.12.2024;Иванов;Петров\n" +
	"Сайт;Замер;07.12.2024;Сидоров;Кузнецов\n" +
	"Сайт;👍Созвон до замера ВАЖНО;20.12.2024;;Кузнецов\n"

type testServer struct {
	router  *gin.Engine
	store   *storage.JSONStore
	handler *Handler
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	if cfg == nil {
		cfg = &config.Config{}
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 1 << 20
	}
	cfg.HTTPTimeout = time.Second
	cfg.RetryAttempts = 1

	store, err := storage.NewJSONStore(t.TempDir(), 2, logger)
	require.NoError(t, err)

	telemetry := NewTelemetry()
	calculator := metrics.NewCalculator(cfg.RevenuePerContract)
	importer := ingest.NewImporter(transformer.New(), store, telemetry, logger)
	exporter := export.NewExporter("secret", client.NewHTTPClient(cfg, logger), logger)

	h := New(cfg, store, importer, comparison.NewEvaluator(calculator), exporter, telemetry, logger)
	h.now = func() time.Time { return time.Date(2024, time.December, 31, 15, 0, 0, 0, time.UTC) }

	router := gin.New()
	h.Register(router)
	return &testServer{router: router, store: store, handler: h}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/readyz", nil).Code)

	require.Equal(t, http.StatusOK, s.upload(t, "leads.csv", leadsCSV).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/readyz", nil).Code)
}

func TestUpload(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.upload(t, "leads.csv", leadsCSV)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[models.ImportResult](t, w)
	assert.Equal(t, 4, result.Count)
	assert.Equal(t, "leads.csv", result.FileName)
	assert.True(t, result.Quality.HeaderDetected)

	leads := decode[[]models.Lead](t, s.do(t, http.MethodGet, "/api/data", nil))
	require.Len(t, leads, 4)
	assert.Equal(t, "01.12.2024", leads[0].ApplicationDate)
	assert.Equal(t, models.Placeholder, leads[3].WhoMeasured)
}

func TestUpload_rejectedFilesKeepData(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, s.upload(t, "leads.csv", leadsCSV).Code)

	w := s.upload(t, "empty.csv", ",,,,\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `parse file \"empty.csv\"`)

	assert.Equal(t, http.StatusBadRequest, s.upload(t, "leads.pdf", "%PDF").Code)

	leads, err := s.store.Leads()
	require.NoError(t, err)
	assert.Len(t, leads, 4)
}

func TestUpload_tooLarge(t *testing.T) {
	s := newTestServer(t, &config.Config{MaxUploadBytes: 64})

	w := s.upload(t, "leads.csv", strings.Repeat("Авито;Замер\n", 20))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestReplaceLeads(t *testing.T) {
	s := newTestServer(t, nil)
	leads := []models.Lead{{ID: 0, Source: "Авито", Status: "Договор", ApplicationDate: "04.12.2024"}}

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/data", leads).Code)
	assert.Equal(t, leads, decode[[]models.Lead](t, s.do(t, http.MethodGet, "/api/data", nil)))

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/data", map[string]string{"a": "b"}).Code)
}

func TestExpenseEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/expenses", map[string]interface{}{
		"startDate":   "2024-12-01",
		"endDate":     "2024-12-10",
		"source":      "Авито",
		"amount":      1000,
		"description": "Продвижение",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Expense](t, w)
	require.NotEmpty(t, created.ID)

	w = s.do(t, http.MethodPost, "/api/expenses", map[string]interface{}{"source": "Авито"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "amount is required")

	w = s.do(t, http.MethodPost, "/api/expenses", map[string]interface{}{"startDate": "01.12.2024"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	allocation := decode[models.Allocation](t, s.do(t, http.MethodGet, "/api/expenses/allocation?start=2024-12-05&end=2024-12-10", nil))
	require.Len(t, allocation.Breakdown, 1)
	assert.InDelta(t, 600, allocation.TotalCost, 1e-9)
	assert.Equal(t, 6, allocation.Breakdown[0].OverlapDays)

	filtered := decode[models.Allocation](t, s.do(t, http.MethodGet, "/api/expenses/allocation?"+url.Values{"start": {"2024-12-05"}, "end": {"2024-12-10"}, "source": {"Сайт"}}.Encode(), nil))
	assert.Empty(t, filtered.Breakdown)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/expenses/allocation?start=someday", nil).Code)

	trend := decode[[]models.MonthlyExpense](t, s.do(t, http.MethodGet, "/api/expenses/trend", nil))
	require.Len(t, trend, 1)
	assert.Equal(t, "2024-12", trend[0].Month)

	update := map[string]interface{}{
		"startDate":   "2024-12-01",
		"endDate":     "2024-12-10",
		"source":      "Авито",
		"amount":      2000,
		"description": "Продвижение",
	}
	w = s.do(t, http.MethodPut, "/api/expenses/"+created.ID, update)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2000.0, decode[models.Expense](t, w).Amount)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/api/expenses/missing", update).Code)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/expenses/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/expenses/"+created.ID, nil).Code)

	w = s.do(t, http.MethodPut, "/api/expenses", []map[string]interface{}{update, update})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[[]models.Expense](t, s.do(t, http.MethodGet, "/api/expenses", nil)), 2)
}

func TestFiltersAndAnalysis(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, s.upload(t, "leads.csv", leadsCSV).Code)

	options := decode[models.FilterOptions](t, s.do(t, http.MethodGet, "/api/filters", nil))
	assert.Equal(t, []string{"Авито", "Сайт"}, options.Sources)
	assert.Equal(t, "2024-12-01", options.DateRange.StartDate.String())
	assert.Equal(t, "2024-12-31", options.DateRange.EndDate.String())

	full := decode[models.ComparisonResult](t, s.do(t, http.MethodGet, "/api/analysis", nil))
	assert.Equal(t, 4, full.Metrics.Total)
	assert.Equal(t, 1, full.Metrics.Contracts)
	assert.Equal(t, 2, full.Metrics.Measurements, "the ВАЖНО call is not a measurement")
	assert.Equal(t, 1, full.Metrics.CallBeforeMeasurementImportant)
	assert.Equal(t, 25.0, full.Metrics.ConversionRate)

	custom := decode[models.ComparisonResult](t, s.do(t, http.MethodGet, "/api/analysis?"+url.Values{
		"start":    {"2024-12-01"},
		"end":      {"2024-12-07"},
		"source":   {"Авито"},
		"operator": {"Петров"},
	}.Encode(), nil))
	assert.Equal(t, 2, custom.LeadCount)
	assert.Equal(t, 1, custom.Metrics.Total)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/analysis?end=tomorrow", nil).Code)
}

func TestComparisonEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, s.upload(t, "leads.csv", leadsCSV).Code)

	list := decode[[]models.Comparison](t, s.do(t, http.MethodGet, "/api/comparisons", nil))
	require.Len(t, list, 1)
	primary := list[0]

	w := s.do(t, http.MethodPost, "/api/comparisons", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	added := decode[models.Comparison](t, w)
	assert.Equal(t, "Сравнение 2", added.Name)
	assert.Equal(t, "2024-12-01", added.DateRange.StartDate.String())

	w = s.do(t, http.MethodPut, "/api/comparisons/"+added.ID, models.Comparison{
		Name:    "Сайт",
		Filters: models.Filters{Sources: []string{"Сайт"}},
		DateRange: models.DateRange{
			StartDate: models.NewDay(2024, time.December, 1),
			EndDate:   models.NewDay(2024, time.December, 31),
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Сайт", decode[models.Comparison](t, w).Name)

	results := decode[[]models.ComparisonResult](t, s.do(t, http.MethodGet, "/api/report", nil))
	require.Len(t, results, 2)
	assert.Equal(t, 4, results[0].LeadCount)
	assert.Equal(t, 2, results[1].LeadCount)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodDelete, "/api/comparisons/"+primary.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/comparisons/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/api/comparisons/missing", models.Comparison{}).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/comparisons/"+added.ID, nil).Code)

	list = decode[[]models.Comparison](t, s.do(t, http.MethodGet, "/api/comparisons", nil))
	assert.Len(t, list, 1)
}

func TestComparisonReport_paginatesBreakdown(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, s.upload(t, "leads.csv", leadsCSV).Code)
	for i := 0; i < 3; i++ {
		_, err := s.store.CreateExpense(models.Expense{
			StartDate:   models.NewDay(2024, time.December, 1),
			EndDate:     models.NewDay(2024, time.December, 10),
			Source:      "Авито",
			Amount:      100,
			Description: "Баннер",
		})
		require.NoError(t, err)
	}
	list := decode[[]models.Comparison](t, s.do(t, http.MethodGet, "/api/comparisons", nil))

	w := s.do(t, http.MethodGet, "/api/comparisons/"+list[0].ID+"/report?limit=2&offset=2", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Result    models.ComparisonResult `json:"result"`
		Breakdown struct {
			Data    []models.ExpenseAllocation `json:"data"`
			Total   int                        `json:"total"`
			Page    int                        `json:"page"`
			HasMore bool                       `json:"has_more"`
		} `json:"breakdown"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Breakdown.Total)
	assert.Len(t, body.Breakdown.Data, 1)
	assert.Equal(t, 2, body.Breakdown.Page)
	assert.False(t, body.Breakdown.HasMore)
	assert.InDelta(t, 300, body.Result.Metrics.Budget, 1e-9)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/comparisons/"+list[0].ID+"/report?limit=0", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/comparisons/missing/report", nil).Code)
}

func TestExport(t *testing.T) {
	var received int32
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("X-Signature"), "sha256="))
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	s := newTestServer(t, &config.Config{SinkURL: sink.URL})
	require.Equal(t, http.StatusOK, s.upload(t, "leads.csv", leadsCSV).Code)

	w := s.do(t, http.MethodPost, "/api/export", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&received))

	disabled := newTestServer(t, nil)
	assert.Equal(t, http.StatusBadRequest, disabled.do(t, http.MethodPost, "/api/export", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, s.upload(t, "leads.csv", leadsCSV).Code)
	s.upload(t, "leads.pdf", "%PDF")
	s.do(t, http.MethodGet, "/api/report", nil)

	w := s.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `leadboard_imports_total{result="success"} 1`)
	assert.Contains(t, body, `leadboard_imported_leads_total 4`)
	assert.Contains(t, body, `leadboard_http_requests_total{method="POST",route="/api/upload",status="200"} 1`)
	assert.Contains(t, body, "leadboard_report_duration_seconds_count 1")
}
