package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"leadboard/internal/allocation"
	"leadboard/internal/comparison"
	"leadboard/internal/config"
	"leadboard/internal/dates"
	"leadboard/internal/export"
	"leadboard/internal/filter"
	"leadboard/internal/ingest"
	"leadboard/internal/models"
	"leadboard/internal/spreadsheet"
	"leadboard/internal/storage"
)

const (
	defaultLimit = 10
	maxLimit     = 500
)

type Handler struct {
	config    *config.Config
	store     *storage.JSONStore
	importer  *ingest.Importer
	evaluator *comparison.Evaluator
	exporter  *export.Exporter
	telemetry *Telemetry
	logger    *logrus.Logger
	now       func() time.Time
}

func New(cfg *config.Config, store *storage.JSONStore, importer *ingest.Importer,
	evaluator *comparison.Evaluator, exporter *export.Exporter, telemetry *Telemetry,
	logger *logrus.Logger) *Handler {
	return &Handler{
		config:    cfg,
		store:     store,
		importer:  importer,
		evaluator: evaluator,
		exporter:  exporter,
		telemetry: telemetry,
		logger:    logger,
		now:       time.Now,
	}
}

// Register mounts every route on router.
func (h *Handler) Register(router *gin.Engine) {
	router.Use(h.telemetry.Middleware())

	// Health endpoints
	router.GET("/healthz", h.HealthCheck)
	router.GET("/readyz", h.ReadinessCheck)
	router.GET("/metrics", h.telemetry.Handler())

	api := router.Group("/api")
	api.POST("/upload", h.Upload)
	api.GET("/data", h.GetLeads)
	api.PUT("/data", h.ReplaceLeads)

	api.GET("/expenses", h.ListExpenses)
	api.POST("/expenses", h.CreateExpense)
	api.PUT("/expenses", h.ReplaceExpenses)
	api.GET("/expenses/trend", h.ExpenseTrend)
	api.GET("/expenses/allocation", h.ExpenseAllocation)
	api.PUT("/expenses/:id", h.UpdateExpense)
	api.DELETE("/expenses/:id", h.DeleteExpense)

	api.GET("/filters", h.FilterOptions)
	api.GET("/analysis", h.Analysis)

	api.GET("/comparisons", h.ListComparisons)
	api.POST("/comparisons", h.AddComparison)
	api.PUT("/comparisons/:id", h.UpdateComparison)
	api.DELETE("/comparisons/:id", h.RemoveComparison)
	api.GET("/comparisons/:id/report", h.ComparisonReport)

	api.GET("/report", h.Report)
	api.POST("/export", h.ExportReport)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": h.now().Format(time.RFC3339),
		"service":   "leadboard",
	})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	if h.store.HasData() {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"has_data":    true,
			"last_import": h.store.LastImport().Format(time.RFC3339),
		})
	} else {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"has_data": false,
			"message":  "No leads imported yet",
		})
	}
}

func (h *Handler) Upload(c *gin.Context) {
	if c.Request.ContentLength > h.config.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	if !spreadsheet.IsSupported(fileHeader.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported file type, use .xlsx or .csv"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.WithError(err).Error("Failed to open uploaded file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer file.Close()

	result, err := h.importer.Import(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ingest.ErrSave) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetLeads(c *gin.Context) {
	leads, ok := h.loadLeads(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, leads)
}

func (h *Handler) ReplaceLeads(c *gin.Context) {
	var leads []models.Lead
	if err := c.ShouldBindJSON(&leads); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead list: " + err.Error()})
		return
	}
	if err := h.store.ReplaceLeads(leads); err != nil {
		h.internalError(c, "Failed to save leads", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(leads)})
}

func (h *Handler) ListExpenses(c *gin.Context) {
	expenses, ok := h.loadExpenses(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, expenses)
}

func (h *Handler) CreateExpense(c *gin.Context) {
	var expense models.Expense
	if err := c.ShouldBindJSON(&expense); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expense: " + err.Error()})
		return
	}
	created, err := h.store.CreateExpense(expense)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) ReplaceExpenses(c *gin.Context) {
	var expenses []models.Expense
	if err := c.ShouldBindJSON(&expenses); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expense list: " + err.Error()})
		return
	}
	if err := h.store.ReplaceExpenses(expenses); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(expenses)})
}

func (h *Handler) UpdateExpense(c *gin.Context) {
	var expense models.Expense
	if err := c.ShouldBindJSON(&expense); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expense: " + err.Error()})
		return
	}
	updated, err := h.store.UpdateExpense(c.Param("id"), expense)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteExpense(c *gin.Context) {
	if err := h.store.DeleteExpense(c.Param("id")); err != nil {
		h.storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ExpenseTrend(c *gin.Context) {
	expenses, ok := h.loadExpenses(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, allocation.MonthlyTrend(expenses))
}

func (h *Handler) ExpenseAllocation(c *gin.Context) {
	leads, ok := h.loadLeads(c)
	if !ok {
		return
	}
	expenses, ok := h.loadExpenses(c)
	if !ok {
		return
	}
	dateRange, ok := h.queryRange(c, filter.DataRange(leads, h.today()))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, allocation.Allocate(expenses, dateRange.StartDate, dateRange.EndDate, c.QueryArray("source")))
}

func (h *Handler) FilterOptions(c *gin.Context) {
	leads, ok := h.loadLeads(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, filter.Options(leads, h.today()))
}

// Analysis evaluates an unsaved comparison described by the query string.
func (h *Handler) Analysis(c *gin.Context) {
	leads, ok := h.loadLeads(c)
	if !ok {
		return
	}
	expenses, ok := h.loadExpenses(c)
	if !ok {
		return
	}
	full := filter.DataRange(leads, h.today())
	dateRange, ok := h.queryRange(c, full)
	if !ok {
		return
	}

	cfg := models.Comparison{
		Name: "Анализ",
		Filters: models.Filters{
			Sources:     c.QueryArray("source"),
			Operators:   c.QueryArray("operator"),
			Statuses:    c.QueryArray("status"),
			WhoMeasured: c.QueryArray("who_measured"),
		},
		DateRange: dateRange,
	}

	done := h.telemetry.timeReport()
	result := h.evaluator.Evaluate(cfg, leads, expenses, full)
	done()

	c.JSON(http.StatusOK, result)
}

func (h *Handler) ListComparisons(c *gin.Context) {
	list, ok := h.loadComparisons(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) AddComparison(c *gin.Context) {
	list, ok := h.loadComparisons(c)
	if !ok {
		return
	}
	leads, ok := h.loadLeads(c)
	if !ok {
		return
	}

	list = comparison.Add(list, filter.DataRange(leads, h.today()))
	if err := h.store.SaveComparisons(list); err != nil {
		h.internalError(c, "Failed to save comparisons", err)
		return
	}
	c.JSON(http.StatusCreated, list[len(list)-1])
}

func (h *Handler) UpdateComparison(c *gin.Context) {
	var patch models.Comparison
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid comparison: " + err.Error()})
		return
	}
	list, ok := h.loadComparisons(c)
	if !ok {
		return
	}

	list, err := comparison.Update(list, c.Param("id"), patch)
	if err != nil {
		h.comparisonError(c, err)
		return
	}
	if err := h.store.SaveComparisons(list); err != nil {
		h.internalError(c, "Failed to save comparisons", err)
		return
	}
	for _, updated := range list {
		if updated.ID == c.Param("id") {
			c.JSON(http.StatusOK, updated)
			return
		}
	}
}

func (h *Handler) RemoveComparison(c *gin.Context) {
	list, ok := h.loadComparisons(c)
	if !ok {
		return
	}

	list, err := comparison.Remove(list, c.Param("id"))
	if err != nil {
		h.comparisonError(c, err)
		return
	}
	if err := h.store.SaveComparisons(list); err != nil {
		h.internalError(c, "Failed to save comparisons", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ComparisonReport evaluates one saved comparison and pages through its expense breakdown.
func (h *Handler) ComparisonReport(c *gin.Context) {
	limit, offset, ok := queryPage(c)
	if !ok {
		return
	}
	list, ok := h.loadComparisons(c)
	if !ok {
		return
	}
	var cfg *models.Comparison
	for i := range list {
		if list[i].ID == c.Param("id") {
			cfg = &list[i]
			break
		}
	}
	if cfg == nil {
		h.comparisonError(c, comparison.ErrNotFound)
		return
	}
	leads, ok := h.loadLeads(c)
	if !ok {
		return
	}
	expenses, ok := h.loadExpenses(c)
	if !ok {
		return
	}

	done := h.telemetry.timeReport()
	result := h.evaluator.Evaluate(*cfg, leads, expenses, filter.DataRange(leads, h.today()))
	done()

	breakdown := result.Expenses
	result.Expenses = nil

	total := len(breakdown)
	start, end := paginate(total, limit, offset)

	c.JSON(http.StatusOK, gin.H{
		"result": result,
		"breakdown": models.MetricsResponse{
			Data:    breakdown[start:end],
			Total:   total,
			Page:    offset/limit + 1,
			Limit:   limit,
			HasMore: end < total,
		},
	})
}

// Report evaluates every saved comparison.
func (h *Handler) Report(c *gin.Context) {
	results, ok := h.evaluateAll(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *Handler) ExportReport(c *gin.Context) {
	results, ok := h.evaluateAll(c)
	if !ok {
		return
	}
	records := export.ToRecords(results)

	if err := h.exporter.Export(c.Request.Context(), h.config.SinkURL, records); err != nil {
		if errors.Is(err, export.ErrSinkDisabled) || errors.Is(err, export.ErrNoRecords) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to export to sink")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export data"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "success",
		"records_count": len(records),
		"exported_at":   h.now().Format(time.RFC3339),
		"sink_url":      h.config.SinkURL,
		"data":          records,
	})
}

func (h *Handler) evaluateAll(c *gin.Context) ([]models.ComparisonResult, bool) {
	list, ok := h.loadComparisons(c)
	if !ok {
		return nil, false
	}
	leads, ok := h.loadLeads(c)
	if !ok {
		return nil, false
	}
	expenses, ok := h.loadExpenses(c)
	if !ok {
		return nil, false
	}

	done := h.telemetry.timeReport()
	defer done()
	return h.evaluator.EvaluateAll(list, leads, expenses, h.today()), true
}

func (h *Handler) today() models.Day {
	return models.DayOf(h.now())
}

func (h *Handler) loadLeads(c *gin.Context) ([]models.Lead, bool) {
	leads, err := h.store.Leads()
	if err != nil {
		h.internalError(c, "Failed to load leads", err)
		return nil, false
	}
	return leads, true
}

func (h *Handler) loadExpenses(c *gin.Context) ([]models.Expense, bool) {
	expenses, err := h.store.ListExpenses()
	if err != nil {
		h.internalError(c, "Failed to load expenses", err)
		return nil, false
	}
	return expenses, true
}

// loadComparisons always returns at least the primary comparison, creating it on first use.
func (h *Handler) loadComparisons(c *gin.Context) ([]models.Comparison, bool) {
	list, err := h.store.ListComparisons()
	if err != nil {
		h.internalError(c, "Failed to load comparisons", err)
		return nil, false
	}
	if len(list) > 0 {
		return list, true
	}

	list = comparison.Ensure(list, models.DateRange{})
	if err := h.store.SaveComparisons(list); err != nil {
		h.internalError(c, "Failed to save comparisons", err)
		return nil, false
	}
	return list, true
}

// queryRange reads start and end, falling back to the bounds of def.
func (h *Handler) queryRange(c *gin.Context, def models.DateRange) (models.DateRange, bool) {
	start, ok := queryDay(c, "start")
	if !ok {
		return models.DateRange{}, false
	}
	end, ok := queryDay(c, "end")
	if !ok {
		return models.DateRange{}, false
	}
	if start.IsZero() {
		start = def.StartDate
	}
	if end.IsZero() {
		end = def.EndDate
	}
	return models.DateRange{StartDate: start, EndDate: end}, true
}

// queryDay accepts YYYY-MM-DD as well as the lead date forms.
func queryDay(c *gin.Context, key string) (models.Day, bool) {
	value := c.Query(key)
	if value == "" {
		return models.Day{}, true
	}
	if d, err := models.ParseDay(value); err == nil {
		return d, true
	}
	if d, ok := dates.ParseString(value); ok {
		return d, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + key + " date format, use YYYY-MM-DD"})
	return models.Day{}, false
}

func queryPage(c *gin.Context) (int, int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 || limit > maxLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(maxLimit)})
		return 0, 0, false
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative number"})
		return 0, 0, false
	}
	return limit, offset, true
}

func paginate(total, limit, offset int) (int, int) {
	start := offset
	end := offset + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return start, end
}

func (h *Handler) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.internalError(c, "Failed to save expenses", err)
	}
}

func (h *Handler) comparisonError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, comparison.ErrPrimary):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, comparison.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.internalError(c, "Comparison update failed", err)
	}
}

func (h *Handler) internalError(c *gin.Context, message string, err error) {
	h.logger.WithError(err).WithField("path", c.Request.URL.Path).Error(message)
	c.JSON(http.StatusInternalServerError, gin.H{"error": message + ": " + err.Error()})
}
