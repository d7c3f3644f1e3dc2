package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tradelens/screener/internal/contracts"
	"github.com/tradelens/screener/pkg/logger"
)

// MetricsHandler serves persisted per-security metrics and breadth data
type MetricsHandler struct {
	metrics contracts.MetricsRepository
	breadth contracts.BreadthRepository
	logger  *logger.Logger
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(metrics contracts.MetricsRepository, breadth contracts.BreadthRepository, log *logger.Logger) *MetricsHandler {
	return &MetricsHandler{
		metrics: metrics,
		breadth: breadth,
		logger:  log,
	}
}

// GetLatestDate returns the most recent date with persisted metrics
// GET /api/v1/metrics/latest
func (h *MetricsHandler) GetLatestDate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	latest, err := h.metrics.LatestDate(ctx)
	if err != nil {
		respondError(w, http.StatusNotFound, "No metrics data available")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"latest_date": latest.Format("2006-01-02"),
	})
}

// GetBySymbol returns one security's metrics row
// GET /api/v1/metrics/{symbol}?date=YYYY-MM-DD
func (h *MetricsHandler) GetBySymbol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol := mux.Vars(r)["symbol"]

	date, ok := h.resolveDate(w, r)
	if !ok {
		return
	}

	row, err := h.metrics.GetBySymbolAndDate(ctx, symbol, date)
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to load metrics")
		respondError(w, http.StatusInternalServerError, "Failed to load metrics")
		return
	}
	if row == nil {
		respondError(w, http.StatusNotFound, "No metrics for symbol on date")
		return
	}

	respondJSON(w, http.StatusOK, row)
}

// GetBreadth returns the breadth snapshot for a date
// GET /api/v1/breadth?date=YYYY-MM-DD
func (h *MetricsHandler) GetBreadth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	date, ok := h.resolveDate(w, r)
	if !ok {
		return
	}

	snap, err := h.breadth.GetByDate(ctx, date)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load breadth snapshot")
		respondError(w, http.StatusInternalServerError, "Failed to load breadth snapshot")
		return
	}
	if snap == nil {
		respondError(w, http.StatusNotFound, "No breadth snapshot for date")
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

// resolveDate reads the date query parameter, defaulting to the latest
// persisted date. Writes the error response itself when resolution fails.
func (h *MetricsHandler) resolveDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	if v := r.URL.Query().Get("date"); v != "" {
		date, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
			return time.Time{}, false
		}
		return date, true
	}

	latest, err := h.metrics.LatestDate(r.Context())
	if err != nil {
		respondError(w, http.StatusNotFound, "No metrics data available")
		return time.Time{}, false
	}
	return latest, true
}
