package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/tradelens/screener/internal/screener"
	"github.com/tradelens/screener/pkg/logger"
)

// ScreenerHandler serves the named screening queries
type ScreenerHandler struct {
	engine *screener.Engine
	logger *logger.Logger
}

// NewScreenerHandler creates a new screener handler
func NewScreenerHandler(engine *screener.Engine, log *logger.Logger) *ScreenerHandler {
	return &ScreenerHandler{
		engine: engine,
		logger: log,
	}
}

// Query runs one screen
// GET /api/v1/screeners/{name}
func (h *ScreenerHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["name"]

	filters, date, err := parseFilters(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.engine.Query(ctx, name, filters, date)
	if err != nil {
		if errors.Is(err, screener.ErrUnknownScreen) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.WithError(err).WithField("screen", name).Error("Screen query failed")
		respondError(w, http.StatusInternalServerError, "Screen query failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// parseFilters reads the threshold query parameters. Absent parameters
// stay nil so each screen applies its own default.
func parseFilters(r *http.Request) (screener.Filters, time.Time, error) {
	q := r.URL.Query()
	var f screener.Filters
	var date time.Time

	if v := q.Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, date, errors.New("invalid date, expected YYYY-MM-DD")
		}
		date = parsed
	}

	var err error
	if f.MinChangePct, err = floatParam(q.Get("min_change")); err != nil {
		return f, date, errors.New("invalid min_change")
	}
	if f.MinRVOL, err = floatParam(q.Get("min_rvol")); err != nil {
		return f, date, errors.New("invalid min_rvol")
	}
	if f.MinRS, err = floatParam(q.Get("min_rs")); err != nil {
		return f, date, errors.New("invalid min_rs")
	}
	if f.MinVARS, err = floatParam(q.Get("min_vars")); err != nil {
		return f, date, errors.New("invalid min_vars")
	}
	if f.MaxExtension, err = floatParam(q.Get("max_extension")); err != nil {
		return f, date, errors.New("invalid max_extension")
	}
	if f.TopFraction, err = floatParam(q.Get("top_fraction")); err != nil {
		return f, date, errors.New("invalid top_fraction")
	}
	if f.MinStage, err = intParam(q.Get("min_stage")); err != nil {
		return f, date, errors.New("invalid min_stage")
	}
	if f.MinVCP, err = intParam(q.Get("min_vcp")); err != nil {
		return f, date, errors.New("invalid min_vcp")
	}

	if v := q.Get("direction"); v != "" {
		if v != "up" && v != "down" && v != "both" {
			return f, date, errors.New("invalid direction, expected up, down or both")
		}
		f.Direction = v
	}
	if v, err := intParam(q.Get("tail_length")); err != nil {
		return f, date, errors.New("invalid tail_length")
	} else if v != nil {
		f.TailLength = *v
	}
	if v, err := intParam(q.Get("limit")); err != nil {
		return f, date, errors.New("invalid limit")
	} else if v != nil {
		f.Limit = *v
	}
	if v, err := intParam(q.Get("offset")); err != nil {
		return f, date, errors.New("invalid offset")
	} else if v != nil {
		f.Offset = *v
	}

	return f, date, nil
}

func floatParam(v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func intParam(v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
