package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradelens/screener/internal/pipeline"
	"github.com/tradelens/screener/pkg/logger"
)

// PipelineHandler triggers calculation runs and streams their progress
type PipelineHandler struct {
	engine   *pipeline.Engine
	progress *pipeline.Broadcaster
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(engine *pipeline.Engine, progress *pipeline.Broadcaster, log *logger.Logger) *PipelineHandler {
	return &PipelineHandler{
		engine:   engine,
		progress: progress,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log,
	}
}

// CalculateRequest represents a calculation trigger
type CalculateRequest struct {
	Date string `json:"date,omitempty"` // single date (YYYY-MM-DD)
	From string `json:"from,omitempty"` // backfill range start
	To   string `json:"to,omitempty"`   // backfill range end
}

// Calculate starts a metrics calculation run in the background
// POST /api/v1/pipeline/calculate
func (h *PipelineHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	from, to, err := h.resolveRange(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run outlives the HTTP request; progress streams over the
	// websocket endpoint.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()

		if _, err := h.engine.CalculateRange(ctx, from, to); err != nil {
			h.logger.WithError(err).Error("Background calculation run failed")
		}
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	})
}

func (h *PipelineHandler) resolveRange(req CalculateRequest) (time.Time, time.Time, error) {
	if req.Date != "" {
		d, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return d, d, nil
	}
	if req.From != "" && req.To != "" {
		from, err := time.Parse("2006-01-02", req.From)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to, err := time.Parse("2006-01-02", req.To)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return from, to, nil
	}

	// default: prior calendar day, skipped automatically if not a
	// trading day
	d := time.Now().AddDate(0, 0, -1)
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return d, d, nil
}

// Progress streams pipeline progress events over a websocket
// GET /api/v1/pipeline/progress
func (h *PipelineHandler) Progress(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := h.progress.Subscribe()
	defer cancel()

	// read pump: detect client close
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}
