package api

import (
	"fmt"
	"net/http"
	"time"

	service "github.com/okian/skillpulse/internal/app"
	"github.com/okian/skillpulse/internal/domain/consolidation"
	"github.com/okian/skillpulse/internal/domain/model"
	"github.com/okian/skillpulse/internal/domain/trend"
	"github.com/okian/skillpulse/pkg/logger"
)

// CalculatorDependencies defines the stateless calculation operations.
type CalculatorDependencies interface {
	Consolidate(in consolidation.Input, targetPeerCount int) (service.Calculation, error)
	Trend(series []model.Point, method model.Method, historyCount int) model.Trend
}

type consolidateRequest struct {
	Observation     *float64  `json:"observation" validate:"required"`
	Self            *float64  `json:"self" validate:"required"`
	Peers           []float64 `json:"peers"`
	TargetPeerCount int       `json:"target_peer_count" validate:"min=0"`
}

type consolidateResponse struct {
	Value       float64       `json:"consolidated_value"`
	Level       string        `json:"level"`
	PeerScore   *float64      `json:"peer_consolidated_value"`
	PeerCount   int           `json:"peer_evaluation_count"`
	Reliability float64       `json:"reliability"`
	Weights     model.Weights `json:"weights"`
}

// trendPoint carries a score, a level or both. A level alone counts as its
// nominal score 1, 2 or 3.
type trendPoint struct {
	Score *float64 `json:"score"`
	Level string   `json:"level"`
	At    string   `json:"at" validate:"required"`
}

func (p trendPoint) toPoint() (model.Point, error) {
	at, err := time.Parse(time.RFC3339, p.At)
	if err != nil {
		return model.Point{}, fmt.Errorf("%w: invalid at; must be RFC3339", ErrBadRequest)
	}
	switch {
	case p.Score != nil && p.Level != "":
		l, err := model.ParseLevel(p.Level)
		if err != nil {
			return model.Point{}, err
		}
		return model.Point{Score: *p.Score, Level: l, At: at}, nil
	case p.Score != nil:
		return model.Point{Score: *p.Score, At: at}, nil
	case p.Level != "":
		l, err := model.ParseLevel(p.Level)
		if err != nil {
			return model.Point{}, err
		}
		return model.LevelPoint(l, at), nil
	}
	return model.Point{}, fmt.Errorf("%w: point needs a score or a level", ErrBadRequest)
}

type trendRequest struct {
	Points       []trendPoint `json:"points" validate:"dive"`
	Method       string       `json:"method"`
	HistoryCount int          `json:"history_count" validate:"min=0"`
}

type trendResponse struct {
	Trend  string `json:"trend"`
	Points int    `json:"points"`
}

// CalculatorHandler exposes the consolidation and trend math without
// touching stored data.
type CalculatorHandler struct {
	deps   CalculatorDependencies
	binder binder
	logger logger.Logger
}

// NewCalculatorHandler creates a new calculator handler.
func NewCalculatorHandler(deps CalculatorDependencies, maxBodyBytes int64, log logger.Logger) *CalculatorHandler {
	return &CalculatorHandler{deps: deps, binder: binder{maxBytes: maxBodyBytes}, logger: log}
}

// HandleConsolidate handles POST /consolidate requests.
func (h *CalculatorHandler) HandleConsolidate(w http.ResponseWriter, r *http.Request) {
	const op = "api.consolidate"

	var req consolidateRequest
	if err := h.binder.bind(w, r, &req); err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	in := consolidation.Input{Observation: *req.Observation, Self: *req.Self, Peers: req.Peers}
	c, err := h.deps.Consolidate(in, req.TargetPeerCount)
	if err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}

	resp := consolidateResponse{
		Value:       c.Value,
		Level:       c.Level.String(),
		PeerCount:   c.PeerCount,
		Reliability: c.Reliability,
		Weights:     c.Weights,
	}
	if c.PeerCount > 0 {
		resp.PeerScore = model.Float(c.PeerScore)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleTrend handles POST /trend requests. Points must be oldest first.
func (h *CalculatorHandler) HandleTrend(w http.ResponseWriter, r *http.Request) {
	const op = "api.trend"

	var req trendRequest
	if err := h.binder.bind(w, r, &req); err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}

	var method model.Method
	if req.Method != "" {
		m, err := model.ParseMethod(req.Method)
		if err != nil {
			fail(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, err))
			return
		}
		method = m
	}

	series := make([]model.Point, len(req.Points))
	for i, p := range req.Points {
		pt, err := p.toPoint()
		if err != nil {
			fail(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, fmt.Errorf("points[%d]: %w", i, err)))
			return
		}
		series[i] = pt
	}
	if !trend.IsChronological(series) {
		fail(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, fmt.Errorf("points must be in time order")))
		return
	}

	tr := h.deps.Trend(series, method, req.HistoryCount)
	writeJSON(w, http.StatusOK, trendResponse{Trend: tr.String(), Points: len(series)})
}
