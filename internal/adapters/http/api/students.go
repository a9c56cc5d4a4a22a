package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/skillpulse/internal/domain/model"
	"github.com/okian/skillpulse/internal/domain/types"
	"github.com/okian/skillpulse/pkg/logger"
)

// StudentDependencies defines the interface for the student read side.
type StudentDependencies interface {
	Status(ctx context.Context, studentID, skillID string) (model.SkillStatus, error)
	Statuses(ctx context.Context, studentID string) ([]model.SkillStatus, error)
	History(ctx context.Context, studentID, skillID string, limit int) ([]model.ConsolidatedResult, error)
}

// StudentsHandler serves skill statuses and result history.
type StudentsHandler struct {
	deps     StudentDependencies
	maxLimit int
	logger   logger.Logger
}

// NewStudentsHandler creates a new students handler.
func NewStudentsHandler(deps StudentDependencies, maxLimit int, log logger.Logger) *StudentsHandler {
	return &StudentsHandler{deps: deps, maxLimit: maxLimit, logger: log}
}

// HandleListSkills handles GET /students/{student}/skills requests.
func (h *StudentsHandler) HandleListSkills(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_skills"
	statuses, err := h.deps.Statuses(r.Context(), r.PathValue("student"))
	if err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	out := make([]types.Status, len(statuses))
	for i, s := range statuses {
		out[i] = types.StatusFrom(s)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetSkill handles GET /students/{student}/skills/{skill} requests.
func (h *StudentsHandler) HandleGetSkill(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_skill"
	st, err := h.deps.Status(r.Context(), r.PathValue("student"), r.PathValue("skill"))
	if err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.StatusFrom(st))
}

// HandleGetHistory handles GET /students/{student}/skills/{skill}/history?limit=N
// requests. Without limit the newest maxLimit results are returned.
func (h *StudentsHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	n := h.maxLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if v > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded",
				WrapKind(op, ErrBadRequest, fmt.Errorf("limit must be at most %d", h.maxLimit)))
			return
		}
		n = v
	}
	hist, err := h.deps.History(r.Context(), r.PathValue("student"), r.PathValue("skill"), n)
	if err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, types.Results(hist))
}
