package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/skillpulse/internal/domain/model"
	"github.com/okian/skillpulse/pkg/logger"
)

// AssessmentDependencies defines the interface for assessment intake.
type AssessmentDependencies interface {
	// Submit stores an assessment and schedules its recompute. It reports
	// duplicate=true for an id that was already accepted.
	Submit(ctx context.Context, a model.Assessment) (duplicate bool, err error)
}

// assessmentRequest is the body of POST /assessments.
type assessmentRequest struct {
	ID         string `json:"id"`
	StudentID  string `json:"student_id" validate:"required"`
	SkillID    string `json:"skill_id" validate:"required"`
	Source     string `json:"source" validate:"required"`
	Value      int    `json:"value" validate:"required"`
	At         string `json:"at" validate:"required"`
	AssessorID string `json:"assessor_id"`
}

func (req assessmentRequest) toAssessment() (model.Assessment, error) {
	src, err := model.ParseSource(strings.TrimSpace(req.Source))
	if err != nil {
		return model.Assessment{}, err
	}
	at, err := time.Parse(time.RFC3339, req.At)
	if err != nil {
		return model.Assessment{}, fmt.Errorf("%w: invalid at; must be RFC3339", ErrBadRequest)
	}
	a := model.Assessment{
		ID:         strings.TrimSpace(req.ID),
		StudentID:  strings.TrimSpace(req.StudentID),
		SkillID:    strings.TrimSpace(req.SkillID),
		Source:     src,
		Value:      req.Value,
		At:         at.UTC(),
		AssessorID: req.AssessorID,
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return a, a.Validate()
}

type ackResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// AssessmentsHandler handles assessment intake.
type AssessmentsHandler struct {
	deps   AssessmentDependencies
	binder binder
	logger logger.Logger
}

// NewAssessmentsHandler creates a new assessments handler.
func NewAssessmentsHandler(deps AssessmentDependencies, maxBodyBytes int64, log logger.Logger) *AssessmentsHandler {
	return &AssessmentsHandler{deps: deps, binder: binder{maxBytes: maxBodyBytes}, logger: log}
}

// HandlePostAssessment handles POST /assessments requests.
func (h *AssessmentsHandler) HandlePostAssessment(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_assessment"

	var req assessmentRequest
	if err := h.binder.bind(w, r, &req); err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	a, err := req.toAssessment()
	if err != nil {
		fail(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}

	dup, err := h.deps.Submit(r.Context(), a)
	if err != nil {
		fail(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, ackResponse{ID: a.ID, Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{ID: a.ID, Status: "accepted"})
}
