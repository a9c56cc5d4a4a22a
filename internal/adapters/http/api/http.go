// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	service "github.com/okian/skillpulse/internal/app"
	"github.com/okian/skillpulse/internal/domain/catalog"
	"github.com/okian/skillpulse/internal/domain/consolidation"
	"github.com/okian/skillpulse/internal/domain/model"
	"github.com/okian/skillpulse/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	AssessmentDependencies
	StudentDependencies
	CalculatorDependencies
	CatalogDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	assessmentsHandler *AssessmentsHandler
	studentsHandler    *StudentsHandler
	calculatorHandler  *CalculatorHandler
	skillsHandler      *SkillsHandler

	limiter *rate.Limiter

	rateRPS         float64
	rateBurst       int
	maxHistoryLimit int
	maxBodyBytes    int64
	logger          logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		maxHistoryLimit: defaultMaxHistoryLimit,
		maxBodyBytes:    defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	if s.rateRPS > 0 {
		burst := s.rateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(s.rateRPS), burst)
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.assessmentsHandler = NewAssessmentsHandler(deps, s.maxBodyBytes, s.logger)
	s.studentsHandler = NewStudentsHandler(deps, s.maxHistoryLimit, s.logger)
	s.calculatorHandler = NewCalculatorHandler(deps, s.maxBodyBytes, s.logger)
	s.skillsHandler = NewSkillsHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /skills", s.route("skills", s.skillsHandler.HandleListSkills))
	mux.HandleFunc("POST /assessments", s.route("assessments", s.assessmentsHandler.HandlePostAssessment))
	mux.HandleFunc("GET /students/{student}/skills", s.route("student_skills", s.studentsHandler.HandleListSkills))
	mux.HandleFunc("GET /students/{student}/skills/{skill}", s.route("student_skill", s.studentsHandler.HandleGetSkill))
	mux.HandleFunc("GET /students/{student}/skills/{skill}/history", s.route("student_skill_history", s.studentsHandler.HandleGetHistory))
	mux.HandleFunc("POST /consolidate", s.route("consolidate", s.calculatorHandler.HandleConsolidate))
	mux.HandleFunc("POST /trend", s.route("trend", s.calculatorHandler.HandleTrend))

	s.logger.Info(ctx, "http routes registered",
		logger.Bool("rateLimited", s.limiter != nil),
		logger.Int("maxHistoryLimit", s.maxHistoryLimit),
	)
}

func (s *Server) route(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return MetricsMiddleware(RateLimitMiddleware(s.limiter, h), endpoint)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusFor maps an error chain onto a response status and code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, catalog.ErrUnknownSkill):
		return http.StatusBadRequest, "unknown_skill"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalidRecord),
		errors.Is(err, model.ErrValueOutOfRange),
		errors.Is(err, model.ErrUnknownEnum),
		errors.Is(err, consolidation.ErrInvalidInput):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound), errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBackpressure), errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, ErrUnavailable), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// fail writes err with the status its kind maps to. Server-side failures are
// logged since the client only sees the message.
func fail(ctx context.Context, log logger.Logger, w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.Error(err), logger.Int("status", status))
	}
	writeError(w, status, code, err)
}

var validate = validator.New()

// binder decodes and validates JSON request bodies.
type binder struct {
	maxBytes int64
}

func (b binder) bind(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, b.maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrBadRequest)
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
