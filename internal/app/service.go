// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/okian/skillpulse/internal/adapters/mq/queue"
	"github.com/okian/skillpulse/internal/adapters/mq/worker"
	"github.com/okian/skillpulse/internal/adapters/repository"
	"github.com/okian/skillpulse/internal/domain/catalog"
	"github.com/okian/skillpulse/internal/domain/consolidation"
	"github.com/okian/skillpulse/internal/domain/dedupe"
	"github.com/okian/skillpulse/internal/domain/level"
	"github.com/okian/skillpulse/internal/domain/model"
	"github.com/okian/skillpulse/internal/domain/selection"
	"github.com/okian/skillpulse/internal/domain/trend"
	"github.com/okian/skillpulse/pkg/logger"
	"github.com/okian/skillpulse/pkg/metrics"
)

const tracerName = "github.com/okian/skillpulse/internal/app"

// Default service configuration constants.
const (
	defaultQueueSize         = 10_000
	defaultDedupeSize        = 50_000
	defaultStatusConcurrency = 8
	defaultShutdownTimeout   = 30 * time.Second
)

// Service implements the API dependencies for skill consolidation.
type Service struct {
	mu sync.RWMutex

	// Core components
	store        repository.Store
	catalog      *catalog.Catalog
	deduper      dedupe.Deduper
	queue        *queue.InMemoryQueue
	pool         *worker.Pool
	consolidator *consolidation.Consolidator
	trends       *trend.Calculator
	levels       level.Mapper
	tracer       trace.Tracer

	// Configuration
	workerCount       int
	queueSize         int
	dedupeSize        int
	storeDriver       string
	storePath         string
	maxHistory        int
	policy            consolidation.Policy
	trendMethod       model.Method
	historyCount      int
	statusConcurrency int
	shutdownTimeout   time.Duration

	// State
	started bool

	logger logger.Logger
}

// New constructs a Service. It fails only when the consolidation policy is
// invalid.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		workerCount:       runtime.NumCPU() * 2,
		queueSize:         defaultQueueSize,
		dedupeSize:        defaultDedupeSize,
		storeDriver:       repository.DriverMemory,
		maxHistory:        repository.DefaultMaxHistory,
		policy:            consolidation.DefaultPolicy(),
		trendMethod:       trend.DefaultMethod,
		historyCount:      trend.DefaultHistoryCount,
		statusConcurrency: defaultStatusConcurrency,
		shutdownTimeout:   defaultShutdownTimeout,
		levels:            level.Default(),
		tracer:            otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(s)
	}

	c, err := consolidation.New(consolidation.WithPolicy(s.policy))
	if err != nil {
		return nil, err
	}
	s.consolidator = c
	s.trends = trend.New(trend.WithMethod(s.trendMethod), trend.WithHistoryCount(s.historyCount))
	if s.catalog == nil {
		s.catalog, _ = catalog.New()
	}
	return s, nil
}

// Start opens the store if none was injected and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting skillpulse service...")

	if s.store == nil {
		store, err := repository.Open(s.storeDriver, s.storePath, repository.WithMaxHistory(s.maxHistory))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "skillpulse service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("store", s.storeDriver),
		logger.String("trendMethod", s.trends.Method().String()),
		logger.Int("targetPeerCount", s.policy.TargetPeerCount),
		logger.Int("skills", s.catalog.Len()),
	)
	return nil
}

// Stop drains the recompute queue and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping skillpulse service...")

	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "skillpulse service stopped")
	return errors.Join(errs...)
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Submit validates and stores one assessment, then schedules a recompute of
// its student skill. It reports duplicate=true for an id already accepted.
// An empty id is replaced with a fresh UUID.
func (s *Service) Submit(ctx context.Context, a model.Assessment) (duplicate bool, err error) {
	if err := s.running(); err != nil {
		return false, err
	}
	if err := a.Validate(); err != nil {
		metrics.RecordRejected("validation")
		return false, err
	}
	if _, err := s.catalog.Lookup(a.SkillID); err != nil {
		metrics.RecordRejected("unknown_skill")
		return false, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	if s.deduper.SeenAndRecord(ctx, a.ID) {
		metrics.RecordDuplicate()
		s.logger.Debug(ctx, "duplicate assessment", logger.String("id", a.ID))
		return true, nil
	}

	// Refuse early so a rejected record is not stored.
	if s.queue.Len(ctx) >= s.queue.Cap() {
		s.deduper.Unrecord(ctx, a.ID)
		metrics.RecordRejected("backpressure")
		return false, ErrBackpressure
	}

	if err := s.store.Append(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			metrics.RecordDuplicate()
			return true, nil
		}
		s.deduper.Unrecord(ctx, a.ID)
		return false, fmt.Errorf("store assessment: %w", err)
	}
	metrics.RecordSubmission(a.Source.String())

	job := queue.Job{StudentID: a.StudentID, SkillID: a.SkillID}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		// The record is stored; the next read recomputes it.
		s.logger.Warn(ctx, "recompute not scheduled",
			logger.String("id", a.ID),
			logger.String("student_id", a.StudentID),
			logger.String("skill_id", a.SkillID),
			logger.Error(err),
		)
	}
	return false, nil
}

// evaluation is the status of one student skill together with the result
// series it was derived from, oldest first.
type evaluation struct {
	status  model.SkillStatus
	results []model.ConsolidatedResult
}

// evaluate derives the status of one student skill from its records alone.
// The current result comes from the store's latest-record queries. The
// trend series replays the records as they stood at every earlier timestamp.
func (s *Service) evaluate(ctx context.Context, studentID, skillID string) (ev evaluation, err error) {
	ctx, span := s.tracer.Start(ctx, "service.evaluate", trace.WithAttributes(
		attribute.String("student_id", studentID),
		attribute.String("skill_id", skillID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	records, err := s.store.Records(ctx, studentID, skillID)
	if err != nil {
		return evaluation{}, fmt.Errorf("load records: %w", err)
	}
	if len(records) == 0 {
		return evaluation{}, ErrNotFound
	}

	ev.status = model.SkillStatus{
		StudentID:       studentID,
		SkillID:         skillID,
		SkillName:       s.catalog.Name(skillID),
		AssessmentCount: len(records),
		LastAssessedAt:  records[len(records)-1].At,
	}

	sel, err := s.current(ctx, studentID, skillID)
	if errors.Is(err, selection.ErrNoAnchor) {
		ev.status.Level = model.LevelNotApplicable
		ev.status.Trend = model.TrendStable
		span.SetAttributes(attribute.String("level", ev.status.Level.String()))
		return ev, nil
	}
	if err != nil {
		return evaluation{}, err
	}
	sel.Count = len(records)
	sel.LastAt = ev.status.LastAssessedAt

	for _, past := range selection.Replay(records, s.policy.TargetPeerCount) {
		if !past.LastAt.Before(sel.LastAt) {
			continue
		}
		r, err := s.consolidate(studentID, skillID, past)
		if err != nil {
			return evaluation{}, err
		}
		ev.results = append(ev.results, r)
	}
	latest, err := s.consolidate(studentID, skillID, sel)
	if err != nil {
		return evaluation{}, err
	}
	ev.results = selection.Chronological(append(ev.results, latest))

	points := make([]model.Point, len(ev.results))
	for i, r := range ev.results {
		points[i] = r.Point()
	}
	tr := s.trends.Trend(points)

	ev.status.Score = latest.ConsolidatedValue
	ev.status.Level = latest.Level
	ev.status.Trend = tr

	metrics.RecordConsolidation(latest.ConsolidatedValue, latest.Level.String(), float64(time.Since(start).Microseconds())/1000)
	metrics.RecordTrend(s.trends.Method().String(), tr.String())
	span.SetAttributes(
		attribute.Float64("consolidated_value", latest.ConsolidatedValue),
		attribute.String("level", latest.Level.String()),
		attribute.String("trend", tr.String()),
		attribute.Int("peer_count", latest.PeerEvaluationCount),
		attribute.Int("series_length", len(ev.results)),
	)
	return ev, nil
}

// current selects the newest observation, the newest self-assessment and
// the most recent peers through the store.
func (s *Service) current(ctx context.Context, studentID, skillID string) (selection.Selection, error) {
	latest := func(src model.Source) (*model.Assessment, error) {
		a, err := s.store.Latest(ctx, studentID, skillID, src)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load latest %s: %w", src, err)
		}
		return &a, nil
	}

	obs, err := latest(model.SourceObservation)
	if err != nil {
		return selection.Selection{}, err
	}
	self, err := latest(model.SourceSelfAssessment)
	if err != nil {
		return selection.Selection{}, err
	}
	peers, err := s.store.RecentPeers(ctx, studentID, skillID, s.policy.TargetPeerCount)
	if err != nil {
		return selection.Selection{}, fmt.Errorf("load peers: %w", err)
	}
	return selection.From(obs, self, peers)
}

func (s *Service) consolidate(studentID, skillID string, sel selection.Selection) (model.ConsolidatedResult, error) {
	bd, err := s.consolidator.Consolidate(sel.Input)
	if err != nil {
		metrics.RecordConsolidationError()
		return model.ConsolidatedResult{}, fmt.Errorf("consolidate: %w", err)
	}
	return s.result(studentID, skillID, sel, bd), nil
}

// Recompute derives the status of one student skill and writes its result
// series to the store's history. It is what the workers run after every
// accepted assessment. A skill with records but neither an observation nor
// a self-assessment is NOT_APPLICABLE and writes nothing.
func (s *Service) Recompute(ctx context.Context, studentID, skillID string) (model.SkillStatus, error) {
	ev, err := s.evaluate(ctx, studentID, skillID)
	if err != nil {
		return model.SkillStatus{}, err
	}

	results := ev.results
	if s.maxHistory > 0 && len(results) > s.maxHistory {
		results = results[len(results)-s.maxHistory:]
	}
	for _, r := range results {
		if err := s.store.SaveResult(ctx, r); err != nil {
			metrics.RecordConsolidationError()
			return model.SkillStatus{}, fmt.Errorf("save result: %w", err)
		}
	}
	return ev.status, nil
}

func (s *Service) result(studentID, skillID string, sel selection.Selection, bd consolidation.Breakdown) model.ConsolidatedResult {
	r := model.ConsolidatedResult{
		StudentID:           studentID,
		SkillID:             skillID,
		At:                  sel.LastAt,
		PeerEvaluationCount: bd.PeerCount,
		Weights:             bd.Weights,
		ConsolidatedValue:   bd.Value,
		Level:               s.levels.ToLevel(bd.Value),
	}
	if sel.Observation != nil {
		r.ObservationValue = model.Float(sel.Observation.Score())
	}
	if sel.Self != nil {
		r.SelfAssessmentValue = model.Float(sel.Self.Score())
	}
	if bd.PeerCount > 0 {
		r.PeerConsolidatedValue = model.Float(bd.PeerScore)
	}
	return r
}

// Status returns the current status of one student skill, derived from the
// stored records. It writes nothing.
func (s *Service) Status(ctx context.Context, studentID, skillID string) (model.SkillStatus, error) {
	if err := s.running(); err != nil {
		return model.SkillStatus{}, err
	}
	ev, err := s.evaluate(ctx, studentID, skillID)
	if err != nil {
		return model.SkillStatus{}, err
	}
	return ev.status, nil
}

// Statuses returns the status of every skill a student has records for,
// sorted by skill id.
func (s *Service) Statuses(ctx context.Context, studentID string) ([]model.SkillStatus, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	skills, err := s.store.Skills(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	if len(skills) == 0 {
		return nil, ErrNotFound
	}

	out := make([]model.SkillStatus, len(skills))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.statusConcurrency)
	for i, skillID := range skills {
		g.Go(func() error {
			ev, err := s.evaluate(gctx, studentID, skillID)
			if err != nil {
				return fmt.Errorf("%s: %w", skillID, err)
			}
			out[i] = ev.status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillID < out[j].SkillID })
	return out, nil
}

// History returns up to limit of the newest consolidated results of one
// student skill, oldest first. limit <= 0 returns all of them.
func (s *Service) History(ctx context.Context, studentID, skillID string, limit int) ([]model.ConsolidatedResult, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	hist, err := s.store.History(ctx, studentID, skillID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(hist) == 0 {
		recs, err := s.store.Records(ctx, studentID, skillID)
		if err != nil {
			return nil, fmt.Errorf("load records: %w", err)
		}
		if len(recs) == 0 {
			return nil, ErrNotFound
		}
	}
	return hist, nil
}

// Skills lists the catalog skills, restricted to one course when course is
// not empty.
func (s *Service) Skills(course string) []catalog.Skill {
	if course == "" {
		return s.catalog.Skills()
	}
	return s.catalog.Course(course)
}

// Calculation is the outcome of a stateless consolidation.
type Calculation struct {
	consolidation.Breakdown
	Level model.Level
}

// Consolidate blends in without touching the store. A positive
// targetPeerCount overrides the configured reliability target.
func (s *Service) Consolidate(in consolidation.Input, targetPeerCount int) (Calculation, error) {
	c := s.consolidator
	if targetPeerCount > 0 && targetPeerCount != s.policy.TargetPeerCount {
		var err error
		c, err = consolidation.New(
			consolidation.WithPolicy(s.policy),
			consolidation.WithTargetPeerCount(targetPeerCount),
		)
		if err != nil {
			return Calculation{}, err
		}
	}
	bd, err := c.Consolidate(in)
	if err != nil {
		return Calculation{}, err
	}
	return Calculation{Breakdown: bd, Level: s.levels.ToLevel(bd.Value)}, nil
}

// Trend classifies series without touching the store. An empty method and
// a non-positive historyCount use the configured ones.
func (s *Service) Trend(series []model.Point, method model.Method, historyCount int) model.Trend {
	if method == "" {
		method = s.trends.Method()
	}
	if historyCount < 1 {
		historyCount = s.trends.HistoryCount()
	}
	tr := s.trends.Calculate(series, method, historyCount)
	metrics.RecordTrend(method.String(), tr.String())
	return tr
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"dedupeSize":      s.dedupeSize,
		"storeDriver":     s.storeDriver,
		"trendMethod":     s.trends.Method().String(),
		"historyCount":    s.trends.HistoryCount(),
		"maxHistory":      s.maxHistory,
		"targetPeerCount": s.policy.TargetPeerCount,
		"catalogSkills":   s.catalog.Len(),
	}

	low, medium := s.levels.Bounds()
	stats["levelBounds"] = []float64{low, medium}

	if s.started {
		queueLen := s.queue.Len(ctx)
		students := s.store.Students(ctx)

		stats["queueLength"] = queueLen
		stats["students"] = students
		stats["seenAssessments"] = s.deduper.Size()
		stats["recomputed"] = s.pool.Processed()
		stats["activeWorkers"] = s.pool.Active()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
		metrics.UpdateTracked(students, s.catalog.Len())
	}

	return stats
}

// Pending returns the number of queued recompute jobs.
func (s *Service) Pending(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return 0
	}
	return s.queue.Len(ctx)
}
