package seed

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/skillpulse/pkg/logger"
)

// outcome of one submission.
type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeDuplicate
	outcomeRejected
	outcomeFailed
)

// submitter posts assessments with bounded concurrency and pacing.
type submitter struct {
	client  *HTTPClient
	limiter *rate.Limiter
	workers int
	verbose bool
	log     logger.Logger

	submitted, accepted, duplicate, rejected, failed atomic.Int64
}

func newSubmitter(cfg *Config, client *HTTPClient, log logger.Logger) *submitter {
	s := &submitter{client: client, workers: cfg.Workers, verbose: cfg.Verbose, log: log}
	if cfg.RPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Workers)
	}
	return s
}

// submit posts one batch and returns once every request finished or ctx is
// done. Individual failures are counted, not returned.
func (s *submitter) submit(ctx context.Context, batch []Assessment) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	lastReport := time.Now()
	for _, a := range batch {
		if s.limiter != nil {
			if err := s.limiter.Wait(gctx); err != nil {
				break
			}
		}
		g.Go(func() error {
			s.record(s.post(gctx, a))
			return nil
		})
		if s.verbose && time.Since(lastReport) >= time.Second {
			lastReport = time.Now()
			s.log.Info(ctx, "submission progress",
				logger.Int("submitted", int(s.submitted.Load())),
				logger.Int("accepted", int(s.accepted.Load())),
				logger.Int("failed", int(s.failed.Load())),
			)
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *submitter) post(ctx context.Context, a Assessment) outcome {
	var ack AckResponse
	code, err := s.client.Post(ctx, "/assessments", a, &ack)
	switch {
	case err != nil:
		if s.verbose {
			s.log.Warn(ctx, "submission failed", logger.String("id", a.ID), logger.Error(err))
		}
		return outcomeFailed
	case code == http.StatusAccepted:
		return outcomeAccepted
	case code == http.StatusOK && ack.Duplicate:
		return outcomeDuplicate
	case code == http.StatusBadRequest:
		return outcomeRejected
	}
	return outcomeFailed
}

func (s *submitter) record(o outcome) {
	s.submitted.Add(1)
	switch o {
	case outcomeAccepted:
		s.accepted.Add(1)
	case outcomeDuplicate:
		s.duplicate.Add(1)
	case outcomeRejected:
		s.rejected.Add(1)
	default:
		s.failed.Add(1)
	}
}

func (s *submitter) fill(stats *Stats) {
	stats.Submitted = int(s.submitted.Load())
	stats.Accepted = int(s.accepted.Load())
	stats.Duplicate = int(s.duplicate.Load())
	stats.Rejected = int(s.rejected.Load())
	stats.Failed = int(s.failed.Load())
}
