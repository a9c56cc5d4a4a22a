package seed

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/okian/skillpulse/internal/domain/types"
	"github.com/okian/skillpulse/pkg/logger"
)

// fetchStatuses reads every student's skill statuses concurrently. A
// student without data is skipped.
func fetchStatuses(ctx context.Context, client *HTTPClient, students []string, workers int) ([]types.Status, error) {
	var (
		mu  sync.Mutex
		out []types.Status
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, st := range students {
		g.Go(func() error {
			var statuses []types.Status
			code, err := client.Get(gctx, studentPath(st), &statuses)
			if err != nil {
				return fmt.Errorf("statuses of %s: %w", st, err)
			}
			switch code {
			case http.StatusOK:
			case http.StatusNotFound:
				return nil
			default:
				return fmt.Errorf("statuses of %s: unexpected status %d", st, code)
			}
			mu.Lock()
			out = append(out, statuses...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// summarize counts statuses per trend and level and measures how often a
// clear drift was reported in its direction.
func summarize(plan Plan, statuses []types.Status, stats *Stats) {
	stats.StatusesRetrieved = len(statuses)
	stats.ByTrend = map[string]int{}
	stats.ByLevel = map[string]int{}

	type key struct{ student, skill string }
	reported := make(map[key]string, len(statuses))
	for _, s := range statuses {
		stats.ByTrend[s.Trend]++
		stats.ByLevel[s.Level]++
		reported[key{s.StudentID, s.SkillID}] = s.Trend
	}

	var clear, agree int
	for _, t := range plan.Tracks {
		dir := t.Direction()
		if dir == "" {
			continue
		}
		clear++
		if reported[key{t.StudentID, t.SkillID}] == dir {
			agree++
		}
	}
	if clear > 0 {
		stats.Agreement = float64(agree) / float64(clear)
	}
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var acceptRate, perSecond float64
	if stats.Submitted > 0 {
		acceptRate = float64(stats.Accepted) / float64(stats.Submitted) * percentage
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("statuses", stats.StatusesRetrieved),
		logger.Any("byTrend", stats.ByTrend),
		logger.Any("byLevel", stats.ByLevel),
		logger.Float64("trendAgreementPct", stats.Agreement*percentage),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRatePct", acceptRate),
		logger.Float64("submissionsPerSecond", perSecond),
	)
}
