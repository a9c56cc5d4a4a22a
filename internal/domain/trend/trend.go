// Package trend classifies a history of consolidated results as improving,
// stable or declining.
//
// The calculator works on already-consolidated points, never on raw
// per-source assessments. Series must be supplied in non-decreasing
// timestamp order: "most recent" always means "last in the slice" and the
// calculator does not re-sort. Use IsChronological to check a series.
//
// Every degenerate input (empty series, fewer than two usable points, a
// constant series, an unknown method) yields STABLE. Nothing here returns
// an error or panics.
package trend

import (
	"math"

	"github.com/okian/skillpulse/internal/domain/model"
)

// Default trend configuration constants.
const (
	DefaultHistoryCount = 3
	DefaultEpsilon      = 1e-9
	DefaultMethod       = model.MethodLinearRegression
)

var defaultCalculator = New()

// Calculate classifies series with method. historyCount is the window size
// of MOVING_AVERAGE; values below 1 fall back to DefaultHistoryCount.
func Calculate(series []model.Point, method model.Method, historyCount int) model.Trend {
	return defaultCalculator.Calculate(series, method, historyCount)
}

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithEpsilon sets the tolerance under which a difference or slope counts
// as flat.
func WithEpsilon(eps float64) Option {
	return func(c *Calculator) {
		if eps >= 0 && !math.IsNaN(eps) {
			c.epsilon = eps
		}
	}
}

// WithMethod sets the method used by Trend.
func WithMethod(m model.Method) Option {
	return func(c *Calculator) {
		if _, err := model.ParseMethod(string(m)); err == nil {
			c.method = m
		}
	}
}

// WithHistoryCount sets the moving-average window used by Trend.
func WithHistoryCount(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.historyCount = n
		}
	}
}

// Calculator carries a default method and window. It is immutable and safe
// for concurrent use.
type Calculator struct {
	epsilon      float64
	method       model.Method
	historyCount int
}

// New creates a calculator with configuration options.
func New(opts ...Option) *Calculator {
	c := &Calculator{
		epsilon:      DefaultEpsilon,
		method:       DefaultMethod,
		historyCount: DefaultHistoryCount,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Method returns the configured method.
func (c *Calculator) Method() model.Method { return c.method }

// HistoryCount returns the configured moving-average window.
func (c *Calculator) HistoryCount() int { return c.historyCount }

// Trend classifies series with the configured method and window.
func (c *Calculator) Trend(series []model.Point) model.Trend {
	return c.Calculate(series, c.method, c.historyCount)
}

// Calculate classifies series with an explicit method and window.
func (c *Calculator) Calculate(series []model.Point, method model.Method, historyCount int) model.Trend {
	scores := usableScores(series)
	if len(scores) < 2 || c.flat(scores) {
		return model.TrendStable
	}
	if historyCount < 1 {
		historyCount = DefaultHistoryCount
	}

	switch method {
	case model.MethodSimpleDifference:
		return c.classify(scores[len(scores)-1] - scores[len(scores)-2])
	case model.MethodMovingAverage:
		return c.classify(movingAverageDelta(scores, historyCount))
	case model.MethodLinearRegression:
		return c.classify(Slope(scores))
	default:
		return model.TrendStable
	}
}

func (c *Calculator) classify(delta float64) model.Trend {
	switch {
	case math.IsNaN(delta):
		return model.TrendStable
	case delta > c.epsilon:
		return model.TrendImproving
	case delta < -c.epsilon:
		return model.TrendDeclining
	default:
		return model.TrendStable
	}
}

// flat reports a zero-variance series. Regression on it would be
// numerically meaningless, so every method short-circuits to STABLE.
func (c *Calculator) flat(scores []float64) bool {
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	return hi-lo <= c.epsilon
}

// usableScores drops NOT_APPLICABLE and non-finite points, keeping order.
func usableScores(series []model.Point) []float64 {
	out := make([]float64, 0, len(series))
	for _, p := range series {
		if p.Usable() {
			out = append(out, p.Score)
		}
	}
	return out
}

// movingAverageDelta compares the mean of the last k scores with the mean
// of the k before them. With fewer than 2k scores it compares the mean of
// the last min(k, n-1) scores against the earliest score.
func movingAverageDelta(scores []float64, k int) float64 {
	n := len(scores)
	if n >= 2*k {
		return mean(scores[n-k:]) - mean(scores[n-2*k:n-k])
	}
	recent := k
	if recent > n-1 {
		recent = n - 1
	}
	return mean(scores[n-recent:]) - scores[0]
}

// Slope returns the least-squares slope of scores against their index.
// Fewer than two scores give 0.
func Slope(scores []float64) float64 {
	n := float64(len(scores))
	if n < 2 {
		return 0
	}
	xMean := (n - 1) / 2
	yMean := mean(scores)
	var num, den float64
	for i, y := range scores {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	return num / den
}

// IsChronological reports whether series is in non-decreasing time order.
func IsChronological(series []model.Point) bool {
	for i := 1; i < len(series); i++ {
		if series[i].At.Before(series[i-1].At) {
			return false
		}
	}
	return true
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
