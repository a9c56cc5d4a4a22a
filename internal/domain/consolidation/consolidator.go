package consolidation

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for this package.
var (
	ErrInvalidInput  = errors.New("invalid consolidation input")
	ErrInvalidPolicy = errors.New("invalid consolidation policy")
)

// Option applies a configuration option to the Consolidator.
type Option func(*Consolidator)

// WithPolicy replaces the whole policy.
func WithPolicy(p Policy) Option {
	return func(c *Consolidator) {
		c.policy = p
	}
}

// WithTargetPeerCount sets the peer count at which peer input reaches full weight.
func WithTargetPeerCount(n int) Option {
	return func(c *Consolidator) {
		if n > 0 {
			c.policy.TargetPeerCount = n
		}
	}
}

// WithMeanFromPeerCount sets the peer count from which ratings are averaged.
func WithMeanFromPeerCount(n int) Option {
	return func(c *Consolidator) {
		if n > 0 {
			c.policy.MeanFromPeerCount = n
		}
	}
}

// Input is the already-selected data for one consolidation.
type Input struct {
	Observation float64
	Self        float64
	Peers       []float64
}

// Consolidator is the checked front end to Policy.Compute. It is immutable
// after construction and safe for concurrent use.
type Consolidator struct {
	policy Policy
}

// New creates a Consolidator with the default policy adjusted by opts.
func New(opts ...Option) (*Consolidator, error) {
	c := &Consolidator{policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.policy.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Policy returns the active policy.
func (c *Consolidator) Policy() Policy { return c.policy }

// Consolidate validates in and blends it. Scores must be finite and within
// [MinScore, MaxScore]; nothing is clamped.
func (c *Consolidator) Consolidate(in Input) (Breakdown, error) {
	if err := checkScore("observation", in.Observation); err != nil {
		return Breakdown{}, err
	}
	if err := checkScore("self", in.Self); err != nil {
		return Breakdown{}, err
	}
	for i, p := range in.Peers {
		if err := checkScore(fmt.Sprintf("peer[%d]", i), p); err != nil {
			return Breakdown{}, err
		}
	}
	return c.policy.Compute(in.Observation, in.Self, in.Peers), nil
}

func checkScore(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s is not finite", ErrInvalidInput, name)
	}
	if v < MinScore || v > MaxScore {
		return fmt.Errorf("%w: %s=%g outside [%g, %g]", ErrInvalidInput, name, v, MinScore, MaxScore)
	}
	return nil
}
