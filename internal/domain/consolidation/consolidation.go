// Package consolidation blends teacher observation, self-assessment and peer
// assessment scores into a single comparable value on the 1.0-3.0 scale.
//
// The math is pure and synchronous: no hidden state, no I/O, safe for
// concurrent use. Choosing which records feed it (the most recent
// observation, the most recent self-assessment, the N most recent peer
// ratings) is the caller's job; see package selection.
package consolidation

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/okian/skillpulse/internal/domain/model"
)

// Default consolidation configuration constants.
const (
	BaseObservationWeight    = 0.50
	BaseSelfWeight           = 0.25
	BasePeerWeight           = 0.25
	DefaultTargetPeerCount   = 5
	DefaultMeanFromPeerCount = 4

	MinScore = 1.0
	MaxScore = 3.0
)

var validate = validator.New()

// Policy holds the tunable parameters of the blend.
type Policy struct {
	// ObservationWeight and SelfWeight must stay positive so the
	// renormalization total can never be zero.
	ObservationWeight float64 `yaml:"observation_weight" json:"observation_weight" validate:"gt=0"`
	SelfWeight        float64 `yaml:"self_weight" json:"self_weight" validate:"gt=0"`
	PeerWeight        float64 `yaml:"peer_weight" json:"peer_weight" validate:"gte=0"`

	// TargetPeerCount is the number of peer ratings at which peer input
	// reaches its full base weight.
	TargetPeerCount int `yaml:"target_peer_count" json:"target_peer_count" validate:"min=1"`

	// MeanFromPeerCount is the peer count from which ratings are averaged
	// instead of taking the median. Counts below it use the median.
	MeanFromPeerCount int `yaml:"mean_from_peer_count" json:"mean_from_peer_count" validate:"min=2"`
}

// DefaultPolicy returns the reference weights 0.50/0.25/0.25, a target of
// five peers, and the mean from four peers on.
func DefaultPolicy() Policy {
	return Policy{
		ObservationWeight: BaseObservationWeight,
		SelfWeight:        BaseSelfWeight,
		PeerWeight:        BasePeerWeight,
		TargetPeerCount:   DefaultTargetPeerCount,
		MeanFromPeerCount: DefaultMeanFromPeerCount,
	}
}

// Validate checks the policy's struct constraints.
func (p Policy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	return nil
}

// Breakdown is the full outcome of one consolidation.
type Breakdown struct {
	// PeerScore is the aggregated peer value; 0 when there are no peers.
	PeerScore   float64
	PeerCount   int
	Reliability float64
	Weights     model.Weights
	Value       float64
}

// Consolidate blends the three sources with the default policy, using
// targetPeerCount as the reliability target. It does no input validation:
// out-of-range scores propagate arithmetically. A targetPeerCount below 1
// gives any non-empty peer set full reliability.
func Consolidate(observation, self float64, peers []float64, targetPeerCount int) float64 {
	p := DefaultPolicy()
	p.TargetPeerCount = targetPeerCount
	return p.Compute(observation, self, peers).Value
}

// Compute runs the blend under p without validating inputs.
func (p Policy) Compute(observation, self float64, peers []float64) Breakdown {
	n := len(peers)
	peerScore := AggregatePeers(peers, p.MeanFromPeerCount)
	reliability := Reliability(n, p.TargetPeerCount)

	peerWeight := p.PeerWeight * reliability
	total := p.ObservationWeight + p.SelfWeight + peerWeight
	w := model.Weights{
		Observation: p.ObservationWeight / total,
		Self:        p.SelfWeight / total,
		Peer:        peerWeight / total,
	}

	return Breakdown{
		PeerScore:   peerScore,
		PeerCount:   n,
		Reliability: reliability,
		Weights:     w,
		Value:       observation*w.Observation + self*w.Self + peerScore*w.Peer,
	}
}

// Reliability returns min(1, n/target). Zero peers give exactly 0.
func Reliability(n, target int) float64 {
	if n <= 0 {
		return 0
	}
	if target < 1 {
		return 1
	}
	return math.Min(1, float64(n)/float64(target))
}

// AggregatePeers reduces peer ratings to one value: 0 for none, the median
// below meanFrom ratings, the arithmetic mean from meanFrom on. The input
// slice is not modified.
func AggregatePeers(peers []float64, meanFrom int) float64 {
	switch {
	case len(peers) == 0:
		return 0
	case len(peers) < meanFrom:
		return Median(peers)
	default:
		return Mean(peers)
	}
}

// Median returns the middle value of scores, or the average of the two
// middle values for an even count. Empty input returns 0.
func Median(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Mean returns the arithmetic mean of scores. Empty input returns 0.
func Mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}
