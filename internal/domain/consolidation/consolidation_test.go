package consolidation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delta = 1e-3

func TestConsolidate_ReferenceCases(t *testing.T) {
	tests := []struct {
		name     string
		obs      float64
		self     float64
		peers    []float64
		target   int
		expected float64
	}{
		{
			name:     "unanimous high with full peer reliability",
			obs:      3,
			self:     3,
			peers:    []float64{3, 3, 3, 3, 3},
			target:   5,
			expected: 3.0,
		},
		{
			name:     "no peers renormalizes observation and self",
			obs:      3,
			self:     1,
			peers:    nil,
			target:   5,
			expected: 2.3333,
		},
		{
			name:     "three peers use the median despite an outlier",
			obs:      2,
			self:     2,
			peers:    []float64{1, 1, 3},
			target:   5,
			expected: 1.8333,
		},
		{
			name:     "four peers use the mean",
			obs:      2,
			self:     2,
			peers:    []float64{1, 1, 1, 3},
			target:   5,
			expected: 1.8947,
		},
		{
			name:     "peer count above target is capped at full weight",
			obs:      1,
			self:     1,
			peers:    []float64{3, 3, 3, 3, 3, 3, 3},
			target:   5,
			expected: 1.5,
		},
		{
			name:     "non-positive target gives full reliability",
			obs:      2,
			self:     2,
			peers:    []float64{3},
			target:   0,
			expected: 2.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Consolidate(tt.obs, tt.self, tt.peers, tt.target)
			assert.InDelta(t, tt.expected, got, delta)
		})
	}
}

func TestPolicyCompute_WeightsSumToOne(t *testing.T) {
	p := DefaultPolicy()
	for n := 0; n <= 12; n++ {
		peers := make([]float64, n)
		for i := range peers {
			peers[i] = float64(i%3 + 1)
		}
		for _, obs := range []float64{1, 2, 3} {
			for _, self := range []float64{1, 2, 3} {
				b := p.Compute(obs, self, peers)
				assert.InDelta(t, 1.0, b.Weights.Sum(), 1e-12, "n=%d", n)
				assert.GreaterOrEqual(t, b.Value, MinScore-1e-12)
				assert.LessOrEqual(t, b.Value, MaxScore+1e-12)
			}
		}
	}
}

func TestPolicyCompute_ZeroPeersNullifiesSentinel(t *testing.T) {
	b := DefaultPolicy().Compute(3, 1, nil)

	assert.Equal(t, 0.0, b.PeerScore)
	assert.Equal(t, 0.0, b.Weights.Peer)
	assert.Equal(t, 0.0, b.Reliability)
	assert.InDelta(t, 2.0/3.0, b.Weights.Observation, 1e-12)
	assert.InDelta(t, 1.0/3.0, b.Weights.Self, 1e-12)
}

func TestPolicyCompute_ReliabilityScalesPeerWeight(t *testing.T) {
	b := DefaultPolicy().Compute(2, 2, []float64{1, 1, 3})

	assert.Equal(t, 3, b.PeerCount)
	assert.InDelta(t, 0.6, b.Reliability, 1e-12)
	// adjusted peer weight 0.15 over a total of 0.90
	assert.InDelta(t, 0.15/0.90, b.Weights.Peer, 1e-12)
	assert.InDelta(t, 1.0, b.PeerScore, 1e-12)
}

func TestConsolidate_Idempotent(t *testing.T) {
	peers := []float64{2, 3, 1, 3}
	first := Consolidate(2, 3, peers, 5)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Consolidate(2, 3, peers, 5))
	}
	assert.Equal(t, []float64{2, 3, 1, 3}, peers, "input must not be reordered")
}

func TestAggregatePeers_MedianMeanBoundary(t *testing.T) {
	// Median and mean differ for both sets, so the chosen method is visible.
	three := []float64{1, 1, 3} // median 1, mean 1.667
	four := []float64{1, 1, 1, 3} // median 1, mean 1.5

	assert.InDelta(t, 1.0, AggregatePeers(three, DefaultMeanFromPeerCount), 1e-12)
	assert.InDelta(t, 1.5, AggregatePeers(four, DefaultMeanFromPeerCount), 1e-12)

	// Moving the switch point changes the policy consistently.
	assert.InDelta(t, 1.0, AggregatePeers(four, 5), 1e-12)
	assert.InDelta(t, 5.0/3.0, AggregatePeers(three, 3), 1e-12)
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name     string
		scores   []float64
		expected float64
	}{
		{name: "empty returns zero", scores: nil, expected: 0},
		{name: "single value", scores: []float64{2}, expected: 2},
		{name: "two values average", scores: []float64{1, 2}, expected: 1.5},
		{name: "odd count unsorted", scores: []float64{3, 1, 2}, expected: 2},
		{name: "even count unsorted", scores: []float64{3, 1, 1, 3}, expected: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Median(tt.scores), 1e-12)
		})
	}
}

func TestReliability(t *testing.T) {
	assert.Equal(t, 0.0, Reliability(0, 5))
	assert.InDelta(t, 0.2, Reliability(1, 5), 1e-12)
	assert.Equal(t, 1.0, Reliability(5, 5))
	assert.Equal(t, 1.0, Reliability(9, 5))
	assert.Equal(t, 1.0, Reliability(2, 0))
	assert.Equal(t, 1.0, Reliability(2, -3))
}

func TestConsolidator(t *testing.T) {
	t.Run("defaults match the bare function", func(t *testing.T) {
		c, err := New()
		require.NoError(t, err)

		b, err := c.Consolidate(Input{Observation: 2, Self: 2, Peers: []float64{1, 1, 3}})
		require.NoError(t, err)
		assert.Equal(t, Consolidate(2, 2, []float64{1, 1, 3}, DefaultTargetPeerCount), b.Value)
	})

	t.Run("options adjust the policy", func(t *testing.T) {
		c, err := New(WithTargetPeerCount(3), WithMeanFromPeerCount(3))
		require.NoError(t, err)
		assert.Equal(t, 3, c.Policy().TargetPeerCount)

		b, err := c.Consolidate(Input{Observation: 2, Self: 2, Peers: []float64{1, 1, 3}})
		require.NoError(t, err)
		assert.Equal(t, 1.0, b.Reliability)
		assert.InDelta(t, 5.0/3.0, b.PeerScore, 1e-12)
	})

	t.Run("invalid policy is rejected", func(t *testing.T) {
		p := DefaultPolicy()
		p.SelfWeight = 0
		_, err := New(WithPolicy(p))
		assert.ErrorIs(t, err, ErrInvalidPolicy)

		p = DefaultPolicy()
		p.TargetPeerCount = 0
		_, err = New(WithPolicy(p))
		assert.ErrorIs(t, err, ErrInvalidPolicy)
	})

	t.Run("non-finite and out-of-range scores are rejected", func(t *testing.T) {
		c, err := New()
		require.NoError(t, err)

		inputs := []Input{
			{Observation: math.NaN(), Self: 2},
			{Observation: 2, Self: math.Inf(1)},
			{Observation: 0.5, Self: 2},
			{Observation: 2, Self: 2, Peers: []float64{2, 4}},
		}
		for _, in := range inputs {
			_, err := c.Consolidate(in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		}
	})
}
