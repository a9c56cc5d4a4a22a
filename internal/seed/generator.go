package seed

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Source names as the API expects them.
const (
	sourceObservation = "OBSERVATION"
	sourceSelf        = "SELF_ASSESSMENT"
	sourcePeer        = "PEER"
)

// Track is the hidden trajectory of one student skill.
type Track struct {
	StudentID string
	SkillID   string
	Start     float64 // ability in the first session, on the 1..3 scale
	Drift     float64 // mean change per session
}

// Direction returns the trend a clear drift should produce, or "" when the
// drift is too small to call.
func (t Track) Direction() string {
	switch {
	case t.Drift >= clearDrift:
		return "IMPROVING"
	case t.Drift <= -clearDrift:
		return "DECLINING"
	}
	return ""
}

// Plan is a generated class: the trajectories and the assessments they
// produce, grouped by session.
type Plan struct {
	Tracks   []Track
	Sessions [][]Assessment
}

// Total returns the number of generated assessments.
func (p Plan) Total() int {
	n := 0
	for _, s := range p.Sessions {
		n += len(s)
	}
	return n
}

// namespace scopes the deterministic assessment ids.
var namespace = uuid.MustParse("6b1f3c4e-8d0a-4c55-9a57-3f1e9b0c2d71")

// Generate builds a class of students whose skills follow noisy random
// walks. Each session yields one observation, one self-assessment and
// PeersPerSession peer ratings per student skill, all stamped with the
// session time. Ids derive from the seed so replaying a run is idempotent.
func Generate(cfg *Config) Plan {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	start := cfg.Start
	if start.IsZero() {
		start = time.Now().UTC().Add(-time.Duration(cfg.Sessions) * sessionGap).Truncate(time.Hour)
	}

	students := make([]string, cfg.Students)
	for i := range students {
		students[i] = fmt.Sprintf("student-%03d", i+1)
	}

	var plan Plan
	ability := make([]float64, 0, cfg.Students*len(cfg.Skills))
	for _, st := range students {
		for _, sk := range cfg.Skills {
			t := Track{
				StudentID: st,
				SkillID:   sk,
				Start:     1 + 2*rng.Float64(),
				Drift:     (2*rng.Float64() - 1) * maxDrift,
			}
			plan.Tracks = append(plan.Tracks, t)
			ability = append(ability, t.Start)
		}
	}

	plan.Sessions = make([][]Assessment, cfg.Sessions)
	for s := 0; s < cfg.Sessions; s++ {
		at := start.Add(time.Duration(s) * sessionGap)
		for i, t := range plan.Tracks {
			if s > 0 {
				ability[i] = clamp(ability[i]+t.Drift+rng.NormFloat64()*walkNoise, 1, 3)
			}
			a := ability[i]
			mk := func(src string, n int, assessor string, v float64) Assessment {
				return Assessment{
					ID:         uuid.NewSHA1(namespace, []byte(fmt.Sprintf("%d/%s/%s/%d/%s/%d", cfg.Seed, t.StudentID, t.SkillID, s, src, n))).String(),
					StudentID:  t.StudentID,
					SkillID:    t.SkillID,
					Source:     src,
					Value:      rating(v + rng.NormFloat64()*ratingNoise),
					At:         at.Format(time.RFC3339),
					AssessorID: assessor,
				}
			}
			plan.Sessions[s] = append(plan.Sessions[s],
				mk(sourceObservation, 0, "", a),
				mk(sourceSelf, 0, "", a+selfBias),
			)
			for p := 0; p < cfg.PeersPerSession; p++ {
				plan.Sessions[s] = append(plan.Sessions[s], mk(sourcePeer, p+1, peerOf(rng, students, t.StudentID), a))
			}
		}
	}
	return plan
}

// peerOf picks a classmate other than self.
func peerOf(rng *rand.Rand, students []string, self string) string {
	for {
		if p := students[rng.IntN(len(students))]; p != self {
			return p
		}
	}
}

// rating rounds a latent ability onto the 1..3 scale.
func rating(v float64) int {
	return int(clamp(math.Round(v), 1, 3))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
