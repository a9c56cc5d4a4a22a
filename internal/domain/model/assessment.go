package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sentinel errors for model validation.
var (
	ErrUnknownEnum     = errors.New("unknown enum value")
	ErrInvalidRecord   = errors.New("invalid assessment record")
	ErrValueOutOfRange = errors.New("assessment value must be 1, 2 or 3")
)

// Raw assessment values. Inputs are always one of these three integers;
// fractional values only appear as consolidation output.
const (
	ValueLow    = 1
	ValueMedium = 2
	ValueHigh   = 3
)

// Assessment is a single timestamped rating of a student's skill.
type Assessment struct {
	ID         string    // unique id for idempotency
	StudentID  string    // subject identifier
	SkillID    string    // skill identifier from the course catalog
	Source     Source    // who assessed
	Value      int       // 1, 2 or 3
	At         time.Time // when the assessment was made
	AssessorID string    // peer assessor, empty for other sources
}

// Score returns the value as a float for the consolidation math.
func (a Assessment) Score() float64 { return float64(a.Value) }

// Validate checks the structural invariants of a record.
func (a Assessment) Validate() error {
	switch {
	case a.StudentID == "":
		return fmt.Errorf("%w: missing student id", ErrInvalidRecord)
	case a.SkillID == "":
		return fmt.Errorf("%w: missing skill id", ErrInvalidRecord)
	case a.At.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidRecord)
	}
	if _, err := ParseSource(string(a.Source)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if a.Value < ValueLow || a.Value > ValueHigh {
		return fmt.Errorf("%w: got %d", ErrValueOutOfRange, a.Value)
	}
	return nil
}

// Weights are the effective, renormalized source weights of a result.
// They always sum to 1.
type Weights struct {
	Observation float64 `json:"observation"`
	Self        float64 `json:"self"`
	Peer        float64 `json:"peer"`
}

// Sum returns the total of the three weights.
func (w Weights) Sum() float64 { return w.Observation + w.Self + w.Peer }

// ConsolidatedResult is one consolidation of a student's skill at a point
// in time. It is recomputed from the record set and never patched in place.
type ConsolidatedResult struct {
	StudentID             string
	SkillID               string
	At                    time.Time
	ObservationValue      *float64
	SelfAssessmentValue   *float64
	PeerConsolidatedValue *float64
	PeerEvaluationCount   int
	Weights               Weights
	ConsolidatedValue     float64
	Level                 Level
}

// Point projects the result into a trend series element.
func (r ConsolidatedResult) Point() Point {
	return Point{Score: r.ConsolidatedValue, Level: r.Level, At: r.At}
}

// SkillStatus summarizes a skill for a student. A sequence of statuses is
// itself the input series of trend analysis.
type SkillStatus struct {
	StudentID       string
	SkillID         string
	SkillName       string
	Score           float64
	Level           Level
	Trend           Trend
	AssessmentCount int
	LastAssessedAt  time.Time
}

// Point projects the status into a trend series element.
func (s SkillStatus) Point() Point {
	return Point{Score: s.Score, Level: s.Level, At: s.LastAssessedAt}
}

// Point is one element of a trend series. Level may be left unset; only
// an explicit NotApplicable excludes the point.
type Point struct {
	Score float64
	Level Level
	At    time.Time
}

// Usable reports whether the point takes part in trend computation.
func (p Point) Usable() bool {
	if p.Level != LevelUnset && !p.Level.Applicable() {
		return false
	}
	return !math.IsNaN(p.Score) && !math.IsInf(p.Score, 0)
}

// LevelPoint builds a point from a band alone, scoring LOW/MEDIUM/HIGH as
// 1/2/3.
func LevelPoint(l Level, at time.Time) Point {
	score := 0.0
	if l.Applicable() {
		score = float64(l)
	}
	return Point{Score: score, Level: l, At: at}
}

// Float returns a pointer to v, for the optional result fields.
func Float(v float64) *float64 { return &v }
