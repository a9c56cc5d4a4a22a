// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// Source identifies who produced an assessment.
type Source string

// Assessment sources.
const (
	SourceObservation    Source = "OBSERVATION"
	SourceSelfAssessment Source = "SELF_ASSESSMENT"
	SourcePeer           Source = "PEER"
)

// Sources lists every known source in a stable order.
var Sources = []Source{SourceObservation, SourceSelfAssessment, SourcePeer}

// ParseSource accepts the canonical names case-insensitively, plus the
// short aliases "self" and "observation".
func ParseSource(s string) (Source, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OBSERVATION":
		return SourceObservation, nil
	case "SELF_ASSESSMENT", "SELF":
		return SourceSelfAssessment, nil
	case "PEER":
		return SourcePeer, nil
	}
	return "", fmt.Errorf("%w: source %q", ErrUnknownEnum, s)
}

func (s Source) String() string { return string(s) }

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) { return []byte(s), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(b []byte) error {
	v, err := ParseSource(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Level is the interpretive band of a consolidated value.
type Level int

// Levels. The zero value is LevelUnset: a trend point without a level
// still counts by its score. NotApplicable marks a skill with no usable
// assessment data and never takes part in trend computation.
const (
	LevelUnset Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelNotApplicable
)

var levelNames = [...]string{"UNSET", "LOW", "MEDIUM", "HIGH", "NOT_APPLICABLE"}

func (l Level) String() string {
	if l < LevelUnset || l > LevelNotApplicable {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Applicable reports whether l is one of the three real bands.
func (l Level) Applicable() bool { return l >= LevelLow && l <= LevelHigh }

// ParseLevel parses a level name case-insensitively. UNSET is not a
// valid input.
func ParseLevel(s string) (Level, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range levelNames[LevelLow:] {
		if u == name {
			return LevelLow + Level(i), nil
		}
	}
	if u == "N/A" || u == "NA" {
		return LevelNotApplicable, nil
	}
	return LevelNotApplicable, fmt.Errorf("%w: level %q", ErrUnknownEnum, s)
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Trend classifies the direction of a series of consolidated results.
type Trend string

// Trends.
const (
	TrendImproving Trend = "IMPROVING"
	TrendStable    Trend = "STABLE"
	TrendDeclining Trend = "DECLINING"
)

func (t Trend) String() string { return string(t) }

// ParseTrend parses a trend name case-insensitively.
func ParseTrend(s string) (Trend, error) {
	switch Trend(strings.ToUpper(strings.TrimSpace(s))) {
	case TrendImproving:
		return TrendImproving, nil
	case TrendStable:
		return TrendStable, nil
	case TrendDeclining:
		return TrendDeclining, nil
	}
	return "", fmt.Errorf("%w: trend %q", ErrUnknownEnum, s)
}

// Method selects how a trend is computed.
type Method string

// Trend methods.
const (
	MethodSimpleDifference Method = "SIMPLE_DIFFERENCE"
	MethodMovingAverage    Method = "MOVING_AVERAGE"
	MethodLinearRegression Method = "LINEAR_REGRESSION"
)

func (m Method) String() string { return string(m) }

// ParseMethod parses a method name case-insensitively. Dashes are accepted
// in place of underscores so config files can use either.
func ParseMethod(s string) (Method, error) {
	u := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_")
	switch Method(u) {
	case MethodSimpleDifference:
		return MethodSimpleDifference, nil
	case MethodMovingAverage:
		return MethodMovingAverage, nil
	case MethodLinearRegression:
		return MethodLinearRegression, nil
	}
	return "", fmt.Errorf("%w: method %q", ErrUnknownEnum, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) { return []byte(m), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(b []byte) error {
	v, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
