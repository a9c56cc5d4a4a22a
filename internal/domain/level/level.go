// Package level maps consolidated values onto the LOW / MEDIUM / HIGH bands.
package level

import (
	"errors"
	"fmt"
	"math"

	"github.com/okian/skillpulse/internal/domain/model"
)

// Band thresholds on the 1.00-3.00 scale. Intervals are closed-open:
// [1.67, 2.33) is MEDIUM.
const (
	LowUpperBound    = 1.67
	MediumUpperBound = 2.33
)

// ErrInvalidThresholds is returned for non-increasing or non-finite bounds.
var ErrInvalidThresholds = errors.New("invalid level thresholds")

var defaultMapper = Mapper{low: LowUpperBound, medium: MediumUpperBound}

// Mapper holds a pair of thresholds.
type Mapper struct {
	low    float64
	medium float64
}

// NewMapper returns a mapper with custom bounds; low must be below medium.
func NewMapper(low, medium float64) (Mapper, error) {
	if math.IsNaN(low) || math.IsNaN(medium) || math.IsInf(low, 0) || math.IsInf(medium, 0) || low >= medium {
		return Mapper{}, fmt.Errorf("%w: low=%g medium=%g", ErrInvalidThresholds, low, medium)
	}
	return Mapper{low: low, medium: medium}, nil
}

// Default returns the mapper with LowUpperBound and MediumUpperBound.
func Default() Mapper { return defaultMapper }

// ToLevel maps v to its band. Every real value gets a band, including
// values off the 1..3 scale; NaN maps to NOT_APPLICABLE.
func (m Mapper) ToLevel(v float64) model.Level {
	switch {
	case math.IsNaN(v):
		return model.LevelNotApplicable
	case v < m.low:
		return model.LevelLow
	case v < m.medium:
		return model.LevelMedium
	default:
		return model.LevelHigh
	}
}

// Bounds returns the LOW and MEDIUM upper bounds.
func (m Mapper) Bounds() (low, medium float64) { return m.low, m.medium }
