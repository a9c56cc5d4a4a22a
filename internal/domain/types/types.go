// Package types contains the read shapes returned by the API.
package types

import (
	"time"

	"github.com/okian/skillpulse/internal/domain/model"
)

// Status is the JSON view of a skill status.
type Status struct {
	StudentID       string    `json:"student_id"`
	SkillID         string    `json:"skill_id"`
	SkillName       string    `json:"skill_name"`
	Score           float64   `json:"score"`
	Level           string    `json:"level"`
	Trend           string    `json:"trend"`
	AssessmentCount int       `json:"assessment_count"`
	LastAssessedAt  time.Time `json:"last_assessed_at"`
}

// StatusFrom converts a domain status.
func StatusFrom(s model.SkillStatus) Status {
	return Status{
		StudentID:       s.StudentID,
		SkillID:         s.SkillID,
		SkillName:       s.SkillName,
		Score:           s.Score,
		Level:           s.Level.String(),
		Trend:           s.Trend.String(),
		AssessmentCount: s.AssessmentCount,
		LastAssessedAt:  s.LastAssessedAt,
	}
}

// Result is the JSON view of a consolidated result. Source values are nil
// when that source had no record.
type Result struct {
	StudentID             string        `json:"student_id"`
	SkillID               string        `json:"skill_id"`
	At                    time.Time     `json:"at"`
	ObservationValue      *float64      `json:"observation_value"`
	SelfAssessmentValue   *float64      `json:"self_assessment_value"`
	PeerConsolidatedValue *float64      `json:"peer_consolidated_value"`
	PeerEvaluationCount   int           `json:"peer_evaluation_count"`
	Weights               model.Weights `json:"weights"`
	ConsolidatedValue     float64       `json:"consolidated_value"`
	Level                 string        `json:"level"`
}

// ResultFrom converts a domain result.
func ResultFrom(r model.ConsolidatedResult) Result {
	return Result{
		StudentID:             r.StudentID,
		SkillID:               r.SkillID,
		At:                    r.At,
		ObservationValue:      r.ObservationValue,
		SelfAssessmentValue:   r.SelfAssessmentValue,
		PeerConsolidatedValue: r.PeerConsolidatedValue,
		PeerEvaluationCount:   r.PeerEvaluationCount,
		Weights:               r.Weights,
		ConsolidatedValue:     r.ConsolidatedValue,
		Level:                 r.Level.String(),
	}
}

// Results converts a slice of domain results.
func Results(rs []model.ConsolidatedResult) []Result {
	out := make([]Result, len(rs))
	for i, r := range rs {
		out[i] = ResultFrom(r)
	}
	return out
}
