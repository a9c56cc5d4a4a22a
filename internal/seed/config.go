package seed

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds configuration for a seeding run.
type Config struct {
	BaseURL         string        `validate:"required,url"` // Base URL of the service
	Students        int           `validate:"min=1"`        // Number of students in the class
	Skills          []string      `validate:"min=1,dive,required"`
	Sessions        int           `validate:"min=1"` // Assessment sessions per student
	PeersPerSession int           `validate:"min=0"` // Peer ratings per student skill and session
	Workers         int           `validate:"min=1"` // Concurrent HTTP requests
	RPS             float64       // Request pacing; <= 0 means unpaced
	Timeout         time.Duration `validate:"gt=0"` // HTTP request timeout
	SettleTimeout   time.Duration // How long to wait for the recompute queue to drain
	Seed            uint64        // PRNG seed; the same seed replays the same class
	Start           time.Time     // Timestamp of the first session
	OutputFile      string        // Output file for generated assessments
	LogFile         string        // Log file for run output
	Verbose         bool          // Enable verbose logging
}

var validate = validator.New()

// Validate checks the run configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.PeersPerSession > 0 && c.Students < 2 {
		return fmt.Errorf("%w: peer ratings need at least two students", ErrInvalidConfig)
	}
	return nil
}

// Assessment is the POST /assessments body.
type Assessment struct {
	ID         string `json:"id"`
	StudentID  string `json:"student_id"`
	SkillID    string `json:"skill_id"`
	Source     string `json:"source"`
	Value      int    `json:"value"`
	At         string `json:"at"`
	AssessorID string `json:"assessor_id,omitempty"`
}

// AckResponse represents the response from assessment submission.
type AckResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	Generated         int
	Submitted         int
	Accepted          int
	Duplicate         int
	Rejected          int
	Failed            int
	StatusesRetrieved int
	ByTrend           map[string]int
	ByLevel           map[string]int
	// Agreement is the share of student skills with a clear drift whose
	// reported trend points the same way.
	Agreement float64
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}
