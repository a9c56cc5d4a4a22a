package seed

import (
	"errors"
	"time"
)

// Sentinel errors for this package.
var (
	ErrInvalidConfig = errors.New("invalid seed configuration")
	ErrUnhealthy     = errors.New("service unhealthy")
	ErrNotSettled    = errors.New("recompute queue did not drain")
)

// Default run configuration constants.
const (
	DefaultBaseURL         = "http://localhost:9080"
	DefaultStudents        = 30
	DefaultSessions        = 6
	DefaultPeersPerSession = 3
	DefaultRPS             = 200
	DefaultTimeout         = 30 * time.Second
	DefaultSettleTimeout   = 2 * time.Minute
)

// DefaultSkills is the skill set used when none is given.
var DefaultSkills = []string{"teamwork", "argumentation", "self-regulation"}

// Generator constants.
const (
	sessionGap     = 7 * 24 * time.Hour
	maxDrift       = 0.35
	clearDrift     = 0.15
	walkNoise      = 0.15
	ratingNoise    = 0.45
	selfBias       = 0.25
	settlePoll     = 200 * time.Millisecond
	percentage     = 100
	filePermission = 0o600
	dirPermission  = 0o750
)
