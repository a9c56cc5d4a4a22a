package api

import "github.com/okian/skillpulse/pkg/logger"

// Default server configuration constants.
const (
	defaultMaxHistoryLimit = 100
	defaultMaxBodyBytes    = 1 << 20
)

// Option configures a Server.
type Option func(*Server)

// WithRateLimit enables a token bucket of rps requests per second with the
// given burst in front of the business routes. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

// WithMaxHistoryLimit caps the history limit query parameter.
func WithMaxHistoryLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxHistoryLimit = n
		}
	}
}

// WithMaxBodyBytes caps request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}
