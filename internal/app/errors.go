package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrBackpressure = errors.New("recompute queue full")
	ErrNotFound     = errors.New("no assessments for student skill")
)
