// Package repository defines the assessment store interface and its
// in-memory and SQLite implementations.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/skillpulse/internal/domain/model"
	"github.com/okian/skillpulse/pkg/metrics"
)

// Supported store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Store provides read/write access to assessment records and consolidated
// results, keyed by (student, skill).
type Store interface {
	// Append stores a record. Returns ErrDuplicate if the id already exists.
	Append(ctx context.Context, a model.Assessment) error

	// Records returns every record for a student skill, oldest first.
	Records(ctx context.Context, studentID, skillID string) ([]model.Assessment, error)

	// Latest returns the most recent record of source.
	// Returns ErrNotFound if there is none.
	Latest(ctx context.Context, studentID, skillID string, source model.Source) (model.Assessment, error)

	// RecentPeers returns up to n peer records, most recent first.
	RecentPeers(ctx context.Context, studentID, skillID string, n int) ([]model.Assessment, error)

	// SaveResult stores a consolidated result. A result with the same
	// timestamp for the same student skill replaces the earlier one. Past
	// the history cap the oldest results are dropped.
	SaveResult(ctx context.Context, r model.ConsolidatedResult) error

	// History returns up to limit of the newest results, oldest first.
	// limit <= 0 returns all of them.
	History(ctx context.Context, studentID, skillID string, limit int) ([]model.ConsolidatedResult, error)

	// Skills returns the ids of the skills a student has records for, sorted.
	Skills(ctx context.Context, studentID string) ([]string, error)

	// Students returns the number of students with at least one record.
	Students(ctx context.Context) int

	Close() error
}

// Open builds the store for driver. path is only used by the sqlite driver.
func Open(driver, path string, opts ...Option) (Store, error) {
	switch strings.ToLower(driver) {
	case "", DriverMemory:
		return NewMemoryStore(opts...), nil
	case DriverSQLite:
		return NewSQLiteStore(path, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// observe reports the latency and outcome of one store call. Use it as
// defer observe(op, time.Now(), &err).
func observe(op string, start time.Time, err *error) {
	var e error
	if err != nil {
		e = *err
	}
	metrics.RecordStoreOperation(op, float64(time.Since(start).Microseconds())/1000, e)
}

type key struct {
	student string
	skill   string
}
