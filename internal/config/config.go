// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/go-playground/validator/v10"

	"github.com/okian/skillpulse/internal/adapters/repository"
	"github.com/okian/skillpulse/internal/domain/consolidation"
	"github.com/okian/skillpulse/internal/domain/level"
	"github.com/okian/skillpulse/internal/domain/model"
	"github.com/okian/skillpulse/internal/domain/trend"
)

var validate = validator.New()

// Sentinel errors for this package. Load wraps file and env failures with
// ErrLoadConfig and rule violations with ErrInvalidConfig.
var (
	ErrInvalidConfig = errors.New("invalid skillpulse config")
	ErrLoadConfig    = errors.New("load skillpulse config")
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// QueueSize bounds the in-memory recompute queue.
	QueueSize int `koanf:"queue_size" validate:"gte=1"`

	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count" validate:"gte=1"`

	// DedupeSize sets the size of the assessment id cache; 0 is unbounded.
	DedupeSize int `koanf:"dedupe_size" validate:"gte=0"`

	// RateLimitRPS and RateLimitBurst shape the HTTP token bucket.
	// A non-positive rate disables limiting.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst" validate:"gte=0"`

	// MaxHistoryLimit caps GET .../history?limit.
	MaxHistoryLimit int `koanf:"max_history_limit" validate:"gte=1"`

	// CatalogPath points to the YAML skill catalog. Empty accepts any skill.
	CatalogPath string `koanf:"catalog_path"`

	Store         StoreConfig         `koanf:"store"`
	Consolidation ConsolidationConfig `koanf:"consolidation"`
	Level         LevelConfig         `koanf:"level"`
	Trend         TrendConfig         `koanf:"trend"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is memory or sqlite.
	Driver string `koanf:"driver" validate:"oneof=memory sqlite"`
	// Path is the sqlite database file.
	Path string `koanf:"path" validate:"required_if=Driver sqlite"`
	// MaxHistory caps stored results per student skill; 0 keeps all.
	MaxHistory int `koanf:"max_history" validate:"gte=0"`
}

// ConsolidationConfig tunes peer reliability and aggregation.
type ConsolidationConfig struct {
	TargetPeerCount   int `koanf:"target_peer_count" validate:"gte=1"`
	MeanFromPeerCount int `koanf:"mean_from_peer_count" validate:"gte=2"`
}

// LevelConfig holds the band thresholds: values below LowUpperBound are
// LOW, below MediumUpperBound MEDIUM, anything else HIGH.
type LevelConfig struct {
	LowUpperBound    float64 `koanf:"low_upper_bound"`
	MediumUpperBound float64 `koanf:"medium_upper_bound"`
}

// TrendConfig selects the trend method and its window.
type TrendConfig struct {
	Method       string `koanf:"method" validate:"required"`
	HistoryCount int    `koanf:"history_count" validate:"gte=1"`
}

// New creates a Config holding the defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		QueueSize:       10_000,
		WorkerCount:     runtime.NumCPU() * 2,
		DedupeSize:      50_000,
		RateLimitRPS:    0,
		RateLimitBurst:  100,
		MaxHistoryLimit: 100,
		Store: StoreConfig{
			Driver:     "memory",
			MaxHistory: repository.DefaultMaxHistory,
		},
		Consolidation: ConsolidationConfig{
			TargetPeerCount:   consolidation.DefaultTargetPeerCount,
			MeanFromPeerCount: consolidation.DefaultMeanFromPeerCount,
		},
		Level: LevelConfig{
			LowUpperBound:    level.LowUpperBound,
			MediumUpperBound: level.MediumUpperBound,
		},
		Trend: TrendConfig{
			Method:       string(trend.DefaultMethod),
			HistoryCount: trend.DefaultHistoryCount,
		},
	}
}

// Validate checks field constraints, the trend method name and the level
// thresholds.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := model.ParseMethod(c.Trend.Method); err != nil {
		return fmt.Errorf("%w: trend.method: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Levels(); err != nil {
		return fmt.Errorf("%w: level: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Levels returns the band mapper for the configured thresholds.
func (c *Config) Levels() (level.Mapper, error) {
	return level.NewMapper(c.Level.LowUpperBound, c.Level.MediumUpperBound)
}

// TrendMethod returns the parsed trend method. Call after Validate.
func (c *Config) TrendMethod() model.Method {
	m, err := model.ParseMethod(c.Trend.Method)
	if err != nil {
		return trend.DefaultMethod
	}
	return m
}

// Policy returns the consolidation policy the config describes.
func (c *Config) Policy() consolidation.Policy {
	p := consolidation.DefaultPolicy()
	p.TargetPeerCount = c.Consolidation.TargetPeerCount
	p.MeanFromPeerCount = c.Consolidation.MeanFromPeerCount
	return p
}
