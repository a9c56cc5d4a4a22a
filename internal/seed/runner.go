// Package seed drives a running service with a generated class: students
// whose skills drift over several sessions, assessed by observation, self
// and peers. It is both a demo data loader and a load generator.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/skillpulse/pkg/logger"
)

// Run executes a complete seeding run and returns its statistics.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Get().Named("seed")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting skillpulse seed run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("students", cfg.Students),
		logger.Any("skills", cfg.Skills),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("peersPerSession", cfg.PeersPerSession),
		logger.Int("workers", cfg.Workers),
		logger.Float64("rps", cfg.RPS),
		logger.Any("seed", cfg.Seed),
	)

	client := NewHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := checkServiceHealth(ctx, client); err != nil {
		return nil, err
	}

	plan := Generate(cfg)
	stats.Generated = plan.Total()
	students := make([]string, 0, cfg.Students)
	seen := map[string]bool{}
	for _, t := range plan.Tracks {
		if !seen[t.StudentID] {
			seen[t.StudentID] = true
			students = append(students, t.StudentID)
		}
	}

	sub := newSubmitter(cfg, client, log)
	for i, batch := range plan.Sessions {
		if err := sub.submit(ctx, batch); err != nil {
			return nil, fmt.Errorf("session %d submission failed: %w", i+1, err)
		}
		if err := waitSettled(ctx, client, cfg.SettleTimeout); err != nil {
			return nil, fmt.Errorf("session %d: %w", i+1, err)
		}
		// Reading statuses pins each session's result to its full data.
		if _, err := fetchStatuses(ctx, client, students, cfg.Workers); err != nil {
			return nil, fmt.Errorf("session %d snapshot failed: %w", i+1, err)
		}
		log.Info(ctx, "session submitted",
			logger.Int("session", i+1),
			logger.Int("assessments", len(batch)),
			logger.Int("accepted", int(sub.accepted.Load())),
		)
	}
	sub.fill(stats)

	statuses, err := fetchStatuses(ctx, client, students, cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("status retrieval failed: %w", err)
	}
	summarize(plan, statuses, stats)

	if cfg.OutputFile != "" {
		if err := savePlan(cfg.OutputFile, plan); err != nil {
			log.Warn(ctx, "failed to save assessments to file", logger.Error(err))
		} else {
			log.Info(ctx, "assessments saved to file", logger.String("filename", cfg.OutputFile))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	code, err := client.Get(ctx, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, code)
	}
	return nil
}

// waitSettled polls /stats until the recompute queue is empty and no worker
// is busy. A non-positive timeout skips the wait.
func waitSettled(ctx context.Context, client *HTTPClient, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()
	for {
		var stats map[string]any
		if code, err := client.Get(ctx, "/stats", &stats); err == nil && code == http.StatusOK {
			queued, _ := stats["queueLength"].(float64)
			active, _ := stats["activeWorkers"].(float64)
			if queued == 0 && active == 0 {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ErrNotSettled
		case <-ticker.C:
		}
	}
}

// savePlan writes every generated assessment as a JSON array.
func savePlan(filename string, plan Plan) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, dirPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	all := make([]Assessment, 0, plan.Total())
	for _, s := range plan.Sessions {
		all = append(all, s...)
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal assessments: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}
