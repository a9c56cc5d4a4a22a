package seed

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/skillpulse/pkg/logger"
)

// SetupLogging sends logs to stdout and, when logFile is set, to that file.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer = io.NopCloser(nil)
	)
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, file)
		closer = file
	}
	if err := logger.InitWithFormat("text", w); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return closer, nil
}

// ShowHelp prints usage information for the seed tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`SkillPulse Seed Tool
====================

Generates a class of students whose skills drift over several sessions and
posts observation, self and peer assessments to a running service. After
the last session it reads every student's skill statuses and reports how
many are improving, stable and declining.

Usage:
  go run ./cmd/seed [options]

Options:
  -url string        Base URL of the service (default "http://localhost:9080")
  -students int      Number of students (default 30)
  -skills string     Comma separated skill ids (default "teamwork,argumentation,self-regulation")
  -sessions int      Assessment sessions per student (default 6)
  -peers int         Peer ratings per student skill and session (default 3)
  -workers int       Concurrent requests (default CPU cores * 2)
  -rps float         Request pacing, 0 for unpaced (default 200)
  -timeout duration  HTTP request timeout (default 30s)
  -settle duration   Wait for the recompute queue after each session (default 2m)
  -seed uint         PRNG seed; the same seed replays the same ids (default 1)
  -output string     Write the generated assessments to this JSON file
  -log string        Also write logs to this file
  -verbose           Enable verbose logging
  -help              Show this help message

Examples:
  go run ./cmd/seed -students 100 -sessions 8
  go run ./cmd/seed -rps 0 -workers 32 -url http://localhost:8080
`)
}
