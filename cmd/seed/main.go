package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/okian/skillpulse/internal/seed"
)

// Default configuration constants.
const (
	defaultWorkers  = 2 // multiplier for runtime.NumCPU()
	defaultSeed     = 1
	defaultDeadline = 30 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", seed.DefaultBaseURL, "Base URL of the service")
		students = flag.Int("students", seed.DefaultStudents, "Number of students")
		skills   = flag.String("skills", strings.Join(seed.DefaultSkills, ","), "Comma separated skill ids")
		sessions = flag.Int("sessions", seed.DefaultSessions, "Assessment sessions per student")
		peers    = flag.Int("peers", seed.DefaultPeersPerSession, "Peer ratings per student skill and session")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent requests")
		rps      = flag.Float64("rps", seed.DefaultRPS, "Request pacing, 0 for unpaced")
		timeout  = flag.Duration("timeout", seed.DefaultTimeout, "HTTP request timeout")
		settle   = flag.Duration("settle", seed.DefaultSettleTimeout, "Wait for the recompute queue after each session")
		seedVal  = flag.Uint64("seed", defaultSeed, "PRNG seed")
		output   = flag.String("output", "", "Write the generated assessments to this JSON file")
		logFile  = flag.String("log", "", "Also write logs to this file")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		seed.ShowHelp()
		return
	}

	closer, err := seed.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultDeadline)
	defer cancel()

	cfg := &seed.Config{
		BaseURL:         *baseURL,
		Students:        *students,
		Skills:          splitSkills(*skills),
		Sessions:        *sessions,
		PeersPerSession: *peers,
		Workers:         *workers,
		RPS:             *rps,
		Timeout:         *timeout,
		SettleTimeout:   *settle,
		Seed:            *seedVal,
		OutputFile:      *output,
		LogFile:         *logFile,
		Verbose:         *verbose,
	}

	if _, err := seed.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Seed run failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func splitSkills(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
