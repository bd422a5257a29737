package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/axelofwar/be-community-gamification/internal/streamreplay"
	"github.com/axelofwar/be-community-gamification/pkg/logger"
)

const (
	defaultWorkers  = 2 // multiplier for runtime.NumCPU()
	defaultAttempts = 5
	defaultWait     = time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		input    = flag.String("in", "-", "NDJSON observations file, or - for stdin")
		topN     = flag.Int("top", streamreplay.DefaultTopN, "Leaderboard rows to print")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent submitters")
		timeout  = flag.Duration("timeout", streamreplay.DefaultTimeout, "HTTP request timeout")
		attempts = flag.Uint("attempts", defaultAttempts, "Attempts per observation on 429 or 5xx")
		wait     = flag.Duration("wait", defaultWait, "How long to wait for processing before reading the leaderboard")
		verbose  = flag.Bool("verbose", false, "Log every failed submission")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var in io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatal(ctx, "open input", logger.String("path", *input), logger.Error(err))
		}
		defer f.Close() //nolint:errcheck // read-only
		in = f
	}

	cfg := &streamreplay.Config{
		BaseURL:  *baseURL,
		TopN:     *topN,
		Workers:  *workers,
		Timeout:  *timeout,
		Attempts: *attempts,
		Wait:     *wait,
		Verbose:  *verbose,
	}
	if _, err := streamreplay.Run(ctx, cfg, in, os.Stdout, log); err != nil {
		log.Error(ctx, "replay failed", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}
