package streamreplay

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/axelofwar/be-community-gamification/pkg/logger"
)

// Defaults for zero Config fields.
const (
	DefaultTopN    = 20
	DefaultTimeout = 10 * time.Second
	DefaultPoll    = 250 * time.Millisecond
)

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Workers < 1 {
		out.Workers = runtime.NumCPU() * 2
	}
	if out.TopN < 1 {
		out.TopN = DefaultTopN
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.Poll <= 0 {
		out.Poll = DefaultPoll
	}
	return &out
}

// Run replays the observations read from in, waits up to cfg.Wait for the
// pipeline to process them and writes the resulting leaderboard to out.
func Run(ctx context.Context, cfg *Config, in io.Reader, out io.Writer, log logger.Logger) (*Stats, error) {
	cfg = cfg.withDefaults()
	c := newClient(cfg)

	log.Info(ctx, "starting replay",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("workers", cfg.Workers),
		logger.Int("topN", cfg.TopN),
		logger.String("wait", cfg.Wait.String()))

	if err := c.getJSON(ctx, "/healthz", nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}

	observations, stats, err := ReadObservations(ctx, in, log)
	if err != nil {
		return stats, err
	}
	if len(observations) == 0 {
		return stats, ErrNoInput
	}
	stats.StartTime = time.Now()

	baseline, err := c.processed(ctx)
	if err != nil {
		return stats, fmt.Errorf("read stats: %w", err)
	}

	submitAll(ctx, c, cfg, observations, stats, log)

	if cfg.Wait > 0 && stats.Accepted > 0 {
		stats.Processed, stats.Drained = waitProcessed(ctx, c, cfg, baseline+int64(stats.Accepted))
		stats.Processed -= baseline
	}

	stats.Leaderboard, err = c.leaderboard(ctx, cfg.TopN)
	if err != nil {
		return stats, fmt.Errorf("read leaderboard: %w", err)
	}
	stats.Duration = time.Since(stats.StartTime)

	printLeaderboard(out, stats.Leaderboard)
	log.Info(ctx, "replay finished",
		logger.Int("lines", stats.Lines),
		logger.Int("malformed", stats.Malformed),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int64("processed", stats.Processed),
		logger.Bool("drained", stats.Drained),
		logger.String("duration", stats.Duration.String()))
	return stats, nil
}

// submitAll posts every observation with cfg.Workers in flight. Individual
// failures are counted, not returned.
func submitAll(ctx context.Context, c *client, cfg *Config, observations []Observation, stats *Stats, log logger.Logger) {
	var counts [Failed + 1]atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range observations {
		o := &observations[i]
		g.Go(func() error {
			outcome, err := c.submit(gctx, o)
			counts[outcome].Add(1)
			if err != nil && cfg.Verbose {
				log.Warn(gctx, "submission failed", logger.String("id", o.ID), logger.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Accepted = int(counts[Accepted].Load())
	stats.Duplicate = int(counts[Duplicate].Load())
	stats.Rejected = int(counts[Rejected].Load())
	stats.Failed = int(counts[Failed].Load())
	stats.Submitted = stats.Accepted + stats.Duplicate + stats.Rejected + stats.Failed
}

// waitProcessed polls /stats until the processed counter reaches target or
// cfg.Wait elapses.
func waitProcessed(ctx context.Context, c *client, cfg *Config, target int64) (int64, bool) {
	deadline := time.NewTimer(cfg.Wait)
	defer deadline.Stop()
	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	var last int64
	for {
		if n, err := c.processed(ctx); err == nil {
			last = n
			if n >= target {
				return n, true
			}
		}
		select {
		case <-ctx.Done():
			return last, false
		case <-deadline.C:
			return last, false
		case <-ticker.C:
		}
	}
}

func printLeaderboard(w io.Writer, entries []Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RANK\tKEY\tNAME\tIMPRESSIONS\tFAVORITES\tRETWEETS\tREPLIES")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\n",
			e.Rank, e.Key, e.Name, e.Impressions, e.Favorites, e.Retweets, e.Replies)
	}
	_ = tw.Flush()
}
