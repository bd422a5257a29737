// Package imagefetch downloads profile images and hands them over as
// grayscale rasters.
//
// Downloads go through a tiered cache with per-URL single-flight, a retry
// loop for transient failures and a circuit breaker that stops hammering a
// failing image host.
package imagefetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/codeGROOVE-dev/sfcache"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/localfs"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/null"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/axelofwar/be-community-gamification/internal/domain/similarity"
	"github.com/axelofwar/be-community-gamification/pkg/logger"
	"github.com/axelofwar/be-community-gamification/pkg/metrics"
)

const (
	userAgent    = "pfpboard/1.0 (+profile image similarity)"
	maxBodyBytes = 16 << 20
	cacheName    = "pfpboard-images"
)

var errTooLarge = errors.New("response body too large")

// Fetcher downloads profile images.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration

	cacheDir string
	ttl      time.Duration
	cache    *sfcache.TieredCache[string, []byte]

	attempts uint
	delay    time.Duration

	breakerFailures uint32
	breakerTimeout  time.Duration
	breaker         *gobreaker.CircuitBreaker[[]byte]

	log logger.Logger
}

// New builds a Fetcher. It fails only when the cache directory cannot be
// prepared.
func New(opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		timeout:         5 * time.Second,
		ttl:             time.Hour,
		attempts:        2,
		delay:           200 * time.Millisecond,
		breakerFailures: 5,
		breakerTimeout:  30 * time.Second,
		log:             logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: f.timeout}
	}

	cache, err := newCache(f.cacheDir, f.ttl)
	if err != nil {
		return nil, err
	}
	f.cache = cache

	f.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "imagefetch",
		Timeout: f.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= f.breakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !transient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(int(to))
			f.log.Warn(context.Background(), "circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	return f, nil
}

func newCache(dir string, ttl time.Duration) (*sfcache.TieredCache[string, []byte], error) {
	if dir == "" {
		tc, err := sfcache.NewTiered[string, []byte](null.New[string, []byte](), sfcache.TTL(ttl))
		if err != nil {
			return nil, fmt.Errorf("create image cache: %w", err)
		}
		return tc, nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create image cache directory: %w", err)
	}
	persist, err := localfs.New[string, []byte](cacheName, dir)
	if err != nil {
		return nil, fmt.Errorf("create image cache persistence: %w", err)
	}
	tc, err := sfcache.NewTiered[string, []byte](persist, sfcache.TTL(ttl))
	if err != nil {
		return nil, fmt.Errorf("create image cache: %w", err)
	}
	return tc, nil
}

// UpgradeURL rewrites a Twitter "_normal" avatar URL to its 400x400
// variant. Other URLs are returned unchanged.
func UpgradeURL(raw string) string {
	i := strings.LastIndex(raw, "/")
	name := raw[i+1:]
	if !strings.Contains(name, "_normal") {
		return raw
	}
	return raw[:i+1] + strings.Replace(name, "_normal", "_400x400", 1)
}

func cacheKey(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:])
}

// Fetch downloads the image at rawURL and converts it to grayscale.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*image.Gray, error) {
	data, err := f.FetchBytes(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	img, err := similarity.Decode(data)
	if err != nil {
		metrics.RecordFetchError("decode")
		return nil, err
	}
	return img, nil
}

// FetchBytes returns the raw image bytes for rawURL, from cache when
// possible. Only successful downloads are cached.
func (f *Fetcher) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	target := UpgradeURL(strings.TrimSpace(rawURL))
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		metrics.RecordFetchError("invalid_url")
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	start := time.Now()
	defer func() {
		metrics.RecordFetchLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	fetched := false
	data, err := f.cache.GetSet(ctx, cacheKey(target), func(ctx context.Context) ([]byte, error) {
		fetched = true
		return f.breaker.Execute(func() ([]byte, error) {
			data, err := f.download(ctx, target)
			if err != nil && ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", errCallerDone, err)
			}
			return data, err
		})
	}, f.ttl)
	if fetched {
		metrics.RecordFetchCacheMiss()
	} else if err == nil {
		metrics.RecordFetchCacheHit()
	}
	if err != nil {
		return nil, f.fail(target, err)
	}
	return data, nil
}

func (f *Fetcher) fail(target string, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordFetchError("circuit_open")
		return fmt.Errorf("%w: %s", ErrCircuitOpen, target)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		metrics.RecordFetchError("canceled")
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		metrics.RecordFetchError(fmt.Sprintf("http_%d", httpErr.StatusCode))
	} else {
		metrics.RecordFetchError("network")
	}
	return fmt.Errorf("%w: %w", ErrFetch, err)
}

func (f *Fetcher) download(ctx context.Context, target string) ([]byte, error) {
	return retry.DoWithData(
		func() ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
			}
			req.Header.Set("User-Agent", userAgent)
			req.Header.Set("Accept", "image/*")

			resp, err := f.client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close() //nolint:errcheck // read-only body

			if resp.StatusCode != http.StatusOK {
				return nil, &HTTPError{URL: target, StatusCode: resp.StatusCode}
			}
			data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
			if err != nil {
				return nil, err
			}
			if len(data) > maxBodyBytes {
				return nil, errTooLarge
			}
			return data, nil
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.MaxJitter(f.delay/2),
		retry.RetryIf(transient),
		retry.OnRetry(func(n uint, err error) {
			metrics.RecordFetchRetry()
			f.log.Debug(ctx, "retrying profile image fetch",
				logger.Int("attempt", int(n)+1),
				logger.String("url", target),
				logger.Error(err))
		}),
	)
}
