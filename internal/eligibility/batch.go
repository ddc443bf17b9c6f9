package eligibility

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/helios-advisory/nbo-cli/internal/resilience"
)

// BatchConfig tunes the chunked indicator fetch.
type BatchConfig struct {
	// ChunkSize is the maximum number of client ids per source call,
	// bounded to respect query-size limits. Default: 500.
	ChunkSize int

	// ChunkTimeout bounds each source call. Default: 10s.
	ChunkTimeout time.Duration

	// RatePerSec throttles source calls. Zero disables throttling.
	RatePerSec float64

	// Retry bounds per-chunk retries.
	Retry resilience.RetryConfig
}

// DefaultBatchConfig returns the standard batch-fetch settings.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		ChunkSize:    500,
		ChunkTimeout: 10 * time.Second,
		Retry:        resilience.DefaultRetryConfig(),
	}
}

// Batch fetches indicators for many clients by fanning out over disjoint id
// chunks. Fetches are independent and stateless: each goroutine writes only
// its own result slot, and results merge into one map after all complete.
//
// The fetch fails open. A chunk that exhausts its retries, trips the
// breaker, or times out simply contributes no indicators; clients absent
// from the returned map are treated as eligible by the caller. Ranking must
// always produce a usable ordering even when the side-channel degrades.
type Batch struct {
	src     Source
	cfg     BatchConfig
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewBatch creates a Batch over the given indicator source.
func NewBatch(src Source, cfg BatchConfig) *Batch {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 500
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = 10 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Batch{
		src:     src,
		cfg:     cfg,
		limiter: limiter,
		breaker: resilience.NewBreaker(5, 30*time.Second),
	}
}

// Fetch returns the indicators for every id the source could report on.
// Missing ids mean "no data, assume eligible". Fetch never returns an error.
func (b *Batch) Fetch(ctx context.Context, ids []string, now time.Time, w Windows) map[string]Indicators {
	if len(ids) == 0 {
		return map[string]Indicators{}
	}

	chunks := chunkIDs(ids, b.cfg.ChunkSize)
	results := make([]map[string]Indicators, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			results[i] = b.fetchChunk(gctx, chunk, now, w)
			return nil
		})
	}
	_ = g.Wait()

	merged := make(map[string]Indicators, len(ids))
	for _, m := range results {
		for id, ind := range m {
			merged[id] = ind
		}
	}
	return merged
}

// fetchChunk runs one guarded source call. Any terminal failure is logged
// and swallowed: the chunk's clients fall back to eligible.
func (b *Batch) fetchChunk(ctx context.Context, ids []string, now time.Time, w Windows) map[string]Indicators {
	if err := b.breaker.Allow(); err != nil {
		zap.L().Warn("eligibility: breaker open, assuming chunk eligible",
			zap.Int("clients", len(ids)),
		)
		return nil
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil
		}
	}

	retryCfg := b.cfg.Retry
	retryCfg.OnRetry = resilience.RetryLogger("eligibility fetch")

	out, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (map[string]Indicators, error) {
		cctx, cancel := context.WithTimeout(ctx, b.cfg.ChunkTimeout)
		defer cancel()
		return b.src.FetchIndicators(cctx, ids, now, w)
	})
	b.breaker.Record(err)

	if err != nil {
		zap.L().Warn("eligibility: indicator fetch failed, assuming chunk eligible",
			zap.Int("clients", len(ids)),
			zap.Error(err),
		)
		return nil
	}
	return out
}

func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
