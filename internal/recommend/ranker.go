package recommend

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/helios-advisory/nbo-cli/internal/eligibility"
	"github.com/helios-advisory/nbo-cli/internal/model"
)

// DefaultTopK is how many top candidates get the expensive eligibility
// check. It comfortably covers a top-20 display even after exclusions.
const DefaultTopK = 100

// RankerConfig tunes the portfolio ranking pass.
type RankerConfig struct {
	// TopK bounds the eligibility check to the best-scoring candidates.
	// Candidates below the window are passed through unfiltered; they are
	// too far down to surface in top-N displays. Default: DefaultTopK.
	TopK int
}

// Ranker scores every client's candidates and produces one globally ordered
// list, optionally filtered by the recent-interaction rule.
type Ranker struct {
	gen    RecommendationSource
	policy eligibility.Policy
	batch  *eligibility.Batch
	cfg    RankerConfig
	now    func() time.Time
}

// RecommendationSource generates candidates for one client. Satisfied by
// *Generator and by the memoizing wrapper.
type RecommendationSource interface {
	Generate(cf model.ClientFeatures) []model.Recommendation
}

// NewRanker creates a Ranker. batch may be nil when eligibility filtering
// will never be requested.
func NewRanker(gen RecommendationSource, policy eligibility.Policy, batch *eligibility.Batch, cfg RankerConfig) *Ranker {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Ranker{
		gen:    gen,
		policy: policy,
		batch:  batch,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Rank generates and scores every candidate for every client, sorts the full
// collection descending by score, and optionally drops candidates for
// clients disqualified by recent interactions.
//
// The sort is stable: equal scores keep their generation order (client
// enumeration order, then each client's default candidate order). No further
// tie-break key exists, so top-N membership under exact ties follows input
// order. Repeat calls with identical inputs return identical output.
//
// Only contract violations (negative weights) return an error. Business
// edge cases — no clients, no candidates, all-zero weights, degraded
// eligibility lookups — all yield a usable, possibly empty, list.
func (r *Ranker) Rank(ctx context.Context, clients []model.ClientFeatures, w model.ScoringWeights, filterRecent bool) ([]model.RankedCandidate, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	candidates := make([]model.RankedCandidate, 0, len(clients)*4)
	for _, cf := range clients {
		for _, rec := range r.gen.Generate(cf) {
			candidates = append(candidates, model.RankedCandidate{
				ClientID:       cf.ID,
				Recommendation: rec,
				Score:          Score(rec, w),
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if !filterRecent || len(candidates) == 0 {
		return candidates, nil
	}
	return r.filterRecent(ctx, candidates), nil
}

// filterRecent removes candidates for ineligible clients among the top-K
// window. Clients the side-channel could not report on are kept (fail-open).
func (r *Ranker) filterRecent(ctx context.Context, candidates []model.RankedCandidate) []model.RankedCandidate {
	if r.batch == nil || r.policy == nil {
		zap.L().Warn("ranker: no eligibility source configured, skipping filter")
		return candidates
	}

	checkIDs := topClientIDs(candidates, r.cfg.TopK)
	indicators := r.batch.Fetch(ctx, checkIDs, r.now(), r.policy.Windows())

	excluded := make(map[string]bool)
	for id, ind := range indicators {
		if !r.policy.Eligible(ind) {
			excluded[id] = true
		}
	}

	if len(excluded) == 0 {
		return candidates
	}

	filtered := candidates[:0:0]
	for _, c := range candidates {
		if !excluded[c.ClientID] {
			filtered = append(filtered, c)
		}
	}

	zap.L().Info("ranker: eligibility filter applied",
		zap.Int("checked_clients", len(checkIDs)),
		zap.Int("excluded_clients", len(excluded)),
		zap.Int("remaining_candidates", len(filtered)),
	)
	return filtered
}

// topClientIDs returns the distinct client ids behind the first k candidates,
// preserving score order.
func topClientIDs(candidates []model.RankedCandidate, k int) []string {
	if k > len(candidates) {
		k = len(candidates)
	}
	seen := make(map[string]bool, k)
	var ids []string
	for _, c := range candidates[:k] {
		if !seen[c.ClientID] {
			seen[c.ClientID] = true
			ids = append(ids, c.ClientID)
		}
	}
	return ids
}
