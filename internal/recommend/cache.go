package recommend

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/helios-advisory/nbo-cli/internal/model"
)

// FeatureHash returns a stable content hash of a client snapshot, used as a
// memoization key and stored with persisted runs for reproducibility audits.
func FeatureHash(cf model.ClientFeatures) string {
	data, err := json.Marshal(cf)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16])
}

// ConfigHash hashes any scoring configuration the same way.
func ConfigHash(cfg any) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16])
}

// MemoGenerator wraps a Generator with a content-addressed cache. Features
// are immutable within a scoring pass, so a hash hit is always valid; the
// cache is an explicit injected dependency, never ambient state.
type MemoGenerator struct {
	gen RecommendationSource

	mu    sync.RWMutex
	cache map[string][]model.Recommendation
}

// NewMemoGenerator wraps gen with an empty cache.
func NewMemoGenerator(gen RecommendationSource) *MemoGenerator {
	return &MemoGenerator{
		gen:   gen,
		cache: make(map[string][]model.Recommendation),
	}
}

// Generate returns cached candidates when the client snapshot hashes to a
// previous result, otherwise delegates and stores.
func (m *MemoGenerator) Generate(cf model.ClientFeatures) []model.Recommendation {
	key := FeatureHash(cf)
	if key == "" {
		return m.gen.Generate(cf)
	}

	m.mu.RLock()
	recs, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return cloneRecs(recs)
	}

	recs = m.gen.Generate(cf)
	m.mu.Lock()
	m.cache[key] = recs
	m.mu.Unlock()
	return cloneRecs(recs)
}

// Len reports the number of cached clients.
func (m *MemoGenerator) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

func cloneRecs(recs []model.Recommendation) []model.Recommendation {
	return append([]model.Recommendation(nil), recs...)
}
