package model

import "github.com/rotisserie/eris"

// ChurnDetail carries the raw churn probabilities behind a retention score.
type ChurnDetail struct {
	Before float64 `json:"churn_before"`
	After  float64 `json:"churn_after"`
	Delta  float64 `json:"delta"`
}

// Recommendation is one scored candidate (client, product) pair. Component
// scores are normalized to [0,100]. RetentionGain is relative to the best
// churn reduction among the same client's candidates, so its scale is
// per-client, not absolute.
type Recommendation struct {
	Product         string      `json:"product"`
	NeedArea        NeedArea    `json:"need_area"`
	RetentionGain   float64     `json:"retention_gain"`
	Profitability   float64     `json:"profitability"`
	Propensity      float64     `json:"propensity"`
	ClusterAffinity float64     `json:"cluster_affinity"`
	Churn           ChurnDetail `json:"churn"`
}

// ComponentSum is the unweighted sum of the four component scores, used only
// for the default per-client display ordering.
func (r Recommendation) ComponentSum() float64 {
	return r.RetentionGain + r.Profitability + r.Propensity + r.ClusterAffinity
}

// ScoringWeights are the caller-supplied weights for the three-term combined
// score. They are consumed as provided and are not required to sum to 1.
type ScoringWeights struct {
	Retention     float64 `json:"retention" yaml:"retention" mapstructure:"retention"`
	Profitability float64 `json:"profitability" yaml:"profitability" mapstructure:"profitability"`
	Propensity    float64 `json:"propensity" yaml:"propensity" mapstructure:"propensity"`
}

// Validate rejects negative weights. Zero weights are legal: an all-zero
// configuration produces an all-zero, input-ordered ranking rather than an
// error.
func (w ScoringWeights) Validate() error {
	if w.Retention < 0 || w.Profitability < 0 || w.Propensity < 0 {
		return eris.Errorf("model: weights must be >= 0 (got retention=%.3f profitability=%.3f propensity=%.3f)",
			w.Retention, w.Profitability, w.Propensity)
	}
	return nil
}

// RankedCandidate is the atomic unit of the globally sorted ranking output.
type RankedCandidate struct {
	ClientID string `json:"client_id"`
	Recommendation
	Score float64 `json:"score"`
}
