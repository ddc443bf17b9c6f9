package recommend

import "github.com/helios-advisory/nbo-cli/internal/model"

// Score reduces a recommendation's component scores to one scalar using the
// caller's weights. The combined score is the three-term form:
//
//	retention_gain·wR + profitability·wP + propensity·wQ
//
// Cluster affinity is computed and carried on the recommendation for display
// but is deliberately excluded from the weighted sum; the three weights match
// the configuration surfaced to end users. Weights are applied exactly as
// provided — no normalization, no sum-to-1 assumption.
func Score(rec model.Recommendation, w model.ScoringWeights) float64 {
	return rec.RetentionGain*w.Retention +
		rec.Profitability*w.Profitability +
		rec.Propensity*w.Propensity
}
