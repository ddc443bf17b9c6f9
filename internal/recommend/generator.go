// Package recommend implements next-best-offer generation, weighted scoring,
// and portfolio-wide ranking.
package recommend

import (
	"sort"

	"github.com/helios-advisory/nbo-cli/internal/catalog"
	"github.com/helios-advisory/nbo-cli/internal/churn"
	"github.com/helios-advisory/nbo-cli/internal/model"
)

// deltaEpsilon substitutes for the per-client max delta churn when no
// candidate reduces churn, so normalization never divides by zero.
const deltaEpsilon = 0.001

// Generator produces scored recommendation candidates for a single client.
type Generator struct {
	cat *catalog.Catalog
}

// NewGenerator creates a Generator backed by the given reference catalog.
func NewGenerator(cat *catalog.Catalog) *Generator {
	return &Generator{cat: cat}
}

// Generate returns one candidate per catalog product the client does not
// already own. A client owning every product yields an empty slice; that is
// a valid outcome, not an error. Candidates come back in the default display
// order (descending unweighted component sum); the authoritative order is
// produced by the Ranker with caller weights.
func (g *Generator) Generate(cf model.ClientFeatures) []model.Recommendation {
	recs := make([]model.Recommendation, 0, len(g.cat.Products()))

	for _, p := range g.cat.Products() {
		if cf.Owns(p.Name, g.cat.SameProduct) {
			continue
		}

		recs = append(recs, model.Recommendation{
			Product:         p.Name,
			NeedArea:        p.NeedArea,
			Profitability:   p.Profitability * 100,
			Propensity:      propensityScore(cf, p.NeedArea),
			ClusterAffinity: g.cat.AffinityScore(cf.Cluster, p.NeedArea),
			Churn:           churn.Delta(cf, p.NeedArea),
		})
	}

	normalizeRetention(recs)

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].ComponentSum() > recs[j].ComponentSum()
	})

	return recs
}

// propensityScore maps the client's pre-computed life / non-life propensity
// scalars onto the candidate's need area. Pension products blend the two,
// weighted toward the life side.
func propensityScore(cf model.ClientFeatures, area model.NeedArea) float64 {
	switch area {
	case model.NeedSavings:
		return cf.LifePropensity * 100
	case model.NeedProtection:
		return cf.NonLifePropensity * 100
	case model.NeedPension:
		return (0.7*cf.LifePropensity + 0.3*cf.NonLifePropensity) * 100
	default:
		return catalog.NeutralScore
	}
}

// normalizeRetention rescales each candidate's raw churn delta against the
// client's best observed delta, so the strongest retention play scores 100
// and the rest are relative to it.
func normalizeRetention(recs []model.Recommendation) {
	maxDelta := 0.0
	for i := range recs {
		if recs[i].Churn.Delta > maxDelta {
			maxDelta = recs[i].Churn.Delta
		}
	}
	if maxDelta <= 0 {
		maxDelta = deltaEpsilon
	}

	for i := range recs {
		gain := recs[i].Churn.Delta / maxDelta * 100
		if gain < 0 {
			gain = 0
		}
		if gain > 100 {
			gain = 100
		}
		recs[i].RetentionGain = gain
	}
}
