// Package enrich fills fields absent from the client data store with
// deterministic synthetic values. It runs strictly upstream of scoring:
// the engine only ever sees fully-populated records.
package enrich

import (
	"hash/fnv"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/helios-advisory/nbo-cli/internal/model"
)

// Seed derives the per-client random seed from the client identifier, so
// reruns regenerate identical synthetic fields for the same client.
func Seed(clientID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(clientID))
	return h.Sum64()
}

// Client fills the missing optional fields of a raw record in place and
// assigns the NBA cluster when unset. Fields already present are never
// overwritten.
func Client(raw *model.RawClient) {
	rng := rand.New(rand.NewPCG(Seed(raw.ID), 0))

	// Draw in a fixed order so a given client always gets the same values
	// regardless of which fields were already populated.
	life := 0.15 + rng.Float64()*0.75
	nonLife := 0.15 + rng.Float64()*0.75
	engagement := 20 + rng.Float64()*70
	satisfaction := 40 + rng.Float64()*55

	if raw.LifePropensity == nil {
		raw.LifePropensity = &life
	}
	if raw.NonLifePropensity == nil {
		raw.NonLifePropensity = &nonLife
	}
	if raw.Engagement == nil {
		raw.Engagement = &engagement
	}
	if raw.Satisfaction == nil {
		raw.Satisfaction = &satisfaction
	}

	if raw.Cluster < 1 || raw.Cluster > 7 {
		raw.Cluster = AssignCluster(*raw)
	}
}

// Clients enriches a whole snapshot.
func Clients(raws []model.RawClient) {
	for i := range raws {
		Client(&raws[i])
	}
	zap.L().Debug("enrich: snapshot enriched", zap.Int("clients", len(raws)))
}

// AssignCluster maps demographics to one of the seven NBA clusters. The rule
// splits on life stage first, then on income and household size.
func AssignCluster(raw model.RawClient) int {
	age := valueOr(raw.Age, model.DefaultAge)
	income := floatOr(raw.Income, model.DefaultIncome)
	children := valueOr(raw.Children, model.DefaultChildren)

	switch {
	case age < 32:
		if income < 35000 {
			return 1
		}
		return 7
	case age < 45:
		if children >= 2 {
			return 3
		}
		return 6
	case age < 60:
		if income >= 50000 {
			return 2
		}
		return 5
	default:
		return 4
	}
}

func valueOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
