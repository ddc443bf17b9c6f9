package model

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// NeedArea is the coarse product category a policy serves.
type NeedArea string

const (
	NeedProtection NeedArea = "Protection"
	NeedSavings    NeedArea = "Savings and Investment"
	NeedPension    NeedArea = "Pension"
)

// Default values substituted for missing numeric client fields. These match
// the midpoints used by the enrichment stage when a field is absent from the
// source snapshot, so a partially-populated record scores like a freshly
// enriched one.
const (
	DefaultAge          = 45
	DefaultIncome       = 32000.0
	DefaultTenureYears  = 5.0
	DefaultVisits       = 2
	DefaultSatisfaction = 70.0
	DefaultEngagement   = 50.0
	DefaultChildren     = 1
)

// RawClient is an unvalidated client record as it arrives from a store or
// file. Pointer fields distinguish "absent" from zero.
type RawClient struct {
	ID                string   `json:"id"`
	Age               *int     `json:"age,omitempty"`
	Income            *float64 `json:"income,omitempty"`
	TenureYears       *float64 `json:"tenure_years,omitempty"`
	VisitsLastYear    *int     `json:"visits_last_year,omitempty"`
	Satisfaction      *float64 `json:"satisfaction,omitempty"`
	Complaints        *int     `json:"complaints,omitempty"`
	Engagement        *float64 `json:"engagement,omitempty"`
	Children          *int     `json:"children,omitempty"`
	LifePropensity    *float64 `json:"life_propensity,omitempty"`
	NonLifePropensity *float64 `json:"non_life_propensity,omitempty"`
	Cluster           int      `json:"cluster"`
	OwnedProducts     []string `json:"owned_products"`
}

// ClientFeatures is the validated, immutable per-client snapshot consumed by
// the scoring pipeline. Build one via NewClientFeatures; the owned-area flags
// are derived from the owned product list and are never set independently.
type ClientFeatures struct {
	ID                string   `json:"id"`
	Age               int      `json:"age"`
	Income            float64  `json:"income"`
	TenureYears       float64  `json:"tenure_years"`
	VisitsLastYear    int      `json:"visits_last_year"`
	Satisfaction      float64  `json:"satisfaction"`
	Complaints        int      `json:"complaints"`
	Engagement        float64  `json:"engagement"`
	Children          int      `json:"children"`
	LifePropensity    float64  `json:"life_propensity"`
	NonLifePropensity float64  `json:"non_life_propensity"`
	Cluster           int      `json:"cluster"`
	OwnedProducts     []string `json:"owned_products"`
	NumPolicies       int      `json:"num_policies"`

	HasProtection bool `json:"has_protection"`
	HasSavings    bool `json:"has_savings"`
	HasPension    bool `json:"has_pension"`
}

// AreaLookup maps a product name to its need area. The second return value
// reports whether the product is known.
type AreaLookup func(product string) (NeedArea, bool)

// NewClientFeatures validates a raw record and fills missing numeric fields
// with the documented defaults. A missing field is never grounds for dropping
// the client; only a missing identifier is a contract violation.
func NewClientFeatures(raw RawClient, areaOf AreaLookup) (ClientFeatures, error) {
	if raw.ID == "" {
		return ClientFeatures{}, eris.New("model: client id is required")
	}
	if areaOf == nil {
		return ClientFeatures{}, eris.New("model: area lookup is required")
	}

	cf := ClientFeatures{
		ID:                raw.ID,
		Age:               intOr(raw.Age, DefaultAge),
		Income:            floatOr(raw.Income, DefaultIncome),
		TenureYears:       floatOr(raw.TenureYears, DefaultTenureYears),
		VisitsLastYear:    intOr(raw.VisitsLastYear, DefaultVisits),
		Satisfaction:      floatOr(raw.Satisfaction, DefaultSatisfaction),
		Complaints:        intOr(raw.Complaints, 0),
		Engagement:        floatOr(raw.Engagement, DefaultEngagement),
		Children:          intOr(raw.Children, DefaultChildren),
		LifePropensity:    clamp01(floatOr(raw.LifePropensity, 0.5)),
		NonLifePropensity: clamp01(floatOr(raw.NonLifePropensity, 0.5)),
		Cluster:           raw.Cluster,
		OwnedProducts:     append([]string(nil), raw.OwnedProducts...),
		NumPolicies:       len(raw.OwnedProducts),
	}

	for _, p := range cf.OwnedProducts {
		area, ok := areaOf(p)
		if !ok {
			zap.L().Warn("model: owned product not in catalog",
				zap.String("client_id", cf.ID),
				zap.String("product", p),
			)
			continue
		}
		switch area {
		case NeedProtection:
			cf.HasProtection = true
		case NeedSavings:
			cf.HasSavings = true
		case NeedPension:
			cf.HasPension = true
		}
	}

	return cf, nil
}

// Owns reports whether the client already holds the named product,
// compared via the supplied equality function.
func (c ClientFeatures) Owns(product string, equal func(a, b string) bool) bool {
	for _, p := range c.OwnedProducts {
		if equal(p, product) {
			return true
		}
	}
	return false
}

func intOr(v *int, def int) int {
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

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
