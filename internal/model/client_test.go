package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testAreaOf(product string) (NeedArea, bool) {
	switch {
	case strings.HasPrefix(product, "prot-"):
		return NeedProtection, true
	case strings.HasPrefix(product, "sav-"):
		return NeedSavings, true
	case strings.HasPrefix(product, "pen-"):
		return NeedPension, true
	default:
		return "", false
	}
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestNewClientFeatures_RequiresID(t *testing.T) {
	_, err := NewClientFeatures(RawClient{}, testAreaOf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client id is required")
}

func TestNewClientFeatures_RequiresAreaLookup(t *testing.T) {
	_, err := NewClientFeatures(RawClient{ID: "c1"}, nil)
	require.Error(t, err)
}

func TestNewClientFeatures_Defaults(t *testing.T) {
	cf, err := NewClientFeatures(RawClient{ID: "c1"}, testAreaOf)
	require.NoError(t, err)

	assert.Equal(t, DefaultAge, cf.Age)
	assert.Equal(t, DefaultIncome, cf.Income)
	assert.Equal(t, DefaultTenureYears, cf.TenureYears)
	assert.Equal(t, DefaultVisits, cf.VisitsLastYear)
	assert.Equal(t, DefaultSatisfaction, cf.Satisfaction)
	assert.Equal(t, 0, cf.Complaints)
	assert.Equal(t, DefaultEngagement, cf.Engagement)
	assert.Equal(t, DefaultChildren, cf.Children)
	assert.Equal(t, 0.5, cf.LifePropensity)
	assert.Equal(t, 0.5, cf.NonLifePropensity)
	assert.Equal(t, 0, cf.NumPolicies)
}

func TestNewClientFeatures_PresentFieldsKept(t *testing.T) {
	raw := RawClient{
		ID:             "c2",
		Age:            intPtr(0),
		Income:         floatPtr(0),
		Satisfaction:   floatPtr(0),
		VisitsLastYear: intPtr(0),
	}
	cf, err := NewClientFeatures(raw, testAreaOf)
	require.NoError(t, err)

	// Explicit zero is a value, not an absence.
	assert.Equal(t, 0, cf.Age)
	assert.Equal(t, 0.0, cf.Income)
	assert.Equal(t, 0.0, cf.Satisfaction)
	assert.Equal(t, 0, cf.VisitsLastYear)
}

func TestNewClientFeatures_PropensityClamped(t *testing.T) {
	raw := RawClient{
		ID:                "c3",
		LifePropensity:    floatPtr(1.7),
		NonLifePropensity: floatPtr(-0.3),
	}
	cf, err := NewClientFeatures(raw, testAreaOf)
	require.NoError(t, err)
	assert.Equal(t, 1.0, cf.LifePropensity)
	assert.Equal(t, 0.0, cf.NonLifePropensity)
}

func TestNewClientFeatures_OwnedAreaFlags(t *testing.T) {
	tests := []struct {
		name     string
		owned    []string
		wantProt bool
		wantSav  bool
		wantPen  bool
	}{
		{"none", nil, false, false, false},
		{"protection only", []string{"prot-a"}, true, false, false},
		{"savings and pension", []string{"sav-a", "pen-a"}, false, true, true},
		{"all areas", []string{"prot-a", "sav-a", "pen-a"}, true, true, true},
		{"unknown product ignored", []string{"mystery"}, false, false, false},
		{"unknown among known", []string{"mystery", "prot-a"}, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cf, err := NewClientFeatures(RawClient{ID: "c4", OwnedProducts: tt.owned}, testAreaOf)
			require.NoError(t, err)
			assert.Equal(t, tt.wantProt, cf.HasProtection)
			assert.Equal(t, tt.wantSav, cf.HasSavings)
			assert.Equal(t, tt.wantPen, cf.HasPension)
			assert.Equal(t, len(tt.owned), cf.NumPolicies)
		})
	}
}

func TestOwns(t *testing.T) {
	cf, err := NewClientFeatures(RawClient{ID: "c5", OwnedProducts: []string{"prot-a", "sav-b"}}, testAreaOf)
	require.NoError(t, err)

	equalFold := func(a, b string) bool { return strings.EqualFold(a, b) }
	assert.True(t, cf.Owns("PROT-A", equalFold))
	assert.True(t, cf.Owns("sav-b", equalFold))
	assert.False(t, cf.Owns("pen-c", equalFold))
}

func TestScoringWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		w       ScoringWeights
		wantErr bool
	}{
		{"defaults", ScoringWeights{1, 1, 1}, false},
		{"all zero is legal", ScoringWeights{}, false},
		{"negative retention", ScoringWeights{Retention: -0.1}, true},
		{"negative profitability", ScoringWeights{Profitability: -1}, true},
		{"negative propensity", ScoringWeights{Propensity: -0.001}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.w.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestComponentSum(t *testing.T) {
	r := Recommendation{
		RetentionGain:   10,
		Profitability:   20,
		Propensity:      30,
		ClusterAffinity: 40,
	}
	assert.Equal(t, 100.0, r.ComponentSum())
}
