package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios-advisory/nbo-cli/internal/catalog"
	"github.com/helios-advisory/nbo-cli/internal/config"
	"github.com/helios-advisory/nbo-cli/internal/model"
)

func newWeightFlagCmd() *cobra.Command {
	c := &cobra.Command{Use: "test"}
	c.Flags().Float64("w-retention", -1, "")
	c.Flags().Float64("w-profitability", -1, "")
	c.Flags().Float64("w-propensity", -1, "")
	return c
}

func TestApplyWeightOverrides(t *testing.T) {
	base := model.ScoringWeights{Retention: 1, Profitability: 1, Propensity: 1}

	t.Run("no flags keeps base", func(t *testing.T) {
		c := newWeightFlagCmd()
		require.NoError(t, c.ParseFlags(nil))
		assert.Equal(t, base, applyWeightOverrides(c, base))
	})

	t.Run("overrides apply", func(t *testing.T) {
		c := newWeightFlagCmd()
		require.NoError(t, c.ParseFlags([]string{"--w-retention=2", "--w-propensity=0.25"}))
		w := applyWeightOverrides(c, base)
		assert.Equal(t, 2.0, w.Retention)
		assert.Equal(t, 1.0, w.Profitability)
		assert.Equal(t, 0.25, w.Propensity)
	})

	t.Run("explicit zero is honored", func(t *testing.T) {
		c := newWeightFlagCmd()
		require.NoError(t, c.ParseFlags([]string{"--w-retention=0"}))
		w := applyWeightOverrides(c, base)
		assert.Equal(t, 0.0, w.Retention)
	})
}

func TestRunConfigHash(t *testing.T) {
	cat := catalog.Default()
	base := model.ScoringWeights{Retention: 1, Profitability: 1, Propensity: 1}
	rc := config.RankerConfig{TopK: 100, FilterRecent: true}

	h := runConfigHash(base, cat, rc)
	require.NotEmpty(t, h)
	assert.Equal(t, h, runConfigHash(base, cat, rc))

	bumped := base
	bumped.Retention = 2
	assert.NotEqual(t, h, runConfigHash(bumped, cat, rc), "hash must cover weights")

	other := catalog.New([]catalog.ProductInfo{
		{Name: "Prodotto Unico", NeedArea: model.NeedSavings, Profitability: 0.5},
	}, nil)
	assert.NotEqual(t, h, runConfigHash(base, other, rc), "hash must cover the product table")

	tuned := rc
	tuned.TopK = 50
	assert.NotEqual(t, h, runConfigHash(base, cat, tuned))
}

func TestWriteRankingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.txt")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	candidates := []model.RankedCandidate{
		{
			ClientID: "c1",
			Recommendation: model.Recommendation{
				Product:  "Polizza Salute e Infortuni: Salute Protetta",
				NeedArea: model.NeedProtection,
			},
			Score: 210.5,
		},
	}
	require.NoError(t, writeRankingTable(f, candidates))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "c1")
	assert.Contains(t, out, "Salute Protetta")
	assert.Contains(t, out, "210.50")
	assert.True(t, strings.HasPrefix(out, "Rank"))
}
