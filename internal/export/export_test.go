package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/helios-advisory/nbo-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func sampleCandidates() []model.RankedCandidate {
	return []model.RankedCandidate{
		{
			ClientID: "c1",
			Recommendation: model.Recommendation{
				Product:       "Polizza Vita a Premio Unico: Futuro Sicuro",
				NeedArea:      model.NeedSavings,
				RetentionGain: 100,
				Profitability: 95,
				Propensity:    60,
				Churn:         model.ChurnDetail{Before: 0.0861, After: 0.0412, Delta: 0.0449},
			},
			Score: 255,
		},
		{
			ClientID: "c2",
			Recommendation: model.Recommendation{
				Product:       "Assicurazione Casa e Famiglia: Casa Serena",
				NeedArea:      model.NeedProtection,
				RetentionGain: 71.5,
				Profitability: 58,
				Propensity:    40,
				Churn:         model.ChurnDetail{Before: 0.102, After: 0.071, Delta: 0.031},
			},
			Score: 169.5,
		},
	}
}

func TestWriteRankingCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRankingCSV(&buf, sampleCandidates()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, rankingHeader, records[0])
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "c1", records[1][1])
	assert.Equal(t, "255.00", records[1][4])
	assert.Equal(t, "0.0861", records[1][8])
	assert.Equal(t, "2", records[2][0])
	assert.Equal(t, "Assicurazione Casa e Famiglia: Casa Serena", records[2][2])
}

func TestWriteRankingCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRankingCSV(&buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1, "header only")
}

func TestSaveRankingCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranking.csv")
	require.NoError(t, SaveRankingCSV(path, sampleCandidates()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestSaveRankingXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranking.xlsx")
	require.NoError(t, SaveRankingXLSX(path, sampleCandidates()))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "Ranking", sheet.Name)
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, "rank", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "c1", sheet.Rows[1].Cells[1].String())
	assert.Equal(t, "Savings and Investment", sheet.Rows[1].Cells[3].String())

	score, err := sheet.Rows[1].Cells[4].Float()
	require.NoError(t, err)
	assert.InDelta(t, 255.0, score, 1e-9)
}
