// Package export writes ranking results to CSV and XLSX files for handoff to
// agency teams.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/helios-advisory/nbo-cli/internal/model"
)

var rankingHeader = []string{
	"rank", "client_id", "product", "need_area",
	"score", "retention_gain", "profitability", "propensity",
	"churn_before", "churn_after",
}

// WriteRankingCSV streams a ranked candidate list to w as CSV.
func WriteRankingCSV(w io.Writer, candidates []model.RankedCandidate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rankingHeader); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for i, c := range candidates {
		row := []string{
			strconv.Itoa(i + 1),
			c.ClientID,
			c.Product,
			string(c.NeedArea),
			formatScore(c.Score),
			formatScore(c.RetentionGain),
			formatScore(c.Profitability),
			formatScore(c.Propensity),
			formatProb(c.Churn.Before),
			formatProb(c.Churn.After),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "export: write csv row %d", i+1)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// SaveRankingCSV writes a ranked candidate list to a CSV file.
func SaveRankingCSV(path string, candidates []model.RankedCandidate) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	if err := WriteRankingCSV(f, candidates); err != nil {
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// SaveRankingXLSX writes a ranked candidate list to an XLSX workbook with a
// single "Ranking" sheet.
func SaveRankingXLSX(path string, candidates []model.RankedCandidate) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Ranking")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range rankingHeader {
		header.AddCell().SetString(h)
	}

	for i, c := range candidates {
		row := sheet.AddRow()
		row.AddCell().SetInt(i + 1)
		row.AddCell().SetString(c.ClientID)
		row.AddCell().SetString(c.Product)
		row.AddCell().SetString(string(c.NeedArea))
		row.AddCell().SetFloatWithFormat(c.Score, "0.00")
		row.AddCell().SetFloatWithFormat(c.RetentionGain, "0.00")
		row.AddCell().SetFloatWithFormat(c.Profitability, "0.00")
		row.AddCell().SetFloatWithFormat(c.Propensity, "0.00")
		row.AddCell().SetFloatWithFormat(c.Churn.Before, "0.0000")
		row.AddCell().SetFloatWithFormat(c.Churn.After, "0.0000")
	}

	return eris.Wrapf(file.Save(path), "export: save %s", path)
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatProb(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
