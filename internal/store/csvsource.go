package store

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/helios-advisory/nbo-cli/internal/model"
)

// LoadClientsCSV reads a client snapshot from a headered CSV file. Columns
// are matched by name, so exports with extra or reordered columns still
// parse; empty cells stay absent so the enrichment stage can fill them.
func LoadClientsCSV(path string) ([]model.RawClient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	defer f.Close()

	clients, err := ParseClientsCSV(f)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: parse %s", path)
	}
	return clients, nil
}

// ParseClientsCSV parses client rows from r. The first row must be a header;
// the id column is required, everything else is optional.
func ParseClientsCSV(r io.Reader) ([]model.RawClient, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["id"]; !ok {
		return nil, eris.New("missing required column: id")
	}

	var clients []model.RawClient
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "read row %d", line+1)
		}
		line++

		cell := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		raw := model.RawClient{ID: cell("id")}
		if raw.ID == "" {
			zap.L().Warn("csv: skipping row with empty id", zap.Int("line", line))
			continue
		}

		if raw.Age, err = optInt(cell("age")); err != nil {
			return nil, eris.Wrapf(err, "row %d: age", line)
		}
		if raw.Income, err = optFloat(cell("income")); err != nil {
			return nil, eris.Wrapf(err, "row %d: income", line)
		}
		if raw.TenureYears, err = optFloat(cell("tenure_years")); err != nil {
			return nil, eris.Wrapf(err, "row %d: tenure_years", line)
		}
		if raw.VisitsLastYear, err = optInt(cell("visits_last_year")); err != nil {
			return nil, eris.Wrapf(err, "row %d: visits_last_year", line)
		}
		if raw.Satisfaction, err = optFloat(cell("satisfaction")); err != nil {
			return nil, eris.Wrapf(err, "row %d: satisfaction", line)
		}
		if raw.Complaints, err = optInt(cell("complaints")); err != nil {
			return nil, eris.Wrapf(err, "row %d: complaints", line)
		}
		if raw.Engagement, err = optFloat(cell("engagement")); err != nil {
			return nil, eris.Wrapf(err, "row %d: engagement", line)
		}
		if raw.Children, err = optInt(cell("children")); err != nil {
			return nil, eris.Wrapf(err, "row %d: children", line)
		}
		if raw.LifePropensity, err = optFloat(cell("life_propensity")); err != nil {
			return nil, eris.Wrapf(err, "row %d: life_propensity", line)
		}
		if raw.NonLifePropensity, err = optFloat(cell("non_life_propensity")); err != nil {
			return nil, eris.Wrapf(err, "row %d: non_life_propensity", line)
		}
		if c := cell("cluster"); c != "" {
			n, err := strconv.Atoi(c)
			if err != nil {
				return nil, eris.Wrapf(err, "row %d: cluster", line)
			}
			raw.Cluster = n
		}
		if owned := cell("owned_products"); owned != "" {
			for _, p := range strings.Split(owned, ";") {
				if p = strings.TrimSpace(p); p != "" {
					raw.OwnedProducts = append(raw.OwnedProducts, p)
				}
			}
		}

		clients = append(clients, raw)
	}
	return clients, nil
}

func optInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func optFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
