package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helios-advisory/nbo-cli/internal/catalog"
	"github.com/helios-advisory/nbo-cli/internal/config"
	"github.com/helios-advisory/nbo-cli/internal/enrich"
	"github.com/helios-advisory/nbo-cli/internal/export"
	"github.com/helios-advisory/nbo-cli/internal/model"
	"github.com/helios-advisory/nbo-cli/internal/recommend"
	"github.com/helios-advisory/nbo-cli/internal/store"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank the full portfolio into one prioritized contact list",
	Long: `Generate and score every (client, product) candidate across the whole
portfolio, sort descending by weighted score, and drop clients recently
contacted or with open complaints or claims.

Examples:
  # Rank everything in the store with config weights
  rank

  # Emphasize retention, show the top 20
  rank --w-retention 2.0 --limit 20

  # Rank a CSV snapshot without touching the store
  rank --input clients.csv

  # Export the full list and persist the run
  rank --format xlsx --output ranking.xlsx --save`,
	RunE: runRank,
}

func init() {
	f := rankCmd.Flags()
	f.String("input", "", "CSV snapshot to rank instead of the store")
	f.Float64("w-retention", -1, "retention weight (overrides config)")
	f.Float64("w-profitability", -1, "profitability weight (overrides config)")
	f.Float64("w-propensity", -1, "propensity weight (overrides config)")
	f.Int("top-k", 0, "eligibility check window size (overrides config)")
	f.Bool("no-filter", false, "skip the recent-interaction eligibility filter")
	f.Int("limit", 0, "maximum rows to display or export (0=all)")
	f.String("output", "", "output file path (default: stdout)")
	f.String("format", "table", "output format: table, csv, or xlsx")
	f.Bool("save", false, "persist the run to the store")

	rootCmd.AddCommand(rankCmd)
}

func runRank(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := zap.L().With(zap.String("command", "rank"))

	inputPath, _ := cmd.Flags().GetString("input")
	noFilter, _ := cmd.Flags().GetBool("no-filter")
	limit, _ := cmd.Flags().GetInt("limit")
	outputPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	save, _ := cmd.Flags().GetBool("save")

	if format != "table" && format != "csv" && format != "xlsx" {
		return eris.Errorf("rank: --format must be table, csv, or xlsx (got %q)", format)
	}
	if format == "xlsx" && outputPath == "" {
		return eris.New("rank: --format xlsx requires --output")
	}

	if v, _ := cmd.Flags().GetInt("top-k"); v > 0 {
		cfg.Ranker.TopK = v
	}
	weights := applyWeightOverrides(cmd, cfg.Weights)

	cat, err := loadCatalog()
	if err != nil {
		return err
	}

	// A CSV snapshot ranks without a store; eligibility history lives in the
	// store, so filtering needs one either way.
	var st store.Store
	var raws []model.RawClient
	if inputPath != "" {
		raws, err = store.LoadClientsCSV(inputPath)
		if err != nil {
			return err
		}
	}
	if inputPath == "" || (!noFilter && cfg.Ranker.FilterRecent) {
		st, err = openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
	}
	if inputPath == "" {
		raws, err = st.LoadClients(ctx)
		if err != nil {
			return err
		}
	}
	if len(raws) == 0 {
		fmt.Println("No clients to rank.")
		return nil
	}

	enrich.Clients(raws)
	features, err := buildFeatures(raws, cat)
	if err != nil {
		return err
	}

	var src store.Store
	if st != nil {
		src = st
	}
	ranker := buildRanker(cat, src)

	filterRecent := cfg.Ranker.FilterRecent && !noFilter
	log.Info("ranking portfolio",
		zap.Int("clients", len(features)),
		zap.Bool("filter_recent", filterRecent),
		zap.Float64("w_retention", weights.Retention),
		zap.Float64("w_profitability", weights.Profitability),
		zap.Float64("w_propensity", weights.Propensity),
	)

	candidates, err := ranker.Rank(ctx, features, weights, filterRecent)
	if err != nil {
		return err
	}
	log.Info("ranking complete", zap.Int("candidates", len(candidates)))

	if save {
		if st == nil {
			return eris.New("rank: --save requires a store (remove --input or configure one)")
		}
		run := &store.ScoringRun{
			Weights:    weights,
			ConfigHash: runConfigHash(weights, cat, cfg.Ranker),
			Filtered:   filterRecent,
			Candidates: candidates,
		}
		if err := st.SaveRun(ctx, run); err != nil {
			return err
		}
		fmt.Printf("Run saved: %s\n", run.ID)
	}

	display := candidates
	if limit > 0 && limit < len(display) {
		display = display[:limit]
	}

	return outputRanking(display, format, outputPath)
}

// runConfigHash fingerprints everything that shaped a persisted run: the
// effective weights, the product table, and the ranker tuning. Two runs with
// the same hash and the same client snapshot are reproducible.
func runConfigHash(w model.ScoringWeights, cat *catalog.Catalog, rc config.RankerConfig) string {
	return recommend.ConfigHash(struct {
		Weights  model.ScoringWeights  `json:"weights"`
		Products []catalog.ProductInfo `json:"products"`
		Ranker   config.RankerConfig   `json:"ranker"`
	}{w, cat.Products(), rc})
}

// applyWeightOverrides returns the config weights with CLI flag overrides
// applied. Negative sentinel means "flag not set"; an explicit 0 is honored.
func applyWeightOverrides(cmd *cobra.Command, base model.ScoringWeights) model.ScoringWeights {
	w := base
	if v, _ := cmd.Flags().GetFloat64("w-retention"); v >= 0 {
		w.Retention = v
	}
	if v, _ := cmd.Flags().GetFloat64("w-profitability"); v >= 0 {
		w.Profitability = v
	}
	if v, _ := cmd.Flags().GetFloat64("w-propensity"); v >= 0 {
		w.Propensity = v
	}
	return w
}

func outputRanking(candidates []model.RankedCandidate, format, outputPath string) error {
	switch format {
	case "xlsx":
		return export.SaveRankingXLSX(outputPath, candidates)
	case "csv":
		if outputPath != "" {
			return export.SaveRankingCSV(outputPath, candidates)
		}
		return export.WriteRankingCSV(os.Stdout, candidates)
	default:
		w := os.Stdout
		if outputPath != "" {
			f, err := os.Create(outputPath)
			if err != nil {
				return eris.Wrapf(err, "rank: create output file %s", outputPath)
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		return writeRankingTable(w, candidates)
	}
}

func writeRankingTable(w *os.File, candidates []model.RankedCandidate) error {
	header := fmt.Sprintf("%-5s %-12s %-55s %-22s %8s %8s %8s %8s\n",
		"Rank", "Client", "Product", "Area", "Score", "Ret", "Prof", "Prop")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "rank: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 132)); err != nil {
		return eris.Wrap(err, "rank: write table separator")
	}

	for i, c := range candidates {
		name := c.Product
		if len(name) > 55 {
			name = name[:52] + "..."
		}
		line := fmt.Sprintf("%-5d %-12s %-55s %-22s %8.2f %8.2f %8.2f %8.2f\n",
			i+1, c.ClientID, name, c.NeedArea, c.Score,
			c.RetentionGain, c.Profitability, c.Propensity)
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "rank: write table row")
		}
	}
	return nil
}
