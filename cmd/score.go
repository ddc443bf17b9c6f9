package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/helios-advisory/nbo-cli/internal/enrich"
	"github.com/helios-advisory/nbo-cli/internal/model"
	"github.com/helios-advisory/nbo-cli/internal/recommend"
)

var scoreCmd = &cobra.Command{
	Use:   "score CLIENT_ID",
	Short: "Score one client's candidate offers",
	Long: `Generate every candidate offer for a single client and print the
component breakdown: churn before and after, relative retention gain,
profitability, propensity, and cluster affinity.

Candidates print in default display order (unweighted component sum). Pass
weights to see the combined score the ranker would use.

Examples:
  score C-10231
  score C-10231 --w-retention 2.0`,
	Args: cobra.ExactArgs(1),
	RunE: runScoreOne,
}

func init() {
	f := scoreCmd.Flags()
	f.Float64("w-retention", -1, "retention weight (overrides config)")
	f.Float64("w-profitability", -1, "profitability weight (overrides config)")
	f.Float64("w-propensity", -1, "propensity weight (overrides config)")

	rootCmd.AddCommand(scoreCmd)
}

func runScoreOne(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clientID := args[0]
	weights := applyWeightOverrides(cmd, cfg.Weights)

	cat, err := loadCatalog()
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	raws, err := st.LoadClients(ctx)
	if err != nil {
		return err
	}

	var raw *model.RawClient
	for i := range raws {
		if raws[i].ID == clientID {
			raw = &raws[i]
			break
		}
	}
	if raw == nil {
		return eris.Errorf("score: client %q not found", clientID)
	}

	enrich.Client(raw)
	cf, err := model.NewClientFeatures(*raw, cat.AreaOf)
	if err != nil {
		return err
	}

	recs := recommend.NewGenerator(cat).Generate(cf)
	printClientScores(cf, recs, weights)
	return nil
}

func printClientScores(cf model.ClientFeatures, recs []model.Recommendation, w model.ScoringWeights) {
	fmt.Printf("Client:   %s\n", cf.ID)
	fmt.Printf("Cluster:  %d\n", cf.Cluster)
	fmt.Printf("Policies: %d (%d owned products)\n", cf.NumPolicies, len(cf.OwnedProducts))
	fmt.Printf("Weights:  retention=%.2f profitability=%.2f propensity=%.2f\n",
		w.Retention, w.Profitability, w.Propensity)

	if len(recs) == 0 {
		fmt.Println("\nNo candidates: client already owns every catalog product.")
		return
	}

	fmt.Println()
	for i, r := range recs {
		fmt.Printf("%d. %s (%s)\n", i+1, r.Product, r.NeedArea)
		fmt.Printf("   Weighted score:  %.2f\n", recommend.Score(r, w))
		fmt.Printf("   Retention gain:  %.2f (churn %.4f -> %.4f, delta %.4f)\n",
			r.RetentionGain, r.Churn.Before, r.Churn.After, r.Churn.Delta)
		fmt.Printf("   Profitability:   %.2f\n", r.Profitability)
		fmt.Printf("   Propensity:      %.2f\n", r.Propensity)
		fmt.Printf("   Cluster affinity: %.2f (informational)\n", r.ClusterAffinity)
	}
}
