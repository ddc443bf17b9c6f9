package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs [RUN_ID]",
	Short: "List persisted scoring runs or show one run's top candidates",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if len(args) == 1 {
			run, err := st.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Run:        %s\n", run.ID)
			fmt.Printf("Created:    %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("Weights:    retention=%.2f profitability=%.2f propensity=%.2f\n",
				run.Weights.Retention, run.Weights.Profitability, run.Weights.Propensity)
			fmt.Printf("Filtered:   %v\n", run.Filtered)
			fmt.Printf("Candidates: %d\n\n", len(run.Candidates))

			display := run.Candidates
			if limit > 0 && limit < len(display) {
				display = display[:limit]
			}
			return writeRankingTable(os.Stdout, display)
		}

		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		fmt.Printf("%-38s %-20s %-10s %-12s %s\n", "ID", "Created", "Filtered", "Candidates", "Weights")
		fmt.Println(strings.Repeat("-", 110))
		for _, r := range runs {
			fmt.Printf("%-38s %-20s %-10v %-12d %.1f/%.1f/%.1f\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Filtered,
				len(r.Candidates),
				r.Weights.Retention, r.Weights.Profitability, r.Weights.Propensity)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "maximum runs to list or candidates to show")
	rootCmd.AddCommand(runsCmd)
}
