package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helios-advisory/nbo-cli/internal/enrich"
	"github.com/helios-advisory/nbo-cli/internal/model"
	"github.com/helios-advisory/nbo-cli/internal/store"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Import a client snapshot, fill missing fields, and save it",
	Long: `Load clients from a CSV snapshot (or re-read the store), fill absent
propensity, engagement, and satisfaction fields with deterministic synthetic
values, assign clusters where missing, and upsert the result into the store.

Enrichment is idempotent: the same client id always yields the same synthetic
values, and fields already present are never overwritten.

Examples:
  enrich --input clients.csv
  enrich            # refresh the stored snapshot in place`,
	RunE: runEnrich,
}

func init() {
	enrichCmd.Flags().String("input", "", "CSV snapshot to import (default: re-enrich the store)")
	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inputPath, _ := cmd.Flags().GetString("input")

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	clients, err := loadSnapshot(ctx, st, inputPath)
	if err != nil {
		return err
	}
	if len(clients) == 0 {
		fmt.Println("No clients to enrich.")
		return nil
	}

	enrich.Clients(clients)

	if err := st.SaveClients(ctx, clients); err != nil {
		return err
	}

	zap.L().Info("enrichment complete",
		zap.Int("clients", len(clients)),
		zap.String("source", sourceName(inputPath)),
	)
	fmt.Printf("Enriched and saved %d clients.\n", len(clients))
	return nil
}

func loadSnapshot(ctx context.Context, st store.Store, inputPath string) ([]model.RawClient, error) {
	if inputPath != "" {
		return store.LoadClientsCSV(inputPath)
	}
	clients, err := st.LoadClients(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: load stored snapshot")
	}
	return clients, nil
}

func sourceName(inputPath string) string {
	if inputPath == "" {
		return "store"
	}
	return inputPath
}
