// Package store persists client snapshots, interaction history, and scoring
// runs behind one interface with Postgres and SQLite backends.
package store

import (
	"context"
	"time"

	"github.com/helios-advisory/nbo-cli/internal/eligibility"
	"github.com/helios-advisory/nbo-cli/internal/model"
)

// ScoringRun is one persisted ranking pass: the inputs that shaped it and
// the ordered output it produced.
type ScoringRun struct {
	ID         string                  `json:"id"`
	Weights    model.ScoringWeights    `json:"weights"`
	ConfigHash string                  `json:"config_hash"`
	Filtered   bool                    `json:"filtered"`
	Candidates []model.RankedCandidate `json:"candidates"`
	CreatedAt  time.Time               `json:"created_at"`
}

// Store is the persistence interface for the recommendation engine. It also
// serves as the eligibility indicator source (it satisfies
// eligibility.Source via FetchIndicators).
type Store interface {
	// Clients
	LoadClients(ctx context.Context) ([]model.RawClient, error)
	SaveClients(ctx context.Context, clients []model.RawClient) error

	// Eligibility side-channel and the interaction history feeding it
	FetchIndicators(ctx context.Context, ids []string, now time.Time, w eligibility.Windows) (map[string]eligibility.Indicators, error)
	RecordInteraction(ctx context.Context, clientID, kind string, occurredAt time.Time, resolvedAt *time.Time) error

	// Scoring runs
	SaveRun(ctx context.Context, run *ScoringRun) error
	GetRun(ctx context.Context, runID string) (*ScoringRun, error)
	ListRuns(ctx context.Context, limit int) ([]ScoringRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

var _ eligibility.Source = (Store)(nil)
