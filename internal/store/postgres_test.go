package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helios-advisory/nbo-cli/internal/eligibility"
	"github.com/helios-advisory/nbo-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS clients").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadClients(t *testing.T) {
	s, mock := newMockStore(t)

	c1, _ := json.Marshal(model.RawClient{ID: "c1", Cluster: 3})
	c2, _ := json.Marshal(model.RawClient{ID: "c2"})
	rows := pgxmock.NewRows([]string{"features"}).AddRow(c1).AddRow(c2)
	mock.ExpectQuery("SELECT features FROM clients ORDER BY id").WillReturnRows(rows)

	clients, err := s.LoadClients(context.Background())
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "c1", clients[0].ID)
	assert.Equal(t, 3, clients[0].Cluster)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FetchIndicators(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"client_id", "emailed", "called", "new_policy", "open_complaint", "claimed"}).
		AddRow("c1", true, false, false, false, false).
		AddRow("c2", false, false, false, true, true)
	mock.ExpectQuery("FROM interactions").
		WithArgs([]string{"c1", "c2", "c3"},
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(rows)

	out, err := s.FetchIndicators(context.Background(), []string{"c1", "c2", "c3"}, now, eligibility.DefaultWindows())
	require.NoError(t, err)
	assert.Equal(t, eligibility.Indicators{EmailedRecently: true}, out["c1"])
	assert.Equal(t, eligibility.Indicators{OpenComplaint: true, RecentClaim: true}, out["c2"])
	_, ok := out["c3"]
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FetchIndicatorsEmpty(t *testing.T) {
	s, _ := newMockStore(t)
	out, err := s.FetchIndicators(context.Background(), nil, time.Now(), eligibility.DefaultWindows())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestPostgres_RecordInteraction(t *testing.T) {
	s, mock := newMockStore(t)
	occurred := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO interactions").
		WithArgs(pgxmock.AnyArg(), "c1", "email", occurred, (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordInteraction(context.Background(), "c1", "email", occurred, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordInteractionResolved(t *testing.T) {
	s, mock := newMockStore(t)
	occurred := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	resolved := occurred.Add(14 * 24 * time.Hour)

	mock.ExpectExec("INSERT INTO interactions").
		WithArgs(pgxmock.AnyArg(), "c2", "complaint", occurred, &resolved).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordInteraction(context.Background(), "c2", "complaint", occurred, &resolved))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveRun(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO scoring_runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "hash1", true, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run := &ScoringRun{
		Weights:    model.ScoringWeights{Retention: 1},
		ConfigHash: "hash1",
		Filtered:   true,
		Candidates: []model.RankedCandidate{},
	}
	require.NoError(t, s.SaveRun(context.Background(), run))
	assert.NotEmpty(t, run.ID, "missing id gets generated")
	assert.False(t, run.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRun(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	weights, _ := json.Marshal(model.ScoringWeights{Retention: 2})
	candidates, _ := json.Marshal([]model.RankedCandidate{{ClientID: "c1", Score: 150}})
	rows := pgxmock.NewRows([]string{"id", "weights", "config_hash", "filtered", "candidates", "created_at"}).
		AddRow("run-1", weights, "h", false, candidates, created)
	mock.ExpectQuery("SELECT (.+) FROM scoring_runs WHERE id").
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, run.Weights.Retention)
	require.Len(t, run.Candidates, 1)
	assert.Equal(t, "c1", run.Candidates[0].ClientID)
	assert.Equal(t, created, run.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRunNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM scoring_runs WHERE id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "weights", "config_hash", "filtered", "candidates", "created_at"}))

	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPostgres_ListRuns(t *testing.T) {
	s, mock := newMockStore(t)

	weights, _ := json.Marshal(model.ScoringWeights{})
	candidates, _ := json.Marshal([]model.RankedCandidate{})
	rows := pgxmock.NewRows([]string{"id", "weights", "config_hash", "filtered", "candidates", "created_at"}).
		AddRow("run-2", weights, "", false, candidates, time.Now()).
		AddRow("run-1", weights, "", true, candidates, time.Now().Add(-time.Hour))
	mock.ExpectQuery("SELECT (.+) FROM scoring_runs ORDER BY created_at DESC").
		WithArgs(20).
		WillReturnRows(rows)

	runs, err := s.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
