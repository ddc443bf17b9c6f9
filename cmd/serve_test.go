package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helios-advisory/nbo-cli/internal/catalog"
	"github.com/helios-advisory/nbo-cli/internal/config"
	"github.com/helios-advisory/nbo-cli/internal/eligibility"
	"github.com/helios-advisory/nbo-cli/internal/model"
	"github.com/helios-advisory/nbo-cli/internal/recommend"
	"github.com/helios-advisory/nbo-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func intPtr(v int) *int { return &v }

func setTestConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	cfg = &config.Config{
		Weights: model.ScoringWeights{Retention: 1, Profitability: 1, Propensity: 1},
		Ranker:  config.RankerConfig{TopK: 100, FilterRecent: false},
		Eligibility: config.EligibilityConfig{
			Windows: eligibility.DefaultWindows(),
		},
	}
	t.Cleanup(func() { cfg = prev })
}

func newTestAPI(t *testing.T) (*apiServer, *store.SQLiteStore) {
	t.Helper()
	setTestConfig(t)

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	cat := catalog.Default()
	return &apiServer{st: st, cat: cat, ranker: buildRanker(cat, st)}, st
}

func newTestRouter(api *apiServer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", api.handleHealth)
	r.Get("/rank", api.handleRank)
	r.Get("/clients/{id}/recommendations", api.handleClientRecommendations)
	r.Get("/runs", api.handleListRuns)
	r.Get("/runs/{id}", api.handleGetRun)
	return r
}

func seedClients(t *testing.T, st *store.SQLiteStore) {
	t.Helper()
	require.NoError(t, st.SaveClients(context.Background(), []model.RawClient{
		{ID: "c1", Age: intPtr(38), Children: intPtr(2)},
		{ID: "c2", Age: intPtr(55)},
	}))
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	router := newTestRouter(api)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleRank(t *testing.T) {
	api, st := newTestAPI(t)
	seedClients(t, st)
	router := newTestRouter(api)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rank", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count      int                     `json:"count"`
		Candidates []model.RankedCandidate `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 10, resp.Count)

	for i := 1; i < len(resp.Candidates); i++ {
		assert.GreaterOrEqual(t, resp.Candidates[i-1].Score, resp.Candidates[i].Score)
	}
}

func TestNewGeneratorMemoizes(t *testing.T) {
	gen := newGenerator(catalog.Default())
	assert.IsType(t, &recommend.MemoGenerator{}, gen)
}

func TestHandleRank_RepeatedRequestsIdentical(t *testing.T) {
	api, st := newTestAPI(t)
	seedClients(t, st)
	router := newTestRouter(api)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/rank", nil))
	require.Equal(t, http.StatusOK, first.Code)

	// Second request over the unchanged snapshot serves from the memoized
	// generator and must be byte-identical.
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/rank", nil))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestHandleRank_LimitAndWeights(t *testing.T) {
	api, st := newTestAPI(t)
	seedClients(t, st)
	router := newTestRouter(api)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rank?limit=3&w_retention=0&w_profitability=1&w_propensity=0", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Candidates []model.RankedCandidate `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Candidates, 3)
	// With profitability-only weights the top candidate is the 0.95 product.
	assert.Equal(t, "Polizza Vita a Premio Unico: Futuro Sicuro", resp.Candidates[0].Product)
	assert.InDelta(t, 95.0, resp.Candidates[0].Score, 1e-9)
}

func TestHandleRank_BadParams(t *testing.T) {
	api, _ := newTestAPI(t)
	router := newTestRouter(api)

	for _, url := range []string{
		"/rank?w_retention=abc",
		"/rank?w_retention=-1",
		"/rank?limit=x",
		"/rank?filter=maybe",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "url %s", url)
	}
}

func TestHandleClientRecommendations(t *testing.T) {
	api, st := newTestAPI(t)
	seedClients(t, st)
	router := newTestRouter(api)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clients/c1/recommendations", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ClientID        string                 `json:"client_id"`
		Cluster         int                    `json:"cluster"`
		Recommendations []model.Recommendation `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "c1", resp.ClientID)
	assert.Len(t, resp.Recommendations, 5)
	// Age 38 with two children lands in the family cluster.
	assert.Equal(t, 3, resp.Cluster)
}

func TestHandleClientRecommendations_NotFound(t *testing.T) {
	api, st := newTestAPI(t)
	seedClients(t, st)
	router := newTestRouter(api)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clients/ghost/recommendations", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRuns(t *testing.T) {
	api, st := newTestAPI(t)
	router := newTestRouter(api)

	run := &store.ScoringRun{
		Weights:    model.ScoringWeights{Retention: 1},
		Candidates: []model.RankedCandidate{},
	}
	require.NoError(t, st.SaveRun(context.Background(), run))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Runs []store.ScoringRun `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/ghost", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGracefulShutdownDrainsInflight(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	release := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	})}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	type result struct {
		status int
		err    error
	}
	results := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err != nil {
			results <- result{err: err}
			return
		}
		resp.Body.Close()
		results <- result{status: resp.StatusCode}
	}()

	// Shut down while the request is blocked in the handler; the grace
	// period must let it finish instead of cutting the connection.
	time.Sleep(50 * time.Millisecond)
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	gracefulShutdown(srv, 5*time.Second)

	r := <-results
	require.NoError(t, r.err)
	assert.Equal(t, http.StatusOK, r.status)
	assert.ErrorIs(t, <-served, http.ErrServerClosed)
}

func TestWeightsFromQuery(t *testing.T) {
	base := model.ScoringWeights{Retention: 1, Profitability: 1, Propensity: 1}

	req := httptest.NewRequest(http.MethodGet, "/rank?w_retention=2&w_propensity=0.5", nil)
	w, err := weightsFromQuery(req, base)
	require.NoError(t, err)
	assert.Equal(t, 2.0, w.Retention)
	assert.Equal(t, 1.0, w.Profitability)
	assert.Equal(t, 0.5, w.Propensity)

	req = httptest.NewRequest(http.MethodGet, "/rank?w_retention=-2", nil)
	_, err = weightsFromQuery(req, base)
	require.Error(t, err)
}
