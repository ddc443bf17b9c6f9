package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helios-advisory/nbo-cli/internal/catalog"
	"github.com/helios-advisory/nbo-cli/internal/enrich"
	"github.com/helios-advisory/nbo-cli/internal/model"
	"github.com/helios-advisory/nbo-cli/internal/recommend"
	"github.com/helios-advisory/nbo-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for rankings and per-client recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cat, err := loadCatalog()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		api := &apiServer{
			st:     st,
			cat:    cat,
			ranker: buildRanker(cat, st),
		}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", api.handleHealth)
		r.Get("/rank", api.handleRank)
		r.Get("/clients/{id}/recommendations", api.handleClientRecommendations)
		r.Get("/runs", api.handleListRuns)
		r.Get("/runs/{id}", api.handleGetRun)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			gracefulShutdown(srv, shutdownGrace)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// shutdownGrace is how long in-flight requests get to drain on SIGINT/SIGTERM.
const shutdownGrace = 10 * time.Second

// gracefulShutdown drains the server on a fresh deadline context. The signal
// context that triggered the shutdown is already canceled and would abort
// in-flight requests immediately.
func gracefulShutdown(srv *http.Server, grace time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
}

type apiServer struct {
	st     store.Store
	cat    *catalog.Catalog
	ranker *recommend.Ranker
}

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRank runs a full portfolio ranking. Weights and the top-N cut come
// from query parameters, falling back to config.
func (a *apiServer) handleRank(w http.ResponseWriter, r *http.Request) {
	weights, err := weightsFromQuery(r, cfg.Weights)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	filter := cfg.Ranker.FilterRecent
	if v := r.URL.Query().Get("filter"); v != "" {
		filter, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "invalid filter parameter"))
			return
		}
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, eris.New("invalid limit parameter"))
			return
		}
	}

	raws, err := a.st.LoadClients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	enrich.Clients(raws)

	features, err := buildFeatures(raws, a.cat)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	candidates, err := a.ranker.Rank(r.Context(), features, weights, filter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"weights":    weights,
		"filtered":   filter,
		"count":      len(candidates),
		"candidates": candidates,
	})
}

// handleClientRecommendations returns one client's candidates in default
// display order, with the full component breakdown.
func (a *apiServer) handleClientRecommendations(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "id")

	raws, err := a.st.LoadClients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	var raw *model.RawClient
	for i := range raws {
		if raws[i].ID == clientID {
			raw = &raws[i]
			break
		}
	}
	if raw == nil {
		writeError(w, http.StatusNotFound, eris.Errorf("client %q not found", clientID))
		return
	}

	enrich.Client(raw)
	cf, err := model.NewClientFeatures(*raw, a.cat.AreaOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	recs := recommend.NewGenerator(a.cat).Generate(cf)
	writeJSON(w, http.StatusOK, map[string]any{
		"client_id":       cf.ID,
		"cluster":         cf.Cluster,
		"recommendations": recs,
	})
}

func (a *apiServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, eris.New("invalid limit parameter"))
			return
		}
		limit = n
	}

	runs, err := a.st.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *apiServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.st.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// weightsFromQuery overlays w_retention / w_profitability / w_propensity
// query parameters on the base weights.
func weightsFromQuery(r *http.Request, base model.ScoringWeights) (model.ScoringWeights, error) {
	weights := base
	q := r.URL.Query()

	params := []struct {
		name string
		dst  *float64
	}{
		{"w_retention", &weights.Retention},
		{"w_profitability", &weights.Profitability},
		{"w_propensity", &weights.Propensity},
	}
	for _, p := range params {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return weights, eris.Errorf("invalid %s parameter", p.name)
		}
		*p.dst = f
	}
	return weights, weights.Validate()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
