package server

import (
	"context"
	"encoding/json"
	"net/http"

	"soundscape/cache"
	"soundscape/config"
	"soundscape/core/catalog"
	"soundscape/core/compose"
	"soundscape/core/entitle"
	"soundscape/core/ledger"
	"soundscape/core/render"
	"soundscape/logger"
	"soundscape/storage"
)

// progressStore is the slice of the progress cache the export handlers use.
type progressStore interface {
	Set(ctx context.Context, p cache.Progress) error
	SetIfAbsent(ctx context.Context, p cache.Progress) (bool, error)
	Get(ctx context.Context, jobID string) (cache.Progress, bool, error)
}

// APIHandler carries the wired services behind every route.
type APIHandler struct {
	cfg      *config.Config
	catalog  *catalog.Catalog
	composer *compose.Composer
	renderer *render.Renderer
	ledger   *ledger.Service
	entitle  *entitle.Service
	exports  *storage.ExportStore
	progress progressStore
	balances *cache.BalanceCache
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(
	cfg *config.Config,
	cat *catalog.Catalog,
	composer *compose.Composer,
	renderer *render.Renderer,
	ledgerSvc *ledger.Service,
	entitleSvc *entitle.Service,
	exports *storage.ExportStore,
	progress progressStore,
	balances *cache.BalanceCache,
) *APIHandler {
	return &APIHandler{
		cfg:      cfg,
		catalog:  cat,
		composer: composer,
		renderer: renderer,
		ledger:   ledgerSvc,
		entitle:  entitleSvc,
		exports:  exports,
		progress: progress,
		balances: balances,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// HealthHandler reports liveness.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
