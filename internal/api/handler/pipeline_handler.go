package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ricirt/feedrelay/internal/service"
)

// defaultLogLimit is used when /logs is called without ?limit=.
const defaultLogLimit = 100

// PipelineHandler exposes the operator service over HTTP.
type PipelineHandler struct {
	svc    *service.PipelineService
	logger *zap.Logger
}

func NewPipelineHandler(svc *service.PipelineService, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{svc: svc, logger: logger}
}

// Start handles POST /api/v1/monitor/start
func (h *PipelineHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Start(r.Context()); err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "monitoring"})
}

// Stop handles POST /api/v1/monitor/stop
func (h *PipelineHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Stop(); err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// RunOnce handles POST /api/v1/monitor/run
//
// The run is synchronous: the response carries the poll and drain results.
func (h *PipelineHandler) RunOnce(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RunOnce(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Stats handles GET /api/v1/stats
func (h *PipelineHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.Stats())
}

// Logs handles GET /api/v1/logs?limit=
func (h *PipelineHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": h.svc.Logs(limit)})
}

// Queue handles GET /api/v1/queue?target=
func (h *PipelineHandler) Queue(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Queue(r.URL.Query().Get("target"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// ClearQueue handles DELETE /api/v1/queue?target=
func (h *PipelineHandler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ClearQueue(r.Context(), r.URL.Query().Get("target"))
	if err != nil {
		h.logger.Error("clear queue failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// Targets handles GET /api/v1/targets
func (h *PipelineHandler) Targets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"targets": h.svc.Targets()})
}

// ClearFailed handles DELETE /api/v1/targets/{name}/failed
func (h *PipelineHandler) ClearFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ClearFailed(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"cleared": n})
}
