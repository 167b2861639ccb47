package handlers

import (
	"net/http"

	"github.com/starkspartacus/ecompetition-sub002/metrics"
	"github.com/starkspartacus/ecompetition-sub002/services"
)

type AdminHandler struct {
	competitionService services.CompetitionService
	metrics            *metrics.Aggregator
}

func NewAdminHandler(cs services.CompetitionService, agg *metrics.Aggregator) *AdminHandler {
	return &AdminHandler{competitionService: cs, metrics: agg}
}

// ListMetrics godoc
// @Summary Timing summaries of recent operations
// @Description With key set, returns that key's summary and retained samples.
// @Tags admin
// @Produce json
// @Param key query string false "Metric key, e.g. \"sweep\" or \"GET /competitions\""
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /admin/metrics [get]
func (h *AdminHandler) ListMetrics(w http.ResponseWriter, r *http.Request) {
	response := jsonResponse{"metrics": h.metrics.All()}
	if key := r.URL.Query().Get("key"); key != "" {
		summary, ok := h.metrics.Snapshot(key)
		if !ok {
			notFoundResponse(w, r)
			return
		}
		response = jsonResponse{"summary": summary, "samples": h.metrics.Samples(key)}
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RunSweep godoc
// @Summary Apply schedule-driven status changes now
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /admin/sweep [post]
func (h *AdminHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	result, err := h.competitionService.RunSweep(r.Context(), actor)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
