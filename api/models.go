package api

import (
	"net/http"

	"chatllm/internal/log"
	"chatllm/internal/provider"
)

// ModelHandler lists the models an endpoint offers.
type ModelHandler struct {
	models ModelLister
	logger log.Logger
}

// NewModelHandler creates a model handler.
func NewModelHandler(models ModelLister, logger log.Logger) *ModelHandler {
	return &ModelHandler{models: models, logger: logger}
}

// RegisterRoutes registers model routes on the given mux.
func (h *ModelHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/models", h.list)
}

// ModelsRequest carries the endpoint to query. POST rather than GET so the
// API key travels in the body, not the URL.
type ModelsRequest struct {
	provider.Endpoint
}

func (h *ModelHandler) list(w http.ResponseWriter, r *http.Request) {
	var req ModelsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	models, err := h.models.ListModels(r.Context(), req.Endpoint)
	if err != nil {
		h.logger.Error("listing models failed", "error", err)
		writeError(w, http.StatusBadGateway, "provider_error", "could not list models")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models": models,
		"total":  len(models),
	})
}
