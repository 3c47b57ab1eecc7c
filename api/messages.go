package api

import (
	"net/http"

	"chatllm/internal/conversation"
	"chatllm/internal/log"
)

// MessageHandler handles single-message endpoints.
type MessageHandler struct {
	svc    *conversation.Service
	logger log.Logger
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(svc *conversation.Service, logger log.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers message routes on the given mux.
func (h *MessageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/messages/{id}", h.get)
	mux.HandleFunc("PATCH /api/messages/{id}", h.edit)
	mux.HandleFunc("DELETE /api/messages/{id}", h.delete)
	mux.HandleFunc("GET /api/messages/{id}/versions", h.versions)
}

func (h *MessageHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "message id must be a UUID")
		return
	}
	m, err := h.svc.Message(r.Context(), ownerFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, h.logger, "get message", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// EditMessageRequest is the body for editing a message.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// edit overwrites a user message's content. The prior content is kept as a
// version and listed under /versions.
func (h *MessageHandler) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "message id must be a UUID")
		return
	}
	var req EditMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "invalid_content", "content must not be empty")
		return
	}

	m, err := h.svc.Edit(r.Context(), ownerFrom(r.Context()), id, req.Content)
	if err != nil {
		writeServiceError(w, h.logger, "edit message", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// delete removes a message. A user message takes its immediate assistant
// reply with it.
func (h *MessageHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "message id must be a UUID")
		return
	}
	if err := h.svc.DeleteMessage(r.Context(), ownerFrom(r.Context()), id); err != nil {
		writeServiceError(w, h.logger, "delete message", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) versions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "message id must be a UUID")
		return
	}
	versions, err := h.svc.Versions(r.Context(), ownerFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, h.logger, "list versions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"versions": versions,
		"total":    len(versions),
	})
}
