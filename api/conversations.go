package api

import (
	"net/http"

	"chatllm/internal/conversation"
	"chatllm/internal/log"
	"chatllm/internal/store"
)

// Conversation validation constants.
const (
	MaxTitleLength   = 200
	DefaultListLimit = 100
	MaxListLimit     = 1000
	MaxListOffset    = 100000
)

// ConversationHandler handles conversation lifecycle endpoints.
type ConversationHandler struct {
	svc    *conversation.Service
	logger log.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(svc *conversation.Service, logger log.Logger) *ConversationHandler {
	return &ConversationHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers conversation routes on the given mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/conversations", h.list)
	mux.HandleFunc("POST /api/conversations", h.create)
	mux.HandleFunc("GET /api/conversations/{id}", h.get)
	mux.HandleFunc("PATCH /api/conversations/{id}", h.rename)
	mux.HandleFunc("DELETE /api/conversations/{id}", h.delete)
	mux.HandleFunc("POST /api/conversations/{id}/fork", h.fork)
	mux.HandleFunc("POST /api/conversations/{id}/clear", h.clear)
	mux.HandleFunc("GET /api/conversations/{id}/messages", h.messages)
	mux.HandleFunc("POST /api/conversations/{id}/messages", h.appendMessage)
}

// list returns the caller's conversations, most recently updated first.
// Query parameters: limit (default 100, max 1000) and offset.
func (h *ConversationHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	conversations, err := h.svc.List(r.Context(), ownerFrom(r.Context()), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, "list conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": conversations,
		"total":         len(conversations),
		"limit":         limit,
		"offset":        offset,
	})
}

// CreateConversationRequest is the body for creating a conversation.
type CreateConversationRequest struct {
	Title string `json:"title"`
}

func (h *ConversationHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Title) > MaxTitleLength {
		writeError(w, http.StatusBadRequest, "invalid_title", "title too long (max 200 characters)")
		return
	}

	conv, err := h.svc.Create(r.Context(), ownerFrom(r.Context()), req.Title)
	if err != nil {
		writeServiceError(w, h.logger, "create conversation", err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *ConversationHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "conversation id must be a UUID")
		return
	}
	conv, err := h.svc.Get(r.Context(), ownerFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, h.logger, "get conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// RenameConversationRequest is the body for renaming a conversation.
type RenameConversationRequest struct {
	Title string `json:"title"`
}

func (h *ConversationHandler) rename(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "conversation id must be a UUID")
		return
	}
	var req RenameConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == "" || len(req.Title) > MaxTitleLength {
		writeError(w, http.StatusBadRequest, "invalid_title", "title must be 1-200 characters")
		return
	}

	conv, err := h.svc.Rename(r.Context(), ownerFrom(r.Context()), id, req.Title)
	if err != nil {
		writeServiceError(w, h.logger, "rename conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "conversation id must be a UUID")
		return
	}
	if err := h.svc.Delete(r.Context(), ownerFrom(r.Context()), id); err != nil {
		writeServiceError(w, h.logger, "delete conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) fork(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "conversation id must be a UUID")
		return
	}
	fork, err := h.svc.Fork(r.Context(), ownerFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, h.logger, "fork conversation", err)
		return
	}
	writeJSON(w, http.StatusCreated, fork)
}

func (h *ConversationHandler) clear(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "conversation id must be a UUID")
		return
	}
	if err := h.svc.ClearHistory(r.Context(), ownerFrom(r.Context()), id); err != nil {
		writeServiceError(w, h.logger, "clear history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

func (h *ConversationHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "conversation id must be a UUID")
		return
	}
	messages, err := h.svc.History(r.Context(), ownerFrom(r.Context()), id)
	if err != nil {
		writeServiceError(w, h.logger, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"total":    len(messages),
	})
}

// AppendMessageRequest is the body for appending a message.
type AppendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (h *ConversationHandler) appendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "conversation id must be a UUID")
		return
	}
	var req AppendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "invalid_content", "content must not be empty")
		return
	}
	if _, err := store.ParseRole(req.Role); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_role", err.Error())
		return
	}

	m, err := h.svc.Append(r.Context(), ownerFrom(r.Context()), id, req.Role, req.Content)
	if err != nil {
		writeServiceError(w, h.logger, "append message", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}
