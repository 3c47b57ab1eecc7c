package api

import (
	"net/http"

	"chatllm/internal/chat"
	"chatllm/internal/conversation"
	"chatllm/internal/log"
	"chatllm/internal/provider"
	"chatllm/internal/store"
)

// MaxMessageLength bounds the user message of a completion request.
const MaxMessageLength = 100000

// CompletionHandler runs chat completions and regenerations and persists
// the resulting turns.
type CompletionHandler struct {
	svc    *conversation.Service
	chat   Orchestrator
	logger log.Logger
}

// NewCompletionHandler creates a completion handler.
func NewCompletionHandler(svc *conversation.Service, orch Orchestrator, logger log.Logger) *CompletionHandler {
	return &CompletionHandler{svc: svc, chat: orch, logger: logger}
}

// RegisterRoutes registers completion routes on the given mux.
func (h *CompletionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/conversations/{id}/chat", h.complete)
	mux.HandleFunc("POST /api/messages/{id}/regenerate", h.regenerate)
}

// CompletionRequest is the body for running a completion. The endpoint
// fields select the provider for this request only; credentials are never
// stored.
type CompletionRequest struct {
	provider.Endpoint

	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt"`
	UseContext   bool   `json:"use_context"`
}

// CompletionResponse is the completion result.
type CompletionResponse struct {
	Response     string         `json:"response"`
	UsedContext  bool           `json:"used_context"`
	UserMessage  *store.Message `json:"user_message"`
	ReplyMessage *store.Message `json:"reply_message"`
}

// complete answers a new user message. The exchange is persisted only after
// the provider call succeeds: first the user turn, then the assistant turn.
func (h *CompletionHandler) complete(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "conversation id must be a UUID")
		return
	}
	var req CompletionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_message", "message must not be empty")
		return
	}
	if len(req.Message) > MaxMessageLength {
		writeError(w, http.StatusBadRequest, "invalid_message", "message too long")
		return
	}

	owner := ownerFrom(r.Context())
	history, err := h.svc.History(r.Context(), owner, conversationID)
	if err != nil {
		writeServiceError(w, h.logger, "load history", err)
		return
	}

	resp, err := h.chat.Complete(r.Context(), chat.Request{
		Endpoint:     req.Endpoint,
		History:      history,
		NewMessage:   req.Message,
		SystemPrompt: req.SystemPrompt,
		UseContext:   req.UseContext,
		Scope:        &conversationID,
	})
	if err != nil {
		h.logger.Error("completion failed", "conversation", conversationID, "error", err)
		writeError(w, http.StatusBadGateway, "provider_error", "completion failed")
		return
	}

	userMsg, err := h.svc.Append(r.Context(), owner, conversationID, "user", req.Message)
	if err != nil {
		writeServiceError(w, h.logger, "persist user message", err)
		return
	}
	reply, err := h.svc.Append(r.Context(), owner, conversationID, "assistant", resp.Text)
	if err != nil {
		writeServiceError(w, h.logger, "persist reply", err)
		return
	}

	writeJSON(w, http.StatusOK, CompletionResponse{
		Response:     resp.Text,
		UsedContext:  resp.UsedContext,
		UserMessage:  userMsg,
		ReplyMessage: reply,
	})
}

// RegenerateRequest is the body for regenerating an assistant reply.
type RegenerateRequest struct {
	provider.Endpoint

	SystemPrompt string `json:"system_prompt"`
	UseContext   bool   `json:"use_context"`
}

// RegenerateResponse is the regeneration result.
type RegenerateResponse struct {
	Response    string         `json:"response"`
	UsedContext bool           `json:"used_context"`
	Message     *store.Message `json:"message"`
}

// regenerate re-answers the user message preceding an assistant reply and
// overwrites the reply in place. The replaced content survives as a version.
func (h *CompletionHandler) regenerate(w http.ResponseWriter, r *http.Request) {
	messageID, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "message id must be a UUID")
		return
	}
	var req RegenerateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	owner := ownerFrom(r.Context())
	target, err := h.svc.Message(r.Context(), owner, messageID)
	if err != nil {
		writeServiceError(w, h.logger, "load message", err)
		return
	}
	if target.Role != store.RoleAssistant {
		writeError(w, http.StatusBadRequest, "invalid_target", "only assistant messages can be regenerated")
		return
	}

	before, err := h.svc.HistoryBefore(r.Context(), target)
	if err != nil {
		writeServiceError(w, h.logger, "load history", err)
		return
	}
	if len(before) == 0 || before[len(before)-1].Role != store.RoleUser {
		writeError(w, http.StatusBadRequest, "invalid_target", "no user message precedes this reply")
		return
	}
	question := before[len(before)-1]
	history := before[:len(before)-1]

	resp, err := h.chat.Complete(r.Context(), chat.Request{
		Endpoint:     req.Endpoint,
		History:      history,
		NewMessage:   question.Content,
		SystemPrompt: req.SystemPrompt,
		UseContext:   req.UseContext,
		Scope:        &target.ConversationID,
	})
	if err != nil {
		h.logger.Error("regeneration failed", "message", messageID, "error", err)
		writeError(w, http.StatusBadGateway, "provider_error", "completion failed")
		return
	}

	updated, err := h.svc.Overwrite(r.Context(), owner, messageID, resp.Text)
	if err != nil {
		writeServiceError(w, h.logger, "overwrite reply", err)
		return
	}

	writeJSON(w, http.StatusOK, RegenerateResponse{
		Response:    resp.Text,
		UsedContext: resp.UsedContext,
		Message:     updated,
	})
}
