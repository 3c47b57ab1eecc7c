package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatllm/internal/chat"
	"chatllm/internal/store"
)

func TestChatCompletion(t *testing.T) {
	f := newFixture(t)
	f.orch.resp = &chat.Response{Text: "the answer", UsedContext: true}

	var conv store.Conversation
	f.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Chat"}, &conv)
	base := "/api/conversations/" + conv.ID.String()
	f.do(t, http.MethodPost, base+"/messages", map[string]string{"role": "user", "content": "earlier"}, nil)

	var out CompletionResponse
	resp := f.do(t, http.MethodPost, base+"/chat", map[string]any{
		"message":           "what now?",
		"use_context":       true,
		"endpoint_base_url": "http://llm.example",
		"endpoint_api_key":  "sk-test",
		"endpoint_model":    "gpt-4o-mini",
	}, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "the answer", out.Response)
	assert.True(t, out.UsedContext)
	require.NotNil(t, out.UserMessage)
	require.NotNil(t, out.ReplyMessage)
	assert.Equal(t, store.RoleUser, out.UserMessage.Role)
	assert.Equal(t, store.RoleAssistant, out.ReplyMessage.Role)

	t.Run("orchestrator saw the request", func(t *testing.T) {
		req := f.orch.gotReq
		assert.Equal(t, "what now?", req.NewMessage)
		assert.True(t, req.UseContext)
		assert.Equal(t, "http://llm.example", req.Endpoint.BaseURL)
		assert.Equal(t, "gpt-4o-mini", req.Endpoint.Model)
		require.NotNil(t, req.Scope)
		assert.Equal(t, conv.ID, *req.Scope)
		// History holds only the prior turn, not the new message.
		require.Len(t, req.History, 1)
		assert.Equal(t, "earlier", req.History[0].Content)
	})

	t.Run("both turns persisted in order", func(t *testing.T) {
		var msgs struct {
			Messages []store.Message `json:"messages"`
		}
		f.do(t, http.MethodGet, base+"/messages", nil, &msgs)
		require.Len(t, msgs.Messages, 3)
		assert.Equal(t, "what now?", msgs.Messages[1].Content)
		assert.Equal(t, "the answer", msgs.Messages[2].Content)
	})
}

func TestChatCompletion_ProviderFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.orch.err = errors.New("provider down")
	f.orch.resp = nil

	var conv store.Conversation
	f.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Chat"}, &conv)
	base := "/api/conversations/" + conv.ID.String()

	resp := f.do(t, http.MethodPost, base+"/chat", map[string]any{"message": "hello"}, nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var msgs struct {
		Total int `json:"total"`
	}
	f.do(t, http.MethodGet, base+"/messages", nil, &msgs)
	assert.Equal(t, 0, msgs.Total)
}

func TestChatCompletion_EmptyMessage(t *testing.T) {
	f := newFixture(t)

	var conv store.Conversation
	f.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Chat"}, &conv)

	resp := f.do(t, http.MethodPost, "/api/conversations/"+conv.ID.String()+"/chat",
		map[string]any{"message": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegenerate(t *testing.T) {
	f := newFixture(t)
	f.orch.resp = &chat.Response{Text: "better answer"}

	var conv store.Conversation
	f.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Chat"}, &conv)
	base := "/api/conversations/" + conv.ID.String()

	f.do(t, http.MethodPost, base+"/messages", map[string]string{"role": "user", "content": "old question"}, nil)
	var reply store.Message
	f.do(t, http.MethodPost, base+"/messages", map[string]string{"role": "assistant", "content": "old answer"}, &reply)

	var out RegenerateResponse
	resp := f.do(t, http.MethodPost, "/api/messages/"+reply.ID.String()+"/regenerate",
		map[string]any{"endpoint_api_key": "sk-test"}, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "better answer", out.Response)
	assert.Equal(t, "better answer", out.Message.Content)
	assert.Equal(t, reply.ID, out.Message.ID)

	t.Run("question became the new message", func(t *testing.T) {
		assert.Equal(t, "old question", f.orch.gotReq.NewMessage)
		assert.Empty(t, f.orch.gotReq.History)
	})

	t.Run("replaced answer survives as a version", func(t *testing.T) {
		var versions struct {
			Versions []store.MessageVersion `json:"versions"`
		}
		f.do(t, http.MethodGet, "/api/messages/"+reply.ID.String()+"/versions", nil, &versions)
		require.Len(t, versions.Versions, 1)
		assert.Equal(t, "old answer", versions.Versions[0].Content)
	})

	t.Run("user messages cannot be regenerated", func(t *testing.T) {
		var q store.Message
		f.do(t, http.MethodPost, base+"/messages", map[string]string{"role": "user", "content": "another"}, &q)

		resp := f.do(t, http.MethodPost, "/api/messages/"+q.ID.String()+"/regenerate",
			map[string]any{}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
