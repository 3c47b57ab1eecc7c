package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatllm/internal/conversation"
	"chatllm/internal/store"
)

func TestConversationCRUD(t *testing.T) {
	f := newFixture(t)

	var conv store.Conversation
	resp := f.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Research"}, &conv)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Research", conv.Title)
	assert.Equal(t, f.owner, conv.OwnerID)

	t.Run("empty title gets default", func(t *testing.T) {
		var c store.Conversation
		resp := f.do(t, http.MethodPost, "/api/conversations", map[string]string{}, &c)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, conversation.DefaultTitle, c.Title)
	})

	t.Run("list", func(t *testing.T) {
		var out struct {
			Conversations []store.Conversation `json:"conversations"`
			Total         int                  `json:"total"`
		}
		resp := f.do(t, http.MethodGet, "/api/conversations", nil, &out)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 2, out.Total)
	})

	t.Run("get", func(t *testing.T) {
		var got store.Conversation
		resp := f.do(t, http.MethodGet, "/api/conversations/"+conv.ID.String(), nil, &got)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, conv.ID, got.ID)
	})

	t.Run("rename", func(t *testing.T) {
		var got store.Conversation
		resp := f.do(t, http.MethodPatch, "/api/conversations/"+conv.ID.String(),
			map[string]string{"title": "Renamed"}, &got)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Renamed", got.Title)
	})

	t.Run("rename rejects empty title", func(t *testing.T) {
		resp := f.do(t, http.MethodPatch, "/api/conversations/"+conv.ID.String(),
			map[string]string{"title": ""}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid id", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/api/conversations/nope", nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("delete", func(t *testing.T) {
		resp := f.do(t, http.MethodDelete, "/api/conversations/"+conv.ID.String(), nil, nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = f.do(t, http.MethodGet, "/api/conversations/"+conv.ID.String(), nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestMessagesOverHTTP(t *testing.T) {
	f := newFixture(t)

	var conv store.Conversation
	f.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Chat"}, &conv)
	base := "/api/conversations/" + conv.ID.String()

	var msg store.Message
	resp := f.do(t, http.MethodPost, base+"/messages",
		map[string]string{"role": "user", "content": "hello"}, &msg)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, store.RoleUser, msg.Role)

	t.Run("invalid role", func(t *testing.T) {
		resp := f.do(t, http.MethodPost, base+"/messages",
			map[string]string{"role": "wizard", "content": "hello"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("edit snapshots a version", func(t *testing.T) {
		var edited store.Message
		resp := f.do(t, http.MethodPatch, "/api/messages/"+msg.ID.String(),
			map[string]string{"content": "hello, edited"}, &edited)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "hello, edited", edited.Content)

		var out struct {
			Versions []store.MessageVersion `json:"versions"`
			Total    int                    `json:"total"`
		}
		resp = f.do(t, http.MethodGet, "/api/messages/"+msg.ID.String()+"/versions", nil, &out)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 1, out.Total)
		assert.Equal(t, "hello", out.Versions[0].Content)
	})

	t.Run("editing an assistant message is rejected", func(t *testing.T) {
		var reply store.Message
		f.do(t, http.MethodPost, base+"/messages",
			map[string]string{"role": "assistant", "content": "answer"}, &reply)

		resp := f.do(t, http.MethodPatch, "/api/messages/"+reply.ID.String(),
			map[string]string{"content": "tampered"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("deleting a user message removes its reply", func(t *testing.T) {
		resp := f.do(t, http.MethodDelete, "/api/messages/"+msg.ID.String(), nil, nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		var out struct {
			Total int `json:"total"`
		}
		f.do(t, http.MethodGet, base+"/messages", nil, &out)
		assert.Equal(t, 0, out.Total)
	})

	t.Run("clear history keeps the conversation", func(t *testing.T) {
		f.do(t, http.MethodPost, base+"/messages",
			map[string]string{"role": "user", "content": "again"}, nil)

		resp := f.do(t, http.MethodPost, base+"/clear", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Total int `json:"total"`
		}
		f.do(t, http.MethodGet, base+"/messages", nil, &out)
		assert.Equal(t, 0, out.Total)

		resp = f.do(t, http.MethodGet, base, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestForkOverHTTP(t *testing.T) {
	f := newFixture(t)

	var conv store.Conversation
	f.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Original"}, &conv)
	base := "/api/conversations/" + conv.ID.String()
	f.do(t, http.MethodPost, base+"/messages", map[string]string{"role": "user", "content": "q"}, nil)
	f.do(t, http.MethodPost, base+"/messages", map[string]string{"role": "assistant", "content": "a"}, nil)

	var fork store.Conversation
	resp := f.do(t, http.MethodPost, base+"/fork", nil, &fork)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Fork of Original", fork.Title)

	var out struct {
		Messages []store.Message `json:"messages"`
	}
	f.do(t, http.MethodGet, "/api/conversations/"+fork.ID.String()+"/messages", nil, &out)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "q", out.Messages[0].Content)
}

func TestOwnerIsolationOverHTTP(t *testing.T) {
	f := newFixture(t)

	var conv store.Conversation
	f.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Private"}, &conv)

	// A different authenticated user must not see it.
	other := newFixtureOwner(f)
	resp := other.do(t, http.MethodGet, "/api/conversations/"+conv.ID.String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
