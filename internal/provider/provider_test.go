package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatllm/internal/log"
)

// fakeProvider is an httptest server speaking just enough of the
// OpenAI-compatible wire protocol for the client under test.
func fakeProvider(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(baseURL string) (*Client, Endpoint) {
	c := New(Config{
		DefaultModel:   "gpt-4",
		EmbedModel:     "text-embedding-3-large",
		EmbedDimension: 4,
		Timeout:        5 * time.Second,
	}, log.NewNop())
	return c, Endpoint{BaseURL: baseURL, APIKey: "test-key"}
}

func TestComplete(t *testing.T) {
	var gotBody map[string]any
	srv := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "hello there"},
				"finish_reason": "stop",
			}},
		})
	})

	client, ep := testClient(srv.URL)
	text, err := client.Complete(context.Background(), ep, []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)

	assert.Equal(t, "gpt-4", gotBody["model"])
	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
}

func TestComplete_EndpointModelOverridesDefault(t *testing.T) {
	var gotModel string
	srv := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{"role": "assistant", "content": "ok"},
			}},
		})
	})

	client, ep := testClient(srv.URL)
	ep.Model = "llama-3.3-70b"
	_, err := client.Complete(context.Background(), ep, []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "llama-3.3-70b", gotModel)
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	client, ep := testClient(srv.URL)
	_, err := client.Complete(context.Background(), ep, []Message{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestComplete_ProviderError(t *testing.T) {
	srv := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "boom"}}`, http.StatusInternalServerError)
	})

	client, ep := testClient(srv.URL)
	_, err := client.Complete(context.Background(), ep, []Message{{Role: "user", Content: "hi"}})
	assert.Error(t, err)
}

func TestEmbed_PreservesOrder(t *testing.T) {
	srv := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)

		// Return vectors out of order; the client must restore input order
		// from the index field.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float64{0, 1, 0, 0}},
				{"object": "embedding", "index": 0, "embedding": []float64{1, 0, 0, 0}},
			},
		})
	})

	client, ep := testClient(srv.URL)
	vectors, err := client.Embed(context.Background(), ep, []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0, 0, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1, 0, 0}, vectors[1])
}

func TestEmbed_CountMismatch(t *testing.T) {
	srv := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float64{1, 0, 0, 0}},
			},
		})
	})

	client, ep := testClient(srv.URL)
	_, err := client.Embed(context.Background(), ep, []string{"a", "b"})
	assert.Error(t, err)
}

func TestEmbed_EmptyInput(t *testing.T) {
	client, ep := testClient("http://127.0.0.1:1") // never dialed
	vectors, err := client.Embed(context.Background(), ep, nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbedOne(t *testing.T) {
	srv := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float64{0.5, 0.5, 0, 0}},
			},
		})
	})

	client, ep := testClient(srv.URL)
	vec, err := client.EmbedOne(context.Background(), ep, "query")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5, 0, 0}, vec)
}

func TestListModels(t *testing.T) {
	srv := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "gpt-4", "object": "model", "created": 0, "owned_by": "test"},
				{"id": "gpt-4o-mini", "object": "model", "created": 0, "owned_by": "test"},
			},
		})
	})

	client, ep := testClient(srv.URL)
	ids, err := client.ListModels(context.Background(), ep)
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4", "gpt-4o-mini"}, ids)
}
