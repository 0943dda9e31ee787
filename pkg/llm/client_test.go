package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag-go/internal/config"
)

func sseServer(t *testing.T, chunks []string, got *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			b, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"delta": map[string]any{"content": c}}}})
			fmt.Fprintf(w, "data: %s\n\n", b)
		}
		fmt.Fprint(w, ": keep-alive\n\ndata: [DONE]\n\n")
	}))
}

func TestStreamChatMessages(t *testing.T) {
	var req chatRequest
	srv := sseServer(t, []string{"El presupuesto ", "total es ", "1.200 €"}, &req)
	defer srv.Close()

	c := NewClient(config.LLMConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "deepseek-chat",
		Generation: config.LLMGenerationConfig{Temperature: 0.3}})

	var sb strings.Builder
	err := c.StreamChatMessages(context.Background(), []Message{{Role: "user", Content: "¿presupuesto?"}}, nil,
		ChunkWriterFunc(func(s string) error { sb.WriteString(s); return nil }))
	require.NoError(t, err)
	assert.Equal(t, "El presupuesto total es 1.200 €", sb.String())

	assert.True(t, req.Stream)
	assert.Equal(t, "deepseek-chat", req.Model)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.3, *req.Temperature)
	assert.Nil(t, req.MaxTokens)
}

func TestStreamChatMessagesWriterError(t *testing.T) {
	var req chatRequest
	srv := sseServer(t, []string{"a", "b"}, &req)
	defer srv.Close()

	c := NewClient(config.LLMConfig{APIKey: "sk-test", BaseURL: srv.URL})
	err := c.StreamChatMessages(context.Background(), nil, nil, ChunkWriterFunc(func(string) error { return errors.New("client gone") }))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client gone")
}

func TestStreamChatMessagesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{BaseURL: srv.URL})
	err := c.StreamChatMessages(context.Background(), nil, nil, ChunkWriterFunc(func(string) error { return nil }))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestParamsFromConfig(t *testing.T) {
	assert.Nil(t, ParamsFromConfig(config.LLMGenerationConfig{}))
	p := ParamsFromConfig(config.LLMGenerationConfig{TopP: 0.9, MaxTokens: 512})
	require.NotNil(t, p)
	assert.Nil(t, p.Temperature)
	assert.Equal(t, 0.9, *p.TopP)
	assert.Equal(t, 512, *p.MaxTokens)
}
