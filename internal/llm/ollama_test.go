package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loveucifer/visceral/internal/domain"
)

func TestOllamaClient_Generate_Success(t *testing.T) {
	var gotPath string
	var gotPayload ollamaGenerateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:    "mistral:latest",
			Response: "  The answer.  ",
			Done:     true,
		})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "mistral:latest", 5*time.Second)
	reply, err := client.Generate(context.Background(), "the prompt")
	require.NoError(t, err)

	assert.Equal(t, "The answer.", reply)
	assert.Equal(t, "/api/generate", gotPath)
	assert.Equal(t, "mistral:latest", gotPayload.Model)
	assert.Equal(t, "the prompt", gotPayload.Prompt)
	assert.False(t, gotPayload.Stream)
}

func TestOllamaClient_Generate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "mistral:latest", 5*time.Second)
	_, err := client.Generate(context.Background(), "prompt")
	require.Error(t, err)

	assert.Equal(t, domain.ErrModelUnavailable, domain.CodeOf(err))
}

func TestOllamaClient_Generate_Unreachable(t *testing.T) {
	// Closed server: the address refuses connections
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewOllamaClient(server.URL, "mistral:latest", time.Second)
	_, err := client.Generate(context.Background(), "prompt")
	require.Error(t, err)

	assert.Equal(t, domain.ErrModelUnavailable, domain.CodeOf(err))
}

func TestOllamaClient_Generate_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "too late"})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "mistral:latest", 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, "prompt")
	require.Error(t, err)

	assert.Equal(t, domain.ErrModelTimeout, domain.CodeOf(err))
}

func TestOllamaClient_Generate_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "mistral:latest", 5*time.Second)
	_, err := client.Generate(context.Background(), "prompt")
	require.Error(t, err)

	assert.Equal(t, domain.ErrModelUnavailable, domain.CodeOf(err))
}

func TestOllamaClient_TrimsBaseURL(t *testing.T) {
	client := NewOllamaClient("http://localhost:11434/", "m", time.Second)
	assert.Equal(t, "http://localhost:11434", client.baseURL)
}
