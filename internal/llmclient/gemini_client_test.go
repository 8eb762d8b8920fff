package llmclient_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/config"
	"github.com/xkilldash9x/crucible-cli/internal/llmclient"
)

func geminiBody(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}],"role":"model"},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}`, text)
}

func newTestClient(t *testing.T, endpoint string) *llmclient.GeminiClient {
	t.Helper()
	client, err := llmclient.NewGeminiClient(config.LLMModelConfig{
		Provider: config.ProviderGemini,
		Model:    "gemini-2.5-pro",
		APIKey:   "test-key",
		Endpoint: endpoint,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func TestGeminiGenerateSuccess(t *testing.T) {
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		fmt.Fprint(w, geminiBody("<reasoning>done</reasoning>"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	defer client.Close()

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{
		SystemPrompt: "you are the explorer",
		UserPrompt:   "improve this",
		Options:      schemas.GenerationOptions{Temperature: 0.9},
	})
	require.NoError(t, err)
	assert.Equal(t, "<reasoning>done</reasoning>", out)

	genConfig, ok := gotPayload["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.9, genConfig["temperature"])
}

func TestGeminiGenerateRetriesTransientErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, geminiBody("recovered"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	defer client.Close()

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestGeminiGenerateClientErrorIsPermanent(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"invalid argument"}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	defer client.Close()

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), attempts.Load(), "4xx must not be retried")
}

func TestGeminiGenerateSafetyBlockIsPermanent(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	defer client.Close()

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestGeminiGenerateForceJSONSetsMimeType(t *testing.T) {
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		fmt.Fprint(w, geminiBody("{}"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	defer client.Close()

	_, err := client.Generate(context.Background(), schemas.GenerationRequest{
		UserPrompt: "x",
		Options:    schemas.GenerationOptions{ForceJSONFormat: true},
	})
	require.NoError(t, err)

	genConfig := gotPayload["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", genConfig["response_mime_type"])
}

func TestNewGeminiClientRequiresAPIKey(t *testing.T) {
	_, err := llmclient.NewGeminiClient(config.LLMModelConfig{Model: "gemini-2.5-pro"}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}
