package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchpulse/tips-service/internal/services"
)

func testOllamaConfig(baseURL string) services.OllamaConfig {
	cfg := services.DefaultOllamaConfig()
	cfg.BaseURL = baseURL
	cfg.Model = "test-model"
	cfg.RequestTimeout = 5 * time.Second
	cfg.RetryAttempts = 3
	cfg.RetryBaseDelay = 10 * time.Millisecond
	return cfg
}

func generateOK(w http.ResponseWriter, response string) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"response":   response,
		"done":       true,
		"eval_count": 42,
		"model":      "test-model",
	})
}

func TestOllamaClient_GenerateSuccess(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "/api/generate", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])
		assert.Equal(t, false, body["stream"])
		assert.NotEmpty(t, body["prompt"])
		assert.NotEmpty(t, body["system"])

		generateOK(w, `{"title": "test"}`)
	}))
	defer server.Close()

	client := services.NewOllamaClient(testOllamaConfig(server.URL), testLogger())

	resp, err := client.Generate(context.Background(), "user prompt", "system prompt")

	require.NoError(t, err)
	assert.Equal(t, `{"title": "test"}`, resp.Response)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests), "no retries on success")
}

func TestOllamaClient_RetriesWithBackoffThenSucceeds(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "model busy"})
			return
		}
		generateOK(w, "eventually")
	}))
	defer server.Close()

	cfg := testOllamaConfig(server.URL)
	client := services.NewOllamaClient(cfg, testLogger())

	start := time.Now()
	resp, err := client.Generate(context.Background(), "prompt", "")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "eventually", resp.Response)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
	// Backoff doubles: base after attempt 1, 2x base after attempt 2.
	assert.GreaterOrEqual(t, elapsed, 3*cfg.RetryBaseDelay)
}

func TestOllamaClient_ExhaustsAttempts(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "model busy"})
	}))
	defer server.Close()

	client := services.NewOllamaClient(testOllamaConfig(server.URL), testLogger())

	_, err := client.Generate(context.Background(), "prompt", "")

	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests), "exactly the configured number of attempts")
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.True(t, services.IsBackendError(err))
	assert.Contains(t, err.Error(), "model busy", "backend error payload is surfaced")
}

func TestOllamaClient_ConnectivityErrorClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening anymore

	client := services.NewOllamaClient(testOllamaConfig(server.URL), testLogger())

	_, err := client.Generate(context.Background(), "prompt", "")

	require.Error(t, err)
	assert.True(t, services.IsConnectivityError(err))
	assert.False(t, services.IsBackendError(err))
}

func TestOllamaClient_IncompleteResponseIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"response": "partial", "done": false})
	}))
	defer server.Close()

	client := services.NewOllamaClient(testOllamaConfig(server.URL), testLogger())

	_, err := client.Generate(context.Background(), "prompt", "")

	require.Error(t, err)
	assert.False(t, services.IsBackendError(err))
	assert.False(t, services.IsConnectivityError(err))
	assert.Contains(t, err.Error(), "incomplete")
}

func TestOllamaClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"models": []interface{}{}})
	}))

	client := services.NewOllamaClient(testOllamaConfig(server.URL), testLogger())
	assert.True(t, client.Health(context.Background()))

	server.Close()
	assert.False(t, client.Health(context.Background()), "health never errors, only reports false")
}

func TestOllamaClient_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"models": []map[string]string{
				{"name": "llama3.1:8b"},
				{"name": "test-model"},
			},
		})
	}))
	defer server.Close()

	client := services.NewOllamaClient(testOllamaConfig(server.URL), testLogger())

	names, err := client.ListModels(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.1:8b", "test-model"}, names)
	assert.True(t, client.VerifyModel(context.Background()))
}

func TestOllamaClient_VerifyModelMissingIsNonFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"models": []map[string]string{{"name": "some-other-model"}},
		})
	}))
	defer server.Close()

	client := services.NewOllamaClient(testOllamaConfig(server.URL), testLogger())

	assert.False(t, client.VerifyModel(context.Background()))
}
