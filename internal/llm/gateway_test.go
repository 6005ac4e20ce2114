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

	"ats-agent-go/internal/config"
)

func newTestGateway(t *testing.T, server *httptest.Server, timeoutSeconds int) *Gateway {
	t.Helper()
	gateway, err := NewGateway(&config.LLMConfig{
		APIKey:         "test-key",
		APIURL:         server.URL,
		Model:          "test-model",
		TimeoutSeconds: timeoutSeconds,
	}, WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return gateway
}

func TestGatewayCompleteSuccess(t *testing.T) {
	var capturedReq chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&capturedReq))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"content": "{\"score\": 90}"}}]}`))
	}))
	defer server.Close()

	gateway := newTestGateway(t, server, 30)
	text, err := gateway.Complete(context.Background(), "evalúa este CV", CompletionOptions{
		Temperature:    0.3,
		MaxTokens:      2000,
		ResponseFormat: "json",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"score": 90}`, text)

	// 生成参数原样传给提供方
	assert.Equal(t, "test-model", capturedReq.Model)
	assert.InDelta(t, 0.3, capturedReq.Temperature, 0.0001)
	assert.Equal(t, 2000, capturedReq.MaxTokens)
	require.NotNil(t, capturedReq.ResponseFormat)
	assert.Equal(t, "json_object", capturedReq.ResponseFormat.Type)
	require.Len(t, capturedReq.Messages, 1)
	assert.Equal(t, "evalúa este CV", capturedReq.Messages[0].Content)
}

func TestGatewayCompleteProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit"}}`))
	}))
	defer server.Close()

	gateway := newTestGateway(t, server, 30)
	_, err := gateway.Complete(context.Background(), "prompt", CompletionOptions{})

	var gatewayErr *GatewayError
	require.ErrorAs(t, err, &gatewayErr)
	// 原始提供方消息不出现在对外错误里
	assert.NotContains(t, gatewayErr.Message, "rate limited")
}

func TestGatewayCompleteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer server.Close()

	gateway := newTestGateway(t, server, 1)
	start := time.Now()
	_, err := gateway.Complete(context.Background(), "prompt", CompletionOptions{})

	assert.ErrorIs(t, err, ErrGatewayTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestGatewayCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	gateway := newTestGateway(t, server, 30)
	_, err := gateway.Complete(context.Background(), "prompt", CompletionOptions{})

	var gatewayErr *GatewayError
	assert.ErrorAs(t, err, &gatewayErr)
}

func TestNewGatewayValidation(t *testing.T) {
	_, err := NewGateway(&config.LLMConfig{APIURL: "https://example.com"})
	assert.Error(t, err)

	_, err = NewGateway(&config.LLMConfig{APIKey: "k"})
	assert.Error(t, err)

	_, err = NewGateway(nil)
	assert.Error(t, err)
}
