package llm

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

	"gamesmith/internal/config"
	"gamesmith/internal/types"
)

func testClient(t *testing.T, handler http.Handler) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGeminiClient(config.LLMConfig{
		APIKey:      "test-key",
		Model:       "gemini-2.5-flash",
		BaseURL:     srv.URL,
		Timeout:     "5s",
		Temperature: 0.7,
	})
}

func completionBody(text string) string {
	resp := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"role":  "model",
				"parts": []map[string]string{{"text": text}},
			}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestCompleteWithSystem(t *testing.T) {
	var captured geminiRequest
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-2.5-flash:generateContent")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, completionBody("  hello from the model  "))
	}))

	got, err := client.CompleteWithSystem(context.Background(), "be terse", "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello from the model", got, "response text is trimmed")

	require.NotNil(t, captured.SystemInstruction)
	assert.Equal(t, "be terse", captured.SystemInstruction.Parts[0].Text)
	require.Len(t, captured.Contents, 1)
	assert.Equal(t, "user", captured.Contents[0].Role)
	assert.Equal(t, "say hello", captured.Contents[0].Parts[0].Text)
	assert.Empty(t, captured.GenerationConfig.ResponseMimeType)
}

func TestCompleteChatRoles(t *testing.T) {
	var captured geminiRequest
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, completionBody("ok"))
	}))

	history := []Message{
		{Role: "user", Text: "make a pong game"},
		{Role: "assistant", Text: "Planned Pong."},
		{Role: "user", Text: "add scoring"},
	}
	_, err := client.CompleteChat(context.Background(), "sys", history)
	require.NoError(t, err)

	require.Len(t, captured.Contents, 3)
	assert.Equal(t, "user", captured.Contents[0].Role)
	assert.Equal(t, "model", captured.Contents[1].Role, "assistant turns map to the model role")
	assert.Equal(t, "user", captured.Contents[2].Role)
}

func TestCompleteWithSchema(t *testing.T) {
	var captured geminiRequest
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, completionBody(`{"title":"Pong"}`))
	}))

	schema := `{"type":"object","properties":{"title":{"type":"string"}}}`
	got, err := client.CompleteWithSchema(context.Background(), "", "plan a game", schema)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Pong"}`, got)

	assert.Equal(t, "application/json", captured.GenerationConfig.ResponseMimeType)
	require.NotNil(t, captured.GenerationConfig.ResponseSchema)
	assert.Equal(t, "object", captured.GenerationConfig.ResponseSchema["type"])
}

func TestCompleteWithSchemaRejectsBadSchema(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not reach the server")
	}))

	_, err := client.CompleteWithSchema(context.Background(), "", "x", "")
	require.Error(t, err)
	assert.Equal(t, types.ClassInvalid, types.ClassOf(err))

	_, err = client.CompleteWithSchema(context.Background(), "", "x", "{not json")
	require.Error(t, err)
	assert.Equal(t, types.ClassInvalid, types.ClassOf(err))
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, completionBody("recovered"))
	}))

	got, err := client.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRateLimitExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))

	_, err := client.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, types.ClassRateLimited, types.ClassOf(err), "class survives the retry wrapper")
	assert.Equal(t, int32(4), calls.Load(), "initial attempt plus three retries")
}

func TestBadRequestFailsFast(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "malformed", http.StatusBadRequest)
	}))

	_, err := client.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, types.ClassUnavailable, types.ClassOf(err))
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

func TestAPIErrorBody(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":400,"message":"model overloaded","status":"RESOURCE_EXHAUSTED"}}`)
	}))

	_, err := client.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestEmptyCandidates(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	}))

	_, err := client.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no completion returned")
}

func TestMissingAPIKey(t *testing.T) {
	client := NewGeminiClient(config.LLMConfig{Model: "gemini-2.5-flash", BaseURL: "http://localhost:1"})
	_, err := client.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, types.ClassInvalid, types.ClassOf(err))
}

func TestMultiPartResponseConcatenated(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"part one "},{"text":"part two"}]}}]}`)
	}))

	got, err := client.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "part one part two", got)
}
