package llm

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/apperrors"
)

func newOpenAIStub(t *testing.T, status int, body string) (*OpenAILLM, *[]map[string]any) {
	t.Helper()
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		requests = append(requests, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client, err := NewOpenAILLM("test-key", srv.URL+"/", "gpt-4o-mini", zap.NewNop())
	require.NoError(t, err)
	return client, &requests
}

func TestOpenAILLM_Generate(t *testing.T) {
	client, requests := newOpenAIStub(t, http.StatusOK, `{
		"id": "cmpl-1",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Plant soybean after the monsoon."}}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 6}
	}`)

	reply, err := client.Generate(t.Context(), "You are an agronomist.", "What after rice?")
	require.NoError(t, err)
	assert.Equal(t, "Plant soybean after the monsoon.", reply)

	require.Len(t, *requests, 1)
	msgs := (*requests)[0]["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "What after rice?", msgs[1].(map[string]any)["content"])
}

func TestOpenAILLM_UserPromptOnly(t *testing.T) {
	client, requests := newOpenAIStub(t, http.StatusOK, `{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`)

	_, err := client.Generate(t.Context(), "", "hello")
	require.NoError(t, err)
	assert.Len(t, (*requests)[0]["messages"].([]any), 1)
}

func TestOpenAILLM_EmptyCompletion(t *testing.T) {
	client, _ := newOpenAIStub(t, http.StatusOK, `{"choices": [{"message": {"role": "assistant", "content": "  "}}]}`)

	_, err := client.Generate(t.Context(), "", "hello")
	assert.ErrorIs(t, err, errEmptyCompletion)
}

func TestOpenAILLM_QuotaExceeded(t *testing.T) {
	client, _ := newOpenAIStub(t, http.StatusTooManyRequests,
		`{"error": {"message": "You exceeded your current quota", "type": "insufficient_quota"}}`)

	_, err := client.Generate(t.Context(), "", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamQuotaExceeded)
}

func TestOpenAILLM_ServerError(t *testing.T) {
	client, _ := newOpenAIStub(t, http.StatusInternalServerError,
		`{"error": {"message": "boom", "type": "server_error"}}`)

	_, err := client.Generate(t.Context(), "", "hello")
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrUpstreamQuotaExceeded))
}

func TestNewOpenAILLM_RequiresModel(t *testing.T) {
	_, err := NewOpenAILLM("k", "", "", zap.NewNop())
	assert.Error(t, err)
}
