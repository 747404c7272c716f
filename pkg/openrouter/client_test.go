package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletion(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    string
		wantStatus int
		wantText   string
		wantTokens int
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"id": "gen-123",
				"model": "openai/gpt-4o-mini",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "Books"}, "finish_reason": "stop"}],
				"usage": {"prompt_tokens": 31, "completion_tokens": 2}
			}`,
			wantText:   "Books",
			wantTokens: 2,
		},
		{
			name:       "rate_limit",
			status:     http.StatusTooManyRequests,
			body:       `{"error": {"message": "rate limit exceeded"}}`,
			wantErr:    "unexpected status 429",
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "unauthorized",
			status:     http.StatusUnauthorized,
			body:       `{"error": {"message": "no auth"}}`,
			wantErr:    "unexpected status 401",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal response",
		},
		{
			name:    "no_choices",
			status:  http.StatusOK,
			body:    `{"id": "gen-1", "choices": []}`,
			wantErr: "no choices",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
				assert.Equal(t, "catalog-cli", r.Header.Get("X-Title"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))
			resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
				Messages: []Message{{Role: "user", Content: "Categorize: paperback novel"}},
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, resp)
				if tt.wantStatus != 0 {
					var apiErr *APIError
					require.True(t, errors.As(err, &apiErr))
					assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantText, resp.Text())
			assert.Equal(t, tt.wantTokens, resp.Usage.CompletionTokens)
		})
	}
}

func TestChatCompletion_RequestBody(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "https://example.com", r.Header.Get("HTTP-Referer"))
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`))
	}))
	defer srv.Close()

	temp := 0.7
	maxTokens := 1000
	client := NewClient("k", WithBaseURL(srv.URL+"/"), WithModel("anthropic/claude-3.5-haiku"), WithReferer("https://example.com"))
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	require.NoError(t, err)

	assert.Equal(t, "anthropic/claude-3.5-haiku", got.Model)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.7, *got.Temperature, 1e-9)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 1000, *got.MaxTokens)
}

func TestChatCompletion_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "late"}}]}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithTimeout(20*time.Millisecond))
	_, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
}

func TestDefaults(t *testing.T) {
	c := NewClient("k").(*httpClient)
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, defaultModel, c.model)
	assert.Equal(t, 60*time.Second, c.http.Timeout)

	c = NewClient("k", WithModel(""), WithBaseURL("")).(*httpClient)
	assert.Equal(t, defaultModel, c.model)
	assert.Equal(t, defaultBaseURL, c.baseURL)
}

func TestResponseText_Empty(t *testing.T) {
	assert.Empty(t, (&ChatCompletionResponse{}).Text())
}
