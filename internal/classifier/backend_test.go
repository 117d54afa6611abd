package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiBackend_Complete(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"{\"verdict\":"},{"text":"\"MATCH\"}"}]}}]}`)
	}))
	defer srv.Close()

	g := NewGeminiBackend("k-123", srv.URL, 5*time.Second)
	text, err := g.Complete(context.Background(), "gemini-2.0-flash", "prompt text")

	require.NoError(t, err)
	assert.Equal(t, `{"verdict":"MATCH"}`, text)
	assert.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)
	assert.Equal(t, "k-123", gotKey)
	require.Len(t, gotBody.Contents, 1)
	assert.Equal(t, "prompt text", gotBody.Contents[0].Parts[0].Text)
}

func TestGeminiBackend_RateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer srv.Close()

	_, err := NewGeminiBackend("k", srv.URL, time.Second).Complete(context.Background(), "", "p")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.True(t, IsTransient(err))
}

func TestGeminiBackend_BlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer srv.Close()

	_, err := NewGeminiBackend("k", srv.URL, time.Second).Complete(context.Background(), "", "p")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestOpenAIBackend_Complete(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"verdict\":\"PARTIAL\"}"}}]}`)
	}))
	defer srv.Close()

	o := NewOpenAIBackend("sk-test", srv.URL+"/", 5*time.Second)
	text, err := o.Complete(context.Background(), "gpt-4o-mini", "hello")

	require.NoError(t, err)
	assert.Equal(t, `{"verdict":"PARTIAL"}`, text)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "hello", gotBody.Messages[1].Content)
}

func TestOpenAIBackend_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewOpenAIBackend("bad", srv.URL, time.Second).Complete(context.Background(), "", "p")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "401")
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429 text", errors.New("API error 429: rate limit exceeded"), true},
		{"503 text", errors.New("503 Service Unavailable"), true},
		{"502 text", errors.New("502 bad gateway"), true},
		{"deadline text", errors.New("context deadline exceeded"), true},
		{"deadline error", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"refused text", errors.New("dial tcp 127.0.0.1:443: connect: connection refused"), true},
		{"refused errno", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"quota", errors.New("Quota exceeded for model"), true},
		{"empty reply", ErrEmptyReply, true},
		{"status 500", &StatusError{StatusCode: 500}, true},
		{"status 401", &StatusError{StatusCode: 401, Body: "unauthorized"}, false},
		{"status 404", &StatusError{StatusCode: 404, Body: "not found"}, false},
		{"401 text", errors.New("HTTP 401: unauthorized"), false},
		{"cancelled", fmt.Errorf("stop: %w", context.Canceled), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
