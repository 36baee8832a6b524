// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package llm_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/google/go-cmp/cmp"

	"github.com/go-a2a/sqlexcel/llm"
)

func TestOpenAIClientComplete(t *testing.T) {
	var got struct {
		Model       string        `json:"model"`
		Messages    []llm.Message `json:"messages"`
		Temperature float64       `json:"temperature"`
		MaxTokens   int           `json:"max_tokens"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if org := r.Header.Get("X-Org"); org != "acme" {
			t.Errorf("X-Org = %q", org)
		}
		if err := json.UnmarshalRead(r.Body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"cmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"SELECT 1"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`)
	}))
	defer ts.Close()

	c := llm.NewOpenAIClient("sk-test",
		llm.WithBaseURL(ts.URL+"/v1/"),
		llm.WithModel("test-model"),
		llm.WithHeader("X-Org", "acme"),
		llm.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You write SQL."},
		{Role: llm.RoleUser, Content: "one"},
	}
	resp, err := c.Complete(context.Background(), &llm.Request{Messages: messages, MaxTokens: 64})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	want := &llm.Response{
		Content:      "SELECT 1",
		FinishReason: "stop",
		Usage:        llm.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("Complete() mismatch (-want +got):\n%s", diff)
	}
	if got.Model != "test-model" || got.MaxTokens != 64 {
		t.Errorf("request model = %q, max_tokens = %d", got.Model, got.MaxTokens)
	}
	if diff := cmp.Diff(messages, got.Messages); diff != "" {
		t.Errorf("request messages mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenAIClientErrors(t *testing.T) {
	tests := map[string]struct {
		status        int
		body          string
		wantAPIError  bool
		wantRetryable bool
	}{
		"rate limited": {
			status:        http.StatusTooManyRequests,
			body:          `{"error":{"type":"rate_limit","message":"slow down"}}`,
			wantAPIError:  true,
			wantRetryable: true,
		},
		"bad request": {
			status:       http.StatusBadRequest,
			body:         `{"error":{"type":"invalid_request_error","message":"model not found"}}`,
			wantAPIError: true,
		},
		"plain text failure": {
			status:        http.StatusBadGateway,
			body:          "upstream down",
			wantAPIError:  true,
			wantRetryable: true,
		},
		"no choices": {
			status: http.StatusOK,
			body:   `{"choices":[]}`,
		},
		"garbage": {
			status: http.StatusOK,
			body:   `not json`,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer ts.Close()

			c := llm.NewOpenAIClient("", llm.WithBaseURL(ts.URL), llm.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
			_, err := c.Complete(context.Background(), &llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
			if err == nil {
				t.Fatal("Complete() succeeded, want error")
			}
			var apiErr *llm.APIError
			if errors.As(err, &apiErr) != tt.wantAPIError {
				t.Fatalf("Complete() error = %T %v, want APIError = %t", err, err, tt.wantAPIError)
			}
			if tt.wantAPIError && apiErr.IsRetryable() != tt.wantRetryable {
				t.Errorf("IsRetryable() = %t, want %t", apiErr.IsRetryable(), tt.wantRetryable)
			}
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]struct {
		in   string
		want string
	}{
		"plain":         {in: "  SELECT 1  ", want: "SELECT 1"},
		"sql fence":     {in: "```sql\nSELECT *\nFROM users\n```", want: "SELECT *\nFROM users"},
		"bare fence":    {in: "```\nSELECT 1\n```", want: "SELECT 1"},
		"prose around":  {in: "Here you go:\n```json\n{\"a\": 1}\n```\nEnjoy.", want: `{"a": 1}`},
		"one line":      {in: "```SELECT 1```", want: "SELECT 1"},
		"unterminated":  {in: "```sql\nSELECT 2", want: "SELECT 2"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := llm.StripCodeFence(tt.in); got != tt.want {
				t.Errorf("StripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
