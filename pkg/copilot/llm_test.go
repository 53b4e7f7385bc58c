package copilot

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestLLMClient builds a client pointed at a test server.
func newTestLLMClient(baseURL string, timeout time.Duration) *LLMClient {
	return &LLMClient{
		baseURL:    baseURL,
		apiKey:     "test-key",
		model:      "test-model",
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
}

func completionResponse(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestComplete_Success(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(completionResponse("  Hello there!  ")))
	}))
	defer server.Close()

	client := newTestLLMClient(server.URL, 5*time.Second)
	result := client.Complete(context.Background(), "hi")

	if !result.OK() {
		t.Fatalf("expected OK outcome, got %s", result.Outcome)
	}
	if result.Text != "Hello there!" {
		t.Errorf("expected trimmed completion, got %q", result.Text)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("expected /chat/completions path, got %q", gotPath)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("expected model test-model, got %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" || gotReq.Messages[0].Content != "hi" {
		t.Errorf("expected single user message %q, got %+v", "hi", gotReq.Messages)
	}
}

func TestComplete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestLLMClient(server.URL, 5*time.Second)
	result := client.Complete(context.Background(), "hi")

	if result.Outcome != OutcomeTransportError {
		t.Fatalf("expected transport error outcome, got %s", result.Outcome)
	}
	if result.Text != fallbackTransport {
		t.Errorf("expected transport fallback text, got %q", result.Text)
	}
}

func TestComplete_ConnectionRefused(t *testing.T) {
	// Grab a URL that refuses connections.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := newTestLLMClient(server.URL, 5*time.Second)
	result := client.Complete(context.Background(), "hi")

	if result.Outcome != OutcomeTransportError {
		t.Fatalf("expected transport error outcome, got %s", result.Outcome)
	}
	if result.Text != fallbackTransport {
		t.Errorf("expected transport fallback text, got %q", result.Text)
	}
}

func TestComplete_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
		w.Write([]byte(completionResponse("too late")))
	}))
	defer server.Close()

	client := newTestLLMClient(server.URL, 100*time.Millisecond)
	result := client.Complete(context.Background(), "hi")

	if result.Outcome != OutcomeTimeout {
		t.Fatalf("expected timeout outcome, got %s", result.Outcome)
	}
	if result.Text != fallbackTimeout {
		t.Errorf("expected timeout fallback text, got %q", result.Text)
	}
}

func TestComplete_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not JSON", "<html>gateway error</html>"},
		{"no choices", `{"choices":[]}`},
		{"empty content", completionResponse("")},
		{"whitespace content", completionResponse("   \n\t  ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestLLMClient(server.URL, 5*time.Second)
			result := client.Complete(context.Background(), "hi")

			if result.Outcome != OutcomeBadResponse {
				t.Fatalf("expected bad response outcome, got %s", result.Outcome)
			}
			if result.Text != fallbackBadResponse {
				t.Errorf("expected bad response fallback text, got %q", result.Text)
			}
		})
	}
}

func TestComplete_ErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error":{"message":"model decommissioned","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client := newTestLLMClient(server.URL, 5*time.Second)
	result := client.Complete(context.Background(), "hi")

	if result.Outcome != OutcomeTransportError {
		t.Fatalf("expected transport error outcome, got %s", result.Outcome)
	}
}

func TestNewLLMClient_Defaults(t *testing.T) {
	cfg := &Config{}
	client := NewLLMClient(cfg, nil)

	if client.baseURL != "https://api.groq.com/openai/v1" {
		t.Errorf("expected default base URL, got %q", client.baseURL)
	}
	if client.timeout != 15*time.Second {
		t.Errorf("expected 15s default timeout, got %s", client.timeout)
	}
}

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeOK, "ok"},
		{OutcomeTimeout, "timeout"},
		{OutcomeTransportError, "transport_error"},
		{OutcomeBadResponse, "bad_response"},
		{Outcome(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.outcome.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}
