// llm.go implements the completion client for the mention pipeline.
// Uses the OpenAI-compatible chat completions format, which works with
// Groq, OpenAI, and any compatible endpoint.
//
// Every call makes exactly one attempt and always yields a user-safe
// Completion: failures are folded into fixed fallback texts tagged with an
// Outcome, so callers branch on the tag rather than sniffing reply strings.
package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Outcome tags the result of a completion call.
type Outcome int

const (
	// OutcomeOK means Text carries a real model completion.
	OutcomeOK Outcome = iota

	// OutcomeTimeout means the call exceeded the configured deadline.
	OutcomeTimeout

	// OutcomeTransportError covers connection failures and non-2xx replies.
	OutcomeTransportError

	// OutcomeBadResponse means the API answered 200 but without a usable
	// completion field.
	OutcomeBadResponse
)

// String returns the outcome label used in logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeBadResponse:
		return "bad_response"
	default:
		return "unknown"
	}
}

// Completion is the tagged result of one completion call. Text is always
// safe to deliver to a chat channel: on non-OK outcomes it carries a fixed
// fallback sentence instead of an error.
type Completion struct {
	Text    string
	Outcome Outcome
}

// OK reports whether the completion carries real model output.
func (c Completion) OK() bool { return c.Outcome == OutcomeOK }

// Fallback texts delivered in place of a real completion.
const (
	fallbackTimeout     = "Sorry, the request took too long and timed out."
	fallbackTransport   = "Sorry, I encountered an error while trying to process your request."
	fallbackBadResponse = "Sorry, I received an unexpected response from the AI."
)

// ---------- Wire Types (OpenAI-compatible) ----------

// chatMessage represents a message in the OpenAI chat format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the OpenAI-compatible chat completions request.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// chatResponse is the OpenAI-compatible chat completions response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ---------- Client ----------

// LLMClient handles communication with the completion API.
type LLMClient struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLLMClient creates a new completion client from config.
func NewLLMClient(cfg *Config, logger *slog.Logger) *LLMClient {
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := cfg.API.BaseURL
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := time.Duration(cfg.API.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &LLMClient{
		baseURL: baseURL,
		apiKey:  cfg.API.APIKey,
		model:   cfg.API.Model,
		timeout: timeout,
		// The per-call context deadline is authoritative; the transport
		// timeout is only a safety net for response body reads.
		httpClient: &http.Client{},
		logger:     logger.With("component", "llm"),
	}
}

// Complete sends prompt as a single user-role message and returns a tagged,
// user-safe result. It never retries; retry policy belongs to the caller.
func (c *LLMClient) Complete(ctx context.Context, prompt string) Completion {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	bodyBytes, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		c.logger.Error("marshaling completion request", "error", err)
		return Completion{Text: fallbackTransport, Outcome: OutcomeTransportError}
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		c.logger.Error("creating completion request", "error", err)
		return Completion{Text: fallbackTransport, Outcome: OutcomeTransportError}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Error("completion call timed out",
				"timeout", c.timeout.String(),
				"model", c.model,
			)
			return Completion{Text: fallbackTimeout, Outcome: OutcomeTimeout}
		}
		c.logger.Error("completion call failed", "error", err, "endpoint", endpoint)
		return Completion{Text: fallbackTransport, Outcome: OutcomeTransportError}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Error("completion call timed out reading body", "timeout", c.timeout.String())
			return Completion{Text: fallbackTimeout, Outcome: OutcomeTimeout}
		}
		c.logger.Error("reading completion response", "error", err)
		return Completion{Text: fallbackTransport, Outcome: OutcomeTransportError}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("completion API error",
			"status", resp.StatusCode,
			"body", truncate(string(respBody), 500),
		)
		return Completion{Text: fallbackTransport, Outcome: OutcomeTransportError}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		c.logger.Error("parsing completion response", "error", err)
		return Completion{Text: fallbackBadResponse, Outcome: OutcomeBadResponse}
	}

	if chatResp.Error != nil {
		c.logger.Error("completion API returned error payload",
			"type", chatResp.Error.Type,
			"message", chatResp.Error.Message,
		)
		return Completion{Text: fallbackTransport, Outcome: OutcomeTransportError}
	}

	var content string
	if len(chatResp.Choices) > 0 {
		content = strings.TrimSpace(chatResp.Choices[0].Message.Content)
	}
	if content == "" {
		c.logger.Error("completion response missing content",
			"body", truncate(string(respBody), 500),
		)
		return Completion{Text: fallbackBadResponse, Outcome: OutcomeBadResponse}
	}

	c.logger.Debug("completion done",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"chars", len(content),
	)

	return Completion{Text: content, Outcome: OutcomeOK}
}

// truncate shortens s to at most n bytes for log output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + fmt.Sprintf("... (%d bytes total)", len(s))
}
