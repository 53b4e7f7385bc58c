package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hem26/Discord-Copilot/pkg/copilot/channels"
	"github.com/hem26/Discord-Copilot/pkg/copilot/store"
)

const testToken = "test-admin-token"

// fakeAdminStore is an in-memory AdminStore.
type fakeAdminStore struct {
	instructions string
	channelIDs   []string
	memories     []store.ChannelMemory
	failAll      bool
}

func (f *fakeAdminStore) AgentConfig(context.Context) (*store.AgentConfig, error) {
	if f.failAll {
		return nil, fmt.Errorf("store down")
	}
	if f.instructions == "" {
		return nil, nil
	}
	return &store.AgentConfig{SystemInstructions: f.instructions}, nil
}

func (f *fakeAdminStore) SetSystemInstructions(_ context.Context, s string) error {
	if f.failAll {
		return fmt.Errorf("store down")
	}
	f.instructions = s
	return nil
}

func (f *fakeAdminStore) AllowedChannels(context.Context) ([]string, error) {
	if f.failAll {
		return nil, fmt.Errorf("store down")
	}
	return f.channelIDs, nil
}

func (f *fakeAdminStore) AllowChannel(_ context.Context, id string) error {
	f.channelIDs = append(f.channelIDs, id)
	return nil
}

func (f *fakeAdminStore) DisallowChannel(_ context.Context, id string) error {
	out := f.channelIDs[:0]
	for _, c := range f.channelIDs {
		if c != id {
			out = append(out, c)
		}
	}
	f.channelIDs = out
	return nil
}

func (f *fakeAdminStore) ListMemories(context.Context) ([]store.ChannelMemory, error) {
	if f.failAll {
		return nil, fmt.Errorf("store down")
	}
	return f.memories, nil
}

func (f *fakeAdminStore) DeleteSummary(_ context.Context, id string) error {
	out := f.memories[:0]
	for _, m := range f.memories {
		if m.ChannelID != id {
			out = append(out, m)
		}
	}
	f.memories = out
	return nil
}

// fakeHealth reports static gateway health.
type fakeHealth struct{}

func (fakeHealth) HealthAll() map[string]channels.HealthStatus {
	return map[string]channels.HealthStatus{
		"discord": {Connected: true, LastMessageAt: time.Now(), ErrorCount: 0},
	}
}

func newTestServer(st *fakeAdminStore) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{Enabled: true, AuthToken: testToken}, st, fakeHealth{}, logger)
}

// do runs one authenticated request against the server handler.
func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	s := newTestServer(&fakeAdminStore{})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong", http.StatusUnauthorized},
		{"not bearer", testToken, http.StatusUnauthorized},
		{"correct token", "Bearer " + testToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestGeneratedAuthToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(Config{}, &fakeAdminStore{}, fakeHealth{}, logger)

	if s.AuthToken() == "" {
		t.Error("expected a generated auth token when none is configured")
	}
}

func TestInstructions(t *testing.T) {
	st := &fakeAdminStore{}
	s := newTestServer(st)

	// No config row yet reads as empty instructions.
	rec := do(t, s, http.MethodGet, "/api/instructions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET returned %d", rec.Code)
	}
	var payload instructionsPayload
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if payload.SystemInstructions != "" {
		t.Errorf("expected empty instructions, got %q", payload.SystemInstructions)
	}

	// Replace and read back.
	rec = do(t, s, http.MethodPut, "/api/instructions", `{"system_instructions":"Be brief."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT returned %d: %s", rec.Code, rec.Body.String())
	}
	if st.instructions != "Be brief." {
		t.Errorf("expected instructions stored, got %q", st.instructions)
	}

	rec = do(t, s, http.MethodGet, "/api/instructions", "")
	json.NewDecoder(rec.Body).Decode(&payload)
	if payload.SystemInstructions != "Be brief." {
		t.Errorf("expected stored instructions returned, got %q", payload.SystemInstructions)
	}
}

func TestInstructions_Invalid(t *testing.T) {
	s := newTestServer(&fakeAdminStore{})

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not JSON", "not json"},
		{"blank instructions", `{"system_instructions":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPut, "/api/instructions", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestInstructions_MethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeAdminStore{})

	rec := do(t, s, http.MethodDelete, "/api/instructions", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestChannels(t *testing.T) {
	st := &fakeAdminStore{}
	s := newTestServer(st)

	rec := do(t, s, http.MethodGet, "/api/channels", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET returned %d", rec.Code)
	}
	var listing map[string][]string
	json.NewDecoder(rec.Body).Decode(&listing)
	if len(listing["channel_ids"]) != 0 {
		t.Errorf("expected empty allow-list, got %v", listing["channel_ids"])
	}

	rec = do(t, s, http.MethodPost, "/api/channels", `{"channel_id":"123"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST returned %d: %s", rec.Code, rec.Body.String())
	}
	if len(st.channelIDs) != 1 || st.channelIDs[0] != "123" {
		t.Errorf("expected channel stored, got %v", st.channelIDs)
	}

	rec = do(t, s, http.MethodPost, "/api/channels", `{"channel_id":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing channel_id, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodDelete, "/api/channels/123", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE returned %d: %s", rec.Code, rec.Body.String())
	}
	if len(st.channelIDs) != 0 {
		t.Errorf("expected channel removed, got %v", st.channelIDs)
	}

	rec = do(t, s, http.MethodDelete, "/api/channels/", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing id, got %d", rec.Code)
	}
}

func TestMemory(t *testing.T) {
	st := &fakeAdminStore{
		memories: []store.ChannelMemory{
			{ChannelID: "111", Summary: "talked about Go", UpdatedAt: time.Now()},
			{ChannelID: "222", Summary: "talked about SQL", UpdatedAt: time.Now()},
		},
	}
	s := newTestServer(st)

	rec := do(t, s, http.MethodGet, "/api/memory", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET returned %d", rec.Code)
	}

	var listing struct {
		TotalChannels int           `json:"total_channels"`
		Channels      []memoryStats `json:"channels"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listing); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if listing.TotalChannels != 2 {
		t.Errorf("expected 2 channels, got %d", listing.TotalChannels)
	}
	// The API exposes summary sizes, never summary text.
	if body := rec.Body.String(); strings.Contains(body, "talked about") {
		t.Error("expected summary text to stay out of the listing")
	}

	rec = do(t, s, http.MethodDelete, "/api/memory/111", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE returned %d: %s", rec.Code, rec.Body.String())
	}
	if len(st.memories) != 1 || st.memories[0].ChannelID != "222" {
		t.Errorf("expected memory 111 removed, got %+v", st.memories)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeAdminStore{})

	rec := do(t, s, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET returned %d", rec.Code)
	}

	var statuses map[string]struct {
		Connected bool `json:"connected"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&statuses); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !statuses["discord"].Connected {
		t.Errorf("expected discord connected, got %+v", statuses)
	}
}

func TestStoreFailure(t *testing.T) {
	s := newTestServer(&fakeAdminStore{failAll: true})

	for _, path := range []string{"/api/instructions", "/api/channels", "/api/memory"} {
		rec := do(t, s, http.MethodGet, path, "")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("GET %s: expected 500, got %d", path, rec.Code)
		}
		if body := rec.Body.String(); strings.Contains(body, "store down") {
			t.Errorf("GET %s: internal error text leaked: %s", path, body)
		}
	}
}
