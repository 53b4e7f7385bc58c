package webui

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// instructionsPayload is the request/response body for /api/instructions.
type instructionsPayload struct {
	SystemInstructions string `json:"system_instructions"`
}

// channelPayload is the request body for POST /api/channels.
type channelPayload struct {
	ChannelID string `json:"channel_id"`
}

// handleInstructions reads or replaces the system prompt.
func (s *Server) handleInstructions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.store.AgentConfig(r.Context())
		if err != nil {
			s.fail(w, "fetching agent config", err)
			return
		}
		var payload instructionsPayload
		if cfg != nil {
			payload.SystemInstructions = cfg.SystemInstructions
		}
		s.writeJSON(w, http.StatusOK, payload)

	case http.MethodPut:
		var payload instructionsPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(payload.SystemInstructions) == "" {
			http.Error(w, "system_instructions is required", http.StatusBadRequest)
			return
		}
		if err := s.store.SetSystemInstructions(r.Context(), payload.SystemInstructions); err != nil {
			s.fail(w, "updating system instructions", err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"message": "system instructions updated"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleChannels lists the allow-list or adds a channel to it.
func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ids, err := s.store.AllowedChannels(r.Context())
		if err != nil {
			s.fail(w, "listing allowed channels", err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		s.writeJSON(w, http.StatusOK, map[string][]string{"channel_ids": ids})

	case http.MethodPost:
		var payload channelPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if payload.ChannelID == "" {
			http.Error(w, "channel_id is required", http.StatusBadRequest)
			return
		}
		if err := s.store.AllowChannel(r.Context(), payload.ChannelID); err != nil {
			s.fail(w, "allowing channel", err)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]string{"message": "channel allowed"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleChannelByID removes one channel from the allow-list.
func (s *Server) handleChannelByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/channels/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "channel id is required", http.StatusBadRequest)
		return
	}

	if err := s.store.DisallowChannel(r.Context(), id); err != nil {
		s.fail(w, "disallowing channel", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "channel disallowed"})
}

// memoryStats summarizes one channel's memory for the dashboard.
type memoryStats struct {
	ChannelID     string `json:"channel_id"`
	SummaryLength int    `json:"summary_length"`
	UpdatedAt     string `json:"updated_at"`
}

// handleMemory lists per-channel summary statistics.
func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	memories, err := s.store.ListMemories(r.Context())
	if err != nil {
		s.fail(w, "listing memories", err)
		return
	}

	stats := make([]memoryStats, 0, len(memories))
	for _, m := range memories {
		stats = append(stats, memoryStats{
			ChannelID:     m.ChannelID,
			SummaryLength: len(m.Summary),
			UpdatedAt:     m.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_channels": len(stats),
		"channels":       stats,
	})
}

// handleMemoryByID resets one channel's memory.
func (s *Server) handleMemoryByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/memory/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "channel id is required", http.StatusBadRequest)
		return
	}

	if err := s.store.DeleteSummary(r.Context(), id); err != nil {
		s.fail(w, "resetting memory", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "conversation memory reset"})
}

// handleHealth reports gateway health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type channelHealth struct {
		Connected     bool   `json:"connected"`
		ErrorCount    int    `json:"error_count"`
		LastMessageAt string `json:"last_message_at,omitempty"`
	}

	out := make(map[string]channelHealth)
	if s.health != nil {
		for name, h := range s.health.HealthAll() {
			ch := channelHealth{Connected: h.Connected, ErrorCount: h.ErrorCount}
			if !h.LastMessageAt.IsZero() {
				ch.LastMessageAt = h.LastMessageAt.UTC().Format(time.RFC3339)
			}
			out[name] = ch
		}
	}

	s.writeJSON(w, http.StatusOK, out)
}

// ---------- Helpers ----------

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

// fail logs the underlying cause and answers with a generic 500; internal
// error text never leaves the process.
func (s *Server) fail(w http.ResponseWriter, action string, err error) {
	s.logger.Error(action+" failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
