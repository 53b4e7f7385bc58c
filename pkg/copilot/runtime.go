// runtime.go holds the live behavioral configuration shared by every
// in-flight mention handler: the system prompt and the channel allow-list.
// The state is refreshed from the store at startup and on a schedule, and
// kept current between refreshes by change feed deltas.
package copilot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hem26/Discord-Copilot/pkg/copilot/store"
)

// DefaultSystemInstructions is used when no configuration row exists or the
// configuration fetch fails.
const DefaultSystemInstructions = "You are a helpful assistant. Please be concise."

// RuntimeConfig is a concurrency-safe view of the current agent
// configuration. Writers are the refresh path and the change feed callback;
// readers are the mention handlers.
type RuntimeConfig struct {
	store  store.ConfigStore
	logger *slog.Logger

	mu           sync.RWMutex
	instructions string
	allowed      map[string]struct{}
}

// NewRuntimeConfig creates a runtime configuration with the hardcoded
// default instructions and an empty allow-list. No channel is trusted until
// a refresh or a delta says so.
func NewRuntimeConfig(st store.ConfigStore, logger *slog.Logger) *RuntimeConfig {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuntimeConfig{
		store:        st,
		logger:       logger.With("component", "runtime"),
		instructions: DefaultSystemInstructions,
		allowed:      make(map[string]struct{}),
	}
}

// Refresh reloads the system instructions and the allow-list from the store.
// Failures are logged and leave the last-known values in place; on the very
// first refresh that means the default instructions and an empty (fail
// closed) allow-list.
func (r *RuntimeConfig) Refresh(ctx context.Context) {
	cfg, err := r.store.AgentConfig(ctx)
	switch {
	case err != nil:
		r.logger.Warn("fetching agent config failed, keeping current instructions", "error", err)
	case cfg == nil || cfg.SystemInstructions == "":
		r.logger.Warn("no agent config found, using default instructions")
		r.setInstructions(DefaultSystemInstructions)
	default:
		r.setInstructions(cfg.SystemInstructions)
	}

	ids, err := r.store.AllowedChannels(ctx)
	if err != nil {
		r.logger.Warn("fetching allowed channels failed, keeping current allow-list", "error", err)
		return
	}

	allowed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}

	r.mu.Lock()
	r.allowed = allowed
	r.mu.Unlock()

	r.logger.Info("configuration refreshed", "allowed_channels", len(ids))
}

// ApplyDelta folds one change feed event into the cached state.
// Unknown tables and operations are ignored.
func (r *RuntimeConfig) ApplyDelta(ev store.ChangeEvent) {
	switch ev.Table {
	case store.TableAgentConfig:
		if (ev.Op == store.OpUpdate || ev.Op == store.OpInsert) &&
			ev.New != nil && ev.New.SystemInstructions != "" {
			r.setInstructions(ev.New.SystemInstructions)
			r.logger.Info("system instructions updated via change feed")
		}

	case store.TableAllowedChannels:
		switch ev.Op {
		case store.OpInsert:
			if ev.New != nil && ev.New.ChannelID != "" {
				r.mu.Lock()
				r.allowed[ev.New.ChannelID] = struct{}{}
				r.mu.Unlock()
				r.logger.Info("channel allowed via change feed", "channel_id", ev.New.ChannelID)
			}
		case store.OpDelete:
			// The removed identifier rides in the old-row payload.
			if ev.Old != nil && ev.Old.ChannelID != "" {
				r.mu.Lock()
				delete(r.allowed, ev.Old.ChannelID)
				r.mu.Unlock()
				r.logger.Info("channel disallowed via change feed", "channel_id", ev.Old.ChannelID)
			}
		}
	}
}

// SystemInstructions returns the current system prompt.
func (r *RuntimeConfig) SystemInstructions() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instructions
}

// IsAllowed reports whether the bot may respond in the given channel.
func (r *RuntimeConfig) IsAllowed(channelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.allowed[channelID]
	return ok
}

// AllowedCount returns the size of the current allow-list.
func (r *RuntimeConfig) AllowedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.allowed)
}

func (r *RuntimeConfig) setInstructions(s string) {
	r.mu.Lock()
	r.instructions = s
	r.mu.Unlock()
}
