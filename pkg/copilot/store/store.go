// Package store provides persistence for Discord Copilot: the singleton
// agent configuration, the channel allow-list, and per-channel conversation
// memory. Two backends are available: PostgreSQL (with a push-based change
// feed over LISTEN/NOTIFY) and SQLite (single node, no feed).
package store

import (
	"context"
	"time"
)

// ChannelMemory is the accumulated context for one conversation channel.
type ChannelMemory struct {
	ChannelID string    `json:"channel_id"`
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentConfig is the singleton behavioral configuration.
type AgentConfig struct {
	SystemInstructions string `json:"system_instructions"`
}

// SummaryStore persists one rolling summary per conversation channel.
// Same-channel concurrent upserts are last-write-wins; this is a documented
// limitation of the memory feature, not a bug.
type SummaryStore interface {
	// Summary returns the persisted summary, or "" when none exists.
	Summary(ctx context.Context, channelID string) (string, error)

	// UpsertSummary inserts or updates the summary for a channel.
	UpsertSummary(ctx context.Context, channelID, summary string) error

	// DeleteSummary removes a channel's memory. Absence is not an error.
	DeleteSummary(ctx context.Context, channelID string) error

	// ListMemories returns all channel memories, newest first.
	ListMemories(ctx context.Context) ([]ChannelMemory, error)
}

// ConfigStore persists the agent configuration and the channel allow-list.
type ConfigStore interface {
	// AgentConfig returns the singleton configuration row, or nil when
	// none has been created yet.
	AgentConfig(ctx context.Context) (*AgentConfig, error)

	// SetSystemInstructions creates or replaces the system prompt.
	SetSystemInstructions(ctx context.Context, instructions string) error

	// AllowedChannels returns every channel ID the bot may respond in.
	AllowedChannels(ctx context.Context) ([]string, error)

	// AllowChannel adds a channel to the allow-list. Adding an already
	// allowed channel is a no-op.
	AllowChannel(ctx context.Context, channelID string) error

	// DisallowChannel removes a channel from the allow-list.
	DisallowChannel(ctx context.Context, channelID string) error
}

// Store is the full persistence surface used by the daemon.
type Store interface {
	SummaryStore
	ConfigStore

	Close() error
}

// ---------- Change Feed ----------

// Tables carried by the change feed.
const (
	TableAgentConfig     = "agent_config"
	TableAllowedChannels = "allowed_channels"
)

// Operations carried by the change feed.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// ChangeRow is the subset of row fields carried in a change event.
type ChangeRow struct {
	ChannelID          string `json:"channel_id"`
	SystemInstructions string `json:"system_instructions"`
}

// ChangeEvent is one mutation pushed by the change feed. For DELETE the
// removed row rides in Old; for INSERT/UPDATE the current row rides in New.
type ChangeEvent struct {
	Table string     `json:"table"`
	Op    string     `json:"op"`
	New   *ChangeRow `json:"new"`
	Old   *ChangeRow `json:"old"`
}
