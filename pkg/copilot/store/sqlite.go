// sqlite.go implements Store on SQLite for single-node deployments.
// SQLite has no push-based change feed; daemons running on this backend
// converge on dashboard edits through the periodic refresh job instead.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// sqliteSchema is the DDL executed on every startup (idempotent).
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS agent_config (
    id                  INTEGER PRIMARY KEY CHECK (id = 1),
    system_instructions TEXT NOT NULL,
    updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS allowed_channels (
    channel_id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_memory (
    discord_channel_id TEXT PRIMARY KEY,
    summary            TEXT NOT NULL DEFAULT '',
    updated_at         DATETIME NOT NULL
);
`

// SQLite implements Store backed by a local SQLite database.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the database at the given path and applies
// the schema. WAL mode is enabled for concurrent read performance.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = "./data/copilot.db"
	}

	// Ensure parent directory exists for file-backed databases.
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %q: %w", dir, err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &SQLite{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ---------- SummaryStore ----------

// Summary returns the persisted summary, or "" when the channel has none.
func (s *SQLite) Summary(ctx context.Context, channelID string) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM conversation_memory WHERE discord_channel_id = ?`,
		channelID,
	).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: fetch summary: %w", err)
	}
	return summary, nil
}

// UpsertSummary inserts or updates the summary for a channel.
func (s *SQLite) UpsertSummary(ctx context.Context, channelID, summary string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_memory (discord_channel_id, summary, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (discord_channel_id) DO UPDATE SET
			summary = excluded.summary,
			updated_at = excluded.updated_at`,
		channelID, summary, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert summary: %w", err)
	}
	return nil
}

// DeleteSummary removes a channel's memory row if present.
func (s *SQLite) DeleteSummary(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_memory WHERE discord_channel_id = ?`, channelID)
	if err != nil {
		return fmt.Errorf("sqlite: delete summary: %w", err)
	}
	return nil
}

// ListMemories returns all channel memories, newest first.
func (s *SQLite) ListMemories(ctx context.Context) ([]ChannelMemory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT discord_channel_id, summary, updated_at
		FROM conversation_memory
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list memories: %w", err)
	}
	defer rows.Close()

	var memories []ChannelMemory
	for rows.Next() {
		var m ChannelMemory
		if err := rows.Scan(&m.ChannelID, &m.Summary, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// ---------- ConfigStore ----------

// AgentConfig returns the singleton configuration row, or nil when absent.
func (s *SQLite) AgentConfig(ctx context.Context) (*AgentConfig, error) {
	var cfg AgentConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT system_instructions FROM agent_config WHERE id = 1`,
	).Scan(&cfg.SystemInstructions)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetch agent config: %w", err)
	}
	return &cfg, nil
}

// SetSystemInstructions creates or replaces the system prompt.
func (s *SQLite) SetSystemInstructions(ctx context.Context, instructions string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_config (id, system_instructions, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			system_instructions = excluded.system_instructions,
			updated_at = excluded.updated_at`,
		instructions, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: set instructions: %w", err)
	}
	return nil
}

// AllowedChannels returns every channel ID in the allow-list.
func (s *SQLite) AllowedChannels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id FROM allowed_channels`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list allowed channels: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan channel: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllowChannel adds a channel to the allow-list.
func (s *SQLite) AllowChannel(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO allowed_channels (channel_id, created_at) VALUES (?, ?)
		ON CONFLICT (channel_id) DO NOTHING`,
		channelID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: allow channel: %w", err)
	}
	return nil
}

// DisallowChannel removes a channel from the allow-list.
func (s *SQLite) DisallowChannel(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM allowed_channels WHERE channel_id = ?`, channelID)
	if err != nil {
		return fmt.Errorf("sqlite: disallow channel: %w", err)
	}
	return nil
}

// Compile-time interface verification.
var _ Store = (*SQLite)(nil)
