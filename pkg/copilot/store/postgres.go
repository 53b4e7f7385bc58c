// postgres.go implements Store on PostgreSQL via the pgx stdlib driver.
// Works against any PostgreSQL, including hosted offerings like Supabase.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.
)

// pgSchema is the DDL executed on every startup (idempotent).
// The trigger function feeds the LISTEN/NOTIFY change feed consumed by
// Listener: configuration updates and allow-list inserts/deletes are pushed
// to every connected daemon without a reload.
const pgSchema = `
CREATE TABLE IF NOT EXISTS agent_config (
    id                  SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    system_instructions TEXT NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS allowed_channels (
    channel_id TEXT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS conversation_memory (
    discord_channel_id TEXT PRIMARY KEY,
    summary            TEXT NOT NULL DEFAULT '',
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE OR REPLACE FUNCTION copilot_notify_change() RETURNS trigger AS $$
BEGIN
    PERFORM pg_notify('copilot_changes', json_build_object(
        'table', TG_TABLE_NAME,
        'op',    TG_OP,
        'new',   CASE WHEN TG_OP = 'DELETE' THEN NULL ELSE row_to_json(NEW) END,
        'old',   CASE WHEN TG_OP = 'INSERT' THEN NULL ELSE row_to_json(OLD) END
    )::text);
    RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS agent_config_notify ON agent_config;
CREATE TRIGGER agent_config_notify
    AFTER INSERT OR UPDATE ON agent_config
    FOR EACH ROW EXECUTE FUNCTION copilot_notify_change();

DROP TRIGGER IF EXISTS allowed_channels_notify ON allowed_channels;
CREATE TRIGGER allowed_channels_notify
    AFTER INSERT OR DELETE ON allowed_channels
    FOR EACH ROW EXECUTE FUNCTION copilot_notify_change();
`

// notifyChannel is the NOTIFY channel name used by the triggers.
const notifyChannel = "copilot_changes"

// Postgres implements Store backed by PostgreSQL.
type Postgres struct {
	db     *sql.DB
	dsn    string
	logger *slog.Logger
}

// OpenPostgres connects to PostgreSQL, verifies connectivity, and applies
// the schema.
func OpenPostgres(dsn string, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dsn == "" {
		return nil, fmt.Errorf("postgres: DSN is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, pgSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}

	return &Postgres{
		db:     db,
		dsn:    dsn,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// ---------- SummaryStore ----------

// Summary returns the persisted summary, or "" when the channel has none.
func (p *Postgres) Summary(ctx context.Context, channelID string) (string, error) {
	var summary string
	err := p.db.QueryRowContext(ctx,
		`SELECT summary FROM conversation_memory WHERE discord_channel_id = $1`,
		channelID,
	).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres: fetch summary: %w", err)
	}
	return summary, nil
}

// UpsertSummary inserts or updates the summary for a channel.
// Concurrent writers for the same channel are last-write-wins.
func (p *Postgres) UpsertSummary(ctx context.Context, channelID, summary string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO conversation_memory (discord_channel_id, summary, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (discord_channel_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			updated_at = NOW()`,
		channelID, summary,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert summary: %w", err)
	}
	return nil
}

// DeleteSummary removes a channel's memory row if present.
func (p *Postgres) DeleteSummary(ctx context.Context, channelID string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM conversation_memory WHERE discord_channel_id = $1`, channelID)
	if err != nil {
		return fmt.Errorf("postgres: delete summary: %w", err)
	}
	return nil
}

// ListMemories returns all channel memories, newest first.
func (p *Postgres) ListMemories(ctx context.Context) ([]ChannelMemory, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT discord_channel_id, summary, updated_at
		FROM conversation_memory
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list memories: %w", err)
	}
	defer rows.Close()

	var memories []ChannelMemory
	for rows.Next() {
		var m ChannelMemory
		if err := rows.Scan(&m.ChannelID, &m.Summary, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// ---------- ConfigStore ----------

// AgentConfig returns the singleton configuration row, or nil when absent.
func (p *Postgres) AgentConfig(ctx context.Context) (*AgentConfig, error) {
	var cfg AgentConfig
	err := p.db.QueryRowContext(ctx,
		`SELECT system_instructions FROM agent_config WHERE id = 1`,
	).Scan(&cfg.SystemInstructions)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch agent config: %w", err)
	}
	return &cfg, nil
}

// SetSystemInstructions creates or replaces the system prompt.
func (p *Postgres) SetSystemInstructions(ctx context.Context, instructions string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agent_config (id, system_instructions, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET
			system_instructions = EXCLUDED.system_instructions,
			updated_at = NOW()`,
		instructions,
	)
	if err != nil {
		return fmt.Errorf("postgres: set instructions: %w", err)
	}
	return nil
}

// AllowedChannels returns every channel ID in the allow-list.
func (p *Postgres) AllowedChannels(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT channel_id FROM allowed_channels`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list allowed channels: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan channel: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllowChannel adds a channel to the allow-list.
func (p *Postgres) AllowChannel(ctx context.Context, channelID string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO allowed_channels (channel_id) VALUES ($1)
		ON CONFLICT (channel_id) DO NOTHING`,
		channelID,
	)
	if err != nil {
		return fmt.Errorf("postgres: allow channel: %w", err)
	}
	return nil
}

// DisallowChannel removes a channel from the allow-list.
func (p *Postgres) DisallowChannel(ctx context.Context, channelID string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM allowed_channels WHERE channel_id = $1`, channelID)
	if err != nil {
		return fmt.Errorf("postgres: disallow channel: %w", err)
	}
	return nil
}

// Compile-time interface verification.
var _ Store = (*Postgres)(nil)
