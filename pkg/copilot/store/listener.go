// listener.go implements the push-based change feed on top of PostgreSQL
// LISTEN/NOTIFY. The triggers installed by pgSchema publish one JSON payload
// per configuration or allow-list mutation; the Listener decodes each payload
// into a ChangeEvent and hands it to a callback.
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// ChangeHandler receives decoded change events. Handlers must be safe for
// invocation from the listener goroutine.
type ChangeHandler func(ChangeEvent)

// Listener subscribes to the store's change feed over a dedicated
// PostgreSQL connection. Feed failures are logged and retried with backoff;
// subscribers keep serving their last-known state in the meantime.
type Listener struct {
	dsn     string
	handler ChangeHandler
	logger  *slog.Logger

	// backoff between reconnect attempts.
	backoff time.Duration
}

// NewListener creates a change feed listener for the given DSN.
func NewListener(dsn string, handler ChangeHandler, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		dsn:     dsn,
		handler: handler,
		logger:  logger.With("component", "changefeed"),
		backoff: 5 * time.Second,
	}
}

// Run listens for change notifications until the context is cancelled.
// Intended to be called in its own goroutine; it never returns an error,
// because feed staleness is preferred over crashing the daemon.
func (l *Listener) Run(ctx context.Context) {
	for {
		if err := l.listen(ctx); err != nil && ctx.Err() == nil {
			l.logger.Error("change feed interrupted, reconnecting",
				"error", err,
				"retry_in", l.backoff.String(),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.backoff):
		}
	}
}

// listen holds one LISTEN connection until it fails or the context ends.
func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}

	l.logger.Info("subscribed to change feed", "channel", notifyChannel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var ev ChangeEvent
		if err := json.Unmarshal([]byte(notification.Payload), &ev); err != nil {
			l.logger.Warn("discarding malformed change payload",
				"payload", notification.Payload,
				"error", err,
			)
			continue
		}

		l.handler(ev)
	}
}
