// Package webui implements the administrative HTTP surface for Discord
// Copilot: editing the system prompt, managing the channel allow-list, and
// inspecting or resetting per-channel conversation memory.
//
// Writes go straight to the store; running daemons converge through the
// store's change feed (or the periodic refresh on backends without one).
package webui

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hem26/Discord-Copilot/pkg/copilot/channels"
	"github.com/hem26/Discord-Copilot/pkg/copilot/store"
)

// AdminStore is the persistence surface the admin API needs.
type AdminStore interface {
	store.ConfigStore

	ListMemories(ctx context.Context) ([]store.ChannelMemory, error)
	DeleteSummary(ctx context.Context, channelID string) error
}

// HealthProvider reports gateway health for the dashboard.
type HealthProvider interface {
	HealthAll() map[string]channels.HealthStatus
}

// Config holds admin server configuration.
type Config struct {
	// Enabled turns the admin API on/off.
	Enabled bool `yaml:"enabled"`

	// Address is the listen address (default ":8090").
	Address string `yaml:"address"`

	// AuthToken is the Bearer token required on every request. When empty
	// a random token is generated at startup and logged once.
	AuthToken string `yaml:"auth_token"`
}

// Server is the admin HTTP server.
type Server struct {
	cfg    Config
	store  AdminStore
	health HealthProvider
	logger *slog.Logger
	server *http.Server
}

// New creates the admin server.
func New(cfg Config, st AdminStore, health HealthProvider, logger *slog.Logger) *Server {
	if cfg.Address == "" {
		cfg.Address = ":8090"
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		store:  st,
		health: health,
		logger: logger.With("component", "webui"),
	}

	if s.cfg.AuthToken == "" {
		s.cfg.AuthToken = uuid.NewString()
		s.logger.Warn("no admin auth token configured, generated one for this run",
			"token", s.cfg.AuthToken,
		)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/instructions", s.handleInstructions)
	mux.HandleFunc("/api/channels", s.handleChannels)
	mux.HandleFunc("/api/channels/", s.handleChannelByID)
	mux.HandleFunc("/api/memory", s.handleMemory)
	mux.HandleFunc("/api/memory/", s.handleMemoryByID)
	mux.HandleFunc("/api/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.withAuth(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("admin API listening", "address", s.cfg.Address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin API server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// withAuth enforces the Bearer token on every request.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="copilot-admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AuthToken returns the effective auth token (configured or generated).
func (s *Server) AuthToken() string { return s.cfg.AuthToken }

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Address returns the configured listen address.
func (s *Server) Address() string { return s.cfg.Address }
