// assistant.go implements the mention-handling pipeline.
// Message flow: receive → authorization gate → typing → context assembly →
// completion → reply → re-summarization → memory update. Every inbound
// mention is handled by its own goroutine; the only state shared between
// handlers is the RuntimeConfig snapshot they read at each step.
package copilot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hem26/Discord-Copilot/pkg/copilot/channels"
	"github.com/hem26/Discord-Copilot/pkg/copilot/store"
)

// Fixed replies used by the mention pipeline.
const (
	// replyPromptForInput answers a bare mention with no text.
	replyPromptForInput = "Yes? How can I help you?"

	// replyApology answers any unexpected internal failure.
	replyApology = "Sorry, something went wrong while processing your request."
)

// summarizeInstruction heads the re-summarization prompt that keeps
// long-term memory bounded to a few lines.
const summarizeInstruction = "Summarize the conversation so far in 3-4 concise lines preserving important context."

// Completer produces a user-safe completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) Completion
}

// Identity exposes the bot's own user ID, learned after the gateway
// connects, so the handler can recognize its mention token.
type Identity interface {
	BotUserID() string
}

// Assistant is the mention-handling orchestrator.
type Assistant struct {
	cfg *Config

	// channelMgr manages message gateways.
	channelMgr *channels.Manager

	// runtime is the live system prompt + allow-list view.
	runtime *RuntimeConfig

	// memory persists one rolling summary per channel.
	memory store.SummaryStore

	// llm is the completion client.
	llm Completer

	// identity resolves the bot's mention token.
	identity Identity

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an Assistant with all dependencies.
func New(cfg *Config, runtime *RuntimeConfig, memory store.SummaryStore, llm Completer, identity Identity, logger *slog.Logger) *Assistant {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Assistant{
		cfg:        cfg,
		channelMgr: channels.NewManager(logger.With("component", "channels")),
		runtime:    runtime,
		memory:     memory,
		llm:        llm,
		identity:   identity,
		logger:     logger.With("component", "assistant"),
	}
}

// ChannelManager returns the gateway manager for external registration.
func (a *Assistant) ChannelManager() *channels.Manager {
	return a.channelMgr
}

// Start connects the gateways and begins processing mentions.
func (a *Assistant) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.channelMgr.Start(a.ctx); err != nil {
		return fmt.Errorf("starting channels: %w", err)
	}

	go a.messageLoop()

	a.logger.Info("assistant started",
		"name", a.cfg.Name,
		"model", a.cfg.API.Model,
		"allowed_channels", a.runtime.AllowedCount(),
	)
	return nil
}

// Stop shuts down the gateways gracefully.
func (a *Assistant) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.channelMgr.Stop()
	a.logger.Info("assistant stopped")
}

// messageLoop dispatches each incoming message to its own handler goroutine.
// Handlers for different channels interleave freely; ordering within one
// channel is best-effort (last-write-wins on the summary).
func (a *Assistant) messageLoop() {
	for {
		select {
		case msg, ok := <-a.channelMgr.Messages():
			if !ok {
				return
			}
			go a.handleMessage(msg)

		case <-a.ctx.Done():
			return
		}
	}
}

// handleMessage processes one inbound message end to end. No failure in
// here may crash the daemon: unexpected panics are answered with a single
// generic apology and logged with the originating message ID.
func (a *Assistant) handleMessage(msg *channels.IncomingMessage) {
	logger := a.logger.With(
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"msg_id", msg.ID,
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("unexpected failure while handling mention", "panic", r)
			if err := a.reply(msg, replyApology); err != nil {
				// Nothing above us to escalate to.
				logger.Error("failed to deliver apology", "error", err)
			}
		}
	}()

	// ── Authorization gate ──
	// Bots (including ourselves) never get a reply, unauthorized channels
	// are silently dropped, and anything that is not a mention of this bot
	// is not our business.
	if msg.FromBot {
		return
	}
	if !a.runtime.IsAllowed(msg.ChatID) {
		return
	}
	userText, mentioned := stripMention(msg.Content, a.identity.BotUserID())
	if !mentioned {
		return
	}

	start := time.Now()
	logger.Info("mention received")

	// ── Empty body ──
	if userText == "" {
		if err := a.reply(msg, replyPromptForInput); err != nil {
			logger.Error("failed to send prompt-for-input reply", "error", err)
		}
		return
	}

	if err := a.channelMgr.SendTyping(a.ctx, msg.Channel, msg.ChatID); err != nil {
		logger.Warn("typing indicator failed", "error", err)
	}

	// ── Context assembly ──
	// A memory outage degrades context, it must not block the reply.
	summary, err := a.memory.Summary(a.ctx, msg.ChatID)
	if err != nil {
		logger.Warn("fetching conversation summary failed, proceeding without context", "error", err)
		summary = ""
	}

	prompt := fmt.Sprintf("System Instructions: %s\nConversation Summary: %s\nUser message: %s",
		a.runtime.SystemInstructions(), summary, userText)

	// ── Primary completion ──
	completion := a.llm.Complete(a.ctx, prompt)

	// The completion text is user-safe by contract, fallback or not.
	if err := a.reply(msg, completion.Text); err != nil {
		// If the user never saw the exchange, recording it into durable
		// memory would be misleading. Stop here.
		logger.Error("failed to deliver reply, skipping summarization", "error", err)
		return
	}

	// ── Re-summarization ──
	a.updateMemory(logger, msg.ChatID, summary, userText, completion.Text)

	logger.Info("mention processed",
		"duration_ms", time.Since(start).Milliseconds(),
		"outcome", completion.Outcome.String(),
	)
}

// updateMemory condenses the exchange into a fresh rolling summary and
// persists it. A failed summarization is dropped rather than written, so an
// error sentence never becomes durable context.
func (a *Assistant) updateMemory(logger *slog.Logger, chatID, prevSummary, userText, reply string) {
	prompt := fmt.Sprintf("%s\n\nPrevious summary:\n%s\n\nUser's message:\n\"%s\"\n\nYour response:\n\"%s\"",
		summarizeInstruction, prevSummary, userText, reply)

	summarized := a.llm.Complete(a.ctx, prompt)
	if !summarized.OK() {
		logger.Warn("summarization failed, keeping previous summary",
			"outcome", summarized.Outcome.String(),
		)
		return
	}

	if err := a.memory.UpsertSummary(a.ctx, chatID, summarized.Text); err != nil {
		logger.Error("failed to persist conversation summary", "error", err)
	}
}

// reply sends content to the originating channel as a reply to msg.
func (a *Assistant) reply(msg *channels.IncomingMessage, content string) error {
	return a.channelMgr.Send(a.ctx, msg.Channel, msg.ChatID, &channels.OutgoingMessage{
		Content: content,
		ReplyTo: msg.ID,
	})
}

// stripMention checks that content starts with the bot's mention token and
// returns the remaining text. Discord renders mentions as <@id> or <@!id>.
func stripMention(content, botID string) (string, bool) {
	if botID == "" {
		return "", false
	}
	for _, token := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
		if strings.HasPrefix(content, token) {
			return strings.TrimSpace(strings.TrimPrefix(content, token)), true
		}
	}
	return "", false
}
