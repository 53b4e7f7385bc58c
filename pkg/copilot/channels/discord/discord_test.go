package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/hem26/Discord-Copilot/pkg/copilot/channels"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxLen    int
		numChunks int
	}{
		{"short text", "hello", 2000, 1},
		{"exact limit", strings.Repeat("a", 2000), 2000, 1},
		{"one over limit", strings.Repeat("a", 2001), 2000, 2},
		{"triple", strings.Repeat("a", 4500), 2000, 3},
		{"empty", "", 2000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := splitMessage(tt.text, tt.maxLen)

			if len(chunks) != tt.numChunks {
				t.Fatalf("expected %d chunks, got %d", tt.numChunks, len(chunks))
			}
			for i, c := range chunks {
				if len(c) > tt.maxLen {
					t.Errorf("chunk %d exceeds limit: %d > %d", i, len(c), tt.maxLen)
				}
			}
			if joined := strings.Join(chunks, ""); joined != tt.text {
				t.Error("chunks do not reassemble to the original text")
			}
		})
	}
}

func TestSplitMessage_PrefersNewline(t *testing.T) {
	// A newline past the midpoint becomes the cut point.
	text := strings.Repeat("a", 1500) + "\n" + strings.Repeat("b", 1000)
	chunks := splitMessage(text, 2000)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n") {
		t.Error("expected first chunk to end at the newline")
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks do not reassemble to the original text")
	}
}

func TestConnect_RequiresToken(t *testing.T) {
	d := New(Config{}, nil)
	if err := d.Connect(context.Background()); err == nil {
		t.Fatal("expected error connecting without a token")
	}
}

// failingTransport makes every REST call fail at the HTTP layer.
type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, fmt.Errorf("connection refused")
}

func TestSend_BeforeConnect(t *testing.T) {
	d := New(DefaultConfig(), nil)

	err := d.Send(context.Background(), "123", &channels.OutgoingMessage{Content: "hi"})
	if !errors.Is(err, channels.ErrChannelDisconnected) {
		t.Fatalf("expected ErrChannelDisconnected, got %v", err)
	}
}

func TestSend_FailureWrapsSentinel(t *testing.T) {
	d := New(DefaultConfig(), nil)
	d.session = &discordgo.Session{
		Client:      &http.Client{Transport: failingTransport{}},
		Ratelimiter: discordgo.NewRatelimiter(),
	}

	err := d.Send(context.Background(), "123", &channels.OutgoingMessage{Content: "hi"})
	if !errors.Is(err, channels.ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}
	if got := d.Health().ErrorCount; got != 1 {
		t.Errorf("expected error count 1 after failed send, got %d", got)
	}
}

func TestBotUserID_BeforeConnect(t *testing.T) {
	d := New(DefaultConfig(), nil)
	if id := d.BotUserID(); id != "" {
		t.Errorf("expected empty bot ID before connect, got %q", id)
	}
}
