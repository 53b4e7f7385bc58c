package channels

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// stubChannel is a minimal Channel for manager tests.
type stubChannel struct {
	name        string
	in          chan *IncomingMessage
	sent        []*OutgoingMessage
	connected   bool
	connectErr  error
	typingCalls int
}

func newStubChannel(name string) *stubChannel {
	return &stubChannel{name: name, in: make(chan *IncomingMessage, 8)}
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Connect(context.Context) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

func (s *stubChannel) Disconnect() error {
	s.connected = false
	return nil
}

func (s *stubChannel) Send(_ context.Context, _ string, msg *OutgoingMessage) error {
	s.sent = append(s.sent, msg)
	return nil
}

func (s *stubChannel) Receive() <-chan *IncomingMessage { return s.in }
func (s *stubChannel) IsConnected() bool                { return s.connected }
func (s *stubChannel) Health() HealthStatus             { return HealthStatus{Connected: s.connected} }

// presenceStub adds typing support.
type presenceStub struct {
	*stubChannel
}

func (p *presenceStub) SendTyping(context.Context, string) error {
	p.typingCalls++
	return nil
}

func TestManager_RegisterDuplicate(t *testing.T) {
	m := NewManager(nil)

	if err := m.Register(newStubChannel("discord")); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := m.Register(newStubChannel("discord")); err == nil {
		t.Fatal("expected error registering duplicate channel name")
	}
}

func TestManager_StartWithoutChannels(t *testing.T) {
	m := NewManager(nil)
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected error starting with no channels")
	}
}

func TestManager_StartAllConnectionsFail(t *testing.T) {
	m := NewManager(nil)
	ch := newStubChannel("discord")
	ch.connectErr = fmt.Errorf("gateway down")
	m.Register(ch)

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected error when no channel connects")
	}
}

func TestManager_ForwardsMessages(t *testing.T) {
	m := NewManager(nil)
	ch := newStubChannel("discord")
	m.Register(ch)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	ch.in <- &IncomingMessage{ID: "m1", Channel: "discord", Content: "hello"}

	select {
	case msg := <-m.Messages():
		if msg.ID != "m1" {
			t.Errorf("expected m1, got %s", msg.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded message")
	}
}

func TestManager_Send(t *testing.T) {
	m := NewManager(nil)
	ch := newStubChannel("discord")
	m.Register(ch)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	if err := m.Send(context.Background(), "discord", "123", &OutgoingMessage{Content: "hi"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0].Content != "hi" {
		t.Errorf("expected one sent message, got %+v", ch.sent)
	}

	if err := m.Send(context.Background(), "telegram", "123", &OutgoingMessage{}); err == nil {
		t.Fatal("expected error sending through unknown channel")
	}
}

func TestManager_SendDisconnected(t *testing.T) {
	m := NewManager(nil)
	ch := newStubChannel("discord")
	m.Register(ch)

	err := m.Send(context.Background(), "discord", "123", &OutgoingMessage{Content: "hi"})
	if err == nil {
		t.Fatal("expected error sending through disconnected channel")
	}
}

func TestManager_SendTyping(t *testing.T) {
	m := NewManager(nil)
	plain := newStubChannel("plain")
	presence := &presenceStub{newStubChannel("discord")}
	m.Register(plain)
	m.Register(presence)

	// Presence-capable channel receives the indicator.
	if err := m.SendTyping(context.Background(), "discord", "123"); err != nil {
		t.Fatalf("SendTyping failed: %v", err)
	}
	if presence.typingCalls != 1 {
		t.Errorf("expected 1 typing call, got %d", presence.typingCalls)
	}

	// A channel without presence support is a silent no-op.
	if err := m.SendTyping(context.Background(), "plain", "123"); err != nil {
		t.Fatalf("expected no-op for non-presence channel, got %v", err)
	}

	if err := m.SendTyping(context.Background(), "unknown", "123"); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestManager_StopClosesStream(t *testing.T) {
	m := NewManager(nil)
	ch := newStubChannel("discord")
	m.Register(ch)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	if _, open := <-m.Messages(); open {
		t.Error("expected message stream closed after Stop")
	}

	if ch.connected {
		t.Error("expected channel disconnected after Stop")
	}
}

func TestManager_HealthAll(t *testing.T) {
	m := NewManager(nil)
	ch := newStubChannel("discord")
	m.Register(ch)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	statuses := m.HealthAll()
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	if !statuses["discord"].Connected {
		t.Error("expected discord reported connected")
	}
}
