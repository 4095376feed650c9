package webrtc

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/offgrid/internal/logger"
	"github.com/rudransh-shrivastava/offgrid/internal/transport"
)

type pipeSignaler struct {
	id   string
	peer *pipeSignaler
	ch   chan transport.Signal
}

func newPipeSignalers(a, b string) (*pipeSignaler, *pipeSignaler) {
	sa := &pipeSignaler{id: a, ch: make(chan transport.Signal, 64)}
	sb := &pipeSignaler{id: b, ch: make(chan transport.Signal, 64)}
	sa.peer, sb.peer = sb, sa
	return sa, sb
}

func (s *pipeSignaler) SendSignal(ctx context.Context, _ string, payload []byte) error {
	select {
	case s.peer.ch <- transport.Signal{PeerID: s.id, Payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *pipeSignaler) RecvSignal() <-chan transport.Signal { return s.ch }

func (s *pipeSignaler) Close() error { return nil }

func waitOpen(t *testing.T, c transport.Conn) {
	t.Helper()
	for {
		select {
		case st := <-c.StateChanges():
			if st == transport.StateOpen {
				return
			}
			if st == transport.StateClosed {
				t.Fatal("connection closed before opening")
			}
		case <-time.After(15 * time.Second):
			t.Fatal("timeout waiting for data channel")
		}
	}
}

func TestLoopbackDataChannel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ICE negotiation in short mode")
	}

	log := logger.New(io.Discard, "debug")
	sigA, sigB := newPipeSignalers("alice", "bob")
	alice := New(sigA, Config{}, log)
	bob := New(sigB, Config{}, log)
	defer func() { _ = alice.Close() }()
	defer func() { _ = bob.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	go func() { _ = alice.Serve(ctx) }()
	go func() { _ = bob.Serve(ctx) }()

	offerer, err := alice.Connect(ctx, "bob")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if offerer.State() != transport.StateConnecting {
		t.Errorf("Expected connecting, got %s", offerer.State())
	}
	if err := offerer.Send([]byte("too early")); err != transport.ErrNotOpen {
		t.Errorf("Expected ErrNotOpen, got %v", err)
	}

	var answerer transport.Conn
	select {
	case answerer = <-bob.Accept():
	case <-ctx.Done():
		t.Fatal("timeout waiting for inbound connection")
	}
	if answerer.PeerID() != "alice" {
		t.Errorf("Expected peer alice, got %s", answerer.PeerID())
	}

	waitOpen(t, offerer)
	waitOpen(t, answerer)

	if err := offerer.Send([]byte("hello bob")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case msg := <-answerer.Recv():
		if string(msg) != "hello bob" {
			t.Errorf("Expected 'hello bob', got %q", msg)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for message")
	}

	if err := offerer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := offerer.Send([]byte("late")); err != transport.ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
