package node

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/offgrid/internal/config"
	"github.com/rudransh-shrivastava/offgrid/internal/logger"
	"github.com/rudransh-shrivastava/offgrid/internal/pairing"
	"github.com/rudransh-shrivastava/offgrid/internal/protocol"
	"github.com/rudransh-shrivastava/offgrid/internal/session"
	"github.com/rudransh-shrivastava/offgrid/internal/signal"
	"github.com/rudransh-shrivastava/offgrid/internal/store"
	"github.com/rudransh-shrivastava/offgrid/internal/transport"
)

func testConfig(name string) *config.Config {
	return &config.Config{
		STUNServers:      []string{"stun:stun.l.google.com:19302"},
		SignalAddr:       "127.0.0.1:0",
		LogLevel:         "debug",
		Label:            "data",
		ReplayWindow:     256,
		DisplayName:      name,
		HandshakeTimeout: 5 * time.Second,
	}
}

func newTestNode(t *testing.T, name string) *Node {
	t.Helper()
	n, err := New(Options{
		Config: testConfig(name),
		Logger: logger.New(io.Discard, "debug"),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	return n
}

// pairChats joins two nodes over an in-memory transport the same way
// AwaitJoin and Join do after the rendezvous.
func pairChats(t *testing.T) (*Chat, *Chat, *transport.MemoryConn) {
	t.Helper()
	alice, bob := newTestNode(t, "alice"), newTestNode(t, "bob")

	inv, err := alice.Invite("bob")
	if err != nil {
		t.Fatalf("Invite failed: %v", err)
	}
	id, err := alice.Redeem(inv.Code)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}

	ca, cb := transport.NewMemoryPair("bob", "alice")
	a, err := alice.startChat(id, "bob", ca)
	if err != nil {
		t.Fatalf("startChat failed: %v", err)
	}
	b, err := bob.startChat(id, "alice", cb)
	if err != nil {
		t.Fatalf("startChat failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = a.Run(ctx) }()
	go func() { _ = b.Run(ctx) }()
	return a, b, ca
}

func nextFrame(t *testing.T, c *Chat) protocol.Frame {
	t.Helper()
	for {
		select {
		case f, ok := <-c.Frames():
			if !ok {
				t.Fatal("frames closed")
			}
			if _, presence := f.(protocol.Presence); presence {
				continue
			}
			return f
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for frame")
			return nil
		}
	}
}

func online(c *Chat) bool {
	p, err := c.Peer()
	return err == nil && p.Online
}

func waitOpen(t *testing.T, c *Chat) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.Session.State() != session.StateOpen {
		if time.Now().After(deadline) {
			t.Fatalf("Expected OPEN, got %s", c.Session.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestInvite(t *testing.T) {
	n := newTestNode(t, "alice")

	inv, err := n.Invite("bob")
	if err != nil {
		t.Fatalf("Invite failed: %v", err)
	}
	if len(inv.Code) != pairing.CodeLength {
		t.Errorf("Expected %d character code, got %q", pairing.CodeLength, inv.Code)
	}
	c, ok := n.Contacts().Get(inv.ContactID)
	if !ok {
		t.Fatal("invited contact not registered")
	}
	if c.DisplayName != "bob" || c.Online {
		t.Errorf("Unexpected contact: %+v", c)
	}

	id, err := n.Redeem(inv.Code)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if id != inv.ContactID {
		t.Errorf("Expected %s, got %s", inv.ContactID, id)
	}
	if _, err := n.Redeem(inv.Code); !errors.Is(err, pairing.ErrCodeNotFound) {
		t.Errorf("Expected ErrCodeNotFound on second redeem, got %v", err)
	}
}

func TestChatSendBeforeOpen(t *testing.T) {
	a, _, _ := pairChats(t)

	if err := a.SendText(context.Background(), "too early"); !errors.Is(err, session.ErrChannelNotOpen) {
		t.Fatalf("Expected ErrChannelNotOpen, got %v", err)
	}
	msgs, err := a.History(context.Background())
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Expected empty transcript, got %d messages", len(msgs))
	}
}

func TestChatExchange(t *testing.T) {
	a, b, conn := pairChats(t)
	ctx := context.Background()

	conn.Open()
	waitOpen(t, a)
	waitOpen(t, b)

	if err := a.SendText(ctx, "hello bob"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if got := nextFrame(t, b); got != (protocol.Text{Text: "hello bob"}) {
		t.Fatalf("Expected hello bob, got %+v", got)
	}

	if err := b.SendFile(ctx, "/tmp/secret/notes.txt", []byte("abc")); err != nil {
		t.Fatalf("SendFile failed: %v", err)
	}
	f, ok := nextFrame(t, a).(protocol.File)
	if !ok {
		t.Fatal("Expected file frame")
	}
	if f.Name != "notes.txt" || string(f.Data) != "abc" {
		t.Errorf("Expected notes.txt/abc, got %s/%q", f.Name, f.Data)
	}

	history, err := a.History(ctx)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(history))
	}
	if !history[0].Local || history[0].Kind != store.KindText || history[0].Text != "hello bob" {
		t.Errorf("Unexpected first message: %+v", history[0])
	}
	if history[1].Local || history[1].Kind != store.KindFile || history[1].FileSize != 3 {
		t.Errorf("Unexpected second message: %+v", history[1])
	}
	if n, err := a.Recorded(ctx); err != nil || n != 2 {
		t.Errorf("Expected 2 recorded messages, got %d (%v)", n, err)
	}

	p, err := a.Peer()
	if err != nil {
		t.Fatalf("Peer failed: %v", err)
	}
	if p.DisplayName != "bob" {
		t.Errorf("Expected peer bob, got %q", p.DisplayName)
	}
}

func TestChatPresence(t *testing.T) {
	a, b, conn := pairChats(t)

	conn.Open()
	waitOpen(t, a)
	waitOpen(t, b)

	deadline := time.Now().Add(2 * time.Second)
	for !online(a) || !online(b) {
		if time.Now().After(deadline) {
			t.Fatal("peers never marked online")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if online(a) {
		t.Error("Expected contact offline after local close")
	}

	select {
	case <-b.Session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("remote session did not close")
	}
	if online(b) {
		t.Error("Expected contact offline on the remote side")
	}
}

func TestChatsForgottenAfterRun(t *testing.T) {
	a, _, conn := pairChats(t)
	n := a.node

	if len(n.Chats()) != 1 {
		t.Fatalf("Expected 1 chat, got %d", len(n.Chats()))
	}
	conn.Open()
	waitOpen(t, a)
	_ = a.Close()

	deadline := time.Now().Add(2 * time.Second)
	for len(n.Chats()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("chat still tracked after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJoinWrongCode(t *testing.T) {
	alice, bob := newTestNode(t, "alice"), newTestNode(t, "bob")
	if _, err := alice.Invite("bob"); err != nil {
		t.Fatalf("Invite failed: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := alice.AwaitJoin(ctx, ln)
		done <- err
	}()

	if _, err := bob.Join(ctx, ln.Addr().String(), "ZZZZZZZZ", ""); !errors.Is(err, signal.ErrRejected) {
		t.Fatalf("Expected ErrRejected, got %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitJoin did not return after cancel")
	}
}

type closeRecorder struct {
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestStartChatFailureReleasesResources(t *testing.T) {
	n := newTestNode(t, "alice")
	conn, _ := transport.NewMemoryPair("bob", "alice")
	sig, tr := &closeRecorder{}, &closeRecorder{}

	if _, err := n.startChat("", "bob", conn, tr, sig); err == nil {
		t.Fatal("Expected error for empty contact id")
	}
	if !sig.closed || !tr.closed {
		t.Errorf("Expected closers released, got transport=%v signal=%v", tr.closed, sig.closed)
	}
	if conn.State() != transport.StateClosed {
		t.Errorf("Expected conn closed, got %s", conn.State())
	}
	if len(n.Chats()) != 0 {
		t.Errorf("Expected no chats, got %d", len(n.Chats()))
	}
	if n.Contacts().Len() != 0 {
		t.Errorf("Expected no contacts, got %d", n.Contacts().Len())
	}
}

func TestCloseClearsSharedTranscript(t *testing.T) {
	db, err := store.Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(db) })
	transcript := store.NewMessageStore(db)

	n, err := New(Options{
		Config:     testConfig("alice"),
		Transcript: transcript,
		Logger:     logger.New(io.Discard, "debug"),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ca, _ := transport.NewMemoryPair("bob", "alice")
	c, err := n.startChat("contact-1", "bob", ca)
	if err != nil {
		t.Fatalf("startChat failed: %v", err)
	}
	ctx := context.Background()
	c.record(ctx, protocol.Text{Text: "hi"}, false)
	if got, _ := c.Recorded(ctx); got != 1 {
		t.Fatalf("Expected 1 recorded message, got %d", got)
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got, _ := transcript.Count(ctx, c.Session.ID()); got != 0 {
		t.Errorf("Expected transcript cleared, got %d messages", got)
	}
}
