package store_test

import (
	"context"
	"testing"

	"github.com/rudransh-shrivastava/offgrid/internal/protocol"
	"github.com/rudransh-shrivastava/offgrid/internal/store"
)

func setupTestStore(t *testing.T) *store.MessageStore {
	t.Helper()
	db, err := store.Open()
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(db) })
	return store.NewMessageStore(db)
}

func TestMessageStore_RecordText(t *testing.T) {
	ms := setupTestStore(t)
	ctx := context.Background()

	msg := &store.Message{SessionID: "s1", Contact: "2bd806c9", Kind: store.KindText, Text: "hi", Local: true}
	if err := ms.Record(ctx, msg); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if msg.ID == 0 {
		t.Error("expected ID to be assigned")
	}
	if msg.CreatedAt == 0 {
		t.Error("expected CreatedAt to be set")
	}

	msgs, err := ms.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Text != "hi" || !msgs[0].Local {
		t.Errorf("unexpected message %+v", msgs[0])
	}
}

func recordFrame(t *testing.T, ms *store.MessageStore, sessionID string, f protocol.Frame) {
	t.Helper()
	msg, ok := store.FromFrame(sessionID, "c", f, true)
	if !ok {
		t.Fatalf("FromFrame rejected %T", f)
	}
	if err := ms.Record(context.Background(), &msg); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
}

func TestFromFrame(t *testing.T) {
	if _, ok := store.FromFrame("s1", "c", protocol.Presence{Online: true}, true); ok {
		t.Error("expected presence to be skipped")
	}
	msg, ok := store.FromFrame("s1", "c", protocol.File{Name: "a.bin", Data: make([]byte, 42)}, false)
	if !ok {
		t.Fatal("expected file to convert")
	}
	if msg.Kind != store.KindFile || msg.FileSize != 42 || msg.Local {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestMessageStore_RecordFrames(t *testing.T) {
	ms := setupTestStore(t)
	ctx := context.Background()

	recordFrame(t, ms, "s1", protocol.Text{Text: "hello"})
	recordFrame(t, ms, "s1", protocol.File{Name: "a.bin", Data: make([]byte, 42)})

	msgs, err := ms.List(ctx, "s1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Kind != store.KindText || msgs[0].Text != "hello" {
		t.Errorf("expected text first, got %+v", msgs[0])
	}
	if msgs[1].Kind != store.KindFile || msgs[1].FileName != "a.bin" || msgs[1].FileSize != 42 {
		t.Errorf("expected file second, got %+v", msgs[1])
	}
}

func TestMessageStore_SessionsIsolated(t *testing.T) {
	ms := setupTestStore(t)
	ctx := context.Background()

	recordFrame(t, ms, "s1", protocol.Text{Text: "one"})
	recordFrame(t, ms, "s2", protocol.Text{Text: "two"})
	recordFrame(t, ms, "s2", protocol.Text{Text: "three"})

	n, err := ms.Count(ctx, "s2")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 messages in s2, got %d", n)
	}

	if err := ms.Clear(ctx, "s2"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n, _ := ms.Count(ctx, "s2"); n != 0 {
		t.Errorf("expected s2 to be empty, got %d", n)
	}
	if n, _ := ms.Count(ctx, "s1"); n != 1 {
		t.Errorf("expected s1 untouched, got %d", n)
	}
}

func TestOpen_Private(t *testing.T) {
	a := setupTestStore(t)
	b := setupTestStore(t)
	ctx := context.Background()

	recordFrame(t, a, "s", protocol.Text{Text: "only in a"})
	if n, _ := b.Count(ctx, "s"); n != 0 {
		t.Errorf("expected separate databases, b has %d messages", n)
	}
}
