package cmd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rudransh-shrivastava/offgrid/internal/node"
	"github.com/rudransh-shrivastava/offgrid/internal/protocol"
	"github.com/rudransh-shrivastava/offgrid/internal/store"
	"github.com/schollz/progressbar/v3"
)

var downloadDir = "downloads"

func signalContext() (context.Context, context.CancelFunc) {
	return ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runChat reads commands from stdin and prints what the peer sends until
// either side closes.
func runChat(ctx context.Context, n *node.Node, chat *node.Chat) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := chat.Run(ctx); err != nil && ctx.Err() == nil {
			log.Warnf("Session ended: %v", err)
		}
	}()
	go printFrames(chat)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println("Type a message, /send <path>, /who, /history, /stats or /quit")
	for {
		select {
		case <-done:
			fmt.Println("Chat closed")
			return
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				_ = chat.Close()
				<-done
				return
			}
			handleLine(ctx, n, chat, line)
		}
	}
}

func handleLine(ctx context.Context, n *node.Node, chat *node.Chat, line string) {
	switch {
	case strings.TrimSpace(line) == "":
	case strings.HasPrefix(line, "/send "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/send "))
		data, err := readWithProgress(path)
		if err != nil {
			log.Errorf("Failed to read %s: %v", path, err)
			return
		}
		if err := chat.SendFile(ctx, path, data); err != nil {
			log.Errorf("Failed to send file: %v", err)
			return
		}
		fmt.Printf("Sent %s (%d bytes)\n", filepath.Base(path), len(data))
	case strings.TrimSpace(line) == "/who":
		for _, c := range n.Contacts().List() {
			status := "offline"
			if c.Online {
				status = "online"
			}
			fmt.Printf("  %s  %s\n", c.DisplayName, status)
		}
	case strings.TrimSpace(line) == "/history":
		printHistory(ctx, chat)
	case strings.TrimSpace(line) == "/stats":
		printStats(ctx, chat)
	default:
		if err := chat.SendText(ctx, line); err != nil {
			log.Errorf("Failed to send: %v", err)
		}
	}
}

func readWithProgress(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(int(info.Size()))
	bar := progressbar.DefaultBytes(info.Size(), "reading "+filepath.Base(path))
	if _, err := io.Copy(io.MultiWriter(&buf, bar), f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func printHistory(ctx context.Context, chat *node.Chat) {
	msgs, err := chat.History(ctx)
	if err != nil {
		log.Errorf("Failed to read history: %v", err)
		return
	}
	name := peerName(chat)
	for _, m := range msgs {
		from := name
		if m.Local {
			from = "you"
		}
		at := time.UnixMilli(m.CreatedAt).Format(time.TimeOnly)
		switch m.Kind {
		case store.KindFile:
			fmt.Printf("  %s %s: [file %s, %d bytes]\n", at, from, m.FileName, m.FileSize)
		default:
			fmt.Printf("  %s %s: %s\n", at, from, m.Text)
		}
	}
}

func printStats(ctx context.Context, chat *node.Chat) {
	st := chat.Session.Stats()
	recorded, err := chat.Recorded(ctx)
	if err != nil {
		log.Errorf("Failed to count transcript: %v", err)
	}
	fmt.Printf("  state %s, sent %d, received %d, recorded %d\n", chat.Session.State(), st.Sent, st.Received, recorded)
	fmt.Printf("  dropped: malformed %d, auth failed %d, duplicates %d\n", st.Malformed, st.AuthFailed, st.Duplicates)
}

func peerName(chat *node.Chat) string {
	p, err := chat.Peer()
	if err != nil {
		return "peer"
	}
	return p.DisplayName
}

func printFrames(chat *node.Chat) {
	for f := range chat.Frames() {
		name := peerName(chat)
		switch f := f.(type) {
		case protocol.Text:
			fmt.Printf("%s: %s\n", name, f.Text)
		case protocol.File:
			path, err := saveFile(f)
			if err != nil {
				log.Errorf("Failed to save %s: %v", f.Name, err)
				continue
			}
			fmt.Printf("%s sent %s (%d bytes), saved to %s\n", name, f.Name, len(f.Data), path)
		case protocol.Presence:
			if f.Online {
				fmt.Printf("%s is online\n", name)
			} else {
				fmt.Printf("%s went offline\n", name)
			}
		}
	}
}

func saveFile(f protocol.File) (string, error) {
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return "", err
	}
	name := filepath.Base(f.Name)
	if name == "." || name == ".." || name == "/" || name == "" {
		name = "unnamed"
	}
	path := filepath.Join(downloadDir, name)
	return path, os.WriteFile(path, f.Data, 0o644)
}
