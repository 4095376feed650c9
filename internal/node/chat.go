package node

import (
	"context"
	"io"
	"path/filepath"

	"github.com/rudransh-shrivastava/offgrid/internal/contact"
	"github.com/rudransh-shrivastava/offgrid/internal/crypto"
	"github.com/rudransh-shrivastava/offgrid/internal/protocol"
	"github.com/rudransh-shrivastava/offgrid/internal/session"
	"github.com/rudransh-shrivastava/offgrid/internal/store"
	"github.com/rudransh-shrivastava/offgrid/internal/transport"
	"github.com/sirupsen/logrus"
)

const frameBuffer = 64

// Chat is one running session together with the resources it was built on.
type Chat struct {
	Session *session.Session
	node    *Node
	ref     string
	frames  chan protocol.Frame
	closers []io.Closer
}

func (n *Node) startChat(contactID, displayName string, conn transport.Conn, closers ...io.Closer) (*Chat, error) {
	c := &Chat{
		node:    n,
		ref:     crypto.Fingerprint(contactID),
		frames:  make(chan protocol.Frame, frameBuffer),
		closers: closers,
	}

	s, err := session.New(session.Options{
		ContactID:    contactID,
		Contacts:     n.contacts,
		Handler:      c.handle,
		Logger:       n.logger,
		ReplayWindow: n.cfg.ReplayWindow,
	})
	if err == nil {
		err = s.Negotiate(conn)
	}
	if err != nil {
		_ = conn.Close()
		c.release()
		return nil, err
	}
	c.Session = s
	n.contacts.Add(contact.Contact{ID: contactID, DisplayName: displayName})

	n.mu.Lock()
	n.chats[s.ID()] = c
	n.sessions = append(n.sessions, s.ID())
	n.mu.Unlock()
	return c, nil
}

// Peer returns the current registry entry for the other side.
func (c *Chat) Peer() (contact.Contact, error) {
	return c.node.contacts.Lookup(c.Session.ContactID())
}

// Frames yields every frame received from the peer, presence included.
func (c *Chat) Frames() <-chan protocol.Frame {
	return c.frames
}

// Run drives the session until it closes. Frames is closed afterwards.
func (c *Chat) Run(ctx context.Context) error {
	defer close(c.frames)
	defer c.node.forget(c)
	err := c.Session.Run(ctx)
	c.release()

	st := c.Session.Stats()
	c.node.logger.WithFields(logrus.Fields{
		"sent":        st.Sent,
		"received":    st.Received,
		"malformed":   st.Malformed,
		"auth_failed": st.AuthFailed,
		"duplicates":  st.Duplicates,
	}).Infof("Chat ended")
	return err
}

func (c *Chat) release() {
	for _, cl := range c.closers {
		_ = cl.Close()
	}
}

func (c *Chat) SendText(ctx context.Context, text string) error {
	return c.send(ctx, protocol.Text{Text: text})
}

// SendFile sends data under the base name of path.
func (c *Chat) SendFile(ctx context.Context, path string, data []byte) error {
	return c.send(ctx, protocol.File{Name: filepath.Base(path), Data: data})
}

func (c *Chat) send(ctx context.Context, f protocol.Frame) error {
	if err := c.Session.Send(f); err != nil {
		return err
	}
	c.record(ctx, f, true)
	return nil
}

func (c *Chat) History(ctx context.Context) ([]store.Message, error) {
	return c.node.transcript.List(ctx, c.Session.ID())
}

// Recorded returns how many messages of this chat are in the transcript.
func (c *Chat) Recorded(ctx context.Context) (int64, error) {
	return c.node.transcript.Count(ctx, c.Session.ID())
}

func (c *Chat) Close() error {
	return c.Session.Close()
}

func (c *Chat) handle(f protocol.Frame) {
	c.record(context.Background(), f, false)
	select {
	case c.frames <- f:
	default:
		c.node.logger.Warnf("Frame buffer full, dropping %s frame", f.Tag())
	}
}

func (c *Chat) record(ctx context.Context, f protocol.Frame, local bool) {
	msg, ok := store.FromFrame(c.Session.ID(), c.ref, f, local)
	if !ok {
		return
	}
	if err := c.node.transcript.Record(ctx, &msg); err != nil {
		c.node.logger.Warnf("Failed to record message: %v", err)
	}
}
