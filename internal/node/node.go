package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/offgrid/internal/config"
	"github.com/rudransh-shrivastava/offgrid/internal/contact"
	"github.com/rudransh-shrivastava/offgrid/internal/crypto"
	"github.com/rudransh-shrivastava/offgrid/internal/logger"
	"github.com/rudransh-shrivastava/offgrid/internal/pairing"
	"github.com/rudransh-shrivastava/offgrid/internal/signal"
	"github.com/rudransh-shrivastava/offgrid/internal/store"
	"github.com/rudransh-shrivastava/offgrid/internal/transport"
	"github.com/rudransh-shrivastava/offgrid/internal/transport/webrtc"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Options struct {
	Config     *config.Config
	Contacts   *contact.Registry
	Codes      *pairing.Registry
	Transcript store.TranscriptRepository
	Logger     *logrus.Logger
}

// Node owns the registries and transcript shared by every chat of the
// process.
type Node struct {
	cfg        *config.Config
	contacts   *contact.Registry
	codes      *pairing.Registry
	transcript store.TranscriptRepository
	db         *gorm.DB
	logger     *logrus.Logger

	mu       sync.Mutex
	chats    map[string]*Chat
	sessions []string
}

type Invitation struct {
	Code      string
	ContactID string
}

func New(opts Options) (*Node, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Load(""); err != nil {
			return nil, err
		}
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	n := &Node{
		cfg:        cfg,
		contacts:   opts.Contacts,
		codes:      opts.Codes,
		transcript: opts.Transcript,
		logger:     log,
		chats:      make(map[string]*Chat),
	}
	if n.contacts == nil {
		n.contacts = contact.NewRegistry()
	}
	if n.codes == nil {
		n.codes = pairing.NewRegistry()
	}
	if n.transcript == nil {
		db, err := store.Open()
		if err != nil {
			return nil, err
		}
		n.db = db
		n.transcript = store.NewMessageStore(db)
	}
	return n, nil
}

func (n *Node) Contacts() *contact.Registry            { return n.contacts }
func (n *Node) Transcript() store.TranscriptRepository { return n.transcript }

// Invite registers a new contact under displayName and issues its pairing
// code.
func (n *Node) Invite(displayName string) (Invitation, error) {
	id := uuid.NewString()
	n.contacts.Add(contact.Contact{ID: id, DisplayName: displayName})

	code, err := n.codes.Issue(id)
	if err != nil {
		return Invitation{}, err
	}
	n.logger.WithField("contact", crypto.Fingerprint(id)).Infof("Issued pairing code")
	return Invitation{Code: code, ContactID: id}, nil
}

// Redeem consumes a code issued by this node.
func (n *Node) Redeem(code string) (string, error) {
	id, ok := n.codes.Redeem(code)
	if !ok {
		return "", pairing.ErrCodeNotFound
	}
	return id, nil
}

// AwaitJoin waits on ln for the invited peer, then negotiates the data
// channel as the offering side.
func (n *Node) AwaitJoin(ctx context.Context, ln net.Listener) (*Chat, error) {
	n.logger.Debugf("Waiting on %s with %d pairing codes pending", ln.Addr(), n.codes.Pending())
	sig, peer, err := signal.AcceptPairing(ctx, ln, n.codes.Redeem, n.cfg.DisplayName, n.logger)
	if err != nil {
		return nil, err
	}
	n.logger.WithField("contact", crypto.Fingerprint(peer.ContactID)).Infof("Peer %s joined", peer.Name)

	tr := webrtc.New(sig, n.webrtcConfig(), n.logger)
	go func() { _ = tr.Serve(ctx) }()

	conn, err := tr.Connect(ctx, sig.PeerID())
	if err != nil {
		_ = tr.Close()
		_ = sig.Close()
		return nil, err
	}
	return n.startChat(peer.ContactID, peer.Name, conn, tr, sig)
}

// Join redeems code at the inviter listening on addr and negotiates the
// data channel as the answering side.
func (n *Node) Join(ctx context.Context, addr, code, displayName string) (*Chat, error) {
	sig, peer, err := signal.Join(ctx, addr, pairing.Normalize(code), n.cfg.DisplayName, n.logger)
	if err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = peer.Name
	}

	tr := webrtc.New(sig, n.webrtcConfig(), n.logger)
	go func() { _ = tr.Serve(ctx) }()

	waitCtx, cancel := context.WithTimeout(ctx, n.cfg.HandshakeTimeout)
	defer cancel()

	var conn transport.Conn
	select {
	case conn = <-tr.Accept():
	case <-waitCtx.Done():
		_ = tr.Close()
		_ = sig.Close()
		return nil, fmt.Errorf("waiting for offer: %w", waitCtx.Err())
	}
	return n.startChat(peer.ContactID, displayName, conn, tr, sig)
}

func (n *Node) webrtcConfig() webrtc.Config {
	return webrtc.Config{STUNServers: n.cfg.STUNServers, Label: n.cfg.Label}
}

// Chats returns the chats that have not been closed yet.
func (n *Node) Chats() []*Chat {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Chat, 0, len(n.chats))
	for _, c := range n.chats {
		out = append(out, c)
	}
	return out
}

func (n *Node) forget(c *Chat) {
	n.mu.Lock()
	delete(n.chats, c.Session.ID())
	n.mu.Unlock()
}

// Close ends every chat and drops what they left in the transcript.
func (n *Node) Close() error {
	for _, c := range n.Chats() {
		_ = c.Close()
	}
	if n.db != nil {
		return store.Close(n.db)
	}

	n.mu.Lock()
	sessions := n.sessions
	n.sessions = nil
	n.mu.Unlock()

	var errs []error
	for _, id := range sessions {
		if err := n.transcript.Clear(context.Background(), id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
