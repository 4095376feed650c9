// Package session runs one encrypted 1:1 conversation over a transport.Conn.
//
// A Session moves through Idle, Negotiating, Open and Closed. Frames can only
// be sent while Open; inbound bytes are decrypted and handed to the Handler
// from the Run loop, and only while the session is still Open. Closed is
// terminal.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/offgrid/internal/contact"
	"github.com/rudransh-shrivastava/offgrid/internal/crypto"
	"github.com/rudransh-shrivastava/offgrid/internal/protocol"
	"github.com/rudransh-shrivastava/offgrid/internal/seen"
	"github.com/rudransh-shrivastava/offgrid/internal/transport"
	"github.com/sirupsen/logrus"
)

var (
	ErrChannelNotOpen    = errors.New("channel not open")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrDuplicate         = errors.New("duplicate message")
	ErrFrameTooLarge     = errors.New("frame exceeds data channel message size")

	ErrMalformed            = protocol.ErrMalformed
	ErrAuthenticationFailed = crypto.ErrAuthenticationFailed
)

// Handler receives decoded frames. It runs on the Run goroutine.
type Handler func(protocol.Frame)

type Options struct {
	ContactID string
	// Key overrides the key derived from ContactID.
	Key          *crypto.SessionKey
	Contacts     *contact.Registry
	Handler      Handler
	Logger       *logrus.Logger
	ReplayWindow int
}

type Stats struct {
	Sent       uint64
	Received   uint64
	Malformed  uint64
	AuthFailed uint64
	Duplicates uint64
}

type Session struct {
	id        string
	contactID string
	key       crypto.SessionKey
	contacts  *contact.Registry
	handler   Handler
	seen      *seen.Cache
	logger    *logrus.Entry

	mu    sync.RWMutex
	state State
	conn  transport.Conn

	done      chan struct{}
	closeOnce sync.Once

	sent, received, malformed, authFailed, duplicates atomic.Uint64
}

func New(opts Options) (*Session, error) {
	if opts.ContactID == "" {
		return nil, errors.New("contact id is required")
	}

	key := crypto.DeriveKey(opts.ContactID)
	if opts.Key != nil {
		key = *opts.Key
	}

	cache, err := seen.New(opts.ReplayWindow)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	id := uuid.NewString()
	return &Session{
		id:        id,
		contactID: opts.ContactID,
		key:       key,
		contacts:  opts.Contacts,
		handler:   opts.Handler,
		seen:      cache,
		logger: log.WithFields(logrus.Fields{
			"session": id[:8],
			"contact": crypto.Fingerprint(opts.ContactID),
		}),
		state: StateIdle,
		done:  make(chan struct{}),
	}, nil
}

func (s *Session) ID() string        { return s.id }
func (s *Session) ContactID() string { return s.contactID }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Done is closed once the session reaches Closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Stats() Stats {
	return Stats{
		Sent:       s.sent.Load(),
		Received:   s.received.Load(),
		Malformed:  s.malformed.Load(),
		AuthFailed: s.authFailed.Load(),
		Duplicates: s.duplicates.Load(),
	}
}

// Negotiate binds conn to the session and moves it from Idle to Negotiating.
// It is called once the local offer has been made or an inbound offer has
// arrived.
func (s *Session) Negotiate(conn transport.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, StateNegotiating)
	}
	s.conn = conn
	s.state = StateNegotiating
	s.logger.Debugf("Negotiating with %s", conn.PeerID())
	return nil
}

// Run consumes transport events until the session closes or ctx is done.
// Cancelling ctx closes the session.
func (s *Session) Run(ctx context.Context) error {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("%w: run before negotiate", ErrInvalidTransition)
	}

	if conn.State() == transport.StateOpen {
		s.open()
	}

	changes := conn.StateChanges()
	recv := conn.Recv()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return ctx.Err()
		case <-s.done:
			return nil
		case st := <-changes:
			switch st {
			case transport.StateOpen:
				s.open()
			case transport.StateClosed:
				s.fail()
				return nil
			}
		case data, ok := <-recv:
			if !ok {
				s.fail()
				return nil
			}
			s.deliver(conn, data)
		}
	}
}

// Send encrypts f and writes it to the channel. Outside Open nothing is
// written and ErrChannelNotOpen is returned. There is no retry.
func (s *Session) Send(f protocol.Frame) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateOpen {
		return ErrChannelNotOpen
	}
	return s.write(f)
}

// Receive decrypts and decodes one wire message. It does not look at the
// session state; Run does that before dispatching.
func (s *Session) Receive(data []byte) (protocol.Frame, error) {
	m, err := protocol.ParseWire(data)
	if err != nil {
		s.malformed.Add(1)
		return nil, err
	}

	plaintext, err := crypto.Open(s.key, crypto.Nonce(m.Nonce), m.Ciphertext)
	if err != nil {
		s.authFailed.Add(1)
		return nil, err
	}

	if !s.seen.Add(m.Nonce) {
		s.duplicates.Add(1)
		return nil, ErrDuplicate
	}

	f, err := protocol.Decode(m.Tag, m.Metadata, plaintext)
	if err != nil {
		s.malformed.Add(1)
		return nil, err
	}
	s.received.Add(1)
	return f, nil
}

// Close announces OFFLINE if the session was open, then tears down the
// channel. Calling Close more than once is fine.
func (s *Session) Close() error {
	s.mu.Lock()
	prev := s.state
	if prev == StateClosed {
		s.mu.Unlock()
		return nil
	}
	if prev == StateOpen {
		if err := s.write(protocol.Presence{Online: false}); err != nil {
			s.logger.Debugf("Failed to announce offline: %v", err)
		}
	}
	s.state = StateClosed
	conn := s.conn
	s.mu.Unlock()

	s.finish()
	s.logger.Infof("Session closed")

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Session) open() {
	s.mu.Lock()
	if s.state != StateNegotiating {
		s.mu.Unlock()
		return
	}
	s.state = StateOpen
	s.mu.Unlock()

	s.logger.Infof("Session open")
	if err := s.Send(protocol.Presence{Online: true}); err != nil {
		s.logger.Debugf("Failed to announce online: %v", err)
	}
}

func (s *Session) fail() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.finish()
	s.logger.Warnf("Transport closed")
}

func (s *Session) finish() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.contacts != nil {
			s.contacts.SetOnline(s.contactID, false)
		}
	})
}

func (s *Session) deliver(conn transport.Conn, data []byte) {
	// The data channel can open and deliver before its Open event is read.
	if s.State() == StateNegotiating && conn.State() == transport.StateOpen {
		s.open()
	}
	if s.State() != StateOpen {
		s.logger.Debugf("Ignoring %d bytes outside open state", len(data))
		return
	}

	f, err := s.Receive(data)
	if err != nil {
		s.logger.WithField("reason", err).Warnf("Dropped inbound message")
		return
	}

	if s.State() != StateOpen {
		return
	}

	if p, ok := f.(protocol.Presence); ok && s.contacts != nil {
		s.contacts.SetOnline(s.contactID, p.Online)
	}
	if s.handler != nil {
		s.handler(f)
	}
}

// write must be called with s.mu held.
func (s *Session) write(f protocol.Frame) error {
	tag, plaintext, metadata, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	if size := protocol.WireSize(len(metadata), len(plaintext)); size > protocol.MaxMessageSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, size, protocol.MaxMessageSize)
	}

	nonce, err := crypto.NewNonce()
	if err != nil {
		return err
	}
	ciphertext, err := crypto.Seal(s.key, nonce, plaintext)
	if err != nil {
		return err
	}

	msg := protocol.WireMessage{
		Tag:        tag,
		Nonce:      nonce,
		Metadata:   metadata,
		Ciphertext: ciphertext,
	}

	if p, ok := f.(protocol.Presence); ok && s.contacts != nil {
		s.contacts.SetOnline(s.contactID, p.Online)
	}

	if err := s.conn.Send(msg.Marshal()); err != nil {
		if errors.Is(err, transport.ErrNotOpen) || errors.Is(err, transport.ErrClosed) {
			return fmt.Errorf("%w: %v", ErrChannelNotOpen, err)
		}
		return fmt.Errorf("failed to send %s frame: %w", tag, err)
	}
	s.sent.Add(1)
	return nil
}
