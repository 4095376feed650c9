// Package webrtc implements transport.Transport over pion data channels.
package webrtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/offgrid/internal/transport"
	"github.com/sirupsen/logrus"
)

var _ transport.Transport = (*Transport)(nil)

type Transport struct {
	config      webrtc.Configuration
	label       string
	signaler    transport.Signaler
	logger      *logrus.Logger
	connections map[string]*connection
	incoming    chan transport.Conn
	closed      bool
	mu          sync.RWMutex
}

// New creates a WebRTC transport. Negotiation blobs go out through
// signaler; inbound ones are consumed by Serve.
func New(signaler transport.Signaler, cfg Config, logger *logrus.Logger) *Transport {
	label := cfg.Label
	if label == "" {
		label = DefaultLabel
	}
	return &Transport{
		config:      ICEConfig(cfg.STUNServers),
		label:       label,
		signaler:    signaler,
		logger:      logger,
		connections: make(map[string]*connection),
		incoming:    make(chan transport.Conn, 16),
	}
}

// Connect starts negotiating as the offering side. The returned Conn reports
// StateOpen on StateChanges once the data channel is ready.
func (t *Transport) Connect(ctx context.Context, peerID string) (transport.Conn, error) {
	pc, err := webrtc.NewPeerConnection(t.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	conn := newConnection(peerID, pc, t.signaler, true, t.logger)

	t.mu.Lock()
	t.connections[peerID] = conn
	t.mu.Unlock()

	if err := conn.createDataChannel(t.label); err != nil {
		_ = conn.Close()
		return nil, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	if err := pc.SetLocalDescription(offer); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	signal, err := buildOfferSignal(offer.SDP)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := t.signaler.SendSignal(ctx, peerID, signal); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send offer: %w", err)
	}

	t.logger.Debugf("Sent offer to %s", peerID)
	return conn, nil
}

// Accept yields answering-side connections as soon as their offer arrives.
func (t *Transport) Accept() <-chan transport.Conn {
	return t.incoming
}

// Serve feeds inbound signals to HandleSignal until ctx is done or the
// signaler closes.
func (t *Transport) Serve(ctx context.Context) error {
	signals := t.signaler.RecvSignal()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if err := t.HandleSignal(sig); err != nil {
				t.logger.Warnf("Failed to handle signal from %s: %v", sig.PeerID, err)
			}
		}
	}
}

func (t *Transport) HandleSignal(signal transport.Signal) error {
	t.mu.RLock()
	conn, exists := t.connections[signal.PeerID]
	closed := t.closed
	t.mu.RUnlock()

	if closed {
		return transport.ErrClosed
	}

	if !exists {
		pc, err := webrtc.NewPeerConnection(t.config)
		if err != nil {
			return fmt.Errorf("failed to create peer connection: %w", err)
		}

		conn = newConnection(signal.PeerID, pc, t.signaler, false, t.logger)

		t.mu.Lock()
		t.connections[signal.PeerID] = conn
		t.mu.Unlock()

		if err := conn.handleSignal(signal.Payload); err != nil {
			return err
		}

		t.mu.RLock()
		defer t.mu.RUnlock()
		if !t.closed {
			select {
			case t.incoming <- conn:
			default:
				t.logger.Warnf("Accept queue full, dropping connection from %s", signal.PeerID)
			}
		}
		return nil
	}

	return conn.handleSignal(signal.Payload)
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	for _, conn := range t.connections {
		_ = conn.Close()
	}
	t.connections = make(map[string]*connection)
	close(t.incoming)
	return nil
}
