package webrtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/offgrid/internal/transport"
	"github.com/sirupsen/logrus"
)

const recvBuffer = 256

var _ transport.Conn = (*connection)(nil)

type connection struct {
	peerID      string
	pc          *webrtc.PeerConnection
	signaler    transport.Signaler
	isInitiator bool
	logger      *logrus.Logger

	mu       sync.Mutex
	dc       *webrtc.DataChannel
	state    transport.State
	recvChan chan []byte
	changes  chan transport.State

	// negotiation state, guarded by negMu
	negMu     sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func newConnection(peerID string, pc *webrtc.PeerConnection, signaler transport.Signaler, isInitiator bool, logger *logrus.Logger) *connection {
	conn := &connection{
		peerID:      peerID,
		pc:          pc,
		signaler:    signaler,
		isInitiator: isInitiator,
		logger:      logger,
		state:       transport.StateConnecting,
		recvChan:    make(chan []byte, recvBuffer),
		changes:     make(chan transport.State, 4),
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Debugf("Peer connection state has changed: %s", s.String())
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			conn.setState(transport.StateClosed)
		}
	})

	pc.OnICECandidate(func(ice *webrtc.ICECandidate) {
		if ice == nil {
			return
		}
		payload, err := buildCandidateSignal(ice.ToJSON())
		if err != nil {
			logger.Warnf("Failed to build ICE candidate: %v", err)
			return
		}
		if err := signaler.SendSignal(context.Background(), peerID, payload); err != nil {
			logger.Warnf("Failed to send ICE candidate: %v", err)
		}
	})

	if !isInitiator {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			conn.setupDataChannel(dc)
		})
	}

	return conn
}

func (c *connection) createDataChannel(label string) error {
	dc, err := c.pc.CreateDataChannel(label, DataChannelConfig())
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	c.setupDataChannel(dc)
	return nil
}

func (c *connection) setupDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.logger.Debugf("Data channel '%s' open", dc.Label())
		c.setState(transport.StateOpen)
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state == transport.StateClosed {
			return
		}
		select {
		case c.recvChan <- msg.Data:
		default:
			c.logger.Warnf("Receive buffer full, dropping %d bytes", len(msg.Data))
		}
	})

	dc.OnError(func(err error) {
		c.logger.Errorf("Data channel error: %v", err)
	})

	dc.OnClose(func() {
		c.logger.Debugf("Data channel '%s' closed", dc.Label())
		c.setState(transport.StateClosed)
	})
}

func (c *connection) setState(to transport.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == transport.StateClosed || c.state == to {
		return
	}
	c.state = to
	select {
	case c.changes <- to:
	default:
	}
	if to == transport.StateClosed {
		close(c.recvChan)
	}
}

func (c *connection) handleSignal(payload []byte) error {
	n, err := parseSignal(payload)
	if err != nil {
		return err
	}

	c.negMu.Lock()
	defer c.negMu.Unlock()

	if n.Kind == kindCandidate {
		if !c.remoteSet {
			c.pending = append(c.pending, n.Candidate)
			return nil
		}
		if err := c.pc.AddICECandidate(n.Candidate); err != nil {
			return fmt.Errorf("failed to add ICE candidate: %w", err)
		}
		return nil
	}

	if c.remoteSet {
		return nil
	}

	desc := webrtc.SessionDescription{SDP: n.SDP}
	switch {
	case c.isInitiator && n.Kind == kindAnswer:
		desc.Type = webrtc.SDPTypeAnswer
	case !c.isInitiator && n.Kind == kindOffer:
		desc.Type = webrtc.SDPTypeOffer
	default:
		return fmt.Errorf("unexpected %s signal", n.Kind)
	}

	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	c.remoteSet = true

	for _, cand := range c.pending {
		if err := c.pc.AddICECandidate(cand); err != nil {
			c.logger.Warnf("Failed to add queued ICE candidate: %v", err)
		}
	}
	c.pending = nil

	if c.isInitiator {
		return nil
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	signal, err := buildAnswerSignal(answer.SDP)
	if err != nil {
		return err
	}
	if err := c.signaler.SendSignal(context.Background(), c.peerID, signal); err != nil {
		return fmt.Errorf("failed to send answer: %w", err)
	}
	return nil
}

func (c *connection) PeerID() string {
	return c.peerID
}

func (c *connection) Send(data []byte) error {
	c.mu.Lock()
	dc, state := c.dc, c.state
	c.mu.Unlock()

	switch {
	case state == transport.StateClosed:
		return transport.ErrClosed
	case state != transport.StateOpen || dc == nil:
		return transport.ErrNotOpen
	}
	return dc.Send(data)
}

func (c *connection) Recv() <-chan []byte {
	return c.recvChan
}

func (c *connection) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *connection) StateChanges() <-chan transport.State {
	return c.changes
}

func (c *connection) Close() error {
	c.setState(transport.StateClosed)

	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
	return c.pc.Close()
}
