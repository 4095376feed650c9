// Package signal carries pairing and connection negotiation between two
// peers over a plain TCP connection.
//
// The inviter listens and the joiner dials. The joiner presents a pairing
// code, the inviter redeems it and answers with the contact id. After that
// the connection only ferries opaque negotiation payloads and implements
// transport.Signaler.
package signal

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/rudransh-shrivastava/offgrid/internal/transport"
	"github.com/sirupsen/logrus"
)

var _ transport.Signaler = (*Conn)(nil)

type Conn struct {
	conn    net.Conn
	peerID  string
	logger  *logrus.Logger
	signals chan transport.Signal
	control chan Envelope
	done    chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func NewConn(conn net.Conn, logger *logrus.Logger) *Conn {
	return &Conn{
		conn:    conn,
		peerID:  conn.RemoteAddr().String(),
		logger:  logger,
		signals: make(chan transport.Signal, 64),
		control: make(chan Envelope, 4),
		done:    make(chan struct{}),
	}
}

func (c *Conn) Start() {
	go c.listen()
}

// PeerID names the remote end in the signals this connection produces.
func (c *Conn) PeerID() string {
	return c.peerID
}

func (c *Conn) listen() {
	defer close(c.signals)
	defer close(c.control)
	defer c.Close()

	for {
		e, err := ReadEnvelope(c.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logger.Debugf("Signaling read ended: %v", err)
			}
			return
		}

		if e.Kind == KindNegotiate {
			select {
			case c.signals <- transport.Signal{PeerID: c.peerID, Payload: e.Payload}:
			case <-c.done:
				return
			}
			continue
		}

		select {
		case c.control <- e:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) Send(e Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteEnvelope(c.conn, e)
}

// Next waits for the next handshake envelope.
func (c *Conn) Next(ctx context.Context) (Envelope, error) {
	select {
	case e, ok := <-c.control:
		if !ok {
			return Envelope{}, io.EOF
		}
		return e, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (c *Conn) SendSignal(ctx context.Context, _ string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Send(Envelope{Kind: KindNegotiate, Payload: payload})
}

func (c *Conn) RecvSignal() <-chan transport.Signal {
	return c.signals
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
