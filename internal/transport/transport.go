// Package transport defines the byte channel a session runs over.
package transport

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotOpen = errors.New("channel not open")
	ErrClosed  = errors.New("channel closed")
)

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport negotiates connections to peers.
type Transport interface {
	Connect(ctx context.Context, peerID string) (Conn, error)
	Accept() <-chan Conn
	Close() error
}

// Conn is an ordered message channel to one peer. Recv is closed once the
// channel is gone. StateChanges reports Open and Closed transitions.
type Conn interface {
	PeerID() string
	Send(data []byte) error
	Recv() <-chan []byte
	State() State
	StateChanges() <-chan State
	Close() error
}

// Signaler ferries opaque negotiation blobs between the two sides.
type Signaler interface {
	SendSignal(ctx context.Context, peerID string, signal []byte) error
	RecvSignal() <-chan Signal
	io.Closer
}

type Signal struct {
	PeerID  string
	Payload []byte
}
