package transport

import (
	"sync"
)

const memoryBuffer = 1024

// MemoryConn is one end of an in-process Conn pair. Both ends start in
// StateConnecting until Open is called on either of them.
type MemoryConn struct {
	peerID  string
	remote  *MemoryConn
	recv    chan []byte
	changes chan State
	pair    *memoryPair

	mu   sync.Mutex
	sent [][]byte
}

type memoryPair struct {
	mu    sync.Mutex
	state State
	a, b  *MemoryConn
}

// NewMemoryPair returns two connected ends. a reports b's id as its peer
// and the other way round.
func NewMemoryPair(aID, bID string) (*MemoryConn, *MemoryConn) {
	p := &memoryPair{state: StateConnecting}
	a := newMemoryConn(bID, p)
	b := newMemoryConn(aID, p)
	a.remote, b.remote = b, a
	p.a, p.b = a, b
	return a, b
}

func newMemoryConn(peerID string, p *memoryPair) *MemoryConn {
	return &MemoryConn{
		peerID:  peerID,
		recv:    make(chan []byte, memoryBuffer),
		changes: make(chan State, 4),
		pair:    p,
	}
}

// Open marks the pair ready for data on both ends.
func (c *MemoryConn) Open() {
	c.pair.transition(StateOpen)
}

func (c *MemoryConn) PeerID() string {
	return c.peerID
}

// Send delivers data to the other end. Messages are dropped when the
// receiver's buffer is full.
func (c *MemoryConn) Send(data []byte) error {
	c.pair.mu.Lock()
	defer c.pair.mu.Unlock()

	switch c.pair.state {
	case StateClosed:
		return ErrClosed
	case StateConnecting:
		return ErrNotOpen
	}

	msg := append([]byte(nil), data...)
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()

	select {
	case c.remote.recv <- msg:
	default:
	}
	return nil
}

// Inject hands data to this end as if the peer had sent it.
func (c *MemoryConn) Inject(data []byte) {
	c.pair.mu.Lock()
	defer c.pair.mu.Unlock()
	if c.pair.state == StateClosed {
		return
	}
	select {
	case c.recv <- append([]byte(nil), data...):
	default:
	}
}

// Sent returns copies of every message this end has sent.
func (c *MemoryConn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *MemoryConn) Recv() <-chan []byte {
	return c.recv
}

func (c *MemoryConn) State() State {
	c.pair.mu.Lock()
	defer c.pair.mu.Unlock()
	return c.pair.state
}

func (c *MemoryConn) StateChanges() <-chan State {
	return c.changes
}

// Close tears down both ends.
func (c *MemoryConn) Close() error {
	c.pair.transition(StateClosed)
	return nil
}

func (p *memoryPair) transition(to State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed || p.state == to {
		return
	}
	p.state = to
	for _, c := range []*MemoryConn{p.a, p.b} {
		select {
		case c.changes <- to:
		default:
		}
		if to == StateClosed {
			close(c.recv)
		}
	}
}
