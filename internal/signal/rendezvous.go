package signal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

const redeemTimeout = 30 * time.Second

var (
	ErrRejected   = errors.New("pairing rejected")
	ErrUnexpected = errors.New("unexpected signaling message")
)

// Redeemer resolves a pairing code to a contact id exactly once.
type Redeemer func(code string) (contactID string, ok bool)

// Peer describes the other side after a successful handshake.
type Peer struct {
	ContactID string
	Name      string
}

// AcceptPairing accepts connections on ln until one presents a code that
// redeem accepts. Connections with a wrong code are rejected and closed and
// the listener keeps waiting. ln is closed once AcceptPairing returns.
func AcceptPairing(ctx context.Context, ln net.Listener, redeem Redeemer, localName string, logger *logrus.Logger) (*Conn, Peer, error) {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, Peer{}, ctx.Err()
			}
			return nil, Peer{}, fmt.Errorf("failed to accept: %w", err)
		}

		conn := NewConn(nc, logger)
		conn.Start()

		attemptCtx, cancel := context.WithTimeout(ctx, redeemTimeout)
		peer, err := handleRedeem(attemptCtx, conn, redeem, localName)
		cancel()
		if err != nil {
			logger.Warnf("Pairing attempt from %s failed: %v", nc.RemoteAddr(), err)
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil, Peer{}, ctx.Err()
			}
			continue
		}
		return conn, peer, nil
	}
}

func handleRedeem(ctx context.Context, conn *Conn, redeem Redeemer, localName string) (Peer, error) {
	e, err := conn.Next(ctx)
	if err != nil {
		return Peer{}, err
	}
	if e.Kind != KindRedeem {
		return Peer{}, fmt.Errorf("%w: %s", ErrUnexpected, e.Kind)
	}

	contactID, ok := redeem(e.Code)
	if !ok {
		_ = conn.Send(Envelope{Kind: KindReject, Reason: "pairing code not found"})
		return Peer{}, ErrRejected
	}

	if err := conn.Send(Envelope{Kind: KindAccept, ContactID: contactID, Name: localName}); err != nil {
		return Peer{}, fmt.Errorf("failed to send accept: %w", err)
	}
	return Peer{ContactID: contactID, Name: e.Name}, nil
}

// Join dials the inviter and presents code. On success the returned Peer
// carries the contact id both sides derive their key from.
func Join(ctx context.Context, addr, code, localName string, logger *logrus.Logger) (*Conn, Peer, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, Peer{}, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	conn := NewConn(nc, logger)
	conn.Start()

	if err := conn.Send(Envelope{Kind: KindRedeem, Code: code, Name: localName}); err != nil {
		_ = conn.Close()
		return nil, Peer{}, fmt.Errorf("failed to send code: %w", err)
	}

	e, err := conn.Next(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, Peer{}, err
	}

	switch e.Kind {
	case KindAccept:
		if e.ContactID == "" {
			_ = conn.Close()
			return nil, Peer{}, fmt.Errorf("%w: accept without contact id", ErrUnexpected)
		}
		return conn, Peer{ContactID: e.ContactID, Name: e.Name}, nil
	case KindReject:
		_ = conn.Close()
		return nil, Peer{}, fmt.Errorf("%w: %s", ErrRejected, e.Reason)
	default:
		_ = conn.Close()
		return nil, Peer{}, fmt.Errorf("%w: %s", ErrUnexpected, e.Kind)
	}
}
