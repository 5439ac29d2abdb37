package transport

import (
	"errors"
	"net/netip"
	"time"
)

var (
	// ErrWouldBlock is returned by Conn.Poll when no datagram is queued and
	// by Conn.Wait when the timeout expires.
	ErrWouldBlock = errors.New("transport: no datagram available")
	// ErrClosed is returned by operations on a closed manager or connection.
	ErrClosed = errors.New("transport: closed")
)

// Conn is the datagram socket a Manager drives. It is used from a single
// goroutine.
type Conn interface {
	// WriteTo sends one datagram.
	WriteTo(b []byte, to netip.AddrPort) error
	// Poll reads one queued datagram without blocking.
	Poll(b []byte) (int, netip.AddrPort, error)
	// Wait reads one datagram, blocking for at most timeout.
	Wait(b []byte, timeout time.Duration) (int, netip.AddrPort, error)
	// LocalPort returns the bound UDP port.
	LocalPort() uint16
	Close() error
}
