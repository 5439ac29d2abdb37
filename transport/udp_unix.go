//go:build unix

package transport

import (
	"fmt"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"
)

// Poll reads one queued datagram. The runtime keeps the descriptor in
// non-blocking mode, so an empty queue surfaces as EAGAIN.
func (c *UDPConn) Poll(b []byte) (int, netip.AddrPort, error) {
	var (
		n     int
		from  unix.Sockaddr
		opErr error
	)
	err := c.raw.Read(func(fd uintptr) bool {
		n, from, opErr = unix.Recvfrom(int(fd), b, 0)
		return true
	})
	if err != nil {
		return 0, netip.AddrPort{}, classifyReadError(err)
	}
	if opErr == unix.EAGAIN || opErr == unix.EWOULDBLOCK {
		return 0, netip.AddrPort{}, ErrWouldBlock
	}
	if opErr != nil {
		return 0, netip.AddrPort{}, opErr
	}

	switch sa := from.(type) {
	case *unix.SockaddrInet4:
		return n, netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)), nil
	case *unix.SockaddrInet6:
		return n, netip.AddrPortFrom(netip.AddrFrom16(sa.Addr).Unmap(), uint16(sa.Port)), nil
	default:
		return 0, netip.AddrPort{}, fmt.Errorf("unexpected sender address %T", from)
	}
}

func enableBroadcast(raw syscall.RawConn) error {
	var sockErr error
	err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
