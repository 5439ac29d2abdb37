//go:build !unix

package transport

import (
	"net/netip"
	"syscall"
	"time"
)

// pollWait is the shortest deadline the runtime poller honours reliably.
const pollWait = time.Millisecond

// Poll reads one queued datagram, waiting at most pollWait.
func (c *UDPConn) Poll(b []byte) (int, netip.AddrPort, error) {
	return c.Wait(b, pollWait)
}

// enableBroadcast is a no-op: the runtime enables SO_BROADCAST on every
// IPv4 datagram socket it creates.
func enableBroadcast(syscall.RawConn) error {
	return nil
}
