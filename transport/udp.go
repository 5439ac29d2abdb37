package transport

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// UDPConn is a broadcast-enabled IPv4 UDP socket read by polling.
type UDPConn struct {
	conn *net.UDPConn
	raw  syscall.RawConn
	port uint16
}

// ListenUDP binds the first free port in [port, port+attempts). A port of 0
// binds one ephemeral port.
func ListenUDP(port uint16, attempts int) (*UDPConn, error) {
	if port == 0 || attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		candidate := int(port) + i
		if candidate > 0xFFFF {
			break
		}
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: candidate})
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "ListenUDP",
				"port":     candidate,
				"error":    err.Error(),
			}).Debug("Port unavailable, trying next")
			lastErr = err
			continue
		}
		return newUDPConn(conn)
	}
	return nil, fmt.Errorf("failed to claim a UDP port in %d..%d: %w", port, int(port)+attempts-1, lastErr)
}

func newUDPConn(conn *net.UDPConn) (*UDPConn, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("raw socket access: %w", err)
	}
	if err := enableBroadcast(raw); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "newUDPConn",
			"error":    err.Error(),
		}).Warn("Failed to enable broadcast, cleartext discovery will not reach the network")
	}

	local := conn.LocalAddr().(*net.UDPAddr)
	logrus.WithFields(logrus.Fields{
		"function": "newUDPConn",
		"port":     local.Port,
	}).Info("UDP socket bound")

	return &UDPConn{conn: conn, raw: raw, port: uint16(local.Port)}, nil
}

// WriteTo sends one datagram.
func (c *UDPConn) WriteTo(b []byte, to netip.AddrPort) error {
	_, err := c.conn.WriteToUDPAddrPort(b, to)
	return err
}

// Wait reads one datagram, blocking for at most timeout. The read deadline
// is cleared again before returning.
func (c *UDPConn) Wait(b []byte, timeout time.Duration) (int, netip.AddrPort, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, netip.AddrPort{}, classifyReadError(err)
	}
	defer c.conn.SetReadDeadline(time.Time{})

	n, from, err := c.conn.ReadFromUDPAddrPort(b)
	if err != nil {
		return 0, netip.AddrPort{}, classifyReadError(err)
	}
	return n, netip.AddrPortFrom(from.Addr().Unmap(), from.Port()), nil
}

// LocalPort returns the bound port.
func (c *UDPConn) LocalPort() uint16 { return c.port }

// Close closes the socket.
func (c *UDPConn) Close() error { return c.conn.Close() }

func classifyReadError(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrWouldBlock
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}
