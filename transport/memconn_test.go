package transport

import (
	"net/netip"
	"testing"
	"time"

	"github.com/opd-ai/meadowlink/identity"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type datagram struct {
	from netip.AddrPort
	data []byte
}

// memNetwork routes datagrams between memConns. Broadcasts reach every conn
// bound to the destination port except the sender.
type memNetwork struct {
	conns map[netip.AddrPort]*memConn
	// tamper, when set, may rewrite or drop (by returning nil) a datagram
	// in transit.
	tamper func(from, to netip.AddrPort, b []byte) []byte
}

func newMemNetwork() *memNetwork {
	return &memNetwork{conns: make(map[netip.AddrPort]*memConn)}
}

func (n *memNetwork) listen(addr string) *memConn {
	ep := netip.MustParseAddrPort(addr)
	c := &memConn{network: n, addr: ep}
	n.conns[ep] = c
	return c
}

func (n *memNetwork) deliver(from, to netip.AddrPort, b []byte) {
	data := append([]byte(nil), b...)
	if n.tamper != nil {
		if data = n.tamper(from, to, data); data == nil {
			return
		}
	}
	if to.Addr() == netip.AddrFrom4([4]byte{255, 255, 255, 255}) {
		for ep, c := range n.conns {
			if ep.Port() == to.Port() && ep != from {
				c.inbox = append(c.inbox, datagram{from: from, data: data})
			}
		}
		return
	}
	if c, ok := n.conns[to]; ok {
		c.inbox = append(c.inbox, datagram{from: from, data: data})
	}
}

// memConn is an in-memory Conn.
type memConn struct {
	network *memNetwork
	addr    netip.AddrPort
	inbox   []datagram
	sent    []datagram
	closed  bool
}

func (c *memConn) WriteTo(b []byte, to netip.AddrPort) error {
	if c.closed {
		return ErrClosed
	}
	c.sent = append(c.sent, datagram{from: to, data: append([]byte(nil), b...)})
	c.network.deliver(c.addr, to, b)
	return nil
}

func (c *memConn) Poll(b []byte) (int, netip.AddrPort, error) {
	if c.closed {
		return 0, netip.AddrPort{}, ErrClosed
	}
	if len(c.inbox) == 0 {
		return 0, netip.AddrPort{}, ErrWouldBlock
	}
	d := c.inbox[0]
	c.inbox = c.inbox[1:]
	return copy(b, d.data), d.from, nil
}

func (c *memConn) Wait(b []byte, _ time.Duration) (int, netip.AddrPort, error) {
	return c.Poll(b)
}

func (c *memConn) LocalPort() uint16 { return c.addr.Port() }

func (c *memConn) Close() error {
	c.closed = true
	return nil
}

// inject queues a raw datagram as if it arrived from from.
func (c *memConn) inject(from string, b []byte) {
	c.inbox = append(c.inbox, datagram{from: netip.MustParseAddrPort(from), data: b})
}

type testNode struct {
	m         *Manager
	conn      *memConn
	hook      *test.Hook
	forgotten []*identity.ID
	delivered []string
}

func newTestNode(t *testing.T, network *memNetwork, addr string, configure func(*Options)) *testNode {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	node := &testNode{conn: network.listen(addr), hook: hook}
	opts := NewOptions()
	opts.Port = node.conn.LocalPort()
	opts.Logger = logger
	opts.Host = identity.NewHost()
	opts.Observer = ObserverFunc(func(id *identity.ID) {
		node.forgotten = append(node.forgotten, id)
	})
	if configure != nil {
		configure(opts)
	}

	m, err := NewManager(node.conn, opts)
	require.NoError(t, err)
	node.m = m
	return node
}

// id returns this node as other nodes address it.
func (n *testNode) id() *identity.ID {
	return identity.NewConnected(n.conn.addr, n.m.PublicKey())
}

// drain receives until the socket is empty and records the payloads.
func (n *testNode) drain() {
	for {
		payload, _, ok := n.m.Receive()
		if !ok {
			return
		}
		n.delivered = append(n.delivered, string(payload))
	}
}

// pump drains every node until no datagrams are in flight.
func pump(nodes ...*testNode) {
	for {
		busy := false
		for _, n := range nodes {
			if len(n.conn.inbox) > 0 {
				busy = true
				n.drain()
			}
		}
		if !busy {
			return
		}
	}
}

// hasLog reports whether a log entry with msg was recorded at level.
func (n *testNode) hasLog(level logrus.Level, msg string) bool {
	for _, e := range n.hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// peer returns the stored state for id.
func (n *testNode) peer(t *testing.T, id *identity.ID) *remotePeer {
	t.Helper()
	p := n.m.registry.lookup(id)
	require.NotNil(t, p, "peer %s not tracked", id)
	return p
}

// connect runs a reliable exchange from a to b so both sides know each other.
func connect(t *testing.T, a, b *testNode) {
	t.Helper()
	require.NoError(t, a.m.Send([]byte("hello"), b.id(), Reliable, true))
	pump(a, b)
	require.Equal(t, []string{"hello"}, b.delivered)
	b.delivered = nil
}
