package transport

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/opd-ai/meadowlink/crypto"
	"github.com/opd-ai/meadowlink/identity"
	"github.com/opd-ai/meadowlink/limits"
	"github.com/sirupsen/logrus"
)

// Kind selects how Send delivers a payload.
type Kind uint8

const (
	// Unreliable payloads are sealed and sent once.
	Unreliable Kind = iota
	// Reliable payloads are sealed, queued, retransmitted on every
	// heartbeat until acknowledged, and delivered in order exactly once.
	Reliable
	// UnreliableBroadcast payloads are sent once in cleartext. Only
	// ClearTextOnly identities may receive them.
	UnreliableBroadcast
)

func (k Kind) String() string {
	switch k {
	case Unreliable:
		return "Unreliable"
	case Reliable:
		return "Reliable"
	case UnreliableBroadcast:
		return "UnreliableBroadcast"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ErrUnknownKind is returned by Send for an undefined Kind.
var ErrUnknownKind = errors.New("transport: unknown send kind")

// resolveTimeout bounds DNS lookups made by ResolveID.
const resolveTimeout = 5 * time.Second

// Manager is the secured peer transport. It owns one key pair and one
// socket and is driven from a single goroutine: Send, Receive, Update and
// the other methods must not be called concurrently.
type Manager struct {
	conn         Conn
	keys         *crypto.KeyPair
	host         *identity.Host
	timing       Timing
	timeProvider TimeProvider
	confirm      ConfirmFunc
	observer     Observer
	logger       *logrus.Entry

	basePort     uint16
	portAttempts int

	registry *registry
	stats    Stats
	recvBuf  []byte

	lastTick time.Time
	ticked   bool
	closed   bool
}

// Listen binds a UDP socket per opts and returns a manager on it.
func Listen(opts *Options) (*Manager, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	conn, err := ListenUDP(opts.Port, opts.PortAttempts)
	if err != nil {
		return nil, err
	}
	m, err := NewManager(conn, opts)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

// NewManager returns a manager driving conn.
func NewManager(conn Conn, opts *Options) (*Manager, error) {
	if conn == nil {
		return nil, errors.New("transport: nil connection")
	}
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	keys := opts.KeyPair
	if keys == nil {
		var err error
		if keys, err = crypto.GenerateKeyPair(); err != nil {
			return nil, fmt.Errorf("generate key pair: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	timing := opts.Timing
	if timing == nil {
		timing = opts
	}
	tp := opts.TimeProvider
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	host := opts.Host
	if host == nil {
		host = identity.DefaultHost()
	}
	basePort := opts.Port
	if basePort == 0 {
		basePort = DefaultPort
	}

	m := &Manager{
		conn:         conn,
		keys:         keys,
		host:         host,
		timing:       timing,
		timeProvider: tp,
		confirm:      opts.Confirm,
		observer:     opts.Observer,
		logger:       logger.WithField("package", "transport"),
		basePort:     basePort,
		portAttempts: opts.PortAttempts,
		registry:     newRegistry(host),
		recvBuf:      make([]byte, limits.MaxDatagram),
	}

	m.logger.WithFields(logrus.Fields{
		"function":   "NewManager",
		"port":       conn.LocalPort(),
		"public_key": keys.Public.String(),
	}).Info("Secured peer manager ready")

	return m, nil
}

// Self returns the local identity as other machines on the network would
// address it.
func (m *Manager) Self() *identity.ID {
	ep := netip.AddrPortFrom(m.host.Primary(), m.conn.LocalPort())
	return identity.NewConnected(ep, m.keys.Public)
}

// PublicKey returns the local public key.
func (m *Manager) PublicKey() crypto.PublicKey {
	return m.keys.Public
}

// LocalPort returns the bound UDP port.
func (m *Manager) LocalPort() uint16 {
	return m.conn.LocalPort()
}

// Host returns the set of local addresses the manager compares endpoints
// against.
func (m *Manager) Host() *identity.Host {
	return m.host
}

// BroadcastIDs returns a broadcast identity for every port a node may have
// bound.
func (m *Manager) BroadcastIDs() []*identity.ID {
	ids := make([]*identity.ID, 0, m.portAttempts)
	broadcast := netip.AddrFrom4([4]byte{255, 255, 255, 255})
	for i := 0; i < m.portAttempts; i++ {
		port := int(m.basePort) + i
		if port > 0xFFFF {
			break
		}
		ids = append(ids, identity.NewClearText(netip.AddrPortFrom(broadcast, uint16(port))))
	}
	return ids
}

// ResolveID parses a peer name: "<hex key>@<endpoint>" yields a Connected
// identity, a bare endpoint an Unknown one. Endpoints are host[:port] or a
// UDP multiaddr; the port defaults to DefaultPort.
func (m *Manager) ResolveID(name string) (*identity.ID, error) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	return identity.Resolve(ctx, name, DefaultPort)
}

// Describe returns a diagnostic summary of id.
func (m *Manager) Describe(id *identity.ID) string {
	return m.host.Describe(id, m.conn.LocalPort())
}

// InviteCode returns "<hex key>@X.X.X.X:<port>" for the user to share,
// with the address left for them to fill in.
func (m *Manager) InviteCode() string {
	return fmt.Sprintf("%s@X.X.X.X:%d", m.keys.Public.Hex(), m.conn.LocalPort())
}

// EnsurePeer starts tracking id if it is not tracked yet. It panics if id
// is not valid for storage.
func (m *Manager) EnsurePeer(id *identity.ID) {
	m.registry.getOrCreate(id)
}

// Forget stops tracking every peer equal to id. Each one is removed before
// the observer hears about it.
func (m *Manager) Forget(id *identity.ID) {
	for _, p := range m.registry.matching(id) {
		m.forgetPeer(p)
	}
}

// ForgetAll stops tracking every peer.
func (m *Manager) ForgetAll() {
	for _, p := range m.registry.snapshot() {
		m.forgetPeer(p)
	}
}

func (m *Manager) forgetPeer(p *remotePeer) {
	if !m.registry.remove(p) {
		return
	}
	p.wipe()
	m.logger.WithFields(logrus.Fields{
		"function": "forgetPeer",
		"peer":     p.id.String(),
	}).Debug("Peer forgotten")
	if m.observer != nil {
		m.observer.PeerForgotten(p.id)
	}
}

// Tick runs Update with the time elapsed since the previous Tick, measured
// by the configured TimeProvider. The first call uses zero.
func (m *Manager) Tick() {
	now := m.timeProvider.Now()
	var elapsed time.Duration
	if m.ticked {
		elapsed = now.Sub(m.lastTick)
		if elapsed < 0 {
			elapsed = 0
		}
	}
	m.lastTick = now
	m.ticked = true
	m.Update(elapsed)
}

// Close wipes every key held by the manager and closes the socket. Peers
// are dropped without notifying the observer.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	for _, p := range m.registry.snapshot() {
		p.wipe()
	}
	m.registry.peers = nil
	if err := crypto.WipeKeyPair(m.keys); err != nil {
		m.logger.WithFields(logrus.Fields{
			"function": "Close",
			"error":    err.Error(),
		}).Warn("Failed to wipe key pair")
	}
	return m.conn.Close()
}

// sharedKey returns the peer's shared key, deriving it on first use.
func (m *Manager) sharedKey(p *remotePeer) (*crypto.SharedKey, error) {
	if p.sharedKey != nil {
		return p.sharedKey, nil
	}
	pk, ok := p.id.PublicKey()
	if !ok {
		return nil, fmt.Errorf("no public key for %s", p.id)
	}
	key, err := crypto.DeriveSharedKey(pk, &m.keys.Private)
	if err != nil {
		return nil, err
	}
	p.sharedKey = key
	return key, nil
}
