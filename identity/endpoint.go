package identity

import (
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/opd-ai/meadowlink/crypto"
	"github.com/sirupsen/logrus"
)

var (
	// BlackHoleEndpoint stands for "route through the relay, no direct link
	// known". Datagrams sent there are discarded by the network.
	BlackHoleEndpoint = netip.AddrPortFrom(netip.AddrFrom4([4]byte{253, 253, 253, 253}), 999)

	broadcastAddr = netip.AddrFrom4([4]byte{255, 255, 255, 255})
)

// BlackHole returns a fresh ClearTextOnly identity for BlackHoleEndpoint.
func BlackHole() *ID {
	return NewClearText(BlackHoleEndpoint)
}

// IsBroadcast reports whether ep targets the limited broadcast address.
func IsBroadcast(ep netip.AddrPort) bool {
	return ep.Addr().Unmap() == broadcastAddr
}

// IsNetworkLocal reports whether ep is in an RFC 1918 range or 127/8.
func IsNetworkLocal(ep netip.AddrPort) bool {
	addr := ep.Addr().Unmap()
	if !addr.Is4() {
		return false
	}
	ip := addr.As4()
	return ip[0] == 10 ||
		(ip[0] == 172 && ip[1] >= 16 && ip[1] <= 31) ||
		(ip[0] == 192 && ip[1] == 168) ||
		ip[0] == 127
}

// Host knows which addresses belong to the local machine. Endpoint
// comparison treats all of them as interchangeable with loopback.
type Host struct {
	addrs []netip.Addr
}

var (
	defaultHost     *Host
	defaultHostOnce sync.Once
)

// DefaultHost returns the Host built from the machine's interfaces on first
// use.
func DefaultHost() *Host {
	defaultHostOnce.Do(func() {
		defaultHost = NewHost(interfaceAddresses()...)
	})
	return defaultHost
}

// NewHost builds a Host from explicit addresses. The IPv4 loopback address
// is always included.
func NewHost(addrs ...netip.Addr) *Host {
	h := &Host{}
	loopback := netip.AddrFrom4([4]byte{127, 0, 0, 1})
	for _, a := range addrs {
		a = a.Unmap()
		if a == loopback {
			continue
		}
		h.addrs = append(h.addrs, a)
	}
	h.addrs = append(h.addrs, loopback)
	return h
}

// interfaceAddresses lists the IPv4 unicast addresses of every interface
// that is up, skipping loopback interfaces.
func interfaceAddresses() []netip.Addr {
	interfaces, err := net.Interfaces()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "interfaceAddresses",
			"error":    err.Error(),
		}).Warn("Failed to enumerate interfaces, using loopback only")
		return nil
	}

	var out []netip.Addr
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipnet.IP.To4())
			if !ok {
				continue
			}
			out = append(out, ip)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "interfaceAddresses",
		"addresses": out,
	}).Debug("Enumerated local interface addresses")
	return out
}

// Addresses returns the local addresses, loopback last.
func (h *Host) Addresses() []netip.Addr {
	return append([]netip.Addr(nil), h.addrs...)
}

// Primary returns the first local address, which is loopback only when the
// machine has no other interface.
func (h *Host) Primary() netip.Addr {
	return h.addrs[0]
}

// IsLocal reports whether addr belongs to this machine.
func (h *Host) IsLocal(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() {
		return true
	}
	for _, a := range h.addrs {
		if a == addr {
			return true
		}
	}
	return false
}

// SameEndpoint compares endpoints by port, then by address, treating every
// local address as the same machine.
func (h *Host) SameEndpoint(a, b netip.AddrPort) bool {
	if a.Port() != b.Port() {
		return false
	}
	if h.IsLocal(a.Addr()) && h.IsLocal(b.Addr()) {
		return true
	}
	return a.Addr().Unmap() == b.Addr().Unmap()
}

// IsLoopback reports whether ep is this machine on localPort.
func (h *Host) IsLoopback(ep netip.AddrPort, localPort uint16) bool {
	return ep.Port() == localPort && h.IsLocal(ep.Addr())
}

// Equal reports whether a and b certainly name the same peer: Connected
// identities match on public key, ClearTextOnly and Unknown ones on endpoint.
// Identities of different status never match.
func (h *Host) Equal(a, b *ID) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.status != b.status {
		return false
	}
	switch a.status {
	case Connected:
		return crypto.ConstantTimeEqual(a.key[:], b.key[:])
	default:
		return h.SameEndpoint(a.endpoint, b.endpoint)
	}
}

// CompareAndUpdate reports whether existing and candidate name the same
// peer. An Unknown existing identity whose endpoint matches a Connected
// candidate is upgraded in place with the candidate's key.
func (h *Host) CompareAndUpdate(existing, candidate *ID) bool {
	if existing == nil || candidate == nil {
		return false
	}
	if existing.status == Unknown && candidate.status == Connected {
		if !h.SameEndpoint(existing.endpoint, candidate.endpoint) {
			return false
		}
		existing.upgrade(candidate.key)
		return true
	}
	return h.Equal(existing, candidate)
}

// Describe returns a diagnostic summary of id. localPort is the port the
// local transport is bound to.
func (h *Host) Describe(id *ID, localPort uint16) string {
	key := "[NULL]"
	if pk, ok := id.PublicKey(); ok {
		key = pk.Hex()
	}
	return fmt.Sprintf(
		"[pubkey: %s, IP: [is machine local: %t, is network local: %t, is devnull: %t]]",
		key,
		h.IsLoopback(id.endpoint, localPort),
		id.IsNetworkLocal(),
		id.IsBlackHole(),
	)
}

// Equal compares identities using DefaultHost.
func Equal(a, b *ID) bool {
	return DefaultHost().Equal(a, b)
}
