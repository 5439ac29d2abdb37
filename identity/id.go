package identity

import (
	"fmt"
	"net/netip"

	"github.com/opd-ai/meadowlink/crypto"
)

// Status is the trust level of a peer identity.
type Status byte

const (
	// ClearTextOnly identities exist for network-local broadcasts and the
	// BlackHole placeholder. They are never stored by the transport.
	ClearTextOnly Status = iota
	// Unknown identities have an endpoint but no public key yet. They can
	// only be created locally and can only receive key solicitations.
	Unknown
	// Connected identities have both an endpoint and a public key.
	Connected
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case ClearTextOnly:
		return "ClearTextOnly"
	case Unknown:
		return "Unknown"
	case Connected:
		return "Connected"
	default:
		return fmt.Sprintf("Status(%d)", byte(s))
	}
}

// ID identifies a remote peer. IDs are shared by pointer: the registry and
// the application hold the same *ID, so the Unknown to Connected upgrade is
// visible to both.
type ID struct {
	status   Status
	endpoint netip.AddrPort
	key      crypto.PublicKey
}

// NewConnected returns a fully trusted identity.
func NewConnected(endpoint netip.AddrPort, key crypto.PublicKey) *ID {
	return &ID{status: Connected, endpoint: normalize(endpoint), key: key}
}

// NewClearText returns an identity usable only for cleartext broadcast.
func NewClearText(endpoint netip.AddrPort) *ID {
	return &ID{status: ClearTextOnly, endpoint: normalize(endpoint)}
}

// NewUnknown returns an identity whose public key is still to be learned.
func NewUnknown(endpoint netip.AddrPort) *ID {
	return &ID{status: Unknown, endpoint: normalize(endpoint)}
}

// Status returns the identity's trust level.
func (id *ID) Status() Status { return id.status }

// Endpoint returns the UDP endpoint of the peer.
func (id *ID) Endpoint() netip.AddrPort { return id.endpoint }

// PublicKey returns the peer's public key. ok is false unless the identity
// is Connected.
func (id *ID) PublicKey() (key crypto.PublicKey, ok bool) {
	if id.status != Connected {
		return crypto.PublicKey{}, false
	}
	return id.key, true
}

// IsBlackHole reports whether the identity points at the BlackHole endpoint.
func (id *ID) IsBlackHole() bool {
	return id.endpoint == BlackHoleEndpoint
}

// IsBroadcast reports whether the identity points at the limited broadcast
// address.
func (id *ID) IsBroadcast() bool {
	return IsBroadcast(id.endpoint)
}

// IsNetworkLocal reports whether the identity's address is private or
// loopback.
func (id *ID) IsNetworkLocal() bool {
	return IsNetworkLocal(id.endpoint)
}

func (id *ID) String() string {
	if id == nil {
		return "<nil>"
	}
	if id.status == Connected {
		return fmt.Sprintf("%s(%s, %s)", id.status, id.endpoint, id.key)
	}
	return fmt.Sprintf("%s(%s)", id.status, id.endpoint)
}

// upgrade stores key and marks the identity Connected.
func (id *ID) upgrade(key crypto.PublicKey) {
	id.key = key
	id.status = Connected
}

// Upgrade turns an Unknown identity into a Connected one with key. It is the
// only mutation an identity allows and panics on any other status.
func (id *ID) Upgrade(key crypto.PublicKey) {
	if id.status != Unknown {
		panic(&ValidationError{Status: id.status, Reason: "only unknown peers can learn a public key"})
	}
	id.upgrade(key)
}

func normalize(ep netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ep.Addr().Unmap(), ep.Port())
}
