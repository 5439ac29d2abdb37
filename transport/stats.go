package transport

import (
	"net/netip"
	"time"

	"github.com/opd-ai/meadowlink/identity"
)

// Stats counts datagrams handled by a Manager.
type Stats struct {
	Sent        uint64 `json:"sent"`
	SendErrors  uint64 `json:"send_errors"`
	Received    uint64 `json:"received"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Duplicates  uint64 `json:"duplicates"`
	Retransmits uint64 `json:"retransmits"`
	Evicted     uint64 `json:"evicted"`
}

// Stats returns a copy of the counters.
func (m *Manager) Stats() Stats {
	return m.stats
}

// PeerInfo describes one tracked peer.
type PeerInfo struct {
	ID            *identity.ID   `json:"-"`
	Status        string         `json:"status"`
	Endpoint      netip.AddrPort `json:"endpoint"`
	PublicKey     string         `json:"public_key,omitempty"`
	Queued        int            `json:"queued"`
	WantedAck     uint64         `json:"wanted_ack"`
	RemoteAck     uint64         `json:"remote_ack"`
	NeedBeginAck  bool           `json:"need_begin_ack"`
	SinceIncoming time.Duration  `json:"since_incoming"`
}

// Peers returns the state of every tracked peer.
func (m *Manager) Peers() []PeerInfo {
	peers := m.registry.snapshot()
	out := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		info := PeerInfo{
			ID:            p.id,
			Status:        p.id.Status().String(),
			Endpoint:      p.id.Endpoint(),
			Queued:        len(p.queue),
			WantedAck:     p.wantedAck,
			RemoteAck:     p.remoteAck,
			NeedBeginAck:  p.needBeginAck,
			SinceIncoming: p.sinceIncoming,
		}
		if pk, ok := p.id.PublicKey(); ok {
			info.PublicKey = pk.Hex()
		}
		out = append(out, info)
	}
	return out
}
