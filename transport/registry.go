package transport

import (
	"net/netip"
	"time"

	"github.com/opd-ai/meadowlink/crypto"
	"github.com/opd-ai/meadowlink/identity"
)

// remotePeer is the mutable state kept for one tracked identity.
type remotePeer struct {
	id        *identity.ID
	sharedKey *crypto.SharedKey

	sinceIncoming time.Duration
	outgoingAccum time.Duration

	// queue holds reliable payloads; only the head is ever in flight.
	queue [][]byte
	// wantedAck is the sequence number of the last reliable payload the
	// remote side acknowledged; remoteAck the last one we received.
	wantedAck    uint64
	remoteAck    uint64
	needBeginAck bool
}

func newRemotePeer(id *identity.ID) *remotePeer {
	return &remotePeer{id: id, needBeginAck: true}
}

func (p *remotePeer) wipe() {
	p.sharedKey.Wipe()
	p.sharedKey = nil
	p.queue = nil
}

// registry tracks remote peers. ClearTextOnly identities are never stored.
type registry struct {
	host  *identity.Host
	peers []*remotePeer
}

func newRegistry(host *identity.Host) *registry {
	return &registry{host: host}
}

// getOrCreate returns the peer for id, upgrading a stored Unknown identity
// when id carries its key. New peers are validated for internal use; a
// ClearTextOnly identity gets a transient peer that is not stored.
func (r *registry) getOrCreate(id *identity.ID) *remotePeer {
	for _, p := range r.peers {
		if r.host.CompareAndUpdate(p.id, id) {
			return p
		}
	}

	id.MustValidate(false, false, true)
	p := newRemotePeer(id)
	if id.Status() != identity.ClearTextOnly {
		r.peers = append(r.peers, p)
	}
	return p
}

// lookup returns the stored peer equal to id.
func (r *registry) lookup(id *identity.ID) *remotePeer {
	for _, p := range r.peers {
		if r.host.Equal(p.id, id) {
			return p
		}
	}
	return nil
}

// byEndpoint returns the stored peer at ep.
func (r *registry) byEndpoint(ep netip.AddrPort) *remotePeer {
	for _, p := range r.peers {
		if r.host.SameEndpoint(p.id.Endpoint(), ep) {
			return p
		}
	}
	return nil
}

// add stores a peer built outside getOrCreate.
func (r *registry) add(p *remotePeer) {
	r.peers = append(r.peers, p)
}

// remove deletes p and reports whether it was present.
func (r *registry) remove(p *remotePeer) bool {
	for i, q := range r.peers {
		if q == p {
			r.peers = append(r.peers[:i], r.peers[i+1:]...)
			return true
		}
	}
	return false
}

// matching returns a copy of the stored peers equal to id.
func (r *registry) matching(id *identity.ID) []*remotePeer {
	var out []*remotePeer
	for _, p := range r.peers {
		if r.host.Equal(p.id, id) {
			out = append(out, p)
		}
	}
	return out
}

// snapshot returns a copy of the stored peers.
func (r *registry) snapshot() []*remotePeer {
	return append([]*remotePeer(nil), r.peers...)
}
