package identity

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/opd-ai/meadowlink/crypto"
	"github.com/opd-ai/meadowlink/wire"
)

// ErrNotIPv4 is returned when an endpoint cannot be written in the 4-byte
// address form.
var ErrNotIPv4 = errors.New("identity: endpoint is not IPv4")

// maxListLen bounds identity lists read from the network.
const maxListLen = 1024

func writeEndpoint(w *wire.Writer, ep netip.AddrPort) {
	addr := ep.Addr().Unmap()
	if !addr.Is4() {
		panic(fmt.Errorf("%w: %s", ErrNotIPv4, ep))
	}
	ip := addr.As4()
	w.Bytes(ip[:])
	w.Uint16(ep.Port())
}

func readEndpoint(r *wire.Reader) (netip.AddrPort, error) {
	var ip [4]byte
	if err := r.ReadFull(ip[:]); err != nil {
		return netip.AddrPort{}, fmt.Errorf("endpoint address: %w", err)
	}
	port, err := r.Uint16()
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("endpoint port: %w", err)
	}
	return netip.AddrPortFrom(netip.AddrFrom4(ip), port), nil
}

// WriteID appends a Connected identity as IPv4 address, u16 port and public
// key. Any other status panics: only trusted identities travel on the wire.
func WriteID(w *wire.Writer, id *ID) {
	if id.status != Connected {
		panic(&ValidationError{ID: id, Status: id.status, Reason: "cannot serialize peer with no public key"})
	}
	writeEndpoint(w, id.endpoint)
	w.Bytes(id.key[:])
}

// ReadID reads an identity written by WriteID.
func ReadID(r *wire.Reader) (*ID, error) {
	ep, err := readEndpoint(r)
	if err != nil {
		return nil, err
	}
	var key crypto.PublicKey
	if err := r.ReadFull(key[:]); err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	id := NewConnected(ep, key)
	if err := id.Validate(false, false, true); err != nil {
		return nil, err
	}
	return id, nil
}

// WriteIDList appends a peer list for the recipient addressedTo. The entry
// that is addressedTo itself is written as loopback on its port without a
// key, so the recipient recognizes itself whatever address we know it by.
// BlackHole entries carry no key. includeSender tells the reader to prepend
// the datagram's sender.
//
// Every entry must be Connected or BlackHole; anything else panics.
func WriteIDList(w *wire.Writer, ids []*ID, addressedTo *ID, includeSender bool) {
	for _, id := range ids {
		if !(id.IsBlackHole() || id.status == Connected) {
			panic(&ValidationError{ID: id, Status: id.status, Reason: "serialized peer lists may only hold peers with known public keys"})
		}
	}

	w.Bool(includeSender)
	w.Uint32(uint32(len(ids)))
	for _, id := range ids {
		if id == addressedTo {
			writeEndpoint(w, netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), id.endpoint.Port()))
			continue
		}
		writeEndpoint(w, id.endpoint)
		if !id.IsBlackHole() {
			w.Bytes(id.key[:])
		}
	}
}

// ReadIDList reads a list written by WriteIDList. sender is the identity the
// datagram came from; self is the local identity, substituted for the entry
// naming this machine on self's port.
func (h *Host) ReadIDList(r *wire.Reader, sender, self *ID) ([]*ID, error) {
	includeSender, err := r.Bool()
	if err != nil {
		return nil, fmt.Errorf("include sender flag: %w", err)
	}
	n, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("list length: %w", err)
	}
	if n > maxListLen {
		return nil, fmt.Errorf("%w: list of %d identities", wire.ErrFieldTooLarge, n)
	}

	out := make([]*ID, 0, int(n)+1)
	if includeSender {
		out = append(out, sender)
	}

	for i := uint32(0); i < n; i++ {
		ep, err := readEndpoint(r)
		if err != nil {
			return nil, err
		}
		switch {
		case self != nil && h.IsLoopback(ep, self.endpoint.Port()):
			out = append(out, NewConnected(ep, self.key))
		case ep == BlackHoleEndpoint:
			out = append(out, BlackHole())
		default:
			var key crypto.PublicKey
			if err := r.ReadFull(key[:]); err != nil {
				return nil, fmt.Errorf("public key %d: %w", i, err)
			}
			out = append(out, NewConnected(ep, key))
		}
	}
	return out, nil
}
