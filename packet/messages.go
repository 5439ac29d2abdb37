package packet

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/opd-ai/meadowlink/crypto"
	"github.com/opd-ai/meadowlink/identity"
	"github.com/opd-ai/meadowlink/wire"
)

func writeString(w *wire.Writer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("%w: string of %d bytes", wire.ErrFieldTooLarge, len(s))
	}
	w.Uint16(uint16(len(s)))
	w.Bytes([]byte(s))
	return nil
}

func readString(r *wire.Reader) (string, error) {
	n, err := r.Uint16()
	if err != nil {
		return "", err
	}
	b, err := r.Next(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("packet: string is not valid UTF-8")
	}
	return string(b), nil
}

// ChatMessage is one line of chat text.
type ChatMessage struct {
	Text string
}

func (m *ChatMessage) Type() Type { return TypeChatMessage }

func (m *ChatMessage) MarshalTo(w *wire.Writer) error {
	return writeString(w, m.Text)
}

func (m *ChatMessage) UnmarshalFrom(r *wire.Reader) (err error) {
	m.Text, err = readString(r)
	return err
}

// Announce is broadcast in cleartext so nodes on the same network can find
// each other. It carries what a listener needs to build a Connected
// identity for the announcer: its public key and listening port.
type Announce struct {
	Name      string
	PublicKey crypto.PublicKey
	Port      uint16
}

func (a *Announce) Type() Type { return TypeAnnounce }

func (a *Announce) MarshalTo(w *wire.Writer) error {
	if err := writeString(w, a.Name); err != nil {
		return err
	}
	w.Bytes(a.PublicKey[:])
	w.Uint16(a.Port)
	return nil
}

func (a *Announce) UnmarshalFrom(r *wire.Reader) (err error) {
	if a.Name, err = readString(r); err != nil {
		return err
	}
	if err = r.ReadFull(a.PublicKey[:]); err != nil {
		return err
	}
	a.Port, err = r.Uint16()
	return err
}

// PeerList tells a peer which other peers the sender is connected to, so a
// node joining a lobby can introduce itself to everyone in it.
//
// Only Connected identities may be listed. The entry for AddressedTo, if
// present, is written as loopback so the recipient recognizes itself.
type PeerList struct {
	AddressedTo *identity.ID
	Peers       []*identity.ID

	encoded []byte
}

func (l *PeerList) Type() Type { return TypePeerList }

func (l *PeerList) MarshalTo(w *wire.Writer) error {
	identity.WriteIDList(w, l.Peers, l.AddressedTo, false)
	return nil
}

// UnmarshalFrom keeps the encoded list; entries are decoded by Resolve once
// the sender and the local identity are known.
func (l *PeerList) UnmarshalFrom(r *wire.Reader) error {
	l.encoded = append([]byte(nil), r.Rest()...)
	return nil
}

// Resolve decodes the received list. sender is the peer the list came from
// and self the local identity.
func (l *PeerList) Resolve(h *identity.Host, sender, self *identity.ID) ([]*identity.ID, error) {
	r := wire.NewReader(l.encoded)
	ids, err := h.ReadIDList(r, sender, self)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after peer list", ErrSizeMismatch, r.Remaining())
	}
	l.Peers = ids
	return ids, nil
}
