package packet

import (
	"errors"
	"fmt"

	"github.com/opd-ai/meadowlink/wire"
	"github.com/sirupsen/logrus"
)

// Type identifies an application packet.
type Type byte

const (
	// TypeNone is never sent.
	TypeNone Type = iota
	// TypeChatMessage carries a line of chat.
	TypeChatMessage
	// TypeAnnounce advertises a node on the local network.
	TypeAnnounce
	// TypePeerList shares the sender's connected peers.
	TypePeerList
)

var (
	// ErrSizeMismatch is returned when a packet body consumed a different
	// number of bytes than its frame declared.
	ErrSizeMismatch = errors.New("packet: payload size mismatch")
	// ErrUnknownType is returned for packet types with no registered factory.
	ErrUnknownType = errors.New("packet: unknown packet type")
	// ErrDuplicateType is returned when a type is registered twice.
	ErrDuplicateType = errors.New("packet: type already registered")
	// ErrTruncated is returned when a frame header or body runs past the
	// end of the payload.
	ErrTruncated = errors.New("packet: truncated frame")
)

// Packet is an application message carried in transport payloads.
type Packet interface {
	Type() Type
	MarshalTo(w *wire.Writer) error
	UnmarshalFrom(r *wire.Reader) error
}

// Factory returns an empty packet ready for UnmarshalFrom.
type Factory func() Packet

// Registry maps packet types to factories.
type Registry struct {
	factories map[Type]Factory
}

// NewRegistry returns a registry holding the built-in packet types.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[Type]Factory)}
	_ = r.Register(TypeChatMessage, func() Packet { return &ChatMessage{} })
	_ = r.Register(TypeAnnounce, func() Packet { return &Announce{} })
	_ = r.Register(TypePeerList, func() Packet { return &PeerList{} })
	return r
}

// Register adds a factory for t.
func (r *Registry) Register(t Type, f Factory) error {
	if _, exists := r.factories[t]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateType, t)
	}
	r.factories[t] = f
	return nil
}

// New returns an empty packet of type t.
func (r *Registry) New(t Type) (Packet, error) {
	f, ok := r.factories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	return f(), nil
}

// Encode appends one frame: type byte, u16 body size, body.
func Encode(w *wire.Writer, p Packet) error {
	w.Byte(byte(p.Type()))
	slot := w.ReserveUint16()
	if err := p.MarshalTo(w); err != nil {
		return fmt.Errorf("marshal packet type %d: %w", p.Type(), err)
	}
	if _, err := w.PatchLength(slot); err != nil {
		return fmt.Errorf("packet type %d: %w", p.Type(), err)
	}
	return nil
}

// Marshal encodes a single packet into a new payload.
func Marshal(p Packet) ([]byte, error) {
	w := wire.NewWriter(64)
	if err := Encode(w, p); err != nil {
		return nil, err
	}
	return w.Result(), nil
}

// Decode reads one frame. The body is read from a sub-reader bounded by the
// declared size, and r is advanced past the declared size whether or not the
// body decoded cleanly.
func (reg *Registry) Decode(r *wire.Reader) (Packet, error) {
	b, err := r.Byte()
	if err != nil {
		return nil, fmt.Errorf("%w: no type byte", ErrTruncated)
	}
	size, err := r.Uint16()
	if err != nil {
		return nil, fmt.Errorf("%w: no size for type %d", ErrTruncated, b)
	}
	body, err := r.Next(int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: type %d declares %d bytes, %d left", ErrTruncated, b, size, r.Remaining())
	}

	p, err := reg.New(Type(b))
	if err != nil {
		return nil, err
	}

	sub := wire.NewReader(body)
	if err := p.UnmarshalFrom(sub); err != nil {
		return nil, fmt.Errorf("unmarshal packet type %d: %w", b, err)
	}
	if sub.Remaining() != 0 {
		return nil, fmt.Errorf("%w: type %d expected %d bytes, read %d", ErrSizeMismatch, b, size, sub.Offset())
	}
	return p, nil
}

// DecodeAll decodes every frame in payload. Frames that fail are logged and
// skipped; decoding stops at the first truncated frame.
func (reg *Registry) DecodeAll(payload []byte) []Packet {
	var out []Packet
	r := wire.NewReader(payload)
	for r.Remaining() > 0 {
		start := r.Offset()
		p, err := reg.Decode(r)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "DecodeAll",
				"offset":   start,
				"error":    err.Error(),
			}).Error("Dropping undecodable packet")
			if errors.Is(err, ErrTruncated) {
				break
			}
			continue
		}
		out = append(out, p)
	}
	return out
}
