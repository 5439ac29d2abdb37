package wire

import (
	"errors"
	"fmt"
)

// InnerType identifies the reliability framing carried inside the outer
// envelope's plaintext.
type InnerType byte

const (
	// Unreliable carries a payload with no sequencing.
	Unreliable InnerType = 0
	// Reliable carries a payload with the sender's next sequence number.
	Reliable InnerType = 1
	// HeartBeat acknowledges reliable payloads up to a sequence number.
	HeartBeat InnerType = 2
	// InnerVersionError reports an inner type the sender did not understand.
	InnerVersionError InnerType = 255
)

// innerHeaderMax is the largest inner header: type byte plus u64 ack.
const innerHeaderMax = 1 + 8

// ErrUnknownInnerType is returned for inner type bytes this build does not
// know.
var ErrUnknownInnerType = errors.New("wire: unknown inner packet type")

// String returns the name of the inner type.
func (t InnerType) String() string {
	switch t {
	case Unreliable:
		return "Unreliable"
	case Reliable:
		return "Reliable"
	case HeartBeat:
		return "HeartBeat"
	case InnerVersionError:
		return "VersionError"
	default:
		return fmt.Sprintf("InnerType(%d)", byte(t))
	}
}

// Known reports whether t is a defined inner type.
func (t InnerType) Known() bool {
	switch t {
	case Unreliable, Reliable, HeartBeat, InnerVersionError:
		return true
	}
	return false
}

// Inner is a decoded reliability frame.
//
// For Reliable frames Ack is the sender's wanted acknowledgement (the
// sequence number of this payload); for HeartBeat frames it is the highest
// sequence number the sender has received.
type Inner struct {
	Type    InnerType
	Ack     uint64
	Payload []byte
}

// InnerOverhead returns the header size of an inner frame of type t.
func InnerOverhead(t InnerType) int {
	switch t {
	case Reliable, HeartBeat:
		return innerHeaderMax
	default:
		return 1
	}
}

// MarshalTo writes the frame into w. HeartBeat and VersionError frames carry
// no payload; a payload given with them is a caller bug.
func (in *Inner) MarshalTo(w *Writer) error {
	if !in.Type.Known() {
		panic(fmt.Sprintf("wire: cannot encode inner type %d", byte(in.Type)))
	}
	w.Byte(byte(in.Type))
	switch in.Type {
	case Reliable, HeartBeat:
		w.Uint64(in.Ack)
	}
	switch in.Type {
	case Unreliable, Reliable:
		w.Bytes(in.Payload)
	default:
		if len(in.Payload) != 0 {
			return fmt.Errorf("%w: %s frame carries %d payload bytes", ErrLengthMismatch, in.Type, len(in.Payload))
		}
	}
	return nil
}

// EncodeInner returns the encoded frame.
func EncodeInner(in Inner) ([]byte, error) {
	w := NewWriter(InnerOverhead(in.Type) + len(in.Payload))
	if err := in.MarshalTo(w); err != nil {
		return nil, err
	}
	return w.Result(), nil
}

// DecodeInner parses a reliability frame. For an unknown type byte the
// returned frame still carries the raw Type alongside ErrUnknownInnerType so
// the caller can answer with a version error.
func DecodeInner(data []byte) (*Inner, error) {
	r := NewReader(data)
	b, err := r.Byte()
	if err != nil {
		return nil, fmt.Errorf("inner header: %w", err)
	}

	in := &Inner{Type: InnerType(b)}
	switch in.Type {
	case Unreliable:
		in.Payload = r.Rest()
	case Reliable:
		if in.Ack, err = r.Uint64(); err != nil {
			return nil, fmt.Errorf("reliable ack: %w", err)
		}
		in.Payload = r.Rest()
	case HeartBeat:
		if in.Ack, err = r.Uint64(); err != nil {
			return nil, fmt.Errorf("heartbeat ack: %w", err)
		}
	case InnerVersionError:
	default:
		return in, fmt.Errorf("%w: %d", ErrUnknownInnerType, b)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %s", ErrLengthMismatch, r.Remaining(), in.Type)
	}
	return in, nil
}
