package wire

import (
	"errors"
	"fmt"

	"github.com/opd-ai/meadowlink/crypto"
)

// OuterType identifies the crypto envelope of a datagram.
type OuterType byte

const (
	// CleartextBroadcast carries an unencrypted inner frame.
	CleartextBroadcast OuterType = 0
	// Boxed carries an inner frame sealed with the per-peer shared key.
	Boxed OuterType = 1
	// BoxedWithPubKey is Boxed prefixed with the sender's public key.
	BoxedWithPubKey OuterType = 2
	// RequestPubKey asks the receiver to introduce itself.
	RequestPubKey OuterType = 3
	// OuterVersionError reports an outer type the sender did not understand.
	OuterVersionError OuterType = 255
)

// ErrUnknownOuterType is returned for outer type bytes this build does not
// know.
var ErrUnknownOuterType = errors.New("wire: unknown outer packet type")

// String returns the name of the outer type.
func (t OuterType) String() string {
	switch t {
	case CleartextBroadcast:
		return "CleartextBroadcast"
	case Boxed:
		return "Boxed"
	case BoxedWithPubKey:
		return "BoxedWithPubKey"
	case RequestPubKey:
		return "RequestPubKey"
	case OuterVersionError:
		return "VersionError"
	default:
		return fmt.Sprintf("OuterType(%d)", byte(t))
	}
}

// IsBoxed reports whether datagrams of type t carry ciphertext.
func (t OuterType) IsBoxed() bool {
	return t == Boxed || t == BoxedWithPubKey
}

// Sealer encrypts and authenticates plaintext for one peer.
// *crypto.SharedKey satisfies it.
type Sealer interface {
	Seal(message []byte, nonce crypto.Nonce) []byte
}

// Opener verifies and decrypts ciphertext from one peer.
// *crypto.SharedKey satisfies it.
type Opener interface {
	Open(ciphertext []byte, nonce crypto.Nonce) ([]byte, error)
}

// OuterOverhead returns the envelope size added around a plaintext inner
// frame for outer type t.
func OuterOverhead(t OuterType) int {
	switch t {
	case CleartextBroadcast:
		return 1 + 2
	case Boxed:
		return 1 + 2 + crypto.NonceSize + crypto.MACSize
	case BoxedWithPubKey:
		return 1 + crypto.PublicKeySize + 2 + crypto.NonceSize + crypto.MACSize
	case RequestPubKey:
		return 1 + crypto.PublicKeySize
	default:
		return 1
	}
}

// Outer is a decoded datagram envelope.
//
// Length is the declared cleartext length of the inner frame. For boxed
// types Body holds the ciphertext (Length+MACSize bytes); for
// CleartextBroadcast it holds the inner frame itself. SenderKey is set for
// BoxedWithPubKey and RequestPubKey.
type Outer struct {
	Type      OuterType
	SenderKey crypto.PublicKey
	Length    uint16
	Nonce     crypto.Nonce
	Body      []byte
}

// EncodeCleartext wraps an inner frame in a CleartextBroadcast envelope.
func EncodeCleartext(in Inner) ([]byte, error) {
	w := NewWriter(OuterOverhead(CleartextBroadcast) + InnerOverhead(in.Type) + len(in.Payload))
	w.Byte(byte(CleartextBroadcast))
	slot := w.ReserveUint16()
	if err := in.MarshalTo(w); err != nil {
		return nil, err
	}
	if _, err := w.PatchLength(slot); err != nil {
		return nil, err
	}
	return w.Result(), nil
}

// EncodeBoxed seals an inner frame. With a nil senderKey the datagram is
// Boxed; otherwise it is BoxedWithPubKey carrying that key.
//
// The ciphertext length is checked against the declared cleartext length; a
// mismatch means the sealer is broken and panics.
func EncodeBoxed(in Inner, sealer Sealer, nonce crypto.Nonce, senderKey *crypto.PublicKey) ([]byte, error) {
	plain, err := EncodeInner(in)
	if err != nil {
		return nil, err
	}
	if len(plain) > 0xFFFF {
		return nil, fmt.Errorf("%w: inner frame of %d bytes", ErrFieldTooLarge, len(plain))
	}

	t := Boxed
	if senderKey != nil {
		t = BoxedWithPubKey
	}

	w := NewWriter(OuterOverhead(t) + len(plain))
	w.Byte(byte(t))
	if senderKey != nil {
		w.Bytes(senderKey[:])
	}
	w.Uint16(uint16(len(plain)))
	w.Bytes(nonce[:])

	sealed := sealer.Seal(plain, nonce)
	if len(sealed) != len(plain)+crypto.MACSize {
		panic(fmt.Sprintf("%v: sealed %d bytes from %d", ErrLengthMismatch, len(sealed), len(plain)))
	}
	w.Bytes(sealed)
	return w.Result(), nil
}

// EncodeRequestPubKey builds a RequestPubKey datagram announcing own.
func EncodeRequestPubKey(own crypto.PublicKey) []byte {
	w := NewWriter(OuterOverhead(RequestPubKey))
	w.Byte(byte(RequestPubKey))
	w.Bytes(own[:])
	return w.Result()
}

// EncodeVersionError builds the single-byte outer version error.
func EncodeVersionError() []byte {
	return []byte{byte(OuterVersionError)}
}

// DecodeOuter parses a datagram envelope. Lengths are checked strictly: the
// body must be exactly the declared cleartext length, plus MACSize for boxed
// types. For an unknown type byte the returned envelope still carries the raw
// Type alongside ErrUnknownOuterType.
func DecodeOuter(datagram []byte) (*Outer, error) {
	r := NewReader(datagram)
	b, err := r.Byte()
	if err != nil {
		return nil, fmt.Errorf("outer header: %w", err)
	}

	out := &Outer{Type: OuterType(b)}
	switch out.Type {
	case OuterVersionError:
		return out, nil
	case CleartextBroadcast, Boxed, BoxedWithPubKey, RequestPubKey:
	default:
		return out, fmt.Errorf("%w: %d", ErrUnknownOuterType, b)
	}

	if out.Type == BoxedWithPubKey || out.Type == RequestPubKey {
		if err := r.ReadFull(out.SenderKey[:]); err != nil {
			return nil, fmt.Errorf("sender key: %w", err)
		}
	}
	if out.Type == RequestPubKey {
		if r.Remaining() != 0 {
			return nil, fmt.Errorf("%w: %d trailing bytes after %s", ErrLengthMismatch, r.Remaining(), out.Type)
		}
		return out, nil
	}

	if out.Length, err = r.Uint16(); err != nil {
		return nil, fmt.Errorf("cleartext length: %w", err)
	}

	want := int(out.Length)
	if out.Type.IsBoxed() {
		if err := r.ReadFull(out.Nonce[:]); err != nil {
			return nil, fmt.Errorf("nonce: %w", err)
		}
		want += crypto.MACSize
	}

	out.Body = r.Rest()
	if len(out.Body) != want {
		return nil, fmt.Errorf("%w: %s declares %d body bytes, got %d", ErrLengthMismatch, out.Type, want, len(out.Body))
	}
	return out, nil
}

// Open decrypts a boxed envelope and returns the inner frame bytes. For
// CleartextBroadcast the body is returned as is.
func (o *Outer) Open(opener Opener) ([]byte, error) {
	if !o.Type.IsBoxed() {
		return o.Body, nil
	}
	plain, err := opener.Open(o.Body, o.Nonce)
	if err != nil {
		return nil, err
	}
	if len(plain) != int(o.Length) {
		return nil, fmt.Errorf("%w: opened %d bytes, declared %d", ErrLengthMismatch, len(plain), o.Length)
	}
	return plain, nil
}
