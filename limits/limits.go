// Package limits provides centralized datagram and payload size limits for
// the secured peer transport.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MTU is the receive buffer size used when no larger datagram is pending.
	MTU = 1500

	// MaxDatagram is the largest UDP payload an IPv4 datagram can carry.
	MaxDatagram = 65507

	// EncryptionOverhead is the Poly1305 tag added by NaCl box sealing.
	EncryptionOverhead = 16 // golang.org/x/crypto/nacl/box.Overhead

	// MaxEnvelopeOverhead is the largest framing added around a payload:
	// a BoxedWithPubKey outer envelope (type, key, length, nonce, tag)
	// around a Reliable inner envelope (type, sequence number).
	MaxEnvelopeOverhead = (1 + 32 + 2 + 24 + EncryptionOverhead) + (1 + 8)

	// MaxPayload is the largest application payload that fits one datagram
	// under any envelope.
	MaxPayload = MaxDatagram - MaxEnvelopeOverhead
)

var (
	// ErrDatagramEmpty indicates a zero-length datagram.
	ErrDatagramEmpty = errors.New("empty datagram")

	// ErrTooLarge indicates data exceeding its size limit.
	ErrTooLarge = errors.New("size limit exceeded")
)

// ValidatePayload checks an outgoing application payload. Empty payloads
// are allowed: a reliable empty payload is an acknowledgement request.
func ValidatePayload(payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: payload size %d exceeds limit %d", ErrTooLarge, len(payload), MaxPayload)
	}
	return nil
}

// ValidateDatagram checks a received datagram before it is decoded.
func ValidateDatagram(datagram []byte) error {
	if len(datagram) == 0 {
		return ErrDatagramEmpty
	}
	if len(datagram) > MaxDatagram {
		return fmt.Errorf("%w: datagram size %d exceeds limit %d", ErrTooLarge, len(datagram), MaxDatagram)
	}
	return nil
}
