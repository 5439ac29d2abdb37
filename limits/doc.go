// Package limits provides centralized size constants and validation functions
// for the secured peer transport.
//
// # Size Hierarchy
//
//   - MaxDatagram (65507 bytes): the largest IPv4 UDP payload.
//   - MaxEnvelopeOverhead (84 bytes): a BoxedWithPubKey outer envelope around
//     a Reliable inner envelope, the largest framing the transport emits.
//   - MaxPayload: MaxDatagram minus MaxEnvelopeOverhead. Send rejects larger
//     payloads instead of fragmenting them.
//   - MTU (1500 bytes): the default receive buffer.
//
// # Validation Functions
//
//	if err := limits.ValidatePayload(payload); err != nil {
//	    // errors.Is(err, limits.ErrTooLarge)
//	}
//
// The encryption overhead matches golang.org/x/crypto/nacl/box.Overhead.
package limits
