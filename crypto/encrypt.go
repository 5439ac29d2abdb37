package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// Nonce is a 24-byte value used once per sealed datagram.
type Nonce [NonceSize]byte

// GenerateNonce creates a random nonce. Random 24-byte nonces make
// collisions negligible without keeping per-peer counters.
func GenerateNonce() (Nonce, error) {
	var nonce Nonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return Nonce{}, fmt.Errorf("failed to read nonce: %w", err)
	}
	return nonce, nil
}

// Seal encrypts and authenticates message with the precomputed key. The
// result is exactly len(message)+MACSize bytes.
func (k *SharedKey) Seal(message []byte, nonce Nonce) []byte {
	return box.SealAfterPrecomputation(
		make([]byte, 0, len(message)+MACSize),
		message,
		(*[NonceSize]byte)(&nonce),
		(*[SharedKeySize]byte)(k),
	)
}
