package crypto

import (
	"errors"

	"golang.org/x/crypto/nacl/box"
)

var (
	// ErrAuthenticationFailed is returned when the Poly1305 tag does not
	// verify, whether from corruption, a wrong key or tampering.
	ErrAuthenticationFailed = errors.New("decryption failed: message authentication failed")
	// ErrCiphertextTooShort is returned for ciphertexts shorter than the MAC.
	ErrCiphertextTooShort = errors.New("ciphertext shorter than authentication tag")
)

// Open verifies and decrypts a ciphertext produced by Seal.
func (k *SharedKey) Open(ciphertext []byte, nonce Nonce) ([]byte, error) {
	if len(ciphertext) < MACSize {
		return nil, ErrCiphertextTooShort
	}

	out, ok := box.OpenAfterPrecomputation(
		make([]byte, 0, len(ciphertext)-MACSize),
		ciphertext,
		(*[NonceSize]byte)(&nonce),
		(*[SharedKeySize]byte)(k),
	)
	if !ok {
		return nil, ErrAuthenticationFailed
	}
	return out, nil
}
