// Package crypto implements the authenticated-encryption capability used by
// the secured peer transport.
//
// It wraps NaCl crypto_box (Curve25519, XSalsa20, Poly1305) from
// golang.org/x/crypto behind fixed-size array types so that key, nonce and
// MAC lengths are enforced by the compiler rather than by buffer bookkeeping.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer crypto.WipeKeyPair(keys)
//	fmt.Println("Public key:", keys.Public.Hex())
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// KeyPair is a crypto_box key pair. One KeyPair is owned by a transport for
// its whole lifetime and must be wiped with WipeKeyPair when disposed.
type KeyPair struct {
	Public  PublicKey
	Private [SecretKeySize]byte
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate box key pair: %w", err)
	}

	keyPair := &KeyPair{
		Public:  PublicKey(*publicKey),
		Private: *privateKey,
	}
	ZeroBytes(privateKey[:])

	return keyPair, nil
}

// FromSecretKey rebuilds a key pair from an existing secret key by deriving
// the matching public key on Curve25519.
func FromSecretKey(secretKey [SecretKeySize]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, errors.New("invalid secret key: all zeros")
	}

	pub, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	keyPair := &KeyPair{Private: secretKey}
	copy(keyPair.Public[:], pub)
	return keyPair, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [32]byte) bool {
	var acc byte
	for _, b := range key {
		acc |= b
	}
	return acc == 0
}
