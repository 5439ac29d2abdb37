package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// Fixed sizes of the crypto_box construction. The wire codec relies on these
// exactly.
const (
	PublicKeySize = 32
	SecretKeySize = 32
	SharedKeySize = 32
	NonceSize     = 24
	MACSize       = box.Overhead
)

// ErrInvalidPublicKey is returned when a textual public key cannot be parsed.
var ErrInvalidPublicKey = errors.New("invalid public key")

// PublicKey is a crypto_box public key.
type PublicKey [PublicKeySize]byte

// Hex returns the lowercase hexadecimal form used in invite codes and
// confirmation prompts.
func (pk PublicKey) Hex() string {
	return hex.EncodeToString(pk[:])
}

// String implements fmt.Stringer with a shortened form suitable for logs.
func (pk PublicKey) String() string {
	return fmt.Sprintf("%x...", pk[:8])
}

// IsZero reports whether the key is unset.
func (pk PublicKey) IsZero() bool {
	return isZeroKey(pk)
}

// Equal compares two public keys in constant time.
func (pk PublicKey) Equal(other PublicKey) bool {
	return ConstantTimeEqual(pk[:], other[:])
}

// PublicKeyFromHex parses a 64-character hexadecimal public key.
func PublicKeyFromHex(s string) (PublicKey, error) {
	if len(s) != 2*PublicKeySize {
		return PublicKey{}, fmt.Errorf("%w: expected %d hex characters, got %d",
			ErrInvalidPublicKey, 2*PublicKeySize, len(s))
	}

	data, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	var pk PublicKey
	copy(pk[:], data)
	if pk.IsZero() {
		return PublicKey{}, fmt.Errorf("%w: all zeros", ErrInvalidPublicKey)
	}
	return pk, nil
}
