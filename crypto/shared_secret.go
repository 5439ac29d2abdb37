package crypto

import (
	"errors"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// ErrWeakSharedKey is returned when the peer's public key is a low-order
// point, which would make every peer derive the same predictable key.
var ErrWeakSharedKey = errors.New("peer public key yields a weak shared key")

// SharedKey is the crypto_box_beforenm key shared between the local node and
// one remote peer. It is owned by exactly one remote peer record and must be
// wiped when that record is destroyed.
type SharedKey [SharedKeySize]byte

// DeriveSharedKey precomputes the shared key between the peer's public key
// and our secret key.
func DeriveSharedKey(peerPublicKey PublicKey, secretKey *[SecretKeySize]byte) (*SharedKey, error) {
	logrus.WithFields(logrus.Fields{
		"function":        "DeriveSharedKey",
		"peer_key_prefix": peerPublicKey.String(),
	}).Debug("Precomputing shared key")

	// X25519 reports low-order inputs as an error; box.Precompute does not.
	point, err := curve25519.X25519(secretKey[:], peerPublicKey[:])
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":        "DeriveSharedKey",
			"peer_key_prefix": peerPublicKey.String(),
			"error":           err.Error(),
		}).Error("Rejected peer public key")
		return nil, ErrWeakSharedKey
	}
	ZeroBytes(point)

	var pk [PublicKeySize]byte = peerPublicKey
	key := new(SharedKey)
	box.Precompute((*[SharedKeySize]byte)(key), &pk, secretKey)

	return key, nil
}

// Wipe zeroes the key in place. It is safe to call on a nil key.
func (k *SharedKey) Wipe() {
	if k == nil {
		return
	}
	ZeroBytes(k[:])
}
