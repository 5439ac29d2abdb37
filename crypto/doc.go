// Package crypto implements the authenticated-encryption capability consumed
// by the secured peer transport.
//
// # Core Types
//
//   - [KeyPair]: crypto_box key pair owned by one transport instance
//   - [PublicKey]: 32-byte Curve25519 public key, the identity of a connected peer
//   - [SharedKey]: precomputed per-peer key (crypto_box_beforenm)
//   - [Nonce]: 24-byte random nonce, one per sealed datagram
//
// # Sealing
//
//	key, err := crypto.DeriveSharedKey(peerPublicKey, &keys.Private)
//	if err != nil {
//	    return err
//	}
//	defer key.Wipe()
//
//	nonce, _ := crypto.GenerateNonce()
//	ciphertext := key.Seal(plaintext, nonce)   // len(plaintext) + MACSize
//	plaintext, err = key.Open(ciphertext, nonce)
//
// Open returns [ErrAuthenticationFailed] for any ciphertext that does not
// verify; callers drop such datagrams.
//
// # Secure Memory Handling
//
// Secret material is wiped explicitly: [WipeKeyPair] for the local key pair
// and [SharedKey.Wipe] for per-peer keys. Public keys are compared with
// [ConstantTimeEqual].
package crypto
