package crypto

import (
	"crypto/subtle"
	"errors"
	"runtime"
)

// SecureWipe erases the contents of a byte slice holding sensitive data.
// It returns an error if the slice is nil.
func SecureWipe(data []byte) error {
	if data == nil {
		return errors.New("cannot wipe nil data")
	}

	for i := range data {
		data[i] = 0
	}
	// Keep the slice reachable until the stores above have happened.
	runtime.KeepAlive(data)

	return nil
}

// ZeroBytes erases a byte slice, ignoring the nil error from SecureWipe.
func ZeroBytes(data []byte) {
	_ = SecureWipe(data)
}

// WipeKeyPair erases both halves of a KeyPair.
func WipeKeyPair(kp *KeyPair) error {
	if kp == nil {
		return errors.New("cannot wipe nil KeyPair")
	}
	ZeroBytes(kp.Public[:])
	return SecureWipe(kp.Private[:])
}

// ConstantTimeEqual compares two byte slices without leaking the position of
// the first difference. Slices of different length are never equal.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
