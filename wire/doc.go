// Package wire encodes and decodes the two envelopes every datagram carries.
//
// The outer envelope selects the crypto treatment:
//
//	CleartextBroadcast  [0][u16 len][inner]
//	Boxed               [1][u16 len][nonce 24][ciphertext len+16]
//	BoxedWithPubKey     [2][pk 32][u16 len][nonce 24][ciphertext len+16]
//	RequestPubKey       [3][pk 32]
//	VersionError        [255]
//
// The inner envelope, found in the outer plaintext, carries reliability
// state:
//
//	Unreliable    [0][payload]
//	Reliable      [1][u64 ack][payload]
//	HeartBeat     [2][u64 ack]
//	VersionError  [255]
//
// All integers are little-endian. Length prefixes are written through
// [Writer.ReserveUint16] and [Writer.PatchLength] so the body is encoded once.
package wire
