// Package identity models who a remote peer is and how far it is trusted.
//
// An [ID] is an endpoint plus a [Status]:
//
//   - ClearTextOnly: network-local broadcast targets and the BlackHole
//     placeholder. Only cleartext datagrams may use them.
//   - Unknown: an endpoint whose public key has not been presented yet. Only
//     key solicitations may be sent to it, and it is never created from an
//     incoming datagram.
//   - Connected: endpoint and public key known. Only Connected identities
//     are serialized.
//
// Connected identities compare by public key; the others by endpoint, where
// every address of the local machine is treated as loopback (see [Host]).
// The one permitted mutation is the in-place upgrade of an Unknown identity
// to Connected once its endpoint presents a key.
//
// [ID.Validate] enforces these rules. A violation is a programming error;
// [ID.MustValidate] panics with a [*ValidationError].
package identity
