package identity

import "fmt"

// ValidationError reports an identity used in a role its trust level does
// not permit. Seeing one means the caller has a logic bug.
type ValidationError struct {
	ID     *ID
	Status Status
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("identity validation failed for %s: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("identity validation failed for %s peer: %s", e.Status, e.Reason)
}

// Validate checks that id may be used in the given role.
//
// peerIsSender is set when id is the source of an incoming datagram,
// forClearText when the datagram travels unencrypted. internalOnly restricts
// the check to the invariants every stored identity must hold, regardless of
// direction.
func (id *ID) Validate(peerIsSender, forClearText, internalOnly bool) error {
	fail := func(reason string) error {
		return &ValidationError{ID: id, Status: id.status, Reason: reason}
	}

	switch id.status {
	case Unknown:
		if peerIsSender && !internalOnly {
			return fail("unknown peers can only be recipients, not senders")
		}
		if forClearText && !internalOnly {
			return fail("peer must be suited for encryption")
		}
		if id.IsBlackHole() {
			return fail("blackhole peers must be cleartext")
		}
		if id.IsBroadcast() {
			return fail("broadcast peers must be cleartext")
		}
		return nil

	case Connected:
		if forClearText && !internalOnly {
			return fail("peer must be suited for encryption")
		}
		if id.IsBlackHole() {
			return fail("blackhole peers must be cleartext")
		}
		if id.IsBroadcast() {
			return fail("broadcast peers must be cleartext")
		}
		if id.key.IsZero() {
			return fail("connected peer has no public key")
		}
		return nil

	case ClearTextOnly:
		if !(forClearText || internalOnly) {
			return fail("peer must be suited for cleartext communication")
		}
		if (peerIsSender || internalOnly) && id.IsNetworkLocal() {
			return nil
		}
		if id.IsBroadcast() {
			return nil
		}
		// Nothing legitimate is ever sent from the blackhole.
		if id.IsBlackHole() && !peerIsSender {
			return nil
		}
		return fail("cleartext peers can only exist for local-network broadcasts")

	default:
		return fail("unhandled identity status")
	}
}

// MustValidate is Validate that panics with the *ValidationError.
func (id *ID) MustValidate(peerIsSender, forClearText, internalOnly bool) {
	if err := id.Validate(peerIsSender, forClearText, internalOnly); err != nil {
		panic(err)
	}
}
