package transport

import "github.com/opd-ai/meadowlink/identity"

// Observer is notified when the manager stops tracking a peer, whether by
// timeout or by Forget. The peer is already removed when the callback runs,
// so it may call Forget or ForgetAll itself.
type Observer interface {
	PeerForgotten(id *identity.ID)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(id *identity.ID)

// PeerForgotten calls f(id).
func (f ObserverFunc) PeerForgotten(id *identity.ID) { f(id) }
