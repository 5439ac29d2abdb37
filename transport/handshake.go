package transport

import (
	"net/netip"

	"github.com/opd-ai/meadowlink/crypto"
	"github.com/opd-ai/meadowlink/identity"
	"github.com/opd-ai/meadowlink/wire"
	"github.com/sirupsen/logrus"
)

// ConfirmPrompt is the question passed to ConfirmFunc.
const ConfirmPrompt = "Is the following public key the one you expect for this lobby?"

// onPubKey handles a BoxedWithPubKey or RequestPubKey envelope from p, which
// is nil when nothing is tracked at from. It returns the peer the datagram
// belongs to and, for BoxedWithPubKey, the opened inner frame.
//
// A sealed envelope is authenticated under the presented key before that key
// is trusted or shown to the user.
func (m *Manager) onPubKey(out *wire.Outer, from netip.AddrPort, p *remotePeer) (*remotePeer, []byte, bool) {
	log := m.logger.WithFields(logrus.Fields{
		"function": "onPubKey",
		"from":     from.String(),
		"type":     out.Type.String(),
	}).WithFields(crypto.SecureFieldHash(out.SenderKey[:], "public_key"))

	if p != nil && p.id.Status() == identity.Connected {
		known, _ := p.id.PublicKey()
		if !known.Equal(out.SenderKey) {
			log.WithFields(crypto.SecureFieldHash(known[:], "known_key")).
				Error("Connected peer presented a different public key, rejecting")
			return nil, nil, false
		}
		if out.Type == wire.RequestPubKey {
			return p, nil, true
		}
		plain, ok := m.open(p, out)
		return p, plain, ok
	}

	key, err := crypto.DeriveSharedKey(out.SenderKey, &m.keys.Private)
	if err != nil {
		log.WithField("error", err.Error()).Error("Unusable public key")
		return nil, nil, false
	}

	var plain []byte
	if out.Type == wire.BoxedWithPubKey {
		if plain, err = out.Open(key); err != nil {
			key.Wipe()
			log.WithField("error", err.Error()).Error("Failed to open introduction")
			return nil, nil, false
		}
	}

	peer := m.acceptPublicKey(p, from, out.SenderKey)
	if peer == nil {
		key.Wipe()
		return nil, nil, false
	}
	peer.sharedKey.Wipe()
	peer.sharedKey = key
	return peer, plain, true
}

// acceptPublicKey decides whether key may be bound to the peer at from.
// Unseen senders introduce themselves; Unknown peers need the user's
// confirmation.
func (m *Manager) acceptPublicKey(p *remotePeer, from netip.AddrPort, key crypto.PublicKey) *remotePeer {
	log := m.logger.WithFields(logrus.Fields{
		"function": "acceptPublicKey",
		"from":     from.String(),
	}).WithFields(crypto.SecureFieldHash(key[:], "public_key"))

	candidate := identity.NewConnected(from, key)
	if err := candidate.Validate(true, false, false); err != nil {
		log.WithField("error", err.Error()).Error("Rejecting public key")
		return nil
	}
	if existing := m.registry.lookup(candidate); existing != nil && existing != p {
		log.WithField("known_endpoint", existing.id.Endpoint().String()).
			Error("Public key already bound to another endpoint, rejecting")
		return nil
	}

	if p == nil {
		peer := newRemotePeer(candidate)
		m.registry.add(peer)
		log.Info("Peer introduced itself")
		return peer
	}

	if p.id.Status() != identity.Unknown {
		log.WithField("status", p.id.Status().String()).Error("Unexpected public key")
		return nil
	}
	if m.confirm == nil {
		log.Error("No confirmation callback, rejecting public key")
		return nil
	}
	if !m.confirm(ConfirmPrompt, key.Hex()) {
		log.Error("Public key rejected by user")
		return nil
	}
	p.id.Upgrade(key)
	log.Info("Public key confirmed")
	return p
}

// open authenticates and decrypts a boxed envelope from p.
func (m *Manager) open(p *remotePeer, out *wire.Outer) ([]byte, bool) {
	log := m.logger.WithFields(logrus.Fields{
		"function": "open",
		"peer":     p.id.String(),
	})
	key, err := m.sharedKey(p)
	if err != nil {
		log.WithField("error", err.Error()).Error("No shared key for peer")
		return nil, false
	}
	plain, err := out.Open(key)
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to decrypt datagram")
		return nil, false
	}
	return plain, true
}
