package transport

import (
	"fmt"
	"time"

	"github.com/opd-ai/meadowlink/crypto"
	"github.com/opd-ai/meadowlink/identity"
	"github.com/opd-ai/meadowlink/limits"
	"github.com/opd-ai/meadowlink/wire"
	"github.com/sirupsen/logrus"
)

// IsNewer reports whether sequence number a comes after b, allowing the
// counter to wrap.
func IsNewer(a, b uint64) bool {
	return int64(a-b) > 0
}

// Send delivers payload to id.
//
// Reliable payloads are queued and retransmitted until acknowledged; only
// the queue head is ever on the wire. beginConversation decides whether the
// immediate datagram carries the local public key. Retransmits carry it
// until the peer acknowledges a reliable payload, which a new peer has not.
//
// Send panics if id may not be used with kind: ClearTextOnly identities
// only take UnreliableBroadcast, and the others never do.
func (m *Manager) Send(payload []byte, id *identity.ID, kind Kind, beginConversation bool) error {
	if m.closed {
		return ErrClosed
	}
	if err := limits.ValidatePayload(payload); err != nil {
		return err
	}

	switch kind {
	case UnreliableBroadcast:
		id.MustValidate(false, true, false)
		return m.sendCleartext(payload, id)

	case Unreliable:
		id.MustValidate(false, false, false)
		p := m.registry.getOrCreate(id)
		return m.sendRaw(p, wire.Inner{Type: wire.Unreliable, Payload: payload}, beginConversation)

	case Reliable:
		id.MustValidate(false, false, false)
		p := m.registry.getOrCreate(id)
		if beginConversation && !p.needBeginAck {
			// The flag rides on the next retransmit, which may carry an
			// earlier queued payload rather than this one.
			m.logger.WithFields(logrus.Fields{
				"function": "Send",
				"peer":     p.id.String(),
			}).Debug("Redundant conversation start, re-arming key introduction")
			p.needBeginAck = true
		}

		queued := append([]byte(nil), payload...)
		var err error
		if len(p.queue) == 0 {
			err = m.sendRaw(p, wire.Inner{Type: wire.Reliable, Payload: queued}, beginConversation)
		}
		p.queue = append(p.queue, queued)
		if err != nil {
			// The payload is queued and goes out again on the next heartbeat.
			m.logger.WithFields(logrus.Fields{
				"function": "Send",
				"peer":     p.id.String(),
				"error":    err.Error(),
			}).Warn("Reliable send failed, will retransmit")
		}
		return nil

	default:
		return fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
}

func (m *Manager) sendCleartext(payload []byte, id *identity.ID) error {
	datagram, err := wire.EncodeCleartext(wire.Inner{Type: wire.Unreliable, Payload: payload})
	if err != nil {
		return err
	}
	return m.write(datagram, id)
}

// sendRaw seals in for p. A peer whose key is not known yet gets a
// RequestPubKey instead and the frame is dropped.
func (m *Manager) sendRaw(p *remotePeer, in wire.Inner, withPubKey bool) error {
	if p.id.Status() == identity.Unknown {
		if in.Type == wire.Unreliable && len(in.Payload) > 0 {
			m.logger.WithFields(logrus.Fields{
				"function": "sendRaw",
				"peer":     p.id.String(),
				"size":     len(in.Payload),
			}).Error("Discarding unreliable payload for peer without a public key")
		}
		return m.write(wire.EncodeRequestPubKey(m.keys.Public), p.id)
	}

	switch in.Type {
	case wire.Reliable:
		in.Ack = p.wantedAck + 1
	case wire.HeartBeat:
		in.Ack = p.remoteAck
	}

	key, err := m.sharedKey(p)
	if err != nil {
		return err
	}
	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return err
	}
	var sender *crypto.PublicKey
	if withPubKey {
		sender = &m.keys.Public
	}
	datagram, err := wire.EncodeBoxed(in, key, nonce, sender)
	if err != nil {
		return err
	}
	return m.write(datagram, p.id)
}

func (m *Manager) write(datagram []byte, id *identity.ID) error {
	if err := m.conn.WriteTo(datagram, id.Endpoint()); err != nil {
		m.stats.SendErrors++
		return fmt.Errorf("send to %s: %w", id.Endpoint(), err)
	}
	m.stats.Sent++
	return nil
}

// Update advances every peer's timers by elapsed. Silent peers past the
// timeout are forgotten; the others get their reliable queue head resent or
// a heartbeat once per heartbeat interval. Intervals are read from the
// configured Timing on every call.
func (m *Manager) Update(elapsed time.Duration) {
	if m.closed {
		return
	}
	heartbeat := m.timing.HeartbeatInterval()
	timeout := m.timing.TimeoutInterval()

	var expired []*remotePeer
	for _, p := range m.registry.snapshot() {
		p.sinceIncoming += elapsed
		if p.sinceIncoming >= timeout {
			expired = append(expired, p)
			continue
		}

		p.outgoingAccum += elapsed
		if heartbeat <= 0 {
			continue
		}
		for p.outgoingAccum > heartbeat {
			p.outgoingAccum -= heartbeat
			m.heartbeat(p)
		}
	}

	for _, p := range expired {
		m.logger.WithFields(logrus.Fields{
			"function": "Update",
			"peer":     p.id.String(),
			"silent":   p.sinceIncoming,
		}).Info("Peer timed out")
		m.stats.Evicted++
		m.forgetPeer(p)
	}
}

func (m *Manager) heartbeat(p *remotePeer) {
	var err error
	if len(p.queue) > 0 {
		m.stats.Retransmits++
		err = m.sendRaw(p, wire.Inner{Type: wire.Reliable, Payload: p.queue[0]}, p.needBeginAck)
	} else {
		err = m.sendRaw(p, wire.Inner{Type: wire.HeartBeat}, false)
	}
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"function": "heartbeat",
			"peer":     p.id.String(),
			"error":    err.Error(),
		}).Warn("Heartbeat send failed")
	}
}

// onReliable handles a sequenced payload and reports whether it should be
// delivered. Every reliable frame is acknowledged.
func (m *Manager) onReliable(p *remotePeer, seq uint64) bool {
	deliver := false
	if IsNewer(seq, p.remoteAck) {
		p.remoteAck++
		if IsNewer(seq, p.remoteAck) {
			m.logger.WithFields(logrus.Fields{
				"function": "onReliable",
				"peer":     p.id.String(),
				"expected": p.remoteAck,
				"received": seq,
			}).Error("Skipped a packet in an ordered stream")
			p.remoteAck = seq
		}
		deliver = true
	}

	if err := m.sendRaw(p, wire.Inner{Type: wire.HeartBeat}, false); err != nil {
		m.logger.WithFields(logrus.Fields{
			"function": "onReliable",
			"peer":     p.id.String(),
			"error":    err.Error(),
		}).Warn("Acknowledgement send failed")
	}
	return deliver
}

// onHeartBeat handles an acknowledgement.
func (m *Manager) onHeartBeat(p *remotePeer, ack uint64) {
	p.needBeginAck = false
	if !IsNewer(ack, p.wantedAck) {
		return
	}

	p.wantedAck++
	if IsNewer(ack, p.wantedAck) {
		m.logger.WithFields(logrus.Fields{
			"function": "onHeartBeat",
			"peer":     p.id.String(),
			"expected": p.wantedAck,
			"received": ack,
		}).Error("Acknowledgement ahead of the outgoing stream, resynchronizing")
		p.wantedAck = ack
	}

	if len(p.queue) == 0 {
		m.logger.WithFields(logrus.Fields{
			"function": "onHeartBeat",
			"peer":     p.id.String(),
			"ack":      ack,
		}).Error("Acknowledgement for an empty reliable queue")
		return
	}
	p.queue[0] = nil
	p.queue = p.queue[1:]
}
