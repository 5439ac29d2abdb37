package transport

import (
	"errors"
	"net/netip"
	"time"

	"github.com/opd-ai/meadowlink/identity"
	"github.com/opd-ai/meadowlink/limits"
	"github.com/opd-ai/meadowlink/wire"
	"github.com/sirupsen/logrus"
)

// Receive processes queued datagrams until one yields an application
// payload or the socket is empty. It never blocks. Callers drain the socket
// by calling Receive until ok is false.
func (m *Manager) Receive() (payload []byte, sender *identity.ID, ok bool) {
	if m.closed {
		return nil, nil, false
	}
	for {
		n, from, err := m.conn.Poll(m.recvBuf)
		if err != nil {
			m.logReadError("Receive", err)
			return nil, nil, false
		}
		if payload, sender, ok = m.handleDatagram(m.recvBuf[:n], from); ok {
			return payload, sender, true
		}
	}
}

// ReceiveBlocking is Receive that waits up to timeout for the first
// datagram. A zero timeout waits one heartbeat interval.
func (m *Manager) ReceiveBlocking(timeout time.Duration) (payload []byte, sender *identity.ID, ok bool) {
	if m.closed {
		return nil, nil, false
	}
	if timeout <= 0 {
		timeout = m.timing.HeartbeatInterval()
	}
	n, from, err := m.conn.Wait(m.recvBuf, timeout)
	if err != nil {
		m.logReadError("ReceiveBlocking", err)
		return nil, nil, false
	}
	if payload, sender, ok = m.handleDatagram(m.recvBuf[:n], from); ok {
		return payload, sender, true
	}
	return m.Receive()
}

func (m *Manager) logReadError(function string, err error) {
	if errors.Is(err, ErrWouldBlock) {
		return
	}
	m.logger.WithFields(logrus.Fields{
		"function": function,
		"error":    err.Error(),
	}).Error("Socket read failed")
}

// handleDatagram runs one datagram through both envelopes and returns the
// payload it carries, if any.
func (m *Manager) handleDatagram(data []byte, from netip.AddrPort) ([]byte, *identity.ID, bool) {
	m.stats.Received++
	from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())
	log := m.logger.WithFields(logrus.Fields{
		"function": "handleDatagram",
		"from":     from.String(),
		"size":     len(data),
	})

	if err := limits.ValidateDatagram(data); err != nil {
		log.WithField("error", err.Error()).Warn("Invalid datagram")
		return m.drop()
	}
	if m.host.IsLoopback(from, m.conn.LocalPort()) {
		log.Debug("Ignoring own datagram")
		return m.drop()
	}

	out, err := wire.DecodeOuter(data)
	if err != nil {
		if errors.Is(err, wire.ErrUnknownOuterType) {
			log.WithField("error", err.Error()).Error("Unknown outer type, replying with version error")
			if werr := m.conn.WriteTo(wire.EncodeVersionError(), from); werr != nil {
				log.WithField("error", werr.Error()).Warn("Version error reply failed")
			}
		} else {
			log.WithField("error", err.Error()).Error("Malformed datagram")
		}
		return m.drop()
	}

	p := m.registry.byEndpoint(from)

	switch out.Type {
	case wire.OuterVersionError:
		log.Error("Peer reported a protocol version mismatch")
		return m.drop()

	case wire.CleartextBroadcast:
		return m.receiveCleartext(out, from, p)

	case wire.RequestPubKey:
		peer, _, ok := m.onPubKey(out, from, p)
		if !ok {
			return m.drop()
		}
		peer.sinceIncoming = 0
		if err := m.sendRaw(peer, wire.Inner{Type: wire.Unreliable}, true); err != nil {
			log.WithField("error", err.Error()).Warn("Public key reply failed")
		}
		return nil, nil, false

	case wire.BoxedWithPubKey:
		peer, plain, ok := m.onPubKey(out, from, p)
		if !ok {
			return m.drop()
		}
		return m.receiveInner(peer, plain)

	case wire.Boxed:
		if p == nil {
			log.Warn("Sealed datagram from an untracked address")
			return m.drop()
		}
		if err := p.id.Validate(true, false, false); err != nil {
			log.WithField("error", err.Error()).Warn("Sealed datagram from a peer that cannot send")
			return m.drop()
		}
		plain, ok := m.open(p, out)
		if !ok {
			return m.drop()
		}
		return m.receiveInner(p, plain)
	}
	return m.drop()
}

func (m *Manager) receiveCleartext(out *wire.Outer, from netip.AddrPort, p *remotePeer) ([]byte, *identity.ID, bool) {
	log := m.logger.WithFields(logrus.Fields{
		"function": "receiveCleartext",
		"from":     from.String(),
	})
	if p != nil {
		log.Warn("Cleartext datagram from a tracked peer")
		return m.drop()
	}
	id := identity.NewClearText(from)
	if err := id.Validate(true, true, false); err != nil {
		log.WithField("error", err.Error()).Warn("Rejecting cleartext sender")
		return m.drop()
	}

	in, err := wire.DecodeInner(out.Body)
	if err != nil {
		log.WithField("error", err.Error()).Error("Malformed cleartext frame")
		return m.drop()
	}
	if in.Type != wire.Unreliable {
		log.WithField("type", in.Type.String()).Warn("Only unreliable frames travel in cleartext")
		return m.drop()
	}
	return m.deliver(in.Payload, id)
}

// receiveInner handles a decrypted inner frame from p.
func (m *Manager) receiveInner(p *remotePeer, plain []byte) ([]byte, *identity.ID, bool) {
	log := m.logger.WithFields(logrus.Fields{
		"function": "receiveInner",
		"peer":     p.id.String(),
	})

	in, err := wire.DecodeInner(plain)
	if err != nil {
		if errors.Is(err, wire.ErrUnknownInnerType) {
			log.WithField("error", err.Error()).Error("Unknown inner type, replying with version error")
			if p.id.Status() == identity.Connected {
				if serr := m.sendRaw(p, wire.Inner{Type: wire.InnerVersionError}, false); serr != nil {
					log.WithField("error", serr.Error()).Warn("Version error reply failed")
				}
			}
		} else {
			log.WithField("error", err.Error()).Error("Malformed inner frame")
		}
		return m.drop()
	}

	p.sinceIncoming = 0

	switch in.Type {
	case wire.Unreliable:
		return m.deliver(in.Payload, p.id)
	case wire.Reliable:
		if m.onReliable(p, in.Ack) {
			return m.deliver(in.Payload, p.id)
		}
		m.stats.Duplicates++
	case wire.HeartBeat:
		m.onHeartBeat(p, in.Ack)
	case wire.InnerVersionError:
		log.Error("Peer reported a protocol version mismatch")
	}
	return nil, nil, false
}

// deliver hands a payload to the application. Empty payloads only carry
// protocol state and are not surfaced.
func (m *Manager) deliver(payload []byte, sender *identity.ID) ([]byte, *identity.ID, bool) {
	if len(payload) == 0 {
		return nil, nil, false
	}
	m.stats.Delivered++
	return append([]byte(nil), payload...), sender, true
}

func (m *Manager) drop() ([]byte, *identity.ID, bool) {
	m.stats.Dropped++
	return nil, nil, false
}
