// Package transport implements the secured peer transport: a single UDP
// socket carrying NaCl box sealed datagrams with in-order reliable delivery,
// heartbeats, and timeouts.
//
// # Architecture
//
// A [Manager] owns one key pair and one [Conn]. It has no goroutines and no
// locks; the application drives it from its own loop:
//
//	m, err := transport.Listen(transport.NewOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	for running {
//	    for {
//	        payload, sender, ok := m.Receive()
//	        if !ok {
//	            break
//	        }
//	        handle(payload, sender)
//	    }
//	    m.Tick()
//	    time.Sleep(10 * time.Millisecond)
//	}
//
// [Manager.Receive] never blocks. [Manager.ReceiveBlocking] waits a bounded
// time for the first datagram and is meant for startup and handshakes.
//
// # Delivery Kinds
//
//   - Unreliable: sealed, sent once.
//   - Reliable: sealed, queued per peer, and retransmitted on every heartbeat
//     until the peer acknowledges it. One payload per peer is in flight, so
//     delivery is FIFO and exactly once.
//   - UnreliableBroadcast: cleartext, sent once, only to ClearTextOnly
//     identities such as those returned by [Manager.BroadcastIDs].
//
// # Handshake
//
// A peer that knows nothing about us introduces itself with a
// BoxedWithPubKey datagram; it is tracked as Connected once the datagram
// authenticates under the presented key. A peer added by endpoint alone is
// Unknown: sends to it become RequestPubKey solicitations, and the key it
// answers with is shown to the configured [ConfirmFunc] before it is
// trusted. A Connected peer can never change its key.
//
// # Timing
//
// [Manager.Update] adds elapsed time to every peer. Peers silent for the
// timeout interval are forgotten and the [Observer] is told. Otherwise one
// heartbeat (or retransmission) goes out per heartbeat interval. Both
// intervals come from [Timing] and are re-read on every call, so they may
// change while the manager runs. [Manager.Tick] measures elapsed time with
// the configured [TimeProvider].
//
// # Configuration
//
// [Options] carries the defaults; [Options.ApplyEnvironment] reads
// MEADOW_HEARTBEAT_MS, MEADOW_TIMEOUT_MS and MEADOW_PORT.
//
// # Logging
//
// All diagnostics go through logrus with structured fields. Network faults
// such as bad ciphertext, sequence gaps, and rejected keys are logged and
// the datagram dropped; they never surface as errors from Receive.
package transport
