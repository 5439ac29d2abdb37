package transport

import (
	"net/netip"
	"testing"
	"time"

	"github.com/opd-ai/meadowlink/crypto"
	"github.com/opd-ai/meadowlink/identity"
	"github.com/opd-ai/meadowlink/wire"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type confirmCall struct {
	prompt, hexKey string
}

func recordingConfirm(answer bool, calls *[]confirmCall) ConfirmFunc {
	return func(prompt, hexKey string) bool {
		*calls = append(*calls, confirmCall{prompt: prompt, hexKey: hexKey})
		return answer
	}
}

// sealFrom builds a BoxedWithPubKey datagram from sender to the holder of
// recipient.
func sealFrom(t *testing.T, sender *crypto.KeyPair, recipient crypto.PublicKey, payload string) []byte {
	t.Helper()
	key, err := crypto.DeriveSharedKey(recipient, &sender.Private)
	require.NoError(t, err)
	nonce, err := crypto.GenerateNonce()
	require.NoError(t, err)
	dg, err := wire.EncodeBoxed(wire.Inner{Type: wire.Unreliable, Payload: []byte(payload)}, key, nonce, &sender.Public)
	require.NoError(t, err)
	return dg
}

func TestSelfIntroductionCreatesConnectedPeer(t *testing.T) {
	network := newMemNetwork()
	a := newTestNode(t, network, addrA, nil)
	b := newTestNode(t, network, addrB, nil)

	require.NoError(t, a.m.Send([]byte("hi"), b.id(), Unreliable, true))
	payload, sender, ok := b.m.Receive()
	require.True(t, ok)
	assert.Equal(t, "hi", string(payload))
	assert.Equal(t, identity.Connected, sender.Status())
	pk, _ := sender.PublicKey()
	assert.Equal(t, a.m.PublicKey(), pk)
	assert.True(t, b.hasLog(logrus.InfoLevel, "Peer introduced itself"))
}

func TestConfirmationUpgradesUnknownPeer(t *testing.T) {
	var calls []confirmCall
	network := newMemNetwork()
	a := newTestNode(t, network, addrA, func(o *Options) { o.Confirm = recordingConfirm(true, &calls) })
	b := newTestNode(t, network, addrB, nil)

	unknown := identity.NewUnknown(netip.MustParseAddrPort(addrB))
	require.NoError(t, a.m.Send([]byte("hi"), unknown, Reliable, true))
	pump(a, b)

	require.Len(t, calls, 1)
	assert.Equal(t, ConfirmPrompt, calls[0].prompt)
	assert.Equal(t, b.m.PublicKey().Hex(), calls[0].hexKey)
	assert.Equal(t, identity.Connected, unknown.Status(), "identity is upgraded in place")
	assert.Empty(t, b.delivered, "the key reply carries no payload")

	a.m.Update(DefaultHeartbeat + time.Millisecond)
	pump(a, b)

	assert.Equal(t, []string{"hi"}, b.delivered)
	assert.Empty(t, a.peer(t, unknown).queue)
	assert.Len(t, calls, 1)
}

func TestConfirmationRejectionKeepsPeerUnknown(t *testing.T) {
	var calls []confirmCall
	network := newMemNetwork()
	a := newTestNode(t, network, addrA, func(o *Options) { o.Confirm = recordingConfirm(false, &calls) })
	b := newTestNode(t, network, addrB, nil)

	unknown := identity.NewUnknown(netip.MustParseAddrPort(addrB))
	require.NoError(t, a.m.Send([]byte("hi"), unknown, Reliable, true))
	pump(a, b)

	assert.Len(t, calls, 1)
	assert.Equal(t, identity.Unknown, unknown.Status())
	assert.True(t, a.hasLog(logrus.ErrorLevel, "Public key rejected by user"))
	assert.Nil(t, a.peer(t, unknown).sharedKey)

	a.m.Update(DefaultHeartbeat + time.Millisecond)
	pump(a, b)
	assert.Empty(t, b.delivered)
	assert.Equal(t, identity.Unknown, unknown.Status())
}

func TestMissingConfirmRejects(t *testing.T) {
	network := newMemNetwork()
	a := newTestNode(t, network, addrA, nil)
	b := newTestNode(t, network, addrB, nil)

	unknown := identity.NewUnknown(netip.MustParseAddrPort(addrB))
	a.m.EnsurePeer(unknown)
	require.NoError(t, a.m.Send(nil, unknown, Unreliable, false))
	pump(a, b)

	assert.Equal(t, identity.Unknown, unknown.Status())
	assert.True(t, a.hasLog(logrus.ErrorLevel, "No confirmation callback, rejecting public key"))
}

func TestRequestPubKeyAlwaysAnswered(t *testing.T) {
	network := newMemNetwork()
	a := newTestNode(t, network, addrA, nil)
	b := newTestNode(t, network, addrB, nil)
	connect(t, a, b)

	b.conn.inject(addrA, wire.EncodeRequestPubKey(a.m.PublicKey()))
	b.drain()

	require.Len(t, a.conn.inbox, 1)
	out, err := wire.DecodeOuter(a.conn.inbox[0].data)
	require.NoError(t, err)
	assert.Equal(t, wire.BoxedWithPubKey, out.Type)
	assert.Equal(t, b.m.PublicKey(), out.SenderKey)

	key, err := crypto.DeriveSharedKey(b.m.PublicKey(), &a.m.keys.Private)
	require.NoError(t, err)
	plain, err := out.Open(key)
	require.NoError(t, err)
	in, err := wire.DecodeInner(plain)
	require.NoError(t, err)
	assert.Equal(t, wire.Unreliable, in.Type)
	assert.Empty(t, in.Payload)
}

func TestKeyChangeOnConnectedPeerIsRejected(t *testing.T) {
	network := newMemNetwork()
	a := newTestNode(t, network, addrA, nil)
	b := newTestNode(t, network, addrB, nil)
	connect(t, a, b)

	evil, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	b.conn.inject(addrA, sealFrom(t, evil, b.m.PublicKey(), "evil"))
	b.conn.inject(addrA, wire.EncodeRequestPubKey(evil.Public))
	b.drain()

	assert.Empty(t, b.delivered)
	assert.True(t, b.hasLog(logrus.ErrorLevel, "Connected peer presented a different public key, rejecting"))
	pk, ok := b.peer(t, a.id()).id.PublicKey()
	require.True(t, ok)
	assert.Equal(t, a.m.PublicKey(), pk)
	assert.Empty(t, a.conn.inbox, "rejected solicitation gets no reply")
}

func TestKnownKeyFromNewEndpointIsRejected(t *testing.T) {
	keys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	network := newMemNetwork()
	a := newTestNode(t, network, addrA, func(o *Options) { o.KeyPair = keys })
	b := newTestNode(t, network, addrB, nil)
	connect(t, a, b)

	b.conn.inject("10.0.0.3:8720", sealFrom(t, keys, b.m.PublicKey(), "moved"))
	b.drain()

	assert.Empty(t, b.delivered)
	assert.True(t, b.hasLog(logrus.ErrorLevel, "Public key already bound to another endpoint, rejecting"))
	assert.Len(t, b.m.registry.peers, 1)
}

func TestForgedIntroductionIsDropped(t *testing.T) {
	network := newMemNetwork()
	newTestNode(t, network, addrA, nil)
	b := newTestNode(t, network, addrB, nil)

	claimed, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	forger, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	// Sealed under the forger's key but claiming another.
	dg := sealFrom(t, forger, b.m.PublicKey(), "forged")
	copy(dg[1:1+crypto.PublicKeySize], claimed.Public[:])
	b.conn.inject(addrA, dg)
	b.drain()

	assert.Empty(t, b.delivered)
	assert.Empty(t, b.m.registry.peers)
	assert.True(t, b.hasLog(logrus.ErrorLevel, "Failed to open introduction"))
}

func TestLowOrderPublicKeyIsRejected(t *testing.T) {
	network := newMemNetwork()
	newTestNode(t, network, addrA, nil)
	b := newTestNode(t, network, addrB, nil)

	b.conn.inject(addrA, wire.EncodeRequestPubKey(crypto.PublicKey{}))
	b.drain()

	assert.Empty(t, b.m.registry.peers)
	assert.True(t, b.hasLog(logrus.ErrorLevel, "Unusable public key"))
}

func TestSealedFromUntrackedAddressIsDropped(t *testing.T) {
	network := newMemNetwork()
	a := newTestNode(t, network, addrA, nil)
	b := newTestNode(t, network, addrB, nil)
	connect(t, a, b)

	dg := sealFrom(t, a.m.keys, b.m.PublicKey(), "x")
	// Strip the key to turn BoxedWithPubKey into Boxed.
	boxed := append([]byte{byte(wire.Boxed)}, dg[1+crypto.PublicKeySize:]...)
	b.conn.inject("10.0.0.9:8720", boxed)
	b.drain()

	assert.Empty(t, b.delivered)
	assert.True(t, b.hasLog(logrus.WarnLevel, "Sealed datagram from an untracked address"))
}
