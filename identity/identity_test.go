package identity

import (
	"context"
	"net/netip"
	"strings"
	"testing"

	"github.com/opd-ai/meadowlink/crypto"
	"github.com/opd-ai/meadowlink/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	lanAddr    = netip.MustParseAddr("192.168.1.20")
	publicAddr = netip.MustParseAddr("203.0.113.7")
)

func testHost() *Host {
	return NewHost(lanAddr)
}

func newKey(t *testing.T) crypto.PublicKey {
	t.Helper()
	keys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	return keys.Public
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ClearTextOnly", ClearTextOnly.String())
	assert.Equal(t, "Unknown", Unknown.String())
	assert.Equal(t, "Connected", Connected.String())
	assert.Equal(t, "Status(9)", Status(9).String())
}

func TestEndpointClassification(t *testing.T) {
	testCases := []struct {
		addr      string
		local     bool
		broadcast bool
	}{
		{"10.1.2.3", true, false},
		{"172.16.0.1", true, false},
		{"172.31.255.255", true, false},
		{"172.32.0.1", false, false},
		{"192.168.0.9", true, false},
		{"127.0.0.5", true, false},
		{"8.8.8.8", false, false},
		{"255.255.255.255", false, true},
		{"::ffff:10.0.0.1", true, false},
		{"2001:db8::1", false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.addr, func(t *testing.T) {
			ep := netip.AddrPortFrom(netip.MustParseAddr(tc.addr), 8720)
			assert.Equal(t, tc.local, IsNetworkLocal(ep))
			assert.Equal(t, tc.broadcast, IsBroadcast(ep))
		})
	}
}

func TestSameEndpointIsLoopbackAware(t *testing.T) {
	h := testHost()
	loop := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), 8720)

	assert.True(t, h.SameEndpoint(loop, netip.AddrPortFrom(lanAddr, 8720)))
	assert.True(t, h.SameEndpoint(loop, netip.AddrPortFrom(netip.MustParseAddr("::ffff:127.0.0.1"), 8720)))
	assert.False(t, h.SameEndpoint(loop, netip.AddrPortFrom(lanAddr, 8721)))
	assert.False(t, h.SameEndpoint(loop, netip.AddrPortFrom(publicAddr, 8720)))
	assert.True(t, h.SameEndpoint(
		netip.AddrPortFrom(publicAddr, 1),
		netip.AddrPortFrom(netip.MustParseAddr("::ffff:203.0.113.7"), 1),
	))
}

func TestEqual(t *testing.T) {
	h := testHost()
	key := newKey(t)
	other := newKey(t)
	ep := netip.AddrPortFrom(publicAddr, 8720)
	ep2 := netip.AddrPortFrom(publicAddr, 9000)

	testCases := []struct {
		name string
		a, b *ID
		want bool
	}{
		{"connected same key different endpoint", NewConnected(ep, key), NewConnected(ep2, key), true},
		{"connected different key", NewConnected(ep, key), NewConnected(ep, other), false},
		{"unknown same endpoint", NewUnknown(ep), NewUnknown(ep), true},
		{"unknown different endpoint", NewUnknown(ep), NewUnknown(ep2), false},
		{"cleartext same endpoint", NewClearText(ep), NewClearText(ep), true},
		{"mixed status", NewUnknown(ep), NewConnected(ep, key), false},
		{"mixed cleartext", NewClearText(ep), NewUnknown(ep), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, h.Equal(tc.a, tc.b))
			assert.Equal(t, tc.want, h.Equal(tc.b, tc.a))
		})
	}
}

func TestCompareAndUpdateUpgradesUnknown(t *testing.T) {
	h := testHost()
	key := newKey(t)
	ep := netip.AddrPortFrom(publicAddr, 8720)

	unknown := NewUnknown(ep)
	assert.False(t, h.CompareAndUpdate(unknown, NewConnected(netip.AddrPortFrom(publicAddr, 1), key)))
	assert.Equal(t, Unknown, unknown.Status())

	assert.True(t, h.CompareAndUpdate(unknown, NewConnected(ep, key)))
	assert.Equal(t, Connected, unknown.Status())
	got, ok := unknown.PublicKey()
	require.True(t, ok)
	assert.Equal(t, key, got)

	connected := NewConnected(ep, key)
	assert.False(t, h.CompareAndUpdate(connected, NewConnected(ep, newKey(t))), "connected keys never change")
}

func TestUpgradePanicsUnlessUnknown(t *testing.T) {
	key := newKey(t)
	id := NewClearText(netip.AddrPortFrom(lanAddr, 1))
	assert.Panics(t, func() { id.Upgrade(key) })

	unknown := NewUnknown(netip.AddrPortFrom(lanAddr, 1))
	unknown.Upgrade(key)
	assert.Equal(t, Connected, unknown.Status())
}

func TestValidate(t *testing.T) {
	key := newKey(t)
	lan := netip.AddrPortFrom(lanAddr, 8720)
	pub := netip.AddrPortFrom(publicAddr, 8720)
	bcast := netip.AddrPortFrom(broadcastAddr, 8720)

	testCases := []struct {
		name                                 string
		id                                   *ID
		sender, clearText, internal, wantErr bool
	}{
		{"unknown as recipient", NewUnknown(pub), false, false, false, false},
		{"unknown as sender", NewUnknown(pub), true, false, false, true},
		{"unknown as sender internal", NewUnknown(pub), true, false, true, false},
		{"unknown for cleartext", NewUnknown(pub), false, true, false, true},
		{"unknown broadcast", NewUnknown(bcast), false, false, true, true},
		{"unknown blackhole", NewUnknown(BlackHoleEndpoint), false, false, true, true},
		{"connected encrypted", NewConnected(pub, key), true, false, false, false},
		{"connected for cleartext", NewConnected(pub, key), false, true, false, true},
		{"connected zero key", NewConnected(pub, crypto.PublicKey{}), false, false, true, true},
		{"connected broadcast", NewConnected(bcast, key), false, false, true, true},
		{"connected blackhole", NewConnected(BlackHoleEndpoint, key), false, false, true, true},
		{"cleartext local sender", NewClearText(lan), true, true, false, false},
		{"cleartext public sender", NewClearText(pub), true, true, false, true},
		{"cleartext local recipient", NewClearText(lan), false, true, false, true},
		{"cleartext broadcast recipient", NewClearText(bcast), false, true, false, false},
		{"cleartext blackhole", NewClearText(BlackHoleEndpoint), false, true, false, false},
		{"cleartext blackhole sender", NewClearText(BlackHoleEndpoint), true, true, false, true},
		{"cleartext broadcast sender", NewClearText(bcast), true, true, false, false},
		{"cleartext for encryption", NewClearText(lan), true, false, false, true},
		{"cleartext internal local", NewClearText(lan), false, false, true, false},
		{"cleartext internal public", NewClearText(pub), false, false, true, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.id.Validate(tc.sender, tc.clearText, tc.internal)
			if tc.wantErr {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tc.id.Status(), verr.Status)
				assert.Panics(t, func() { tc.id.MustValidate(tc.sender, tc.clearText, tc.internal) })
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDescribe(t *testing.T) {
	h := testHost()
	key := newKey(t)

	desc := h.Describe(NewConnected(netip.AddrPortFrom(lanAddr, 8720), key), 8720)
	assert.Equal(t,
		"[pubkey: "+key.Hex()+", IP: [is machine local: true, is network local: true, is devnull: false]]",
		desc)

	desc = h.Describe(BlackHole(), 8720)
	assert.Equal(t, "[pubkey: [NULL], IP: [is machine local: false, is network local: false, is devnull: true]]", desc)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	key := newKey(t)

	id, err := Resolve(ctx, key.Hex()+"@203.0.113.7:9000", 8720)
	require.NoError(t, err)
	assert.Equal(t, Connected, id.Status())
	assert.Equal(t, netip.AddrPortFrom(publicAddr, 9000), id.Endpoint())

	id, err = Resolve(ctx, "203.0.113.7", 8720)
	require.NoError(t, err)
	assert.Equal(t, Unknown, id.Status())
	assert.Equal(t, uint16(8720), id.Endpoint().Port())

	id, err = Resolve(ctx, "/ip4/10.0.0.2/udp/8725", 8720)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.2:8725"), id.Endpoint())

	badNames := []string{
		"abcd@10.0.0.1",
		strings.Repeat("zz", 32) + "@10.0.0.1",
		"a@b@c",
		"10.0.0.1:notaport",
		"/ip4/10.0.0.2/tcp/80",
		"/not-a-protocol",
	}
	for _, name := range badNames {
		_, err := Resolve(ctx, name, 8720)
		assert.ErrorIs(t, err, ErrBadName, name)
	}
}

func TestWriteReadID(t *testing.T) {
	key := newKey(t)
	id := NewConnected(netip.AddrPortFrom(publicAddr, 8720), key)

	w := wire.NewWriter(64)
	WriteID(w, id)
	data := w.Result()
	assert.Len(t, data, 4+2+crypto.PublicKeySize)

	got, err := ReadID(wire.NewReader(data))
	require.NoError(t, err)
	assert.True(t, Equal(id, got))
	assert.Equal(t, id.Endpoint(), got.Endpoint())

	_, err = ReadID(wire.NewReader(data[:20]))
	assert.ErrorIs(t, err, wire.ErrShortBuffer)

	assert.Panics(t, func() { WriteID(wire.NewWriter(0), NewUnknown(id.Endpoint())) })
}

func TestIDListAddressedToRewrite(t *testing.T) {
	h := testHost()
	selfKey := newKey(t)
	self := NewConnected(netip.AddrPortFrom(lanAddr, 8721), selfKey)

	recipientOnSender := NewConnected(netip.AddrPortFrom(netip.MustParseAddr("198.51.100.4"), 8721), selfKey)
	third := NewConnected(netip.AddrPortFrom(publicAddr, 8722), newKey(t))
	hole := BlackHole()

	w := wire.NewWriter(128)
	WriteIDList(w, []*ID{recipientOnSender, third, hole}, recipientOnSender, true)

	sender := NewConnected(netip.AddrPortFrom(publicAddr, 8720), newKey(t))
	ids, err := h.ReadIDList(wire.NewReader(w.Result()), sender, self)
	require.NoError(t, err)
	require.Len(t, ids, 4)

	assert.Same(t, sender, ids[0])
	assert.True(t, Equal(self, ids[1]), "recipient must see itself")
	assert.True(t, Equal(third, ids[2]))
	assert.Equal(t, third.Endpoint(), ids[2].Endpoint())
	assert.True(t, ids[3].IsBlackHole())
}

func TestWriteIDListRejectsUntrusted(t *testing.T) {
	assert.Panics(t, func() {
		WriteIDList(wire.NewWriter(0), []*ID{NewUnknown(netip.AddrPortFrom(publicAddr, 1))}, nil, false)
	})
}
