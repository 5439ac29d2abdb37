package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/multiformats/go-multiaddr"
	"github.com/opd-ai/meadowlink/crypto"
	"github.com/sirupsen/logrus"
)

// ErrBadName is returned for peer names that cannot be parsed.
var ErrBadName = errors.New("identity: malformed peer name")

// Resolve parses a human-entered peer name.
//
//	<64 hex chars>@<endpoint>  yields a Connected identity
//	<endpoint>                 yields an Unknown identity
//
// An endpoint is host[:port] or a multiaddr such as /ip4/10.0.0.2/udp/8720
// or /dns4/example.org/udp/8720. Host names are resolved to IPv4.
func Resolve(ctx context.Context, name string, defaultPort uint16) (*ID, error) {
	parts := strings.Split(name, "@")
	switch len(parts) {
	case 1:
		ep, err := ResolveEndpoint(ctx, parts[0], defaultPort)
		if err != nil {
			return nil, err
		}
		return NewUnknown(ep), nil
	case 2:
		if len(parts[0]) != 2*crypto.PublicKeySize {
			return nil, fmt.Errorf("%w: public key must be %d hex characters", ErrBadName, 2*crypto.PublicKeySize)
		}
		key, err := crypto.PublicKeyFromHex(parts[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadName, err)
		}
		ep, err := ResolveEndpoint(ctx, parts[1], defaultPort)
		if err != nil {
			return nil, err
		}
		return NewConnected(ep, key), nil
	default:
		return nil, fmt.Errorf("%w: %q has more than one '@'", ErrBadName, name)
	}
}

// ResolveEndpoint parses host[:port] or a UDP multiaddr into an endpoint.
func ResolveEndpoint(ctx context.Context, name string, defaultPort uint16) (netip.AddrPort, error) {
	if strings.HasPrefix(name, "/") {
		return resolveMultiaddr(ctx, name)
	}

	host, portStr, err := net.SplitHostPort(name)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ResolveEndpoint",
			"name":     name,
		}).Debug("No port in endpoint, using default")
		host = name
		portStr = strconv.Itoa(int(defaultPort))
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: invalid port %q", ErrBadName, portStr)
	}

	addr, err := resolveHost(ctx, host)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(addr, uint16(port)), nil
}

func resolveMultiaddr(ctx context.Context, name string) (netip.AddrPort, error) {
	maddr, err := multiaddr.NewMultiaddr(name)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrBadName, err)
	}

	portStr, err := maddr.ValueForProtocol(multiaddr.P_UDP)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: multiaddr %s has no udp component", ErrBadName, name)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: invalid port %q", ErrBadName, portStr)
	}

	host, err := maddr.ValueForProtocol(multiaddr.P_IP4)
	if err != nil {
		if host, err = maddr.ValueForProtocol(multiaddr.P_DNS4); err != nil {
			return netip.AddrPort{}, fmt.Errorf("%w: multiaddr %s needs ip4 or dns4", ErrBadName, name)
		}
	}

	addr, err := resolveHost(ctx, host)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(addr, uint16(port)), nil
}

func resolveHost(ctx context.Context, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), nil
	}

	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("resolve %q: no IPv4 address", host)
	}
	return addrs[0].Unmap(), nil
}
