package transport

import (
	"fmt"
	"net"
	"strconv"

	ma "github.com/multiformats/go-multiaddr"
)

// UDPAddrFromMultiaddr extracts the UDP endpoint from a
// /ip4|ip6/.../udp/... multiaddr. The trailing /quic-v1 component is
// optional on input.
func UDPAddrFromMultiaddr(addr ma.Multiaddr) (*net.UDPAddr, error) {
	ipStr, err := addr.ValueForProtocol(ma.P_IP4)
	if err != nil {
		ipStr, err = addr.ValueForProtocol(ma.P_IP6)
		if err != nil {
			return nil, fmt.Errorf("address %s carries no IP component", addr)
		}
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil, fmt.Errorf("address %s: bad IP %q", addr, ipStr)
	}

	portStr, err := addr.ValueForProtocol(ma.P_UDP)
	if err != nil {
		return nil, fmt.Errorf("address %s carries no UDP component", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("address %s: bad port %q", addr, portStr)
	}

	return &net.UDPAddr{IP: ip, Port: port}, nil
}

// MultiaddrFromUDPAddr renders a UDP endpoint as a /ip/udp/quic-v1
// multiaddr.
func MultiaddrFromUDPAddr(addr *net.UDPAddr) (ma.Multiaddr, error) {
	var s string
	if ip4 := addr.IP.To4(); ip4 != nil {
		s = fmt.Sprintf("/ip4/%s/udp/%d/quic-v1", ip4, addr.Port)
	} else if addr.IP.IsUnspecified() && len(addr.IP) == 0 {
		s = fmt.Sprintf("/ip4/0.0.0.0/udp/%d/quic-v1", addr.Port)
	} else {
		s = fmt.Sprintf("/ip6/%s/udp/%d/quic-v1", addr.IP, addr.Port)
	}
	return ma.NewMultiaddr(s)
}
