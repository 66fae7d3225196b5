// Package banlist provides dynamic IP allow/deny filtering for connection
// admission.
//
// The active rule set is an immutable snapshot behind an atomic pointer:
// admission checks on the packet receive path never take a lock, and
// replacing the list (for example when the external config layer pushes a
// reloaded ban file) never exposes a partially updated state.
package banlist

import (
	"fmt"
	"net"
	"net/netip"
)

// Disposition is the action a rule assigns to an address range.
type Disposition uint8

const (
	// Deny rejects addresses in the range.
	Deny Disposition = iota

	// Allow admits addresses in the range when allow-list mode is active.
	Allow
)

// String returns a human-readable representation of the disposition.
func (d Disposition) String() string {
	switch d {
	case Deny:
		return "deny"
	case Allow:
		return "allow"
	default:
		return fmt.Sprintf("Disposition(%d)", d)
	}
}

// Rule pairs a CIDR range with a disposition.
type Rule struct {
	Prefix      netip.Prefix
	Disposition Disposition
}

// ParseRule parses a rule from a CIDR string and disposition.
// A bare IP is treated as a single-address range.
func ParseRule(cidr string, d Disposition) (Rule, error) {
	if p, err := netip.ParsePrefix(cidr); err == nil {
		return Rule{Prefix: p.Masked(), Disposition: d}, nil
	}
	addr, err := netip.ParseAddr(cidr)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid ban rule %q: %w", cidr, err)
	}
	return Rule{Prefix: netip.PrefixFrom(addr, addr.BitLen()), Disposition: d}, nil
}

// Snapshot is an immutable, fully-formed rule set.
// Evaluation order: explicit deny ranges first, then explicit allow ranges
// if allow-list mode is active. When nothing matches the default is admit,
// unless allow-list mode is enabled, in which case the default is deny.
type Snapshot struct {
	deny      []netip.Prefix
	allow     []netip.Prefix
	allowMode bool
}

// NewSnapshot builds a snapshot from a rule list.
// allowMode enables allow-list semantics (default-deny for unmatched
// addresses).
func NewSnapshot(rules []Rule, allowMode bool) *Snapshot {
	s := &Snapshot{allowMode: allowMode}
	for _, r := range rules {
		switch r.Disposition {
		case Deny:
			s.deny = append(s.deny, r.Prefix)
		case Allow:
			s.allow = append(s.allow, r.Prefix)
		}
	}
	return s
}

// Admits reports whether the address passes the snapshot's rules.
func (s *Snapshot) Admits(addr netip.Addr) bool {
	addr = addr.Unmap()

	for _, p := range s.deny {
		if p.Contains(addr) {
			return false
		}
	}

	if s.allowMode {
		for _, p := range s.allow {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}

	return true
}

// Len returns the total number of rules in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.deny) + len(s.allow)
}

// AllowListMode reports whether allow-list semantics are active.
func (s *Snapshot) AllowListMode() bool {
	return s.allowMode
}

// AddrFromNetAddr extracts the IP from a net.Addr, for admission checks on
// raw socket addresses. Returns the zero Addr when the address carries no
// usable IP.
func AddrFromNetAddr(a net.Addr) netip.Addr {
	switch v := a.(type) {
	case *net.UDPAddr:
		addr, ok := netip.AddrFromSlice(v.IP)
		if !ok {
			return netip.Addr{}
		}
		return addr.Unmap()
	case *net.TCPAddr:
		addr, ok := netip.AddrFromSlice(v.IP)
		if !ok {
			return netip.Addr{}
		}
		return addr.Unmap()
	default:
		ap, err := netip.ParseAddrPort(a.String())
		if err != nil {
			return netip.Addr{}
		}
		return ap.Addr().Unmap()
	}
}
