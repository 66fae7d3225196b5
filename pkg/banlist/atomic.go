package banlist

import (
	"net"
	"net/netip"
	"sync/atomic"
)

// Filter answers admission queries against an atomically-swappable
// snapshot. Concurrent callers always observe either the old or the new
// snapshot in full, never a partial update.
//
// Filter is safe for concurrent use. The zero-value Filter is not usable;
// call NewFilter.
type Filter struct {
	snap atomic.Pointer[Snapshot]
}

// NewFilter creates a filter with an empty rule set (admit everything).
func NewFilter() *Filter {
	f := &Filter{}
	f.snap.Store(NewSnapshot(nil, false))
	return f
}

// IsAdmitted reports whether the address may proceed to the handshake.
// Called once at connection admission, not per packet.
func (f *Filter) IsAdmitted(addr netip.Addr) bool {
	return f.snap.Load().Admits(addr)
}

// AdmitsNetAddr is IsAdmitted over a raw socket address. Addresses that
// carry no usable IP are rejected.
func (f *Filter) AdmitsNetAddr(a net.Addr) bool {
	addr := AddrFromNetAddr(a)
	if !addr.IsValid() {
		return false
	}
	return f.IsAdmitted(addr)
}

// ReplaceSnapshot atomically installs a new rule set. Connections already
// admitted are not disrupted.
func (f *Filter) ReplaceSnapshot(s *Snapshot) {
	if s == nil {
		s = NewSnapshot(nil, false)
	}
	f.snap.Store(s)
}

// Snapshot returns the currently active snapshot.
func (f *Filter) Snapshot() *Snapshot {
	return f.snap.Load()
}
