// Package addressbook persists known peers for a Wireberry endpoint:
// their identity fingerprints, last known addresses, and application
// metadata, stored as a JSON file with atomic writes.
package addressbook

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/multiformats/go-multiaddr"

	"github.com/blockberries/wireberry/pkg/identity"
)

// ErrPeerNotFound indicates the peer is not in the address book.
var ErrPeerNotFound = errors.New("peer not found in address book")

// PeerEntry represents a known peer in the address book.
type PeerEntry struct {
	// Fingerprint is the peer's certificate fingerprint, the stable
	// identity used to pin connections.
	Fingerprint identity.Fingerprint `json:"-"`

	// Multiaddrs are the known dialable addresses for this peer.
	Multiaddrs []multiaddr.Multiaddr `json:"-"`

	// Metadata holds application-defined key-value pairs, such as a
	// display name or region hint.
	Metadata map[string]string `json:"metadata,omitempty"`

	// LastSeen is the timestamp of the last established connection.
	LastSeen time.Time `json:"last_seen,omitempty"`

	// CreatedAt is when this entry was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when this entry was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// MarshalJSON implements json.Marshaler. Fingerprints serialize as hex
// and multiaddrs as their string form.
func (p *PeerEntry) MarshalJSON() ([]byte, error) {
	rawAddrs := make([]string, len(p.Multiaddrs))
	for i, addr := range p.Multiaddrs {
		rawAddrs[i] = addr.String()
	}

	type alias PeerEntry
	return json.Marshal(&struct {
		*alias
		Fingerprint string   `json:"fingerprint"`
		Multiaddrs  []string `json:"multiaddrs"`
	}{
		alias:       (*alias)(p),
		Fingerprint: p.Fingerprint.String(),
		Multiaddrs:  rawAddrs,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Unparseable multiaddrs
// are skipped rather than failing the whole entry.
func (p *PeerEntry) UnmarshalJSON(data []byte) error {
	type alias PeerEntry
	aux := &struct {
		*alias
		Fingerprint string   `json:"fingerprint"`
		Multiaddrs  []string `json:"multiaddrs"`
	}{
		alias: (*alias)(p),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	fp, err := identity.ParseFingerprint(aux.Fingerprint)
	if err != nil {
		return err
	}
	p.Fingerprint = fp

	p.Multiaddrs = make([]multiaddr.Multiaddr, 0, len(aux.Multiaddrs))
	for _, s := range aux.Multiaddrs {
		addr, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			continue
		}
		p.Multiaddrs = append(p.Multiaddrs, addr)
	}

	return nil
}

// Clone creates a deep copy of the PeerEntry.
func (p *PeerEntry) Clone() *PeerEntry {
	if p == nil {
		return nil
	}

	clone := &PeerEntry{
		Fingerprint: p.Fingerprint,
		LastSeen:    p.LastSeen,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}

	if len(p.Multiaddrs) > 0 {
		clone.Multiaddrs = make([]multiaddr.Multiaddr, len(p.Multiaddrs))
		copy(clone.Multiaddrs, p.Multiaddrs)
	}

	if len(p.Metadata) > 0 {
		clone.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			clone.Metadata[k] = v
		}
	}

	return clone
}

// bookData is the on-disk structure.
type bookData struct {
	Version int                   `json:"version"`
	Peers   map[string]*PeerEntry `json:"peers"`
}
