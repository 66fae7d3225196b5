package addressbook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/multiformats/go-multiaddr"

	"github.com/blockberries/wireberry/pkg/identity"
)

// flushInterval is how often batched changes are flushed to disk.
const flushInterval = 5 * time.Second

// Book manages the peer address book with persistence and thread-safe
// operations. Structural changes (add, remove) are saved immediately;
// LastSeen updates are batched and flushed periodically.
type Book struct {
	storage *storage
	peers   map[string]*PeerEntry
	mu      sync.RWMutex

	// dirty indicates unsaved batched changes
	dirty bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an address book persisted at the given file path. If the
// file exists, existing data is loaded. The returned Book must be
// closed with Close() to ensure pending changes are persisted.
func New(path string) (*Book, error) {
	s := newStorage(path)

	data, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load address book: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Book{
		storage: s,
		peers:   data.Peers,
		ctx:     ctx,
		cancel:  cancel,
	}

	go b.flushLoop()

	return b, nil
}

// AddPeer adds or updates a peer. If the peer already exists, its
// addresses and metadata are replaced. The addrs slice and metadata
// map are copied.
func (b *Book) AddPeer(fp identity.Fingerprint, addrs []multiaddr.Multiaddr, metadata map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := fp.String()
	now := time.Now()

	addrsCopy := make([]multiaddr.Multiaddr, len(addrs))
	copy(addrsCopy, addrs)

	var metadataCopy map[string]string
	if metadata != nil {
		metadataCopy = make(map[string]string, len(metadata))
		for k, v := range metadata {
			metadataCopy[k] = v
		}
	}

	if existing, ok := b.peers[key]; ok {
		existing.Multiaddrs = addrsCopy
		if metadataCopy != nil {
			existing.Metadata = metadataCopy
		}
		existing.UpdatedAt = now
	} else {
		b.peers[key] = &PeerEntry{
			Fingerprint: fp,
			Multiaddrs:  addrsCopy,
			Metadata:    metadataCopy,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	return b.saveLocked()
}

// RemovePeer removes a peer from the address book.
func (b *Book) RemovePeer(fp identity.Fingerprint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := fp.String()
	if _, ok := b.peers[key]; !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, fp.Short())
	}

	delete(b.peers, key)
	return b.saveLocked()
}

// GetPeer retrieves a peer entry by fingerprint. A copy is returned.
func (b *Book) GetPeer(fp identity.Fingerprint) (*PeerEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.peers[fp.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerNotFound, fp.Short())
	}

	return entry.Clone(), nil
}

// ListPeers returns all known peers as copies.
func (b *Book) ListPeers() []*PeerEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]*PeerEntry, 0, len(b.peers))
	for _, entry := range b.peers {
		result = append(result, entry.Clone())
	}
	return result
}

// MarkSeen records a successful connection from the peer at the given
// address. Unknown peers are created; known peers have the address
// promoted to the front of their list. This is a batched operation,
// persisted on the next periodic flush.
func (b *Book) MarkSeen(fp identity.Fingerprint, addr multiaddr.Multiaddr) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := fp.String()
	now := time.Now()

	entry, ok := b.peers[key]
	if !ok {
		entry = &PeerEntry{
			Fingerprint: fp,
			CreatedAt:   now,
		}
		b.peers[key] = entry
	}

	if addr != nil {
		addrs := make([]multiaddr.Multiaddr, 0, len(entry.Multiaddrs)+1)
		addrs = append(addrs, addr)
		for _, a := range entry.Multiaddrs {
			if !a.Equal(addr) {
				addrs = append(addrs, a)
			}
		}
		entry.Multiaddrs = addrs
	}

	entry.LastSeen = now
	entry.UpdatedAt = now
	b.dirty = true
}

// UpdateMetadata merges metadata into a peer's entry. Keys mapped to
// the empty string are removed.
func (b *Book) UpdateMetadata(fp identity.Fingerprint, metadata map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.peers[fp.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, fp.Short())
	}

	if entry.Metadata == nil {
		entry.Metadata = make(map[string]string)
	}

	for k, v := range metadata {
		if v == "" {
			delete(entry.Metadata, k)
		} else {
			entry.Metadata[k] = v
		}
	}

	entry.UpdatedAt = time.Now()
	return b.saveLocked()
}

// HasPeer checks if a peer exists in the address book.
func (b *Book) HasPeer(fp identity.Fingerprint) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.peers[fp.String()]
	return ok
}

// Count returns the number of known peers.
func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}

// Clear removes all peers from the address book.
func (b *Book) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.peers = make(map[string]*PeerEntry)
	return b.saveLocked()
}

// saveLocked saves the address book to disk.
// Must be called with the write lock held.
func (b *Book) saveLocked() error {
	data := &bookData{
		Version: currentVersion,
		Peers:   b.peers,
	}
	if err := b.storage.save(data); err != nil {
		return err
	}
	b.dirty = false
	return nil
}

// Reload reloads the address book from disk, discarding in-memory changes.
func (b *Book) Reload() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.storage.load()
	if err != nil {
		return fmt.Errorf("failed to reload address book: %w", err)
	}

	b.peers = data.Peers
	b.dirty = false
	return nil
}

// flushLoop periodically flushes batched changes to disk.
func (b *Book) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			if b.dirty {
				// Failed background flush retries next interval
				_ = b.saveLocked()
			}
			b.mu.Unlock()
		}
	}
}

// Flush explicitly saves any pending batched changes to disk.
func (b *Book) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.dirty {
		return nil
	}
	return b.saveLocked()
}

// Close stops the background flush goroutine and saves pending changes.
// The Book should not be used after Close is called.
func (b *Book) Close() error {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dirty {
		return b.saveLocked()
	}
	return nil
}
