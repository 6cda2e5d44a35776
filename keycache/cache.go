// Package keycache is the Key Cache (spec.md §4.1): a volatile,
// process-wide mapping from onion-key-hash to the ephemeral keypair this
// validator generated, plus the height the key was cached at. Shared-read,
// single-writer — the Challenge Manager is the only writer, but any
// component may look keys up.
package keycache

import (
	"sync"

	"poc-challenge-manager/logging"
	"poc-challenge-manager/pockeys"
)

// Entry is one cached ephemeral keypair.
type Entry struct {
	OnionKeyHash  pockeys.Hash
	ReceiveHeight int64
	KeyPair       pockeys.KeyPair
}

// Cache is the Key Cache. The zero value is not usable; use New.
type Cache struct {
	mu      sync.RWMutex
	entries map[pockeys.Hash]Entry
}

func New() *Cache {
	return &Cache{entries: make(map[pockeys.Hash]Entry)}
}

// Cache inserts or overwrites hash's entry. Idempotent; last write wins.
func (c *Cache) Cache(hash pockeys.Hash, receiveHeight int64, kp pockeys.KeyPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hash] = Entry{OnionKeyHash: hash, ReceiveHeight: receiveHeight, KeyPair: kp}
}

// Lookup returns the entry for hash, if present.
func (c *Cache) Lookup(hash pockeys.Hash) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[hash]
	return e, ok
}

// Delete removes hash's entry, if any.
func (c *Cache) Delete(hash pockeys.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, hash)
}

// Iter returns a snapshot of all entries, for GC scans. Copying out from
// under the lock keeps the caller from holding it during a long scan.
func (c *Cache) Iter() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GCOlderThan deletes every entry whose ReceiveHeight is more than
// maxAge blocks behind currentHeight (spec.md §4.5's key-cache GC, run
// every 50 blocks by the Manager).
func (c *Cache) GCOlderThan(currentHeight int64, maxAge int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for hash, e := range c.entries {
		if currentHeight-e.ReceiveHeight > maxAge {
			delete(c.entries, hash)
			removed++
		}
	}
	if removed > 0 {
		logging.Debug("key cache GC removed entries", logging.ModulePoC,
			"removed", removed, "currentHeight", currentHeight, "maxAge", maxAge)
	}
	return removed
}
