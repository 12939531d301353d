package cluster

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// historyShardCount spreads the replicated history over independent locks so
// broadcast appliers and status queries do not contend on one mutex.
const historyShardCount = 16

// HistoryKey identifies one outstanding task.
type HistoryKey struct {
	ClientID  string
	RequestID uint64
}

// HistoryEntry records where a task was routed and when.
type HistoryEntry struct {
	AssignedServerID uint32
	Timestamp        uint64
}

type historyShard struct {
	mu      sync.RWMutex
	entries map[HistoryKey]HistoryEntry
}

// History is the replicated task-assignment map. Every server holds one;
// convergence is eventual via HistoryAdd / HistoryRemove broadcasts, so all
// mutations are idempotent: Add overwrites on a duplicate key and Remove
// tolerates a missing one.
type History struct {
	shards [historyShardCount]historyShard
}

// NewHistory returns an empty history map.
func NewHistory() *History {
	h := &History{}
	for i := range h.shards {
		h.shards[i].entries = make(map[HistoryKey]HistoryEntry)
	}
	return h
}

func (h *History) shard(key HistoryKey) *historyShard {
	digest := xxhash.New()
	_, _ = digest.WriteString(key.ClientID)
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], key.RequestID)
	_, _ = digest.Write(id[:])
	return &h.shards[digest.Sum64()%historyShardCount]
}

// Add inserts or overwrites an entry. Last writer wins on a duplicate key.
func (h *History) Add(key HistoryKey, entry HistoryEntry) {
	sh := h.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.entries[key] = entry
}

// Remove deletes an entry, reporting whether it was present.
func (h *History) Remove(key HistoryKey) bool {
	sh := h.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.entries[key]; !ok {
		return false
	}
	delete(sh.entries, key)
	return true
}

// Get looks an entry up.
func (h *History) Get(key HistoryKey) (HistoryEntry, bool) {
	sh := h.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	entry, ok := sh.entries[key]
	return entry, ok
}

// PurgeAssignee deletes every entry routed to the given server and returns
// how many were dropped. Called when the failure detector declares that
// server failed; the entries are orphans.
func (h *History) PurgeAssignee(serverID uint32) int {
	purged := 0
	for i := range h.shards {
		sh := &h.shards[i]
		sh.mu.Lock()
		for key, entry := range sh.entries {
			if entry.AssignedServerID == serverID {
				delete(sh.entries, key)
				purged++
			}
		}
		sh.mu.Unlock()
	}
	return purged
}

// Len returns the number of outstanding entries.
func (h *History) Len() int {
	n := 0
	for i := range h.shards {
		sh := &h.shards[i]
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}
