// Package cluster implements the server side of the CloudP2P coordination
// core: peer link management, leader election under dynamic load, heartbeat
// failure detection, load-aware task assignment, the replicated task history,
// and the task executor.
package cluster

import (
	"sync"
	"time"
)

// electionState is the election engine's current mode.
type electionState int32

const (
	stateIdle electionState = iota
	stateElecting
	stateLeader
	stateFollower
)

func (s electionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateElecting:
		return "electing"
	case stateLeader:
		return "leader"
	case stateFollower:
		return "follower"
	default:
		return "unknown"
	}
}

// leaderState is this server's current belief about the coordinator. Guarded
// by its own lock so readers on hot paths never wait on election bookkeeping.
type leaderState struct {
	mu    sync.RWMutex
	id    uint32
	known bool
}

// get returns the current leader id, if any.
func (l *leaderState) get() (uint32, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.id, l.known
}

func (l *leaderState) set(id uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.id = id
	l.known = true
}

func (l *leaderState) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.id = 0
	l.known = false
}

// is reports whether id is believed to be the leader.
func (l *leaderState) is(id uint32) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.known && l.id == id
}

// peerStatus is one row of the liveness table: when the peer was last heard
// from (local clock) and the load it last reported.
type peerStatus struct {
	lastSeen time.Time
	lastLoad float64
}

// peerTable tracks liveness and reported load for every peer currently
// considered alive. Entries appear on the first heartbeat and are dropped when
// the failure detector declares the peer failed.
type peerTable struct {
	mu    sync.RWMutex
	peers map[uint32]peerStatus
}

func newPeerTable() *peerTable {
	return &peerTable{peers: make(map[uint32]peerStatus)}
}

// observe records a heartbeat using the receiver's clock; peer clocks are not
// assumed synchronized.
func (t *peerTable) observe(id uint32, load float64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[id] = peerStatus{lastSeen: now, lastLoad: load}
}

// loads returns a snapshot of the last reported load per live peer.
func (t *peerTable) loads() map[uint32]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[uint32]float64, len(t.peers))
	for id, st := range t.peers {
		out[id] = st.lastLoad
	}
	return out
}

// expired returns the peers whose last heartbeat is older than timeout.
func (t *peerTable) expired(now time.Time, timeout time.Duration) []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []uint32
	for id, st := range t.peers {
		if now.Sub(st.lastSeen) > timeout {
			out = append(out, id)
		}
	}
	return out
}

// drop removes a failed peer from the table.
func (t *peerTable) drop(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}
