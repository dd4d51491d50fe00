// Package peers tracks the set of stores discovered on a partition and
// their liveness, grounded on the same mutex-guarded-map shape as
// other_examples' wgmesh PeerStore, adapted to the discovery/staleness
// rules spec.md §4.2 and §4.4 specify (single staleness window, eager
// re-advertise on stale refresh, disposal/liveliness-loss removal).
package peers

import (
	"sync"
	"time"
)

const (
	// ResponsivenessWindow: a peer heard from after this long silent is
	// treated as having possibly missed our presence, so we re-advertise.
	ResponsivenessWindow = 4 * time.Second
	// StalenessWindow: a peer not heard from in this long is evicted.
	StalenessWindow = 7 * time.Second
)

// Registry is the set of peers discovered by one store, excluding self.
// All mutations go through mu; reads take a snapshot.
type Registry struct {
	selfID string

	mu        sync.Mutex
	lastHeard map[string]time.Time
}

// New creates an empty registry for a store identified by selfID.
func New(selfID string) *Registry {
	return &Registry{
		selfID:    selfID,
		lastHeard: make(map[string]time.Time),
	}
}

// ObserveInfo applies the discovery rule for a valid StoreInfo sample
// from sid at time now. It returns true if self should re-advertise its
// own presence in response (newly discovered, or refreshing a peer that
// had gone quiet past ResponsivenessWindow).
func (r *Registry) ObserveInfo(sid string, now time.Time) (readvertise bool) {
	if sid == r.selfID {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	last, known := r.lastHeard[sid]
	if !known {
		r.lastHeard[sid] = now
		return true
	}
	if now.Sub(last) > ResponsivenessWindow {
		readvertise = true
	}
	r.lastHeard[sid] = now
	return readvertise
}

// ObserveDisposal removes sid on an explicit instance disposal.
func (r *Registry) ObserveDisposal(sid string) {
	if sid == r.selfID {
		return
	}
	r.mu.Lock()
	delete(r.lastHeard, sid)
	r.mu.Unlock()
}

// ObserveLivelinessLoss removes sid when its writer's liveliness was
// lost (NOT_ALIVE_NO_WRITERS | NOT_ALIVE_DISPOSED).
func (r *Registry) ObserveLivelinessLoss(sid string) {
	r.ObserveDisposal(sid)
}

// ExpireStale evicts every peer whose last-heard timestamp is older
// than StalenessWindow relative to now. Returns the evicted ids.
func (r *Registry) ExpireStale(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for sid, last := range r.lastHeard {
		if now.Sub(last) > StalenessWindow {
			delete(r.lastHeard, sid)
			evicted = append(evicted, sid)
		}
	}
	return evicted
}

// Snapshot returns the current set of peer ids.
func (r *Registry) Snapshot() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]struct{}, len(r.lastHeard))
	for sid := range r.lastHeard {
		out[sid] = struct{}{}
	}
	return out
}

// SnapshotWithTimestamps returns a copy of the last-heard map.
func (r *Registry) SnapshotWithTimestamps() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]time.Time, len(r.lastHeard))
	for sid, t := range r.lastHeard {
		out[sid] = t
	}
	return out
}

// Len returns the number of known peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lastHeard)
}
