package coherence

import (
	"time"

	"dstore/internal/wire"
)

// Resolved is the outcome of a single-value resolve: Version -1 with an
// empty Value means no peer held the key.
type Resolved struct {
	Value   string
	Version int64
}

// Resolve drives the single-value miss/hit protocol of spec.md §4.4
// outgoing resolve: settle, capture the peer set, publish CacheMiss,
// then loop draining CacheHit — and only CacheHit, never CacheHitMV
// (REDESIGN FLAG #1) — until every captured peer has answered or a
// retry ceiling is hit.
func (c *Controller) Resolve(uri string, timeout time.Duration) Resolved {
	c.settle()
	capturedPeers := c.capturePeers()

	maxRetries := len(capturedPeers) * 2
	if maxRetries < minMaxRetries {
		maxRetries = minMaxRetries
	}
	delta := defaultDelta
	if timeout <= 0 {
		timeout = delta
	}

	c.adapter.PublishMiss(wire.CacheMiss{SourceSID: c.storeID, Key: uri})

	best := Resolved{Value: "", Version: -1}
	answered := make(map[string]struct{})

	for retries := 1; ; retries++ {
		sleep := timeout + time.Duration(max0(retries-1)/10)*delta
		time.Sleep(sleep)

		if retries%10 == 0 {
			c.adapter.PublishMiss(wire.CacheMiss{SourceSID: c.storeID, Key: uri})
		}

		for _, s := range c.adapter.HitReader.Take() {
			if !s.ValidData {
				continue
			}
			h, ok := s.Data.(wire.CacheHit)
			if !ok || h.Key != uri || h.DestSID != c.storeID {
				continue
			}
			answered[h.SourceSID] = struct{}{}
			if h.Version > best.Version {
				best = Resolved{Value: h.Value, Version: h.Version}
			}
		}

		if peerSetSatisfied(capturedPeers, answered) || retries >= maxRetries {
			break
		}
	}

	return best
}

// ResolveAll drives the wildcard miss/hit protocol (outgoing
// resolveAll): settle, capture peers, publish CacheMissMV, drain
// CacheHitMV until every captured peer has answered, then consolidate
// by retaining the highest version per key.
func (c *Controller) ResolveAll(pattern string, timeout time.Duration) []wire.KV {
	c.settle()
	capturedPeers := c.capturePeers()

	maxRetries := len(capturedPeers) * 2
	if maxRetries < minMaxRetries {
		maxRetries = minMaxRetries
	}
	delta := defaultDelta
	if timeout <= 0 {
		timeout = delta
	}

	c.adapter.PublishMissMV(wire.CacheMissMV{SourceSID: c.storeID, Key: pattern})

	answered := make(map[string]struct{})
	best := make(map[string]wire.KV)

	for retries := 1; ; retries++ {
		sleep := timeout + time.Duration(max0(retries-1)/10)*delta
		time.Sleep(sleep)

		if retries%10 == 0 {
			c.adapter.PublishMissMV(wire.CacheMissMV{SourceSID: c.storeID, Key: pattern})
		}

		for _, s := range c.adapter.HitMVReader.Take() {
			if !s.ValidData {
				continue
			}
			h, ok := s.Data.(wire.CacheHitMV)
			if !ok || h.Key != pattern {
				continue
			}
			if _, already := answered[h.SourceSID]; already {
				continue
			}
			answered[h.SourceSID] = struct{}{}
			if h.Entries == nil {
				continue
			}
			for _, kv := range h.Entries {
				if cur, ok := best[kv.Key]; !ok || kv.Version > cur.Version {
					best[kv.Key] = kv
				}
			}
		}

		if peerSetSatisfied(capturedPeers, answered) || retries >= maxRetries {
			break
		}
	}

	out := make([]wire.KV, 0, len(best))
	for _, kv := range best {
		out = append(out, kv)
	}
	return out
}

// settle gives pending peer advertisements a moment to land before a
// resolve's first miss goes out.
func (c *Controller) settle() {
	time.Sleep(SettleDelay)
}

// capturePeers snapshots the peer registry, waiting briefly for it to
// become non-empty — a fresh store has usually not yet heard from
// anyone when its first resolve fires.
func (c *Controller) capturePeers() map[string]struct{} {
	deadline := time.Now().Add(peerWaitTimeout)
	for {
		snap := c.peers.Snapshot()
		if len(snap) > 0 || time.Now().After(deadline) {
			return snap
		}
		time.Sleep(peerWaitPoll)
	}
}

func peerSetSatisfied(captured map[string]struct{}, answered map[string]struct{}) bool {
	if len(captured) == 0 {
		return true
	}
	for sid := range captured {
		if _, ok := answered[sid]; !ok {
			return false
		}
	}
	return true
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
