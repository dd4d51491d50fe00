package coherence

import (
	"time"

	"dstore/internal/wire"
)

// advertiseLoop runs the background presence task: every
// advertiseInterval it republishes this store's StoreInfo and sweeps
// the peer registry for staleness, per spec.md §4.4's "Outgoing
// presence" section.
func (c *Controller) advertiseLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(advertiseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.adapter.PublishInfo(wire.StoreInfo{SID: c.storeID, Root: c.root, Home: c.home})
			evicted := c.peers.ExpireStale(time.Now())
			for _, sid := range evicted {
				c.log.WithField("peer", sid).Debug("evicted stale peer")
			}
		}
	}
}

// pumpStoreInfo applies the discovery state machine to incoming
// StoreInfo samples: valid data refreshes/discovers a peer and may
// trigger an immediate re-advertise (REDESIGN FLAG #3 — the
// responsiveness/staleness comparisons are both now - lastHeard against
// a fixed window, never a raw timestamp compare); disposal removes the
// peer immediately. Liveliness loss is handled by the callback New
// registers on the StoreInfo reader, not here.
func (c *Controller) pumpStoreInfo() {
	defer c.wg.Done()
	drain(c.stop, c.adapter.StoreInfoReader, func(info wire.StoreInfo, disposed bool) {
		if disposed {
			c.peers.ObserveDisposal(info.SID)
			return
		}
		if c.peers.ObserveInfo(info.SID, time.Now()) {
			c.adapter.PublishInfo(wire.StoreInfo{SID: c.storeID, Root: c.root, Home: c.home})
		}
	})
}
