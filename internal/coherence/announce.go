package coherence

import "dstore/internal/wire"

// AnnouncePut and AnnounceRemove satisfy kvstore.Announcer, the narrow
// capability the local store uses to tell the controller about locally
// originated mutations so they can be published on the wire. kvstore
// never imports this package — whichever package constructs both (see
// internal/dstore) wires a *Controller in as a kvstore.Announcer.

// AnnouncePut publishes a local key mutation as a stateful KeyValue
// sample.
func (c *Controller) AnnouncePut(uri, value string, version uint64) {
	c.adapter.PublishPut(wire.KeyValue{Key: uri, Value: value, SID: c.storeID, Version: version})
}

// AnnounceRemove disposes the KeyValue instance for uri, observed by
// peers as a removal.
func (c *Controller) AnnounceRemove(uri string) {
	c.adapter.DisposeKey(wire.KeyValue{Key: uri, SID: c.storeID})
}
