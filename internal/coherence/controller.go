// Package coherence implements the core state machine of spec.md §4.4:
// it owns every transport reader callback, runs the periodic presence
// advertisement, serves incoming cache misses from the local store, and
// drives the outgoing resolve/resolveAll request-response protocol.
//
// Grounded on dstore/controller.py's StoreController for the exact
// state machine (settle-wait-retry-jitter, meta-resource trimming,
// staleness sweep). Resolve/ResolveAll collect answers by polling the
// hit readers in a sleep loop.
package coherence

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"dstore/internal/messaging"
	"dstore/internal/peers"
	"dstore/internal/transport"
	"dstore/internal/wire"

	"github.com/sirupsen/logrus"
)

const (
	advertiseInterval = 3500 * time.Millisecond
	// SettleDelay is how long a fresh resolve (or a fresh Store, per
	// spec.md §3's lifecycle section) waits for pending peer
	// advertisements to land before acting on the peer registry.
	SettleDelay     = 450 * time.Millisecond
	peerWaitTimeout = 100 * time.Millisecond
	peerWaitPoll    = 5 * time.Millisecond
	defaultDelta    = 15 * time.Millisecond
	minMaxRetries   = 10
	jitterUnit      = 25 * time.Millisecond
	jitterMaxMult   = 75
)

// LocalAccess is the narrow capability the controller needs from the
// local store. Declared here, with only primitive and wire types in its
// signature, so the controller package never has to import kvstore —
// the caller that constructs both wires a *kvstore.Store in as this
// interface, avoiding an import cycle (kvstore.Store.SetAnnouncer takes
// the symmetric interface back the other way).
type LocalAccess interface {
	GetValue(uri string) (value string, version uint64, ok bool)
	UpdateValue(uri, value string, version uint64) bool
	RemoteRemove(uri string)
	GetAll(pattern string) []wire.KV
	NotifyObservers(uri string, value *string, version *int64)
	EvalMetaResource(uri string) (value string, ok bool)
}

// Controller is one store's coherence engine.
type Controller struct {
	storeID string
	root    string
	home    string

	local   LocalAccess
	adapter *messaging.Adapter
	peers   *peers.Registry
	log     *logrus.Entry

	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// New constructs a Controller bound to local and an already-created
// messaging adapter for root, then starts its background loops
// (reader-callback pumps and the presence advertiser).
func New(storeID, root, home string, local LocalAccess, adapter *messaging.Adapter, registry *peers.Registry, log *logrus.Logger) *Controller {
	if log == nil {
		log = logrus.New()
	}
	c := &Controller{
		storeID: storeID,
		root:    root,
		home:    home,
		local:   local,
		adapter: adapter,
		peers:   registry,
		log:     log.WithField("component", "coherence").WithField("store_id", storeID),
		stop:    make(chan struct{}),
	}

	c.adapter.StoreInfoReader.OnLivelinessLost(func(sid string) {
		c.peers.ObserveLivelinessLoss(sid)
	})

	c.wg.Add(5)
	go c.pumpKeyValue()
	go c.pumpMiss()
	go c.pumpMissMV()
	go c.pumpStoreInfo()
	go c.advertiseLoop()

	c.adapter.PublishInfo(wire.StoreInfo{SID: storeID, Root: root, Home: home})

	return c
}

// Close disposes this store's presence instance and stops every
// background loop, guaranteed even if called more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.adapter.DisposeInfo(wire.StoreInfo{SID: c.storeID, Root: c.root, Home: c.home})
		close(c.stop)
		c.wg.Wait()
		c.adapter.Close()
	})
}

// ---- incoming KeyValue (remote put) ----

func (c *Controller) pumpKeyValue() {
	defer c.wg.Done()
	drain(c.stop, c.adapter.KeyValueReader, func(s wire.KeyValue, disposed bool) {
		if disposed {
			c.local.RemoteRemove(s.Key)
			return
		}
		if s.SID == c.storeID {
			return
		}
		if isMetaResource(s.Key) {
			return
		}
		if c.local.UpdateValue(s.Key, s.Value, s.Version) {
			v := s.Value
			ver := int64(s.Version)
			c.local.NotifyObservers(s.Key, &v, &ver)
		}
	})
}

// ---- incoming CacheMiss (serve single-value lookups) ----

func (c *Controller) pumpMiss() {
	defer c.wg.Done()
	drain(c.stop, c.adapter.MissReader, func(m wire.CacheMiss, disposed bool) {
		if disposed || m.SourceSID == c.storeID {
			return
		}

		if isMetaResource(m.Key) && strings.HasPrefix(m.Key, c.home) {
			if v, ok := c.local.EvalMetaResource(m.Key); ok {
				c.adapter.PublishHit(wire.CacheHit{
					SourceSID: c.storeID, DestSID: m.SourceSID, Key: m.Key,
					Value: v, Version: 0,
				})
				return
			}
		}

		if value, version, ok := c.local.GetValue(m.Key); ok {
			c.adapter.PublishHit(wire.CacheHit{
				SourceSID: c.storeID, DestSID: m.SourceSID, Key: m.Key,
				Value: value, Version: int64(version),
			})
			return
		}

		c.adapter.PublishHit(wire.CacheHit{
			SourceSID: c.storeID, DestSID: m.SourceSID, Key: m.Key,
			Value: "", Version: -1,
		})
	})
}

// ---- incoming CacheMissMV (serve wildcard lookups) ----

func (c *Controller) pumpMissMV() {
	defer c.wg.Done()
	drain(c.stop, c.adapter.MissMVReader, func(m wire.CacheMissMV, disposed bool) {
		if disposed || m.SourceSID == c.storeID {
			return
		}

		var entries []wire.KV
		if isMetaResource(m.Key) && strings.HasPrefix(m.Key, c.home) {
			if v, ok := c.local.EvalMetaResource(m.Key); ok {
				entries = []wire.KV{{Key: m.Key, Value: v, Version: 0}}
			}
		} else {
			entries = c.local.GetAll(m.Key)
		}

		jitter(jitterUnit, jitterMaxMult)

		c.adapter.PublishHitMV(wire.CacheHitMV{
			SourceSID: c.storeID, DestSID: m.SourceSID, Key: m.Key, Entries: entries,
		})
	})
}

// jitter sleeps for unit * uniform(1, maxMult) — one draw per call,
// matching spec.md's single-uniform-draw-per-peer-per-miss requirement.
func jitter(unit time.Duration, maxMult int) {
	n := rand.Intn(maxMult) + 1
	time.Sleep(unit * time.Duration(n))
}

func isMetaResource(uri string) bool {
	seg := uri
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		seg = uri[i+1:]
	}
	return len(seg) >= 2 && strings.HasPrefix(seg, "~") && strings.HasSuffix(seg, "~")
}

// pollInterval is how often an idle reader is checked for new samples.
// The bus has no blocking-wait primitive (it is a plain buffered drop
// box, per internal/transport's doc comment), so every pump polls.
const pollInterval = 5 * time.Millisecond

// drain is the shared reader-pump shape used by all incoming topics:
// poll r until stop closes, decoding each sample's payload to T and
// invoking handle once per sample with whether it was a disposal.
func drain[T any](stop <-chan struct{}, r *transport.Reader, handle func(payload T, disposed bool)) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for _, s := range r.Take() {
				if !s.ValidData && !s.IsDisposedInstance {
					continue
				}
				payload, ok := s.Data.(T)
				if !ok {
					continue
				}
				handle(payload, s.IsDisposedInstance)
			}
		}
	}
}
