// Package messaging wraps the raw transport.Bus with the six topics the
// coherence engine needs, typed per spec.md §4.1: StoreInfo, KeyValue
// (both stateful), CacheMiss, CacheHit, CacheMissMV, CacheHitMV (all
// events).
package messaging

import (
	"dstore/internal/transport"
	"dstore/internal/wire"
)

const (
	topicStoreInfo = "StoreInfo"
	topicKeyValue  = "KeyValue"
	topicCacheMiss = "CacheMiss"
	topicCacheHit  = "CacheHit"
	topicMissMV    = "CacheMissMV"
	topicHitMV     = "CacheHitMV"
)

// Adapter exposes typed writers/readers for one store's partition (its
// root). A store's presence, puts, misses and hits all flow through it.
type Adapter struct {
	runtime   *transport.Runtime
	partition string
	bus       *transport.Bus

	StoreInfoWriter *transport.Writer
	StoreInfoReader *transport.Reader

	KeyValueWriter *transport.Writer
	KeyValueReader *transport.Reader

	MissWriter *transport.Writer
	MissReader *transport.Reader

	HitWriter *transport.Writer
	HitReader *transport.Reader

	MissMVWriter *transport.Writer
	MissMVReader *transport.Reader

	HitMVWriter *transport.Writer
	HitMVReader *transport.Reader
}

// New acquires the Bus for partition (root) and wires up all six topics.
func New(partition string) *Adapter {
	rt := transport.GetRuntime()
	bus := rt.Acquire(partition)

	return &Adapter{
		runtime:   rt,
		partition: partition,
		bus:       bus,

		StoreInfoWriter: bus.NewWriter(topicStoreInfo),
		StoreInfoReader: bus.NewReader(topicStoreInfo),

		KeyValueWriter: bus.NewWriter(topicKeyValue),
		KeyValueReader: bus.NewReader(topicKeyValue),

		MissWriter: bus.NewWriter(topicCacheMiss),
		MissReader: bus.NewReader(topicCacheMiss),

		HitWriter: bus.NewWriter(topicCacheHit),
		HitReader: bus.NewReader(topicCacheHit),

		MissMVWriter: bus.NewWriter(topicMissMV),
		MissMVReader: bus.NewReader(topicMissMV),

		HitMVWriter: bus.NewWriter(topicHitMV),
		HitMVReader: bus.NewReader(topicHitMV),
	}
}

// PublishInfo advertises this store's presence.
func (a *Adapter) PublishInfo(info wire.StoreInfo) {
	a.StoreInfoWriter.WriteStateful(info.SID, info)
}

// DisposeInfo disposes this store's presence instance (graceful leave).
func (a *Adapter) DisposeInfo(info wire.StoreInfo) {
	a.StoreInfoWriter.Dispose(info.SID, info)
}

// PublishPut publishes a local key mutation.
func (a *Adapter) PublishPut(kv wire.KeyValue) {
	a.KeyValueWriter.WriteStateful(kv.Key, kv)
}

// DisposeKey disposes a key instance (remove), observed by peers as a
// disposal signal.
func (a *Adapter) DisposeKey(kv wire.KeyValue) {
	a.KeyValueWriter.Dispose(kv.Key, kv)
}

// PublishMiss broadcasts a single-value cache miss.
func (a *Adapter) PublishMiss(m wire.CacheMiss) {
	a.MissWriter.WriteEvent(m.SourceSID+"|"+m.Key, m)
}

// PublishHit answers a single-value cache miss.
func (a *Adapter) PublishHit(h wire.CacheHit) {
	a.HitWriter.WriteEvent(h.SourceSID+"|"+h.DestSID+"|"+h.Key, h)
}

// PublishMissMV broadcasts a wildcard cache miss.
func (a *Adapter) PublishMissMV(m wire.CacheMissMV) {
	a.MissMVWriter.WriteEvent(m.SourceSID+"|"+m.Key, m)
}

// PublishHitMV answers a wildcard cache miss.
func (a *Adapter) PublishHitMV(h wire.CacheHitMV) {
	a.HitMVWriter.WriteEvent(h.SourceSID+"|"+h.DestSID+"|"+h.Key, h)
}

// Close releases this adapter's reference to the partition's Bus. When
// the last store sharing a root closes, the Bus is torn down.
func (a *Adapter) Close() {
	a.StoreInfoReader.Close()
	a.KeyValueReader.Close()
	a.MissReader.Close()
	a.HitReader.Close()
	a.MissMVReader.Close()
	a.HitMVReader.Close()
	a.runtime.Release(a.partition)
}
