// Package dstore is the public front-end API of spec.md §4.5: a Store
// composes the local store, the coherence controller, the messaging
// adapter and the peer registry into the eight operations applications
// call (Get, Put, DPut, Remove, Resolve, ResolveAll, Observe, Close).
//
// Grounded on dstore/store.py's get/resolve/getAll/resolveAll/dput for
// exact composition semantics, and on the teacher's cmd/server wiring
// style for how a node's components are constructed together.
package dstore

import (
	"fmt"
	"strings"
	"time"

	"dstore/internal/coherence"
	"dstore/internal/delta"
	"dstore/internal/kvstore"
	"dstore/internal/messaging"
	"dstore/internal/peers"
	"dstore/internal/wire"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"
)

// Store is one federation node: a store_id, its owned/cached data, and
// everything needed to participate in the coherence protocol.
type Store struct {
	StoreID string
	Root    string
	Home    string

	kv         *kvstore.Store
	controller *coherence.Controller
	log        *logrus.Entry
}

// New creates and wires a Store, starts its coherence controller, and
// waits out the settling delay spec.md §3's lifecycle section calls for
// before returning — giving initial peer discovery a chance to land.
func New(storeID, root, home string, cacheSize int, log *logrus.Logger) (*Store, error) {
	if !strings.HasPrefix(home, root) {
		return nil, fmt.Errorf("dstore: home %q must have root %q as a prefix", home, root)
	}
	if log == nil {
		log = logrus.New()
	}

	kv := kvstore.New(storeID, root, home, cacheSize, log)

	adapter := messaging.New(root)
	registry := peers.New(storeID)
	controller := coherence.New(storeID, root, home, kv, adapter, registry, log)
	kv.SetAnnouncer(controller)
	kv.RegisterMetaResource("stores", storesMetaResource(registry))

	s := &Store{
		StoreID:    storeID,
		Root:       root,
		Home:       home,
		kv:         kv,
		controller: controller,
		log:        log.WithField("component", "dstore").WithField("store_id", storeID),
	}

	time.Sleep(coherence.SettleDelay)
	return s, nil
}

// storesMetaResource renders the ~stores~ meta-resource: the current
// peer set, pipe-separated.
func storesMetaResource(registry *peers.Registry) kvstore.MetaFunc {
	return func(prefix string) string {
		snap := registry.Snapshot()
		ids := make([]string, 0, len(snap))
		for sid := range snap {
			ids = append(ids, sid)
		}
		return strings.Join(ids, "|")
	}
}

// Get returns a single value (REDESIGN FLAG #4: value only, never the
// version — Resolve below returns the pair). Meta-resources under this
// store's home are served locally; elsewhere they fall through to a
// network resolve like any other remote key. On a local cache miss it
// resolves, installs the winning answer into the cache, and notifies
// observers before returning it.
func (s *Store) Get(uri string) (string, bool) {
	if kvstore.IsMetaResource(uri) {
		if strings.HasPrefix(uri, s.Home) {
			return s.kv.EvalMetaResource(uri)
		}
		value, version := s.Resolve(uri)
		return value, version >= 0
	}

	if value, _, ok := s.kv.GetValue(uri); ok {
		return value, true
	}

	value, version := s.Resolve(uri)
	if version < 0 {
		return "", false
	}
	return value, true
}

// Resolve always goes to the network, returning the value/version pair
// the coherence controller collected — the asymmetric counterpart to
// Get. A winning answer is installed into the local cache and observers
// are notified, exactly as a Get-triggered resolve does.
func (s *Store) Resolve(uri string) (string, int64) {
	resolved := s.controller.Resolve(uri, 0)
	if resolved.Version < 0 {
		return "", -1
	}
	if !kvstore.IsMetaResource(uri) {
		s.kv.UpdateValue(uri, resolved.Value, uint64(resolved.Version))
	}
	v, ver := resolved.Value, resolved.Version
	s.kv.NotifyObservers(uri, &v, &ver)
	return resolved.Value, resolved.Version
}

// GetAll wildcard-scans the local store only — never triggers a
// network resolve.
func (s *Store) GetAll(pattern string) []wire.KV {
	return s.kv.GetAll(pattern)
}

// Keys returns every key this store owns (never cached keys), for the
// ~keys~ meta-resource and the wsapi gkeys command.
func (s *Store) Keys() []string {
	return s.kv.Keys()
}

// ResolveAll always goes to the network via resolveAll, then merges in
// anything locally held that carries a higher version than the
// network's answer — mirroring dstore/store.py's resolveAll exactly.
func (s *Store) ResolveAll(pattern string) []wire.KV {
	remote := s.controller.ResolveAll(pattern, 0)
	local := s.kv.GetAll(pattern)

	byKey := make(map[string]wire.KV, len(remote))
	for _, kv := range remote {
		byKey[kv.Key] = kv
	}
	for _, kv := range local {
		if cur, ok := byKey[kv.Key]; !ok || kv.Version > cur.Version {
			byKey[kv.Key] = kv
		}
	}

	out := make([]wire.KV, 0, len(byKey))
	for _, kv := range byKey {
		out = append(out, kv)
	}
	return out
}

// Put is the local write path: version increments, the mutation is
// announced on the wire, and observers are notified.
func (s *Store) Put(uri, value string) uint64 {
	return s.kv.Put(uri, value)
}

// DPut is the delta-merge write path of spec.md §4.5: it fetches the
// current value (resolving remotely on a miss, exactly like Get), JSON
// decodes it (or starts from an empty document), merges in either
// jsonPatch (if non-empty) or the inline "#k=v&k2=v2" suffix tokens via
// delta.DotToDict, and writes the merged document back with Put.
func (s *Store) DPut(uri string, jsonPatch []byte, inlineSuffix string) (uint64, error) {
	current, _ := s.Get(uri)

	var data any = map[string]any{}
	if strings.TrimSpace(current) != "" {
		if err := sonic.UnmarshalString(current, &data); err != nil {
			return 0, fmt.Errorf("dstore: dput: decoding current value at %q: %w", uri, err)
		}
	}

	if len(jsonPatch) > 0 {
		var patch any
		if err := sonic.Unmarshal(jsonPatch, &patch); err != nil {
			return 0, fmt.Errorf("dstore: dput: decoding patch body: %w", err)
		}
		data = delta.Merge(data, patch)
	} else {
		for _, token := range strings.Split(inlineSuffix, "&") {
			if token == "" {
				continue
			}
			parts := strings.SplitN(token, "=", 2)
			k := parts[0]
			v := ""
			if len(parts) == 2 {
				v = parts[1]
			}
			data = delta.Merge(data, delta.DotToDict(k, v))
		}
	}

	merged, err := sonic.MarshalString(data)
	if err != nil {
		return 0, fmt.Errorf("dstore: dput: encoding merged value: %w", err)
	}
	return s.Put(uri, merged), nil
}

// Remove deletes uri locally, disposes its KeyValue instance on the
// wire, and notifies observers with a null value/version.
func (s *Store) Remove(uri string) bool {
	return s.kv.Remove(uri)
}

// Observe registers callback under pattern (bidirectional glob match,
// see kvstore.Store.NotifyObservers).
func (s *Store) Observe(pattern string, callback func(uri string, value *string, version *int64)) {
	s.kv.Observe(pattern, callback)
}

// Close disposes this store's presence instance, stops the coherence
// controller's background loops, and releases the messaging adapter.
func (s *Store) Close() {
	s.controller.Close()
}
