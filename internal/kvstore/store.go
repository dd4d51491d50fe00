// Package kvstore is the local store/cache data model of spec.md §3/§4.3:
// two maps (home-owned vs. cached) keyed by URI to (value, version),
// versioned updates, wildcard scan, observer fan-out, and meta-resource
// registration.
//
// Grounded on the teacher's internal/store/store.go (map-based store
// behind a single sync.RWMutex, Value{Data, Clock, ...} generalized here
// to a plain (value string, version uint64) pair since this system uses
// per-key monotonic integer versions rather than vector clocks) and on
// dstore/store.py for exact field semantics.
package kvstore

import (
	"container/list"
	"path"
	"strings"
	"sync"

	"dstore/internal/wire"

	"github.com/sirupsen/logrus"
)

// entry is a versioned value plus its position in the cache's LRU list
// (nil for owned entries, which are never evicted).
type entry struct {
	value   string
	version uint64
	lruElem *list.Element // only set for cached entries
}

// MetaFunc computes a meta-resource's value given the URI prefix with
// the trailing ~name~ segment stripped off (REDESIGN FLAG #5: always a
// single string, never a tuple).
type MetaFunc func(prefix string) string

// Announcer is the narrow capability the store needs to tell the
// coherence controller about locally originated mutations, so they can
// be published on the wire. Defined here (not in the controller's
// package) so kvstore never has to import the controller — the
// controller is wired in by whichever package constructs both.
type Announcer interface {
	AnnouncePut(uri, value string, version uint64)
	AnnounceRemove(uri string)
}

// Store is one federation node's local state: the keys it owns plus
// whatever it has opportunistically cached from peers.
type Store struct {
	StoreID   string
	Root      string
	Home      string
	CacheSize int

	log *logrus.Entry

	mu     sync.Mutex
	owned  map[string]*entry
	cached map[string]*entry
	lru    *list.List // front = most recently used cached key

	observers     map[string]func(uri string, value *string, version *int64)
	metaresources map[string]MetaFunc

	announcer Announcer
}

// New creates a Store. home must have root as a prefix.
func New(storeID, root, home string, cacheSize int, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	s := &Store{
		StoreID:       storeID,
		Root:          root,
		Home:          home,
		CacheSize:     cacheSize,
		log:           log.WithField("component", "kvstore").WithField("store_id", storeID),
		owned:         make(map[string]*entry),
		cached:        make(map[string]*entry),
		lru:           list.New(),
		observers:     make(map[string]func(uri string, value *string, version *int64)),
		metaresources: make(map[string]MetaFunc),
	}
	s.RegisterMetaResource("keys", s.metaKeys)
	return s
}

// SetAnnouncer wires the controller that should be told about local
// mutations. Must be called once, before any Put/Remove.
func (s *Store) SetAnnouncer(a Announcer) {
	s.announcer = a
}

// IsOwned reports whether uri falls under this store's home prefix.
func (s *Store) IsOwned(uri string) bool {
	return strings.HasPrefix(uri, s.Home)
}

// IsMetaResource reports whether uri's last path segment is a ~name~
// meta-resource segment.
func IsMetaResource(uri string) bool {
	seg := lastSegment(uri)
	return len(seg) >= 2 && strings.HasPrefix(seg, "~") && strings.HasSuffix(seg, "~")
}

func lastSegment(uri string) string {
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// GetValue returns the current value/version for uri, consulting owned
// then cached. No network access.
func (s *Store) GetValue(uri string) (value string, version uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getValueLocked(uri)
}

func (s *Store) getValueLocked(uri string) (string, uint64, bool) {
	if e, ok := s.owned[uri]; ok {
		return e.value, e.version, true
	}
	if e, ok := s.cached[uri]; ok {
		s.touchLocked(e)
		return e.value, e.version, true
	}
	return "", 0, false
}

func (s *Store) touchLocked(e *entry) {
	if e.lruElem != nil {
		s.lru.MoveToFront(e.lruElem)
	}
}

// UpdateValue is the monotonic remote-write path: rejects meta-resource
// URIs, stores unconditionally if no current version exists, otherwise
// only if version is strictly greater than the stored one. Returns true
// iff the value was stored.
func (s *Store) UpdateValue(uri, value string, version uint64) bool {
	if IsMetaResource(uri) {
		s.log.WithField("uri", uri).Debug("rejected update to meta-resource")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, current, exists := s.getValueLocked(uri)
	if exists && version <= current {
		return false
	}
	s.uncheckedStoreLocked(uri, value, version)
	return true
}

// uncheckedStoreLocked places uri in owned if it has the home prefix and
// in the cache otherwise, enforcing the cache_size bound with LRU
// eviction on cached inserts. The root prefix is not checked: a URI
// outside root is cached like any other non-home key.
func (s *Store) uncheckedStoreLocked(uri, value string, version uint64) {
	if s.IsOwned(uri) {
		s.owned[uri] = &entry{value: value, version: version}
		return
	}

	if e, ok := s.cached[uri]; ok {
		e.value, e.version = value, version
		s.touchLocked(e)
		return
	}

	e := &entry{value: value, version: version}
	e.lruElem = s.lru.PushFront(uri)
	s.cached[uri] = e

	for s.CacheSize > 0 && len(s.cached) > s.CacheSize {
		back := s.lru.Back()
		if back == nil {
			break
		}
		evictURI := back.Value.(string)
		s.lru.Remove(back)
		delete(s.cached, evictURI)
		s.log.WithField("uri", evictURI).Debug("evicted cache entry (cache_size exceeded)")
	}
}

// Put is the local write path: version := current+1 (or 0), stores,
// announces the mutation on the wire, and notifies observers.
func (s *Store) Put(uri, value string) uint64 {
	s.mu.Lock()
	_, current, exists := s.getValueLocked(uri)
	version := uint64(0)
	if exists {
		version = current + 1
	}
	s.uncheckedStoreLocked(uri, value, version)
	s.mu.Unlock()

	if s.announcer != nil {
		s.announcer.AnnouncePut(uri, value, version)
	}
	s.NotifyObservers(uri, &value, versionPtr(version))
	return version
}

// Remove deletes uri locally if present, announces the removal (wire
// instance disposal), and notifies observers with a null value/version.
func (s *Store) Remove(uri string) bool {
	s.mu.Lock()
	_, existed := s.owned[uri]
	if !existed {
		_, existed = s.cached[uri]
	}
	s.removeLocked(uri)
	s.mu.Unlock()

	if s.announcer != nil {
		s.announcer.AnnounceRemove(uri)
	}
	s.NotifyObservers(uri, nil, nil)
	return existed
}

// RemoteRemove deletes uri locally without re-announcing it — used when
// applying a remove that arrived from a peer.
func (s *Store) RemoteRemove(uri string) {
	s.mu.Lock()
	s.removeLocked(uri)
	s.mu.Unlock()
	s.NotifyObservers(uri, nil, nil)
}

func (s *Store) removeLocked(uri string) {
	if e, ok := s.cached[uri]; ok {
		if e.lruElem != nil {
			s.lru.Remove(e.lruElem)
		}
		delete(s.cached, uri)
		return
	}
	delete(s.owned, uri)
}

// Observe registers callback under pattern. Later mutations whose URI
// matches pattern (or vice versa — see NotifyObservers) invoke it.
func (s *Store) Observe(pattern string, callback func(uri string, value *string, version *int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers[pattern] = callback
}

// NotifyObservers invokes every registered observer whose pattern
// matches uri, bidirectionally: fnmatch(uri, pattern) OR
// fnmatch(pattern, uri). This is deliberate (spec.md §9) — it admits
// both literal subscriptions to wildcard publishes and wildcard
// subscriptions to literal publishes. Dispatch happens outside the
// store mutex to avoid reentrant deadlock if a callback calls back into
// the store.
func (s *Store) NotifyObservers(uri string, value *string, version *int64) {
	s.mu.Lock()
	matched := make([]func(string, *string, *int64), 0, len(s.observers))
	for pattern, cb := range s.observers {
		if globMatch(uri, pattern) || globMatch(pattern, uri) {
			matched = append(matched, cb)
		}
	}
	s.mu.Unlock()

	for _, cb := range matched {
		cb(uri, value, version)
	}
}

// GetAll wildcard-scans owned and cached using glob matching, or
// resolves a meta-resource directly if pattern names one.
func (s *Store) GetAll(pattern string) []wire.KV {
	if IsMetaResource(pattern) {
		if v, ok := s.EvalMetaResource(pattern); ok {
			return []wire.KV{{Key: pattern, Value: v, Version: 0}}
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []wire.KV
	for k, e := range s.owned {
		if globMatch(k, pattern) {
			out = append(out, wire.KV{Key: k, Value: e.value, Version: e.version})
		}
	}
	for k, e := range s.cached {
		if globMatch(k, pattern) {
			out = append(out, wire.KV{Key: k, Value: e.value, Version: e.version})
		}
	}
	return out
}

// Keys returns every owned key (no cached keys, no tombstones — there
// are none in this model; remove is a hard delete).
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.owned))
	for k := range s.owned {
		out = append(out, k)
	}
	return out
}

// RegisterMetaResource registers action under the ~name~ segment.
func (s *Store) RegisterMetaResource(name string, action MetaFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metaresources["~"+name+"~"] = action
}

// EvalMetaResource dispatches uri to its registered meta-resource
// function with the trailing segment stripped, per spec.md §4.3.
func (s *Store) EvalMetaResource(uri string) (string, bool) {
	seg := lastSegment(uri)
	s.mu.Lock()
	fn, ok := s.metaresources[seg]
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	prefix := strings.TrimSuffix(uri, seg)
	return fn(prefix), true
}

func (s *Store) metaKeys(prefix string) string {
	keys := s.Keys()
	var matched []string
	if strings.Contains(prefix, "*") {
		for _, k := range keys {
			if globMatch(k, prefix+"*") {
				matched = append(matched, k)
			}
		}
	} else {
		for _, k := range keys {
			if strings.HasPrefix(k, prefix) {
				matched = append(matched, k)
			}
		}
	}
	return strings.Join(matched, "|")
}

// globMatch implements the shell glob semantics (*, ?) spec.md §3
// requires for wildcard URIs, via the standard library's path.Match —
// no third-party glob library appears anywhere in the example corpus,
// and path.Match implements exactly this *,? semantics, so reaching for
// the stdlib here needed no new dependency to justify skipping.
func globMatch(name, pattern string) bool {
	ok, err := path.Match(pattern, name)
	if err != nil {
		return name == pattern
	}
	return ok
}

func versionPtr(v uint64) *int64 {
	iv := int64(v)
	return &iv
}
