package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(cacheSize int) *Store {
	return New("sid-1", "/root", "/root/home", cacheSize, nil)
}

func TestPutAssignsIncrementingVersions(t *testing.T) {
	s := newTestStore(10)

	v0 := s.Put("/root/home/a", "1")
	v1 := s.Put("/root/home/a", "2")
	require.Equal(t, uint64(0), v0)
	require.Equal(t, uint64(1), v1)

	val, ver, ok := s.GetValue("/root/home/a")
	require.True(t, ok)
	assert.Equal(t, "2", val)
	assert.Equal(t, uint64(1), ver)
}

func TestUpdateValueIsMonotonic(t *testing.T) {
	s := newTestStore(10)

	require.True(t, s.UpdateValue("/root/home/peer/k", "v1", 5))
	require.False(t, s.UpdateValue("/root/home/peer/k", "stale", 3))
	require.False(t, s.UpdateValue("/root/home/peer/k", "same", 5))
	require.True(t, s.UpdateValue("/root/home/peer/k", "v2", 6))

	val, ver, ok := s.GetValue("/root/home/peer/k")
	require.True(t, ok)
	assert.Equal(t, "v2", val)
	assert.Equal(t, uint64(6), ver)
}

func TestUpdateValueRejectsMetaResource(t *testing.T) {
	s := newTestStore(10)
	ok := s.UpdateValue("/root/home/~keys~", "nope", 1)
	assert.False(t, ok)
	_, _, found := s.GetValue("/root/home/~keys~")
	assert.False(t, found)
}

func TestOwnedVsCachedPlacement(t *testing.T) {
	s := newTestStore(10)

	s.Put("/root/home/mine", "x") // owned: under home
	s.UpdateValue("/root/other/theirs", "y", 0)

	s.mu.Lock()
	_, ownedOK := s.owned["/root/home/mine"]
	_, cachedOK := s.cached["/root/other/theirs"]
	s.mu.Unlock()

	assert.True(t, ownedOK)
	assert.True(t, cachedOK)
}

func TestCacheSizeEvictsLeastRecentlyUsed(t *testing.T) {
	s := newTestStore(2)

	s.UpdateValue("/root/a", "1", 0)
	s.UpdateValue("/root/b", "1", 0)
	// touch a so b becomes the LRU victim
	s.GetValue("/root/a")
	s.UpdateValue("/root/c", "1", 0)

	_, _, aOK := s.GetValue("/root/a")
	_, _, bOK := s.GetValue("/root/b")
	_, _, cOK := s.GetValue("/root/c")

	assert.True(t, aOK)
	assert.False(t, bOK, "b should have been evicted as least recently used")
	assert.True(t, cOK)
}

func TestCacheSizeZeroMeansUnbounded(t *testing.T) {
	s := newTestStore(0)
	for i := 0; i < 50; i++ {
		s.UpdateValue("/root/k"+string(rune('a'+i%26))+string(rune('0'+i/26)), "v", 0)
	}
	s.mu.Lock()
	n := len(s.cached)
	s.mu.Unlock()
	assert.Equal(t, 50, n)
}

func TestOwnedEntriesAreNeverEvicted(t *testing.T) {
	s := newTestStore(1)
	s.Put("/root/home/owned1", "v")
	s.Put("/root/home/owned2", "v")
	s.UpdateValue("/root/cache1", "v", 0)

	_, _, o1 := s.GetValue("/root/home/owned1")
	_, _, o2 := s.GetValue("/root/home/owned2")
	assert.True(t, o1)
	assert.True(t, o2)
}

func TestNotifyObserversBidirectionalGlob(t *testing.T) {
	s := newTestStore(10)

	var literalHits, wildcardHits int
	s.Observe("/root/home/exact", func(uri string, value *string, version *int64) {
		literalHits++
	})
	s.Observe("/root/home/*", func(uri string, value *string, version *int64) {
		wildcardHits++
	})

	s.Put("/root/home/exact", "v") // matches both: literal directly, wildcard via fnmatch(uri,pattern)
	assert.Equal(t, 1, literalHits)
	assert.Equal(t, 1, wildcardHits)

	s.Put("/root/home/other", "v") // matches only the wildcard observer
	assert.Equal(t, 1, literalHits)
	assert.Equal(t, 2, wildcardHits)
}

func TestRemoveNotifiesWithNilValue(t *testing.T) {
	s := newTestStore(10)
	s.Put("/root/home/a", "1")

	var gotNilValue, gotNilVersion bool
	s.Observe("/root/home/a", func(uri string, value *string, version *int64) {
		gotNilValue = value == nil
		gotNilVersion = version == nil
	})

	removed := s.Remove("/root/home/a")
	assert.True(t, removed)
	assert.True(t, gotNilValue)
	assert.True(t, gotNilVersion)

	_, _, ok := s.GetValue("/root/home/a")
	assert.False(t, ok)
}

func TestGetAllWildcardScan(t *testing.T) {
	s := newTestStore(10)
	s.Put("/root/home/a", "1")
	s.Put("/root/home/b", "2")
	s.UpdateValue("/root/other/c", "3", 0)

	all := s.GetAll("/root/home/*")
	assert.Len(t, all, 2)

	everything := s.GetAll("/root/*/*")
	assert.Len(t, everything, 3)
}

func TestMetaResourceKeys(t *testing.T) {
	s := newTestStore(10)
	s.Put("/root/home/a", "1")
	s.Put("/root/home/b", "2")

	v, ok := s.EvalMetaResource("/root/home/~keys~")
	require.True(t, ok)
	assert.Contains(t, v, "/root/home/a")
	assert.Contains(t, v, "/root/home/b")
}

func TestAnnouncerCalledOnPutAndRemove(t *testing.T) {
	s := newTestStore(10)
	fake := &fakeAnnouncer{}
	s.SetAnnouncer(fake)

	s.Put("/root/home/a", "v1")
	s.Remove("/root/home/a")

	require.Len(t, fake.puts, 1)
	assert.Equal(t, "/root/home/a", fake.puts[0].uri)
	require.Len(t, fake.removes, 1)
	assert.Equal(t, "/root/home/a", fake.removes[0])
}

type fakeAnnouncer struct {
	puts    []struct{ uri, value string }
	removes []string
}

func (f *fakeAnnouncer) AnnouncePut(uri, value string, version uint64) {
	f.puts = append(f.puts, struct{ uri, value string }{uri, value})
}

func (f *fakeAnnouncer) AnnounceRemove(uri string) {
	f.removes = append(f.removes, uri)
}

func TestIsMetaResource(t *testing.T) {
	assert.True(t, IsMetaResource("/a/b/~keys~"))
	assert.True(t, IsMetaResource("~stores~"))
	assert.False(t, IsMetaResource("/a/b/plain"))
	assert.False(t, IsMetaResource("~"))
}
