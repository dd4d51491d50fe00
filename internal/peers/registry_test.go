package peers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObserveInfoIgnoresSelf(t *testing.T) {
	r := New("S1")
	assert.False(t, r.ObserveInfo("S1", time.Now()))
	assert.Equal(t, 0, r.Len())
}

func TestObserveInfoFirstSightingReadvertises(t *testing.T) {
	r := New("S1")
	assert.True(t, r.ObserveInfo("S2", time.Now()))
	assert.Equal(t, 1, r.Len())
}

func TestObserveInfoWithinResponsivenessWindowDoesNotReadvertise(t *testing.T) {
	r := New("S1")
	now := time.Now()
	r.ObserveInfo("S2", now)

	assert.False(t, r.ObserveInfo("S2", now.Add(time.Second)))
}

func TestObserveInfoPastResponsivenessWindowReadvertises(t *testing.T) {
	r := New("S1")
	now := time.Now()
	r.ObserveInfo("S2", now)

	assert.True(t, r.ObserveInfo("S2", now.Add(ResponsivenessWindow+time.Second)))
}

func TestObserveDisposalRemovesPeer(t *testing.T) {
	r := New("S1")
	r.ObserveInfo("S2", time.Now())
	r.ObserveDisposal("S2")
	assert.Equal(t, 0, r.Len())
}

func TestObserveDisposalIgnoresSelf(t *testing.T) {
	r := New("S1")
	r.ObserveInfo("S2", time.Now())
	r.ObserveDisposal("S1")
	assert.Equal(t, 1, r.Len())
}

func TestObserveLivelinessLossRemovesPeer(t *testing.T) {
	r := New("S1")
	r.ObserveInfo("S2", time.Now())
	r.ObserveLivelinessLoss("S2")
	assert.Equal(t, 0, r.Len())
}

func TestExpireStaleEvictsOldPeersOnly(t *testing.T) {
	r := New("S1")
	now := time.Now()
	r.ObserveInfo("OLD", now.Add(-StalenessWindow-time.Second))
	r.ObserveInfo("FRESH", now)

	evicted := r.ExpireStale(now)
	assert.Equal(t, []string{"OLD"}, evicted)
	assert.Equal(t, 1, r.Len())

	snap := r.Snapshot()
	_, stillThere := snap["FRESH"]
	assert.True(t, stillThere)
}

func TestSnapshotWithTimestampsReflectsLastHeard(t *testing.T) {
	r := New("S1")
	now := time.Now()
	r.ObserveInfo("S2", now)

	snap := r.SnapshotWithTimestamps()
	assert.WithinDuration(t, now, snap["S2"], time.Millisecond)
}
