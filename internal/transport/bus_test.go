package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStatefulLatchesForLateJoiners(t *testing.T) {
	bus := newBus()
	w := bus.NewWriter("t1")
	w.WriteStateful("k1", "v1")

	r := bus.NewReader("t1")
	samples := r.Take()
	require.Len(t, samples, 1)
	assert.Equal(t, "v1", samples[0].Data)
	assert.True(t, samples[0].ValidData)
}

func TestWriteEventNotLatched(t *testing.T) {
	bus := newBus()
	w := bus.NewWriter("t1")
	w.WriteEvent("k1", "v1")

	r := bus.NewReader("t1")
	assert.Empty(t, r.Take())
}

func TestWriteEventDeliveredToCurrentReaders(t *testing.T) {
	bus := newBus()
	r := bus.NewReader("t1")
	w := bus.NewWriter("t1")
	w.WriteEvent("k1", "v1")

	samples := r.Take()
	require.Len(t, samples, 1)
	assert.Equal(t, "v1", samples[0].Data)
}

func TestDisposeRemovesLatchAndDeliversDisposedSample(t *testing.T) {
	bus := newBus()
	w := bus.NewWriter("t1")
	w.WriteStateful("k1", "v1")

	r := bus.NewReader("t1")
	r.Take()

	w.Dispose("k1", "v1")
	samples := r.Take()
	require.Len(t, samples, 1)
	assert.True(t, samples[0].IsDisposedInstance)

	r2 := bus.NewReader("t1")
	assert.Empty(t, r2.Take())
}

func TestWithdrawTriggersLivelinessCallback(t *testing.T) {
	bus := newBus()
	w := bus.NewWriter("t1")
	r := bus.NewReader("t1")

	lost := make(chan string, 1)
	r.OnLivelinessLost(func(key string) { lost <- key })

	w.Withdraw("k1")
	select {
	case key := <-lost:
		assert.Equal(t, "k1", key)
	default:
		t.Fatal("expected liveliness callback to fire")
	}
}

func TestTakeDrainsOnlyOnce(t *testing.T) {
	bus := newBus()
	w := bus.NewWriter("t1")
	r := bus.NewReader("t1")
	w.WriteEvent("k1", "v1")

	assert.Len(t, r.Take(), 1)
	assert.Empty(t, r.Take())
}

func TestReaderCloseUnsubscribes(t *testing.T) {
	bus := newBus()
	w := bus.NewWriter("t1")
	r := bus.NewReader("t1")
	r.Close()

	w.WriteEvent("k1", "v1")
	assert.Empty(t, r.Take())
}

func TestRuntimeAcquireReleaseSharesPartitionBus(t *testing.T) {
	rt := GetRuntime()
	b1 := rt.Acquire("test-partition")
	b2 := rt.Acquire("test-partition")
	assert.Same(t, b1, b2)

	rt.Release("test-partition")
	rt.Release("test-partition")

	b3 := rt.Acquire("test-partition")
	assert.NotSame(t, b1, b3)
	rt.Release("test-partition")
}
