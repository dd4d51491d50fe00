// Package transport stands in for the external publish/subscribe
// substrate the coherence engine is built on (spec.md calls it a
// "DDS-like topic/reader/writer API with liveliness and instance-disposal
// semantics" and explicitly scopes its own wire protocol out of this
// repository). What lives here is the minimal in-process broker the
// messaging adapter needs: keyed stateful topics that latch their last
// sample per key, event topics that deliver once to whoever is currently
// subscribed, explicit instance disposal, and a liveliness-loss hook.
//
// Every store process obtains its Bus from the package-level Runtime,
// partitioned by root — in the manner of a process-wide DDS participant
// handing out per-partition publishers/subscribers.
package transport

import "sync"

// Sample is the envelope every delivered message carries, mirroring the
// substrate's (valid_data, is_disposed_instance) sample-info flags.
type Sample struct {
	Data               any
	ValidData          bool
	IsDisposedInstance bool
}

type latchEntry struct {
	data any
}

// Bus is one partition's worth of topics. Safe for concurrent use.
type Bus struct {
	mu       sync.Mutex
	stateful map[string]map[string]latchEntry // topic -> key -> latched sample
	readers  map[string][]*Reader             // topic -> live readers
}

func newBus() *Bus {
	return &Bus{
		stateful: make(map[string]map[string]latchEntry),
		readers:  make(map[string][]*Reader),
	}
}

// Writer publishes to a single topic within a Bus.
type Writer struct {
	bus   *Bus
	topic string
}

// NewWriter returns a Writer bound to topic.
func (b *Bus) NewWriter(topic string) *Writer {
	return &Writer{bus: b, topic: topic}
}

// WriteStateful publishes a latched sample keyed by key: it replaces
// whatever was latched for key and is delivered to every current reader
// of the topic, exactly once each.
func (w *Writer) WriteStateful(key string, data any) {
	w.bus.mu.Lock()
	keys, ok := w.bus.stateful[w.topic]
	if !ok {
		keys = make(map[string]latchEntry)
		w.bus.stateful[w.topic] = keys
	}
	keys[key] = latchEntry{data: data}
	readers := append([]*Reader(nil), w.bus.readers[w.topic]...)
	w.bus.mu.Unlock()

	s := Sample{Data: data, ValidData: true}
	for _, r := range readers {
		r.deliver(s)
	}
}

// WriteEvent publishes an event-topic sample: delivered once to whoever
// is currently subscribed, never latched for late joiners.
func (w *Writer) WriteEvent(key string, data any) {
	w.bus.mu.Lock()
	readers := append([]*Reader(nil), w.bus.readers[w.topic]...)
	w.bus.mu.Unlock()

	s := Sample{Data: data, ValidData: true}
	for _, r := range readers {
		r.deliver(s)
	}
}

// Dispose marks the keyed instance disposed: removes it from the latch
// and delivers a single IsDisposedInstance sample to current readers.
func (w *Writer) Dispose(key string, data any) {
	w.bus.mu.Lock()
	if keys, ok := w.bus.stateful[w.topic]; ok {
		delete(keys, key)
	}
	readers := append([]*Reader(nil), w.bus.readers[w.topic]...)
	w.bus.mu.Unlock()

	s := Sample{Data: data, IsDisposedInstance: true}
	for _, r := range readers {
		r.deliver(s)
	}
}

// Withdraw simulates the writer owning key losing liveliness without an
// explicit dispose (process crash, network partition). Readers that
// registered a liveliness callback on this topic are notified.
func (w *Writer) Withdraw(key string) {
	w.bus.mu.Lock()
	readers := append([]*Reader(nil), w.bus.readers[w.topic]...)
	w.bus.mu.Unlock()

	for _, r := range readers {
		r.liveliness(key)
	}
}

// Reader accumulates samples delivered on a topic until Take drains
// them. Samples pile up even if nobody is draining — callers are
// expected to drain promptly, as spec.md's reader callbacks do.
type Reader struct {
	bus   *Bus
	topic string

	mu       sync.Mutex
	buf      []Sample
	liveFunc func(key string)
}

// NewReader subscribes to topic. For stateful topics the reader
// immediately receives whatever is currently latched, so late joiners
// see existing state without waiting for the next publish.
func (b *Bus) NewReader(topic string) *Reader {
	r := &Reader{bus: b, topic: topic}

	b.mu.Lock()
	b.readers[topic] = append(b.readers[topic], r)
	for _, entry := range b.stateful[topic] {
		r.buf = append(r.buf, Sample{Data: entry.data, ValidData: true})
	}
	b.mu.Unlock()

	return r
}

// OnLivelinessLost registers fn to be called when a writer's key loses
// liveliness (Withdraw) on this reader's topic.
func (r *Reader) OnLivelinessLost(fn func(key string)) {
	r.mu.Lock()
	r.liveFunc = fn
	r.mu.Unlock()
}

// Take drains and returns all samples buffered since the last Take.
func (r *Reader) Take() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) == 0 {
		return nil
	}
	out := r.buf
	r.buf = nil
	return out
}

// Close unsubscribes the reader from its bus.
func (r *Reader) Close() {
	r.bus.mu.Lock()
	defer r.bus.mu.Unlock()
	readers := r.bus.readers[r.topic]
	for i, rr := range readers {
		if rr == r {
			r.bus.readers[r.topic] = append(readers[:i], readers[i+1:]...)
			break
		}
	}
}

func (r *Reader) deliver(s Sample) {
	r.mu.Lock()
	r.buf = append(r.buf, s)
	r.mu.Unlock()
}

func (r *Reader) liveliness(key string) {
	r.mu.Lock()
	fn := r.liveFunc
	r.mu.Unlock()
	if fn != nil {
		fn(key)
	}
}

// Runtime is the process-wide, lazily-initialized, reference-counted
// holder of per-partition buses — the Go stand-in for a singleton DDS
// participant.
type Runtime struct {
	mu    sync.Mutex
	buses map[string]*Bus
	refs  map[string]int
}

var (
	runtimeOnce sync.Once
	runtime     *Runtime
)

// GetRuntime returns the process-wide Runtime, creating it on first use.
func GetRuntime() *Runtime {
	runtimeOnce.Do(func() {
		runtime = &Runtime{
			buses: make(map[string]*Bus),
			refs:  make(map[string]int),
		}
	})
	return runtime
}

// Acquire returns the Bus for partition, creating it if necessary, and
// bumps its reference count. Pair with Release.
func (rt *Runtime) Acquire(partition string) *Bus {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	b, ok := rt.buses[partition]
	if !ok {
		b = newBus()
		rt.buses[partition] = b
	}
	rt.refs[partition]++
	return b
}

// Release drops a reference to partition's Bus. When the last holder
// releases, the Bus is torn down.
func (rt *Runtime) Release(partition string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.refs[partition]--
	if rt.refs[partition] <= 0 {
		delete(rt.refs, partition)
		delete(rt.buses, partition)
	}
}
