// Package universe holds the per-(controller,universe) DMX frame buffers
// that sit between the router and the emitter (§3 "UniverseBuffer";
// §4.4-§4.5).
package universe

import (
	"sort"
	"sync"

	"github.com/dridi14/p1-router/internal/color"
	"github.com/dridi14/p1-router/internal/mapping"
)

// Buffer is one 512-byte DMX frame plus the dirty flag and ArtNet sequence
// byte the emitter needs for it. Guarded by its own mutex so the router and
// emitter never take a global lock on the hot path (§5).
type Buffer struct {
	mu    sync.Mutex
	dmx   [512]byte
	dirty bool
	seq   byte // 0 = disabled, otherwise wraps 1..255 (§3)
}

// Write copies src into dmx[offset:offset+len(src)] and marks the buffer
// dirty. Safe to call concurrently with Snapshot.
func (b *Buffer) Write(offset int, src []byte) {
	b.mu.Lock()
	copy(b.dmx[offset:offset+len(src)], src)
	b.dirty = true
	b.mu.Unlock()
}

// Write describes one entity's channel-range projection destined for a
// single Buffer. Layout and Color are carried instead of a pre-rendered
// byte slice so ApplyBatch can project straight into the buffer's frame
// under its own lock, with no per-entity allocation on the router's hot
// path (§4.4: "No allocation occurs on the hot path once snapshots are
// resident and universe buffers created").
type Write struct {
	Offset int
	Layout []color.Channel
	Color  color.Sample
}

// ApplyBatch applies every write under a single lock acquisition, so a
// concurrent Snapshot never observes this buffer with only some of one
// update's entities applied (§5: "never a torn write within an update...
// achieved by taking a short exclusive lock... around a single update's
// writes in the router").
func (b *Buffer) ApplyBatch(writes []Write) {
	b.mu.Lock()
	for _, w := range writes {
		color.Project(w.Layout, w.Color, b.dmx[w.Offset:w.Offset+len(w.Layout)])
	}
	b.dirty = true
	b.mu.Unlock()
}

// Snapshot copies the current frame out and reports+clears the dirty flag,
// for the emitter's "move-and-clear under the buffer lock" (§4.5 step 1).
func (b *Buffer) Snapshot() (frame [512]byte, wasDirty bool) {
	b.mu.Lock()
	frame = b.dmx
	wasDirty = b.dirty
	b.dirty = false
	b.mu.Unlock()
	return frame, wasDirty
}

// Redirty restores the dirty flag after Snapshot cleared it. The emitter
// calls it when it defers a dirty universe to a later tick (per-universe
// minimum interval not yet elapsed, or the rate budget exhausted); it does
// not call it after a failed send (§4.5 "Failure semantics... the buffer's
// dirty flag is NOT restored").
func (b *Buffer) Redirty() {
	b.mu.Lock()
	b.dirty = true
	b.mu.Unlock()
}

// IsDirty reports the dirty flag without clearing it.
func (b *Buffer) IsDirty() bool {
	b.mu.Lock()
	d := b.dirty
	b.mu.Unlock()
	return d
}

// NextSeq advances and returns the next ArtNet sequence byte, wrapping
// 255->1 and skipping 0 (§3 "seq... wraps 1..255, 0 means disabled").
func (b *Buffer) NextSeq() byte {
	b.mu.Lock()
	b.seq++
	if b.seq == 0 {
		b.seq = 1
	}
	b.mu.Unlock()
	return b.seq
}

// Registry owns the set of active Buffers, keyed by controller+universe.
// Buffers are created lazily on first write and pruned when a snapshot swap
// no longer references them (§3 "Lifecycle").
type Registry struct {
	mu      sync.RWMutex
	buffers map[mapping.UBKey]*Buffer
	order   []mapping.UBKey // stable iteration order for emitter fairness
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{buffers: make(map[mapping.UBKey]*Buffer)}
}

// GetOrCreate returns the Buffer for key, creating it if this is the first
// write since the last snapshot swap (§3: "Universe buffers are created on
// first write to a new (controller, universe) pair after a snapshot swap").
func (r *Registry) GetOrCreate(key mapping.UBKey) *Buffer {
	r.mu.RLock()
	b, ok := r.buffers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.buffers[key]; ok {
		return b
	}
	b = &Buffer{}
	r.buffers[key] = b
	r.order = append(r.order, key)
	return b
}

// Prune drops any buffer not present in keep, called at the end of a
// snapshot swap (§3: "orphaned buffers... are dropped at the end of the
// swap operation").
func (r *Registry) Prune(keep []mapping.UBKey) {
	wanted := make(map[mapping.UBKey]struct{}, len(keep))
	for _, k := range keep {
		wanted[k] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	newOrder := r.order[:0]
	for _, k := range r.order {
		if _, ok := wanted[k]; ok {
			newOrder = append(newOrder, k)
			continue
		}
		delete(r.buffers, k)
	}
	r.order = newOrder
}

// Keys returns a stable-ordered snapshot of the currently-registered
// universe keys, sorted for determinism in tests; the emitter uses
// OrderedKeys (insertion order, for its rotating fairness cursor) instead.
func (r *Registry) Keys() []mapping.UBKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mapping.UBKey, len(r.order))
	copy(out, r.order)
	sort.Slice(out, func(i, j int) bool {
		if out[i].ControllerIP != out[j].ControllerIP {
			return out[i].ControllerIP < out[j].ControllerIP
		}
		return out[i].Universe < out[j].Universe
	})
	return out
}

// OrderedKeys returns the keys in stable insertion order, used by the
// emitter's round-robin fairness cursor (§8 scenario 6).
func (r *Registry) OrderedKeys() []mapping.UBKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mapping.UBKey, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the buffer for key if it already exists, without creating it.
func (r *Registry) Get(key mapping.UBKey) (*Buffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buffers[key]
	return b, ok
}
