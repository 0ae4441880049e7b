// Package router applies decoded eHuB updates to universe buffers through
// the current mapping snapshot (§4.4 "Router core").
package router

import (
	"context"
	"sync/atomic"

	"github.com/dridi14/p1-router/internal/mapping"
	"github.com/dridi14/p1-router/internal/metrics"
	"github.com/dridi14/p1-router/internal/observer"
	"github.com/dridi14/p1-router/internal/routererr"
	"github.com/dridi14/p1-router/internal/universe"
	"github.com/dridi14/p1-router/internal/wire"
)

// DefaultQueueCapacity is the receiver->router bounded queue size (§5:
// "capacity ~1024 messages").
const DefaultQueueCapacity = 1024

// Router consumes decoded messages and writes them into universe buffers
// via the current mapping snapshot. It never blocks on I/O (§5: "The
// router never blocks on I/O").
type Router struct {
	mapping  atomic.Pointer[mapping.Snapshot]
	filter   *int // nil = no filter_universe (§6, §9)
	registry *universe.Registry
	bus      *observer.Bus

	queue chan *wire.Message

	// scratch holds one writeGroup per universe key touched across the
	// router's lifetime, reused message after message so apply allocates
	// nothing once the steady-state set of keys has been seen once (§4.4:
	// "No allocation occurs on the hot path once snapshots are resident and
	// universe buffers created"). Single-writer: only Run's goroutine
	// touches it.
	scratch      map[mapping.UBKey]*writeGroup
	scratchOrder []mapping.UBKey
	epoch        int
}

// writeGroup is one universe's accumulated writes for the message currently
// being applied, tagged with the epoch it was last touched in so apply can
// tell "already appended to this round" from "stale from a prior round"
// without clearing the map or reallocating the slice.
type writeGroup struct {
	epoch  int
	writes []universe.Write
}

// New creates a Router bound to registry, publishing events to bus. filter
// is the optional filter_universe runtime option (nil disables filtering).
func New(registry *universe.Registry, bus *observer.Bus, queueCapacity int, filter *int) *Router {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	r := &Router{
		registry: registry,
		bus:      bus,
		filter:   filter,
		queue:    make(chan *wire.Message, queueCapacity),
		scratch:  make(map[mapping.UBKey]*writeGroup),
	}
	r.mapping.Store(mapping.Empty())
	return r
}

// SetMapping publishes a new mapping snapshot, visible to the next message
// the router processes (§4.6: "guaranteed visible before the next update is
// processed"; §5: "the router reads the pointer once per update message").
func (r *Router) SetMapping(snap *mapping.Snapshot) {
	r.mapping.Store(snap)
}

// Mapping returns the currently active mapping snapshot.
func (r *Router) Mapping() *mapping.Snapshot {
	return r.mapping.Load()
}

// Enqueue hands a decoded message to the router. If the queue is full, the
// oldest queued message is dropped to make room (§5: "overflow drops the
// oldest and increments a counter").
func (r *Router) Enqueue(msg *wire.Message) {
	select {
	case r.queue <- msg:
		return
	default:
	}
	select {
	case <-r.queue:
	default:
	}
	select {
	case r.queue <- msg:
	default:
		// Lost the race to another producer; count it the same way.
	}
	metrics.BackpressureDropsTotal.Inc()
	r.bus.Publish(observer.TopicCounter, routererr.BackpressureDrop)
}

// Run consumes the queue until ctx is cancelled.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			r.apply(msg)
		}
	}
}

// apply routes one decoded message into universe buffers.
func (r *Router) apply(msg *wire.Message) {
	if msg.HasUniverse && r.filter != nil && msg.Universe != *r.filter {
		return
	}

	r.bus.Publish(observer.TopicDecoded, msg)

	if msg.Kind != wire.KindUpdate {
		// Config messages carry metadata only; forwarded to observers
		// above, never routed (§4.1).
		return
	}

	snap := r.mapping.Load()
	r.epoch++
	r.scratchOrder = r.scratchOrder[:0]

	for _, u := range msg.Updates {
		key, offset, layout, ok := snap.Resolve(u.ID)
		if !ok {
			metrics.UnmappedEntitiesTotal.Inc()
			metrics.ErrorsTotal.WithLabelValues(routererr.UnmappedEntity.String()).Inc()
			continue
		}

		g, ok := r.scratch[key]
		if !ok {
			g = &writeGroup{}
			r.scratch[key] = g
		}
		if g.epoch != r.epoch {
			g.epoch = r.epoch
			g.writes = g.writes[:0]
			r.scratchOrder = append(r.scratchOrder, key)
		}
		g.writes = append(g.writes, universe.Write{Offset: offset, Layout: layout, Color: u.Color})
	}

	for _, key := range r.scratchOrder {
		buf := r.registry.GetOrCreate(key)
		buf.ApplyBatch(r.scratch[key].writes)
	}
}
