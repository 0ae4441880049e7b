// Package emitter drains dirty universe buffers to ArtNet packets on a
// fixed cadence, under a global packets-per-second budget (§4.5 "Emitter
// and rate limiter").
package emitter

import (
	"context"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dridi14/p1-router/internal/mapping"
	"github.com/dridi14/p1-router/internal/metrics"
	"github.com/dridi14/p1-router/internal/observer"
	"github.com/dridi14/p1-router/internal/patch"
	"github.com/dridi14/p1-router/internal/routererr"
	"github.com/dridi14/p1-router/internal/universe"
	"github.com/dridi14/p1-router/pkg/artnet"
)

// DefaultInterval is T_emit, the tick cadence (§6 "emit_interval_ms,
// default 25").
const DefaultInterval = 25 * time.Millisecond

// DefaultMaxPPS is the default global send-rate budget (§6 "max_pps,
// default 1000").
const DefaultMaxPPS = 1000

// Options configures an Emitter's cadence and rate limits (§6 "Runtime
// options").
type Options struct {
	Interval               time.Duration
	MaxPPS                 int
	PerUniverseMinInterval time.Duration
	// Port overrides the destination UDP port; tests use this to target a
	// loopback listener instead of the real artnet.DefaultPort (6454).
	Port int
}

// Emitter owns the outbound ArtNet send loop.
type Emitter struct {
	registry *universe.Registry
	bus      *observer.Bus

	patch   atomic.Pointer[patch.Snapshot]
	enabled atomic.Bool

	limiter  *rate.Limiter
	interval time.Duration
	minGap   time.Duration
	port     int

	cursor int // rotating start index for round-robin fairness (§8 scenario 6)

	connsMu sync.Mutex
	conns   map[string]*net.UDPConn

	lastSentMu sync.Mutex
	lastSent   map[mapping.UBKey]time.Time

	sentInWindow atomic.Int64 // packets sent since the last pps sample (P4)
}

// New creates an Emitter bound to registry, publishing send-attempt events
// to bus.
func New(registry *universe.Registry, bus *observer.Bus, opts Options) *Emitter {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxPPS <= 0 {
		opts.MaxPPS = DefaultMaxPPS
	}
	if opts.Port <= 0 {
		opts.Port = artnet.DefaultPort
	}
	// Burst is capped to one tick's allotment, not the full per-second rate:
	// with burst == maxPPS, a pile-up of dirty universes after an idle
	// period can drain the whole bucket in one tick and the bucket keeps
	// refilling at maxPPS/sec for the rest of that same wall-clock second,
	// letting close to 2x max_pps through within one second (§4.5/P4).
	burst := int(float64(opts.MaxPPS) * opts.Interval.Seconds())
	if burst > opts.MaxPPS {
		burst = opts.MaxPPS
	}
	if burst < 1 {
		burst = 1
	}
	e := &Emitter{
		registry: registry,
		bus:      bus,
		limiter:  rate.NewLimiter(rate.Limit(opts.MaxPPS), burst),
		interval: opts.Interval,
		minGap:   opts.PerUniverseMinInterval,
		port:     opts.Port,
		conns:    make(map[string]*net.UDPConn),
		lastSent: make(map[mapping.UBKey]time.Time),
	}
	e.patch.Store(patch.Empty())
	return e
}

// SetPatch publishes a new patch snapshot (§4.6 "swap_patch").
func (e *Emitter) SetPatch(snap *patch.Snapshot) {
	e.patch.Store(snap)
}

// SetPatchEnabled toggles patch application independently of the rule
// snapshot (§4.6 "set_patch_enabled(bool) — toggles patch application
// without a snapshot swap").
func (e *Emitter) SetPatchEnabled(on bool) {
	e.enabled.Store(on)
}

// Run drives the emit loop until ctx is cancelled, sleeping between ticks
// for Options.Interval.
func (e *Emitter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	ppsTicker := time.NewTicker(time.Second)
	defer ppsTicker.Stop()
	defer e.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		case <-ppsTicker.C:
			metrics.CurrentPPS.Set(float64(e.sentInWindow.Swap(0)))
		}
	}
}

// tick drains as many dirty universes as the token bucket allows this
// round, carrying forward any still-dirty buffers to the next tick and
// rotating the starting point so no universe is serviced last twice in a
// row (§8 scenario 6: "no universe starves more than two ticks").
func (e *Emitter) tick() {
	keys := e.registry.OrderedKeys()
	if len(keys) == 0 {
		return
	}

	patchSnap := e.patch.Load()
	patchOn := e.enabled.Load()

	start := e.cursor % len(keys)
	serviced := 0

	for i := 0; i < len(keys); i++ {
		key := keys[(start+i)%len(keys)]
		buf, ok := e.registry.Get(key)
		if !ok {
			continue
		}

		frame, wasDirty := buf.Snapshot()
		if !wasDirty {
			continue
		}

		if e.minGap > 0 && !e.dueForSend(key) {
			buf.Redirty()
			continue
		}

		if !e.limiter.Allow() {
			// Out of budget this tick; restore dirty so it coalesces and
			// retries next tick (§4.5 "emission of remaining universes is
			// deferred to the next tick").
			buf.Redirty()
			continue
		}

		if patchOn {
			patchSnap.Apply(key.Universe, &frame)
		}

		seq := buf.NextSeq()
		packet := artnet.BuildDMXPacket(key.Universe, frame[:], seq)
		e.send(key, packet)
		serviced++
	}

	if len(keys) > 0 {
		e.cursor = (start + max(serviced, 1)) % len(keys)
	}

	var dirtyCount int
	for _, key := range keys {
		if buf, ok := e.registry.Get(key); ok && buf.IsDirty() {
			dirtyCount++
		}
	}
	metrics.DirtyUniverses.Set(float64(dirtyCount))
	metrics.ActiveUniverses.Set(float64(len(keys)))
}

// dueForSend enforces Options.PerUniverseMinInterval without blocking.
func (e *Emitter) dueForSend(key mapping.UBKey) bool {
	now := time.Now()
	e.lastSentMu.Lock()
	defer e.lastSentMu.Unlock()
	if last, ok := e.lastSent[key]; ok && now.Sub(last) < e.minGap {
		return false
	}
	e.lastSent[key] = now
	return true
}

// send writes packet to key's controller, dialing a connection on first
// use. Failures are logged and counted; the caller has already cleared the
// buffer's dirty flag and does not restore it (§4.5 "Failure semantics").
func (e *Emitter) send(key mapping.UBKey, packet []byte) {
	conn, err := e.connFor(key.ControllerIP)
	if err != nil {
		e.fail(key, err)
		return
	}
	if _, err := conn.Write(packet); err != nil {
		e.fail(key, err)
		return
	}
	metrics.PacketsSentTotal.WithLabelValues(key.ControllerIP).Inc()
	e.sentInWindow.Add(1)
	e.bus.Publish(observer.TopicSend, sendEvent{Key: key, Bytes: len(packet)})
}

// Blackout sends one final all-zero frame to every registered universe,
// bypassing the rate limiter and the dirty check. Called once at shutdown
// (controlplane.Stop), matching the teacher's "zero every universe and send
// a final packet" behavior in dmx.Service.Stop().
func (e *Emitter) Blackout() {
	var zero [512]byte
	for _, key := range e.registry.OrderedKeys() {
		buf, ok := e.registry.Get(key)
		if !ok {
			continue
		}
		seq := buf.NextSeq()
		packet := artnet.BuildDMXPacket(key.Universe, zero[:], seq)
		e.send(key, packet)
	}
}

func (e *Emitter) fail(key mapping.UBKey, err error) {
	log.Printf("emitter: send to %s failed: %v", key, err)
	metrics.ErrorsTotal.WithLabelValues(routererr.SendFailure.String()).Inc()
	e.bus.Publish(observer.TopicSend, sendEvent{Key: key, Err: err.Error()})
}

// sendEvent is the observer payload for a TopicSend event.
type sendEvent struct {
	Key   mapping.UBKey
	Bytes int
	Err   string
}

func (e *Emitter) connFor(controllerIP string) (*net.UDPConn, error) {
	e.connsMu.Lock()
	defer e.connsMu.Unlock()

	if c, ok := e.conns[controllerIP]; ok {
		return c, nil
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(controllerIP, strconv.Itoa(e.port)))
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	e.conns[controllerIP] = conn
	return conn, nil
}

func (e *Emitter) closeAll() {
	e.connsMu.Lock()
	defer e.connsMu.Unlock()
	for _, c := range e.conns {
		c.Close()
	}
}
