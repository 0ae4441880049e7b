// Package controlplane owns the router's lifecycle: binding the inbound
// socket, starting the receiver/router/emitter tasks, and publishing
// mapping/patch snapshot swaps (§4.6 "Control plane").
package controlplane

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/dridi14/p1-router/internal/bindaddr"
	"github.com/dridi14/p1-router/internal/emitter"
	"github.com/dridi14/p1-router/internal/mapping"
	"github.com/dridi14/p1-router/internal/metrics"
	"github.com/dridi14/p1-router/internal/observer"
	"github.com/dridi14/p1-router/internal/patch"
	"github.com/dridi14/p1-router/internal/router"
	"github.com/dridi14/p1-router/internal/routererr"
	"github.com/dridi14/p1-router/internal/universe"
	"github.com/dridi14/p1-router/internal/wire"
)

// DefaultShutdownTimeout bounds how long Stop waits for tasks to observe
// cancellation (§5 "exits within a bounded time (default 500 ms)").
const DefaultShutdownTimeout = 500 * time.Millisecond

// Options configures Start (§6 "Runtime options").
type Options struct {
	ListenAddr     string // "auto" resolves via internal/bindaddr
	ListenPort     int
	FilterUniverse *int
	QueueCapacity  int
	Emit           emitter.Options
}

// Controlplane binds the inbound UDP socket and coordinates the receiver,
// router, and emitter tasks sharing it.
type Controlplane struct {
	registry *universe.Registry
	bus      *observer.Bus
	router   *router.Router
	emitter  *emitter.Emitter

	mu      sync.Mutex
	conn    *net.UDPConn
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a Controlplane ready to Start.
func New() *Controlplane {
	registry := universe.NewRegistry()
	bus := observer.NewBus(1024)
	return &Controlplane{
		registry: registry,
		bus:      bus,
	}
}

// Start binds the UDP socket and launches the receiver, router, and emitter
// tasks (§4.6 "start(listen_addr, mapping, patch, options)").
func (c *Controlplane) Start(mappingSnap *mapping.Snapshot, patchSnap *patch.Snapshot, opts Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("controlplane: already running")
	}

	addr, err := bindaddr.Resolve(opts.ListenAddr)
	if err != nil {
		return err
	}
	udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(addr, strconv.Itoa(opts.ListenPort)))
	if err != nil {
		return fmt.Errorf("controlplane: resolve listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(routererr.Fatal.String()).Inc()
		c.bus.Publish(observer.TopicFatal, err)
		return fmt.Errorf("controlplane: listen: %w", err)
	}

	c.conn = conn
	c.router = router.New(c.registry, c.bus, opts.QueueCapacity, opts.FilterUniverse)
	c.router.SetMapping(mappingSnap)
	c.emitter = emitter.New(c.registry, c.bus, opts.Emit)
	c.emitter.SetPatch(patchSnap)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(3)
	go func() { defer c.wg.Done(); c.receive(ctx, conn) }()
	go func() { defer c.wg.Done(); c.router.Run(ctx) }()
	go func() { defer c.wg.Done(); c.emitter.Run(ctx) }()

	c.running = true
	log.Printf("controlplane: listening on %s", udpAddr)
	return nil
}

// receive reads datagrams off conn, decodes them, and hands them to the
// router. It never blocks the router or emitter (§5 "Receiver task").
func (c *Controlplane) receive(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, wire.MaxDatagramSize+1)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			continue
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		msg, err := wire.Decode(datagram)
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues(routererr.InputMalformed.String()).Inc()
			c.bus.Publish(observer.TopicDecoded, err)
			continue
		}
		c.router.Enqueue(msg)
	}
}

// Stop sends one all-zero frame to every registered universe
// (Emitter.Blackout), signals every task, waits up to
// DefaultShutdownTimeout for them to exit, and closes the socket. Messages
// still queued for the router are discarded, not applied, and the universe
// buffers stay in the registry.
func (c *Controlplane) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	c.emitter.Blackout()

	cancel()
	if conn != nil {
		conn.SetReadDeadline(time.Now())
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(DefaultShutdownTimeout):
		log.Printf("controlplane: shutdown timed out after %v", DefaultShutdownTimeout)
	}

	if conn != nil {
		conn.Close()
	}
}

// SwapMapping validates is assumed already done by the caller; it publishes
// new as the active mapping snapshot and prunes orphaned universe buffers
// (§4.6 "swap_mapping(new)"; §3 "orphaned buffers... are dropped at the end
// of the swap operation").
func (c *Controlplane) SwapMapping(new *mapping.Snapshot) {
	c.router.SetMapping(new)
	c.registry.Prune(new.Keys())
}

// SwapPatch publishes new as the active patch rule set without touching the
// enabled toggle (§4.6 "swap_patch(new)").
func (c *Controlplane) SwapPatch(new *patch.Snapshot) {
	c.emitter.SetPatch(new)
}

// SetPatchEnabled toggles patch application without requiring a snapshot
// swap (§4.6 "set_patch_enabled(bool)"). Before Start there is no emitter
// and the call has no effect.
func (c *Controlplane) SetPatchEnabled(on bool) {
	c.mu.Lock()
	em := c.emitter
	c.mu.Unlock()
	if em == nil {
		return
	}
	em.SetPatchEnabled(on)
}

// Subscribe registers an observer for topic (§4.6 "subscribe(observer)").
func (c *Controlplane) Subscribe(topic observer.Topic) *observer.Subscriber {
	return c.bus.Subscribe(topic)
}

// Unsubscribe removes a previously registered observer.
func (c *Controlplane) Unsubscribe(sub *observer.Subscriber) {
	c.bus.Unsubscribe(sub)
}

// Registry exposes the universe buffer registry for read-only status
// reporting over internal/controlapi.
func (c *Controlplane) Registry() *universe.Registry {
	return c.registry
}
