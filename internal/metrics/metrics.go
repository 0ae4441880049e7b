// Package metrics exposes Prometheus counters and gauges for the router
// core's §7 error kinds and §8 rate/coalescing behavior. The teacher has no
// metrics package of its own; this follows the closest pack sibling in the
// same domain, pierrejay-rk3506-amp-demo/dmx-gateway/internal/metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrorsTotal counts every §7 error kind by name.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "p1_router_errors_total",
			Help: "Total router errors by kind",
		},
		[]string{"kind"},
	)

	// PacketsSentTotal counts ArtNet packets successfully sent, by
	// controller.
	PacketsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "p1_router_artnet_packets_sent_total",
			Help: "Total ArtNet packets sent, by controller IP",
		},
		[]string{"controller"},
	)

	// UnmappedEntitiesTotal counts entity IDs that resolved to nothing in
	// the active mapping snapshot.
	UnmappedEntitiesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "p1_router_unmapped_entities_total",
			Help: "Total entity updates with no matching mapping range",
		},
	)

	// DirtyUniverses is the number of universes awaiting emission at the
	// most recent tick.
	DirtyUniverses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "p1_router_dirty_universes",
			Help: "Universes with unsent changes as of the last emit tick",
		},
	)

	// ActiveUniverses is the number of universe buffers currently
	// registered.
	ActiveUniverses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "p1_router_active_universes",
			Help: "Universe buffers currently registered",
		},
	)

	// CurrentPPS is the packets-per-second rate observed over the most
	// recent one-second window (P4).
	CurrentPPS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "p1_router_current_pps",
			Help: "ArtNet packets sent per second, most recent window",
		},
	)

	// BackpressureDropsTotal counts messages dropped by the bounded
	// receiver->router queue.
	BackpressureDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "p1_router_backpressure_drops_total",
			Help: "Total decoded messages dropped due to a full router queue",
		},
	)
)
