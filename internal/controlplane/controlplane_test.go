package controlplane

import (
	"net"
	"testing"
	"time"

	"github.com/dridi14/p1-router/internal/color"
	"github.com/dridi14/p1-router/internal/emitter"
	"github.com/dridi14/p1-router/internal/mapping"
	"github.com/dridi14/p1-router/internal/observer"
	"github.com/dridi14/p1-router/internal/patch"
)

func TestStartStopRoundTrip(t *testing.T) {
	snap, err := mapping.Validate([]mapping.Range{
		{From: 1, To: 1, ControllerIP: "127.0.0.1", Universe: 0, ChannelStart: 1, Channels: color.DefaultLayout},
	})
	if err != nil {
		t.Fatalf("validate mapping: %v", err)
	}

	cp := New()
	err = cp.Start(snap, patch.Empty(), Options{
		ListenAddr:    "127.0.0.1",
		ListenPort:    0,
		QueueCapacity: 16,
		Emit:          emitter.Options{Interval: 5 * time.Millisecond, MaxPPS: 1000, Port: 0},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer cp.Stop()

	sub := cp.Subscribe(observer.TopicDecoded)
	defer cp.Unsubscribe(sub)

	addr := cp.conn.LocalAddr().(*net.UDPAddr)
	client, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	_, err = client.Write([]byte(`{"type":"update","universe":0,"entities":[{"id":1,"color":{"r":1,"g":2,"b":3}}]}`))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-sub.Events:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decoded event")
	}
}

func TestSwapMappingPrunesOrphanedBuffers(t *testing.T) {
	snap1, _ := mapping.Validate([]mapping.Range{
		{From: 1, To: 1, ControllerIP: "127.0.0.1", Universe: 0, ChannelStart: 1, Channels: color.DefaultLayout},
	})
	snap2, _ := mapping.Validate([]mapping.Range{
		{From: 1, To: 1, ControllerIP: "127.0.0.1", Universe: 5, ChannelStart: 1, Channels: color.DefaultLayout},
	})

	cp := New()
	if err := cp.Start(snap1, patch.Empty(), Options{
		ListenAddr:    "127.0.0.1",
		ListenPort:    0,
		QueueCapacity: 16,
		Emit:          emitter.Options{Interval: time.Hour, MaxPPS: 1000},
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer cp.Stop()

	key := mapping.UBKey{ControllerIP: "127.0.0.1", Universe: 0}
	cp.Registry().GetOrCreate(key)

	cp.SwapMapping(snap2)

	if _, ok := cp.Registry().Get(key); ok {
		t.Fatal("expected orphaned buffer to be pruned after SwapMapping")
	}
}
