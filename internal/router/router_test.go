package router

import (
	"context"
	"testing"
	"time"

	"github.com/dridi14/p1-router/internal/color"
	"github.com/dridi14/p1-router/internal/mapping"
	"github.com/dridi14/p1-router/internal/observer"
	"github.com/dridi14/p1-router/internal/universe"
	"github.com/dridi14/p1-router/internal/wire"
)

func testSnapshot(t *testing.T) *mapping.Snapshot {
	t.Helper()
	snap, err := mapping.Validate([]mapping.Range{
		{From: 1, To: 4, ControllerIP: "10.0.0.1", Universe: 0, ChannelStart: 1, Channels: color.DefaultLayout},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return snap
}

func TestRouterAppliesUpdateToBuffer(t *testing.T) {
	reg := universe.NewRegistry()
	bus := observer.NewBus(16)
	r := New(reg, bus, 0, nil)
	r.SetMapping(testSnapshot(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.Enqueue(&wire.Message{
		Kind: wire.KindUpdate,
		Updates: []wire.EntityUpdate{
			{ID: 1, Color: color.Sample{R: 10, G: 20, B: 30}},
			{ID: 2, Color: color.Sample{R: 40, G: 50, B: 60}},
		},
	})

	deadline := time.Now().Add(time.Second)
	key := mapping.UBKey{ControllerIP: "10.0.0.1", Universe: 0}
	for {
		if buf, ok := reg.Get(key); ok {
			frame, dirty := buf.Snapshot()
			if dirty && frame[0] == 10 && frame[3] == 40 {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for router to apply update")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRouterDropsUnmappedEntity(t *testing.T) {
	reg := universe.NewRegistry()
	bus := observer.NewBus(16)
	r := New(reg, bus, 0, nil)
	r.SetMapping(testSnapshot(t))
	r.apply(&wire.Message{
		Kind:    wire.KindUpdate,
		Updates: []wire.EntityUpdate{{ID: 999, Color: color.Sample{R: 1}}},
	})
	if len(reg.OrderedKeys()) != 0 {
		t.Fatal("expected no buffer created for an unmapped entity")
	}
}

func TestRouterFiltersByUniverse(t *testing.T) {
	reg := universe.NewRegistry()
	bus := observer.NewBus(16)
	filter := 5
	r := New(reg, bus, 0, &filter)
	r.SetMapping(testSnapshot(t))

	r.apply(&wire.Message{
		Kind:        wire.KindUpdate,
		HasUniverse: true,
		Universe:    1,
		Updates:     []wire.EntityUpdate{{ID: 1, Color: color.Sample{R: 9}}},
	})
	if len(reg.OrderedKeys()) != 0 {
		t.Fatal("expected message filtered out by universe mismatch to be dropped")
	}

	r.apply(&wire.Message{
		Kind:        wire.KindUpdate,
		HasUniverse: true,
		Universe:    5,
		Updates:     []wire.EntityUpdate{{ID: 1, Color: color.Sample{R: 9}}},
	})
	if len(reg.OrderedKeys()) != 1 {
		t.Fatal("expected message matching filter_universe to be applied")
	}
}

func TestRouterConfigMessageNotRouted(t *testing.T) {
	reg := universe.NewRegistry()
	bus := observer.NewBus(16)
	r := New(reg, bus, 0, nil)
	r.SetMapping(testSnapshot(t))

	sub := bus.Subscribe(observer.TopicDecoded)
	r.apply(&wire.Message{
		Kind:    wire.KindConfig,
		Configs: []wire.EntityConfig{{ID: 1, Label: "spot"}},
	})

	select {
	case ev := <-sub.Events:
		if ev.Topic != observer.TopicDecoded {
			t.Fatalf("unexpected topic %v", ev.Topic)
		}
	default:
		t.Fatal("expected config message to be published to observers")
	}
	if len(reg.OrderedKeys()) != 0 {
		t.Fatal("config message must never create a universe buffer")
	}
}

func TestRouterEnqueueDropsOldestWhenFull(t *testing.T) {
	reg := universe.NewRegistry()
	bus := observer.NewBus(16)
	r := New(reg, bus, 1, nil)

	r.Enqueue(&wire.Message{Kind: wire.KindConfig})
	r.Enqueue(&wire.Message{Kind: wire.KindUpdate})

	if len(r.queue) != 1 {
		t.Fatalf("expected queue capacity to stay bounded at 1, got %d", len(r.queue))
	}
	msg := <-r.queue
	if msg.Kind != wire.KindUpdate {
		t.Fatal("expected the oldest message to have been dropped, newest retained")
	}
}
