package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe(TopicDecoded)

	bus.Publish(TopicDecoded, "hello")

	ev := <-sub.Events
	assert.Equal(t, "hello", ev.Payload)
	assert.NotEmpty(t, ev.ID)
}

func TestPublishIgnoresOtherTopics(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe(TopicSend)

	bus.Publish(TopicDecoded, "nope")

	select {
	case ev := <-sub.Events:
		t.Fatalf("unexpected event delivered: %+v", ev)
	default:
	}
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	bus := NewBus(1)
	sub := bus.Subscribe(TopicCounter)

	bus.Publish(TopicCounter, 1)
	bus.Publish(TopicCounter, 2)

	ev := <-sub.Events
	assert.Equal(t, 2, ev.Payload)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(1)
	sub := bus.Subscribe(TopicFatal)
	bus.Unsubscribe(sub)

	_, ok := <-sub.Events
	assert.False(t, ok)
	assert.Equal(t, 0, bus.SubscriberCount(TopicFatal))
}

func TestPublishWithNoSubscribersDoesNotPanic(t *testing.T) {
	bus := NewBus(1)
	require.NotPanics(t, func() { bus.Publish(TopicDecoded, "nobody listening") })
}
