package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"device-session/internal/model"
)

func event(seq uint64) model.Event {
	return model.Event{Sequence: seq, Kind: model.EventRawLine, Payload: &model.RawLine{}}
}

func TestEventBus_DeliversInPublishOrder(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	log := &eventLog{}
	bus.Subscribe(log)

	for i := uint64(1); i <= 500; i++ {
		bus.Publish(event(i))
	}
	bus.Close()

	events := log.all()
	require.Len(t, events, 500)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Sequence)
	}
}

func TestEventBus_PublishDoesNotWaitForSlowListener(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	release := make(chan struct{})
	bus.Subscribe(ListenerFunc(func(model.Event) { <-release }))

	done := make(chan struct{})
	go func() {
		for i := uint64(1); i <= 100; i++ {
			bus.Publish(event(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow listener")
	}

	close(release)
	bus.Close()
}

func TestEventBus_PanickingListenerDoesNotStopOthers(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	bus.Subscribe(ListenerFunc(func(model.Event) { panic("boom") }))
	log := &eventLog{}
	bus.Subscribe(log)

	bus.Publish(event(1))
	bus.Publish(event(2))
	bus.Close()

	assert.Len(t, log.all(), 2)
}

func TestEventBus_SlowListenerDoesNotDelayOthers(t *testing.T) {
	bus := NewEventBus(zap.NewNop())

	release := make(chan struct{})
	slow := &eventLog{}
	bus.Subscribe(ListenerFunc(func(e model.Event) {
		<-release
		slow.OnEvent(e)
	}))
	fast := &eventLog{}
	bus.Subscribe(fast)

	for i := uint64(1); i <= 50; i++ {
		bus.Publish(event(i))
	}

	require.Eventually(t, func() bool { return len(fast.all()) == 50 }, time.Second, time.Millisecond)
	assert.Empty(t, slow.all())

	close(release)
	bus.Close()

	events := slow.all()
	require.Len(t, events, 50)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Sequence)
	}
}

func TestEventBus_EachListenerSeesPublishOrder(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	logs := []*eventLog{{}, {}, {}}
	for _, l := range logs {
		bus.Subscribe(l)
	}

	for i := uint64(1); i <= 200; i++ {
		bus.Publish(event(i))
	}
	bus.Close()

	for _, l := range logs {
		events := l.all()
		require.Len(t, events, 200)
		for i, e := range events {
			assert.Equal(t, uint64(i+1), e.Sequence)
		}
	}
}

func TestEventBus_UnsubscribeDiscardsQueue(t *testing.T) {
	bus := NewEventBus(zap.NewNop())

	var mu sync.Mutex
	var got []uint64
	release := make(chan struct{})
	unsubscribe := bus.Subscribe(ListenerFunc(func(e model.Event) {
		<-release
		mu.Lock()
		got = append(got, e.Sequence)
		mu.Unlock()
	}))

	bus.Publish(event(1))
	bus.Publish(event(2))
	bus.Publish(event(3))
	unsubscribe()
	close(release)
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, len(got), 1, "only an in-flight delivery may complete")
	assert.Zero(t, bus.ListenerCount())
}

func TestEventBus_CloseDiscardsLaterEvents(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	log := &eventLog{}
	bus.Subscribe(log)

	bus.Publish(event(1))
	bus.Close()
	bus.Publish(event(2))
	bus.Close()

	assert.Len(t, log.all(), 1)
}
