// internal/session/event_bus.go
package session

import (
	"sync"

	"go.uber.org/zap"

	"device-session/internal/model"
)

// Listener receives session events in emission order
type Listener interface {
	OnEvent(event model.Event)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(event model.Event)

func (f ListenerFunc) OnEvent(event model.Event) { f(event) }

// EventBus fans events out to listeners. Every listener has its own queue and
// delivery goroutine: it sees events in publish order, and a slow listener
// delays only itself. Publish never blocks and never drops.
type EventBus struct {
	mutex       sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      uint64
	closed      bool
	wg          sync.WaitGroup
	logger      *zap.Logger
}

// NewEventBus creates an event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[uint64]*subscriber),
		logger:      logger,
	}
}

// Publish queues an event for every listener. Events published after Close are discarded.
func (eb *EventBus) Publish(event model.Event) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.closed {
		return
	}
	for _, sub := range eb.subscribers {
		sub.push(event)
	}
}

// Subscribe registers a listener and returns a function that removes it.
// Events still queued for the listener when it is removed are discarded.
func (eb *EventBus) Subscribe(l Listener) func() {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.closed {
		return func() {}
	}

	eb.nextID++
	id := eb.nextID
	sub := newSubscriber(l)
	eb.subscribers[id] = sub

	eb.wg.Add(1)
	go func() {
		defer eb.wg.Done()
		sub.run(eb.deliver)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			eb.mutex.Lock()
			delete(eb.subscribers, id)
			eb.mutex.Unlock()
			sub.stop(false)
		})
	}
}

// ListenerCount returns the number of registered listeners
func (eb *EventBus) ListenerCount() int {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	return len(eb.subscribers)
}

// Close stops accepting events, lets every listener drain its queue and waits
// for delivery to finish
func (eb *EventBus) Close() {
	eb.mutex.Lock()
	if !eb.closed {
		eb.closed = true
		for _, sub := range eb.subscribers {
			sub.stop(true)
		}
	}
	eb.mutex.Unlock()

	eb.wg.Wait()
}

func (eb *EventBus) deliver(l Listener, event model.Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("Event listener panicked",
				zap.Any("panic", r),
				zap.String("kind", string(event.Kind)),
				zap.Uint64("sequence", event.Sequence),
				zap.Stack("stacktrace"),
			)
		}
	}()
	l.OnEvent(event)
}

// subscriber is one listener's queue
type subscriber struct {
	listener Listener
	mutex    sync.Mutex
	cond     *sync.Cond
	queue    []model.Event
	draining bool
	removed  bool
}

func newSubscriber(l Listener) *subscriber {
	sub := &subscriber{listener: l}
	sub.cond = sync.NewCond(&sub.mutex)
	return sub
}

func (s *subscriber) push(event model.Event) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.draining || s.removed {
		return
	}
	s.queue = append(s.queue, event)
	s.cond.Signal()
}

// stop ends delivery. With drain the queued events are delivered first.
func (s *subscriber) stop(drain bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if drain {
		s.draining = true
	} else {
		s.removed = true
		s.queue = nil
	}
	s.cond.Broadcast()
}

func (s *subscriber) run(deliver func(Listener, model.Event)) {
	for {
		s.mutex.Lock()
		for len(s.queue) == 0 && !s.draining && !s.removed {
			s.cond.Wait()
		}
		if s.removed || len(s.queue) == 0 {
			s.mutex.Unlock()
			return
		}

		event := s.queue[0]
		s.queue[0] = model.Event{}
		s.queue = s.queue[1:]
		s.mutex.Unlock()

		deliver(s.listener, event)
	}
}
