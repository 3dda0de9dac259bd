// internal/sink/redis_publisher.go
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"device-session/internal/config"
	"device-session/internal/model"
)

const (
	publishTimeout = 2 * time.Second
	// drainTimeout bounds how long Close waits for queued events
	drainTimeout = 5 * time.Second
	// historyLength is the number of telemetry events kept per kind
	historyLength = 1000
	// DefaultQueueSize is the number of events waiting for Redis before new ones are dropped
	DefaultQueueSize = 1024
)

// client is the subset of *redis.Client the publisher uses
type client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Close() error
}

// RedisPublisher forwards session events to a Redis pub/sub channel and keeps a
// short history of telemetry per session and kind. It is a session listener.
// Events are handed to a single worker through a bounded queue; when Redis is
// slow or down the queue fills and further events are dropped and counted.
type RedisPublisher struct {
	client  client
	channel string
	logger  *zap.Logger

	events  chan model.Event
	dropped atomic.Uint64
	mutex   sync.RWMutex
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRedisPublisher connects to Redis and verifies the connection
func NewRedisPublisher(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	p := newRedisPublisher(rdb, cfg.Channel, DefaultQueueSize, logger)
	p.logger.Info("Redis event sink connected", zap.String("addr", cfg.Addr))
	return p, nil
}

func newRedisPublisher(c client, channel string, queueSize int, logger *zap.Logger) *RedisPublisher {
	ctx, cancel := context.WithCancel(context.Background())
	p := &RedisPublisher{
		client:  c,
		channel: channel,
		logger:  logger.With(zap.String("component", "redis_sink"), zap.String("channel", channel)),
		events:  make(chan model.Event, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// OnEvent queues one event for publishing. It never blocks: when the queue is
// full the event is dropped and counted.
func (p *RedisPublisher) OnEvent(event model.Event) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.closed {
		return
	}

	select {
	case p.events <- event:
	default:
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			p.logger.Warn("Redis sink queue full, dropping events",
				zap.String("kind", string(event.Kind)),
				zap.Uint64("sequence", event.Sequence),
				zap.Uint64("dropped_total", n),
			)
		}
	}
}

// Dropped returns the number of events dropped because the queue was full
func (p *RedisPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *RedisPublisher) run() {
	defer close(p.done)

	for event := range p.events {
		if p.ctx.Err() != nil {
			continue
		}

		ctx, cancel := context.WithTimeout(p.ctx, publishTimeout)
		err := p.Publish(ctx, event)
		cancel()

		if err != nil {
			p.logger.Warn("Failed to publish event",
				zap.String("kind", string(event.Kind)),
				zap.Uint64("sequence", event.Sequence),
				zap.Error(err),
			)
		}
	}
}

// Publish sends event to the channel and, for telemetry, appends it to the history list
func (p *RedisPublisher) Publish(ctx context.Context, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if !isTelemetry(event.Kind) {
		return nil
	}

	key := HistoryKey(event.SessionID, event.Kind)
	if err := p.client.LPush(ctx, key, data).Err(); err != nil {
		p.logger.Warn("Failed to append event history", zap.String("key", key), zap.Error(err))
		return nil
	}
	if err := p.client.LTrim(ctx, key, 0, historyLength-1).Err(); err != nil {
		p.logger.Warn("Failed to trim event history", zap.String("key", key), zap.Error(err))
	}

	return nil
}

// Close stops accepting events, gives the worker a bounded time to publish what
// is queued and closes the redis client
func (p *RedisPublisher) Close() error {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mutex.Unlock()

	select {
	case <-p.done:
	case <-time.After(drainTimeout):
		p.logger.Warn("Redis sink did not drain in time, discarding queued events",
			zap.Int("queued", len(p.events)),
		)
		p.cancel()
		<-p.done
	}
	p.cancel()

	if dropped := p.dropped.Load(); dropped > 0 {
		p.logger.Warn("Redis sink dropped events", zap.Uint64("dropped_total", dropped))
	}
	return p.client.Close()
}

// HistoryKey returns the list key holding recent events of one kind
func HistoryKey(sessionID string, kind model.EventKind) string {
	return fmt.Sprintf("device-session:%s:%s", sessionID, kind)
}

func isTelemetry(kind model.EventKind) bool {
	switch kind {
	case model.EventNetworkStatus, model.EventNetworkStats, model.EventIOStatus,
		model.EventDeviceData, model.EventDeviceInfo:
		return true
	}
	return false
}
