package sink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"device-session/internal/model"
)

type fakeClient struct {
	mu         sync.Mutex
	published  map[string][]string
	lists      map[string][]string
	trims      int
	publishErr error
	trimErr    error
	// gate, when set, holds every Publish until it is closed
	gate     chan struct{}
	inFlight int
}

func newFakeClient() *fakeClient {
	return &fakeClient{published: map[string][]string{}, lists: map[string][]string{}}
}

func (f *fakeClient) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusCmd(ctx)
}

func (f *fakeClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	gate := f.gate
	f.inFlight++
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	cmd := redis.NewIntCmd(ctx)
	if f.publishErr != nil {
		cmd.SetErr(f.publishErr)
		return cmd
	}
	f.published[channel] = append(f.published[channel], string(message.([]byte)))
	cmd.SetVal(1)
	return cmd
}

func (f *fakeClient) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.lists[key] = append([]string{string(v.([]byte))}, f.lists[key]...)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(f.lists[key])))
	return cmd
}

func (f *fakeClient) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trims++
	cmd := redis.NewStatusCmd(ctx)
	if f.trimErr != nil {
		cmd.SetErr(f.trimErr)
	}
	return cmd
}

func (f *fakeClient) publishedTo(channel string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published[channel]...)
}

func (f *fakeClient) blocked() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

func (f *fakeClient) Close() error { return nil }

func TestRedisPublisher_PublishesEvents(t *testing.T) {
	fake := newFakeClient()
	p := newRedisPublisher(fake, "events", DefaultQueueSize, zap.NewNop())

	p.OnEvent(model.Event{
		SessionID: "s1",
		Sequence:  7,
		Kind:      model.EventStateChanged,
		Payload:   &model.StateChange{From: model.StateConnecting, To: model.StateConnected},
	})
	require.NoError(t, p.Close())

	require.Len(t, fake.published["events"], 1)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(fake.published["events"][0]), &decoded))
	assert.Equal(t, "s1", decoded["session_id"])
	assert.Equal(t, float64(7), decoded["sequence"])
	assert.Equal(t, "CONNECTED", decoded["payload"].(map[string]interface{})["to"])

	assert.Empty(t, fake.lists, "state changes are not kept in history")
}

func TestRedisPublisher_KeepsTelemetryHistory(t *testing.T) {
	fake := newFakeClient()
	p := newRedisPublisher(fake, "events", DefaultQueueSize, zap.NewNop())

	for i := 0; i < 3; i++ {
		p.OnEvent(model.Event{
			SessionID: "s1",
			Kind:      model.EventIOStatus,
			Payload:   &model.IOStatus{Fields: map[string]interface{}{"input_states": i}},
		})
	}
	require.NoError(t, p.Close())

	key := HistoryKey("s1", model.EventIOStatus)
	assert.Equal(t, "device-session:s1:IO_STATUS", key)
	assert.Len(t, fake.lists[key], 3)
	assert.Equal(t, 3, fake.trims)
}

func TestRedisPublisher_ReportsPublishFailure(t *testing.T) {
	fake := newFakeClient()
	fake.publishErr = errors.New("connection refused")
	p := newRedisPublisher(fake, "events", DefaultQueueSize, zap.NewNop())

	err := p.Publish(context.Background(), model.Event{Kind: model.EventRawLine, Payload: &model.RawLine{Text: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	// listener path swallows the error
	p.OnEvent(model.Event{Kind: model.EventRawLine, Payload: &model.RawLine{Text: "x"}})
	require.NoError(t, p.Close())
	assert.Zero(t, p.Dropped())
}

func TestRedisPublisher_SlowRedisDoesNotBlockListener(t *testing.T) {
	fake := newFakeClient()
	fake.gate = make(chan struct{})
	p := newRedisPublisher(fake, "events", 2, zap.NewNop())

	raw := func(seq uint64) model.Event {
		return model.Event{Sequence: seq, Kind: model.EventRawLine, Payload: &model.RawLine{Text: "x"}}
	}

	p.OnEvent(raw(1))
	require.Eventually(t, func() bool { return fake.blocked() == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	for seq := uint64(2); seq <= 10; seq++ {
		p.OnEvent(raw(seq))
	}
	assert.Less(t, time.Since(start), publishTimeout/2, "OnEvent waited for Redis")
	assert.Equal(t, uint64(7), p.Dropped())

	close(fake.gate)
	require.NoError(t, p.Close())
	assert.Len(t, fake.publishedTo("events"), 3)

	// closed publisher ignores further events
	p.OnEvent(raw(11))
	require.NoError(t, p.Close())
	assert.Len(t, fake.publishedTo("events"), 3)
}

func TestRedisPublisher_LogsHistoryTrimFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fake := newFakeClient()
	fake.trimErr = errors.New("READONLY")
	p := newRedisPublisher(fake, "events", DefaultQueueSize, zap.New(core))

	err := p.Publish(context.Background(), model.Event{
		SessionID: "s1",
		Kind:      model.EventDeviceData,
		Payload:   &model.DeviceData{},
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	entries := logs.FilterMessage("Failed to trim event history").All()
	require.Len(t, entries, 1)
	assert.Equal(t, HistoryKey("s1", model.EventDeviceData), entries[0].ContextMap()["key"])
}
