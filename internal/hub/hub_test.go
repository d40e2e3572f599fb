package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu        sync.Mutex
	msgs      []SteeringMessage
	failAfter int
	block     chan struct{}
	closed    bool
}

func newRecorder() *recorder {
	return &recorder{failAfter: -1}
}

func (r *recorder) Send(data []byte) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAfter >= 0 && len(r.msgs) >= r.failAfter {
		return errors.New("broken pipe")
	}
	var m SteeringMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) received() []SteeringMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SteeringMessage(nil), r.msgs...)
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func angles(msgs []SteeringMessage) []float64 {
	out := make([]float64, len(msgs))
	for i, m := range msgs {
		out[i] = m.RotationAngle
	}
	return out
}

func sequence(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func stopped() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestHub_DeliversInOrderToEverySubscriber(t *testing.T) {
	h := New(Config{}, zaptest.NewLogger(t))

	healthy := []*recorder{newRecorder(), newRecorder()}
	flaky := newRecorder()
	flaky.failAfter = 3

	for _, r := range append(healthy, flaky) {
		_, err := h.Subscribe(r)
		require.NoError(t, err)
	}
	require.Equal(t, 3, h.Count())

	const n = 40
	at := time.Unix(1700000000, 0)
	for i := 0; i < n; i++ {
		h.Publish(NewSteeringMessage(float64(i), i%2 == 0, at))
	}
	require.NoError(t, h.Run(stopped()))

	for _, r := range healthy {
		assert.Equal(t, sequence(n), angles(r.received()))
		assert.True(t, r.isClosed())
	}

	assert.Equal(t, sequence(3), angles(flaky.received()))
	assert.True(t, flaky.isClosed())
	assert.EqualValues(t, 1, h.Metrics().Dropped.Count())
	assert.EqualValues(t, 2*n+3, h.Metrics().Delivered.Count())
	assert.Zero(t, h.Count())
}

func TestHub_MessageFields(t *testing.T) {
	h := New(Config{}, zaptest.NewLogger(t))
	r := newRecorder()
	_, err := h.Subscribe(r)
	require.NoError(t, err)

	at := time.UnixMilli(1700000000123)
	h.Publish(NewSteeringMessage(2.0707963, true, at))
	require.NoError(t, h.Run(stopped()))

	got := r.received()
	require.Len(t, got, 1)
	assert.Equal(t, SteeringMessage{RotationAngle: 2.0707963, FistClosed: true, Timestamp: 1700000000123}, got[0])
}

func TestHub_NoSubscribers(t *testing.T) {
	h := New(Config{}, zaptest.NewLogger(t))

	for i := 0; i < 10; i++ {
		h.Publish(NewSteeringMessage(float64(i), false, time.Now()))
	}
	require.NoError(t, h.Run(stopped()))

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, 9.0, latest.RotationAngle)
}

func TestHub_NothingPublished(t *testing.T) {
	h := New(Config{}, zaptest.NewLogger(t))
	r := newRecorder()
	_, err := h.Subscribe(r)
	require.NoError(t, err)

	require.NoError(t, h.Run(stopped()))

	assert.Empty(t, r.received())
	assert.True(t, r.isClosed())
	_, ok := h.Latest()
	assert.False(t, ok)
}

func TestHub_NilIsFiltered(t *testing.T) {
	h := New(Config{}, zaptest.NewLogger(t))
	r := newRecorder()
	_, err := h.Subscribe(r)
	require.NoError(t, err)

	h.Publish(nil)
	h.Publish(NewSteeringMessage(1, false, time.Now()))
	h.Publish(nil)
	require.NoError(t, h.Run(stopped()))

	assert.Equal(t, []float64{1}, angles(r.received()))
	assert.EqualValues(t, 2, h.Metrics().Filtered.Count())
	assert.EqualValues(t, 1, h.Metrics().Published.Count())
}

func TestHub_LateSubscriberSeesNoReplay(t *testing.T) {
	h := New(Config{}, zaptest.NewLogger(t))
	early := newRecorder()
	_, err := h.Subscribe(early)
	require.NoError(t, err)

	// Still queued for dispatch when the second subscriber joins.
	h.Publish(NewSteeringMessage(1, false, time.Now()))

	late := newRecorder()
	_, err = h.Subscribe(late)
	require.NoError(t, err)

	h.Publish(NewSteeringMessage(2, false, time.Now()))
	require.NoError(t, h.Run(stopped()))

	assert.Equal(t, []float64{1, 2}, angles(early.received()))
	assert.Equal(t, []float64{2}, angles(late.received()))
}

func TestHub_OverflowKeepsLatest(t *testing.T) {
	h := New(Config{QueueSize: 2}, zaptest.NewLogger(t))
	r := newRecorder()
	_, err := h.Subscribe(r)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		h.Publish(NewSteeringMessage(float64(i), false, time.Now()))
	}
	require.NoError(t, h.Run(stopped()))

	assert.Equal(t, []float64{3, 4}, angles(r.received()))
	assert.EqualValues(t, 3, h.Metrics().Overflow.Count())
}

func TestHub_StalledSubscriberIsDropped(t *testing.T) {
	h := New(Config{SendBuffer: 1}, zaptest.NewLogger(t))

	stuck := newRecorder()
	stuck.block = make(chan struct{})
	fine := newRecorder()
	for _, r := range []*recorder{stuck, fine} {
		_, err := h.Subscribe(r)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	for i := 0; i < 5; i++ {
		h.Publish(NewSteeringMessage(float64(i), false, time.Now()))
		require.Eventually(t, func() bool {
			return len(fine.received()) == i+1
		}, time.Second, time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return h.Metrics().Dropped.Count() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.Count())

	cancel()
	close(stuck.block)
	require.NoError(t, <-done)

	assert.Equal(t, sequence(5), angles(fine.received()))
	assert.True(t, stuck.isClosed())
}

func TestHub_Unsubscribe(t *testing.T) {
	h := New(Config{}, zaptest.NewLogger(t))
	r := newRecorder()
	id, err := h.Subscribe(r)
	require.NoError(t, err)

	h.Unsubscribe(id)
	h.Unsubscribe(id)
	assert.Zero(t, h.Count())
	assert.Eventually(t, r.isClosed, time.Second, 5*time.Millisecond)

	h.Publish(NewSteeringMessage(1, false, time.Now()))
	require.NoError(t, h.Run(stopped()))
	assert.Empty(t, r.received())
}

func TestHub_SubscribeAfterShutdown(t *testing.T) {
	h := New(Config{}, zaptest.NewLogger(t))
	require.NoError(t, h.Run(stopped()))

	_, err := h.Subscribe(newRecorder())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMetrics_Snapshot(t *testing.T) {
	h := New(Config{}, zaptest.NewLogger(t))
	h.Publish(nil)
	h.Publish(NewSteeringMessage(0, false, time.Now()))
	require.NoError(t, h.Run(stopped()))

	snap := h.Metrics().Snapshot()
	assert.EqualValues(t, 1, snap["hub.published"])
	assert.EqualValues(t, 1, snap["hub.filtered"])
	assert.EqualValues(t, 0, snap["hub.subscribers"])
	assert.EqualValues(t, 1, snap["hub.dispatch.count"])
}

func TestSteeringMessage_Encode(t *testing.T) {
	data, err := NewSteeringMessage(1.5, false, time.UnixMilli(42)).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"rotation_angle":1.5,"fist_closed":false,"timestamp":42}`, string(data))
}
