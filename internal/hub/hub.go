// Package hub fans steering messages out to any number of subscribers without ever
// blocking the producer.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Default sizing.
const (
	DefaultQueueSize    = 64
	DefaultSendBuffer   = 256
	DefaultWriteTimeout = time.Second
)

var (
	// ErrClosed is returned by Subscribe once the hub has shut down.
	ErrClosed = errors.New("hub closed")

	// ErrSubscriberUnreachable marks a subscriber whose send failed.
	ErrSubscriberUnreachable = errors.New("subscriber unreachable")

	// ErrSubscriberStalled marks a subscriber whose queue filled up.
	ErrSubscriberStalled = errors.New("subscriber stalled")
)

// Config holds hub sizing.
type Config struct {
	// QueueSize bounds the hand-off between Publish and the dispatcher. When full the
	// oldest queued message is replaced so the latest value always gets through.
	QueueSize int
	// SendBuffer bounds each subscriber's backlog. A subscriber that falls this far
	// behind is dropped.
	SendBuffer int
	// WriteTimeout bounds a single network write; subscribers apply it.
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// envelope numbers a message in publish order.
type envelope struct {
	seq uint64
	msg SteeringMessage
}

// Hub is a single-producer, multi-consumer distribution point.
//
// Publish hands messages to a dedicated dispatcher (Run), which encodes each message once
// and queues it on every subscription. Each subscription has its own writer goroutine,
// so a slow or broken subscriber only ever affects itself.
type Hub struct {
	log     *zap.Logger
	cfg     Config
	metrics *Metrics

	intake chan envelope
	seq    *atomic.Uint64
	subs   *xsync.MapOf[uuid.UUID, *subscription]
	latest *atomic.Pointer[SteeringMessage]

	mu      sync.Mutex // guards closed against Subscribe
	closed  bool
	closing chan struct{}
	writers sync.WaitGroup
}

// New creates a Hub. Call Run to start dispatching.
func New(cfg Config, log *zap.Logger) *Hub {
	cfg = cfg.withDefaults()
	return &Hub{
		log:     log,
		cfg:     cfg,
		metrics: newMetrics(),
		intake:  make(chan envelope, cfg.QueueSize),
		seq:     atomic.NewUint64(0),
		subs:    xsync.NewMapOf[uuid.UUID, *subscription](),
		latest:  atomic.NewPointer[SteeringMessage](nil),
		closing: make(chan struct{}),
	}
}

// Config returns the effective configuration.
func (h *Hub) Config() Config {
	return h.cfg
}

// Metrics returns the hub's counters.
func (h *Hub) Metrics() *Metrics {
	return h.metrics
}

// Publish queues msg for delivery and returns immediately. A nil msg is discarded.
func (h *Hub) Publish(msg *SteeringMessage) {
	if msg == nil {
		h.metrics.Filtered.Inc(1)
		return
	}

	env := envelope{seq: h.seq.Inc(), msg: *msg}
	for {
		select {
		case h.intake <- env:
			h.metrics.Published.Inc(1)
			return
		default:
		}

		// Full: make room by discarding the oldest queued message.
		select {
		case <-h.intake:
			h.metrics.Overflow.Inc(1)
		default:
		}
	}
}

// Subscribe registers s. It receives every message published after this call; messages
// still queued for dispatch are not replayed.
func (h *Hub) Subscribe(s Subscriber) (uuid.UUID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return uuid.Nil, ErrClosed
	}

	sub := &subscription{
		id:    uuid.New(),
		sub:   s,
		since: h.seq.Load(),
		queue: make(chan []byte, h.cfg.SendBuffer),
		done:  make(chan struct{}),
	}
	h.subs.Store(sub.id, sub)
	h.metrics.Subscribers.Update(int64(h.subs.Size()))

	h.writers.Add(1)
	go h.write(sub)

	h.log.Info("Subscriber connected", zap.Stringer("id", sub.id), zap.Int("total", h.subs.Size()))
	return sub.id, nil
}

// Unsubscribe removes the subscriber. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	if sub, ok := h.subs.LoadAndDelete(id); ok {
		sub.stop()
		h.metrics.Subscribers.Update(int64(h.subs.Size()))
		h.log.Info("Subscriber disconnected", zap.Stringer("id", id), zap.Int("remaining", h.subs.Size()))
	}
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	return h.subs.Size()
}

// Latest returns the most recently dispatched message.
func (h *Hub) Latest() (SteeringMessage, bool) {
	if m := h.latest.Load(); m != nil {
		return *m, true
	}
	return SteeringMessage{}, false
}

// Run dispatches published messages until ctx is done. On shutdown it dispatches what
// is still queued, lets every subscriber flush its backlog, closes them and returns once
// all writers have exited.
func (h *Hub) Run(ctx context.Context) error {
	h.log.Info("Hub started", zap.Int("queue", h.cfg.QueueSize), zap.Int("send_buffer", h.cfg.SendBuffer))

	for {
		select {
		case env := <-h.intake:
			h.dispatch(env)
		case <-ctx.Done():
			h.drain()
			h.shutdown()
			h.log.Info("Hub stopped")
			return nil
		}
	}
}

func (h *Hub) drain() {
	for {
		select {
		case env := <-h.intake:
			h.dispatch(env)
		default:
			return
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	h.closed = true
	close(h.closing)
	h.mu.Unlock()

	h.writers.Wait()
	h.subs.Clear()
	h.metrics.Subscribers.Update(0)
}

func (h *Hub) dispatch(env envelope) {
	start := time.Now()
	defer h.metrics.Dispatch.UpdateSince(start)

	msg := env.msg
	data, err := msg.Encode()
	if err != nil {
		h.log.Error("Failed to encode steering message", zap.Error(err))
		return
	}
	h.latest.Store(&msg)

	h.subs.Range(func(id uuid.UUID, sub *subscription) bool {
		if env.seq <= sub.since {
			return true
		}
		select {
		case sub.queue <- data:
		default:
			h.drop(sub, ErrSubscriberStalled)
		}
		return true
	})
}

// drop removes sub after a failure. Nothing is reported beyond the log and metrics.
func (h *Hub) drop(sub *subscription, reason error) {
	if _, ok := h.subs.LoadAndDelete(sub.id); !ok {
		return
	}
	sub.stop()
	h.metrics.Dropped.Inc(1)
	h.metrics.Subscribers.Update(int64(h.subs.Size()))
	h.log.Debug("Dropped subscriber", zap.Stringer("id", sub.id), zap.Error(reason))
}

// write is the only goroutine sending to sub, which keeps per-subscriber order.
func (h *Hub) write(sub *subscription) {
	defer h.writers.Done()
	defer func() {
		if err := sub.sub.Close(); err != nil {
			h.log.Debug("Subscriber close failed", zap.Stringer("id", sub.id), zap.Error(err))
		}
	}()

	send := func(data []byte) bool {
		if err := sub.sub.Send(data); err != nil {
			h.drop(sub, fmt.Errorf("%w: %v", ErrSubscriberUnreachable, err))
			return false
		}
		h.metrics.Delivered.Inc(1)
		return true
	}

	for {
		select {
		case data := <-sub.queue:
			if !send(data) {
				return
			}
		case <-sub.done:
			return
		case <-h.closing:
			for {
				select {
				case data := <-sub.queue:
					if !send(data) {
						return
					}
				default:
					return
				}
			}
		}
	}
}
