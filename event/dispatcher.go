package event

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/KOMKZ/go-fabric/logger"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// UnsubscribeFunc unsubscribe function
type UnsubscribeFunc func()

// Dispatcher event dispatcher interface
type Dispatcher interface {
	// Subscribe to an event, return unsubscribe function
	Subscribe(eventName string, listener Listener, opts ...SubscribeOption) UnsubscribeFunc

	// Dispatch event distribution
	// Default: in-memory synchronous distribution
	// WithDispatchAsync(): in-memory asynchronous distribution
	// WithKafka(topic): also published to Kafka
	Dispatch(ctx context.Context, event Event, opts ...DispatchOption) error

	// Close releases the worker pool
	Close()
}

// listenerEntry listener entry
type listenerEntry struct {
	id       uint64
	listener Listener
	priority int  // 数值越大优先级越高
	async    bool // Is asynchronous execution
}

// SubscribeOption subscription options
type SubscribeOption func(*listenerEntry)

// WithPriority sets the priority (larger runs first, default 0)
func WithPriority(priority int) SubscribeOption {
	return func(e *listenerEntry) {
		e.priority = priority
	}
}

// WithAsync marks the listener for asynchronous execution
// Asynchronous listener errors do not affect event propagation
func WithAsync() SubscribeOption {
	return func(e *listenerEntry) {
		e.async = true
	}
}

// dispatchOptions dispatch options
type dispatchOptions struct {
	async bool
	topic string // Kafka topic ("" = memory only)
	key   string // Kafka message key
}

// DispatchOption function for distribution options
type DispatchOption func(*dispatchOptions)

// WithDispatchAsync dispatches the event through the worker pool and returns immediately
func WithDispatchAsync() DispatchOption {
	return func(o *dispatchOptions) {
		o.async = true
	}
}

// WithKafka additionally publishes the event to the given Kafka topic
func WithKafka(topic string) DispatchOption {
	return func(o *dispatchOptions) {
		o.topic = topic
	}
}

// WithKafkaKey specifies the Kafka message key (for partition routing)
func WithKafkaKey(key string) DispatchOption {
	return func(o *dispatchOptions) {
		o.key = key
	}
}

// dispatcher event dispatcher implementation
type dispatcher struct {
	mu             sync.RWMutex
	listeners      map[string][]listenerEntry
	nextID         uint64
	pool           *ants.Pool
	poolSize       int
	logger         *logger.CtxZapLogger
	kafkaPublisher KafkaPublisher
}

// DispatcherOption Dispatcher configuration options
type DispatcherOption func(*dispatcher)

// WithPoolSize sets the size of the asynchronous worker pool
func WithPoolSize(size int) DispatcherOption {
	return func(d *dispatcher) {
		d.poolSize = size
	}
}

// WithKafkaPublisher sets the Kafka publisher
// After setting up, use the WithKafka() option to send events to Kafka
func WithKafkaPublisher(publisher KafkaPublisher) DispatcherOption {
	return func(d *dispatcher) {
		d.kafkaPublisher = publisher
	}
}

// NewDispatcher creates an event dispatcher
func NewDispatcher(opts ...DispatcherOption) Dispatcher {
	d := &dispatcher{
		listeners: make(map[string][]listenerEntry),
		poolSize:  100,
		logger:    logger.GetLogger("fabric"),
	}

	for _, opt := range opts {
		opt(d)
	}

	var err error
	d.pool, err = ants.NewPool(d.poolSize)
	if err != nil {
		d.logger.Error("创建协程池失败，使用默认配置", zap.Error(err))
		d.pool, _ = ants.NewPool(100)
	}

	return d
}

// Subscribe to an event
func (d *dispatcher) Subscribe(eventName string, listener Listener, opts ...SubscribeOption) UnsubscribeFunc {
	if eventName == "" || listener == nil {
		return func() {}
	}

	entry := listenerEntry{
		id:       atomic.AddUint64(&d.nextID, 1),
		listener: listener,
	}
	for _, opt := range opts {
		opt(&entry)
	}

	d.mu.Lock()
	d.listeners[eventName] = append(d.listeners[eventName], entry)
	sort.SliceStable(d.listeners[eventName], func(i, j int) bool {
		return d.listeners[eventName][i].priority > d.listeners[eventName][j].priority
	})
	d.mu.Unlock()

	return func() {
		d.unsubscribe(eventName, entry.id)
	}
}

// unsubscribe cancels a subscription
func (d *dispatcher) unsubscribe(eventName string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := d.listeners[eventName]
	for i, e := range entries {
		if e.id == id {
			d.listeners[eventName] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Dispatch event distribution
func (d *dispatcher) Dispatch(ctx context.Context, event Event, opts ...DispatchOption) error {
	if event == nil {
		return nil
	}

	options := &dispatchOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Publish to Kafka first if requested (listener errors must not mask publish errors)
	if options.topic != "" {
		if d.kafkaPublisher == nil {
			return ErrKafkaNotAvailable
		}
		key := options.key
		if key == "" {
			key = event.Name()
		}
		if err := d.kafkaPublisher.PublishJSON(ctx, options.topic, key, event.Payload()); err != nil {
			d.logger.ErrorCtx(ctx, "发布事件到 Kafka 失败",
				zap.String("event", event.Name()),
				zap.String("topic", options.topic),
				zap.Error(err))
			return err
		}
	}

	if options.async {
		d.dispatchAsync(ctx, event)
		return nil
	}
	return d.dispatchSync(ctx, event)
}

// dispatchSync in-memory synchronous distribution
func (d *dispatcher) dispatchSync(ctx context.Context, event Event) error {
	for _, entry := range d.snapshotListeners(event.Name()) {
		if entry.async {
			d.submit(ctx, entry.listener, event)
			continue
		}

		err := d.safeHandle(ctx, entry.listener, event)
		if err == ErrStopPropagation {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// dispatchAsync submits all listeners to the worker pool
func (d *dispatcher) dispatchAsync(ctx context.Context, event Event) {
	for _, entry := range d.snapshotListeners(event.Name()) {
		d.submit(ctx, entry.listener, event)
	}
}

// submit runs one listener on the ants pool (falls back to a goroutine when the pool is full)
func (d *dispatcher) submit(ctx context.Context, l Listener, e Event) {
	err := d.pool.Submit(func() {
		if err := d.safeHandle(ctx, l, e); err != nil && err != ErrStopPropagation {
			d.logger.WarnCtx(ctx, "异步事件监听器执行失败",
				zap.String("event", e.Name()),
				zap.Error(err))
		}
	})
	if err != nil {
		go d.safeHandle(ctx, l, e)
	}
}

// safeHandle invokes a listener with panic protection
func (d *dispatcher) safeHandle(ctx context.Context, l Listener, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorCtx(ctx, "事件监听器 panic",
				zap.String("event", e.Name()),
				zap.Any("panic", r))
			err = fmt.Errorf("event listener panic: %v", r)
		}
	}()
	return l.Handle(ctx, e)
}

// snapshotListeners copies the listener list (avoid holding the lock during handling)
func (d *dispatcher) snapshotListeners(eventName string) []listenerEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entries := make([]listenerEntry, len(d.listeners[eventName]))
	copy(entries, d.listeners[eventName])
	return entries
}

// Close releases the worker pool
func (d *dispatcher) Close() {
	d.pool.Release()
}
