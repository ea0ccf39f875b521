// Package dispatcher executes post-commit effects.
//
// Each effect is routed to the handlers subscribed to its type. Handlers run
// in isolation from each other: an error or panic in one is recorded and
// the remaining handlers still run.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/garyjia/approval-engine/internal/domain/event"
)

// Dispatcher routes effects to registered handlers
type Dispatcher interface {
	// SubscribeNamed registers a handler with a name for debugging
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// Dispatch sends an event to all registered handlers synchronously.
	// Every handler runs; the returned error joins all handler failures.
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync sends an event to handlers asynchronously
	// Does not wait for handlers to complete
	DispatchAsync(ctx context.Context, evt *event.Event)

	// Execute attempts a list of effects, best-effort. Failures are logged
	// and reported to the result hook, never returned.
	Execute(ctx context.Context, effects []*event.Event)

	// ListHandlers returns registered handlers for an event type
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close shuts down the dispatcher and waits for async handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// eventDispatcher is the concrete implementation of Dispatcher
type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger
	hook     ResultHook
	async    bool

	// closed is guarded by mu; wg.Add only happens under the read lock
	wg     sync.WaitGroup
	closed bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// WithResultHook sets a hook observing every handler outcome
func WithResultHook(hook ResultHook) Option {
	return func(d *eventDispatcher) {
		d.hook = hook
	}
}

// WithAsync makes Execute run effects in the background instead of inline
func WithAsync(async bool) Option {
	return func(d *eventDispatcher) {
		d.async = async
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// SubscribeNamed registers a handler with a specific name for debugging
func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	}

	d.handlers[eventType] = append(d.handlers[eventType], info)

	if d.logger != nil {
		d.logger.Info("Handler registered",
			"event_type", eventType,
			"handler_name", name,
		)
	}
}

// Dispatch sends an event to all registered handlers synchronously
func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.mu.RLock()
	closed := d.closed
	handlers := append([]HandlerInfo(nil), d.handlers[evt.Type]...)
	d.mu.RUnlock()

	if closed {
		return fmt.Errorf("dispatcher is closed")
	}

	if len(handlers) == 0 && d.logger != nil {
		d.logger.Info("No handler for event",
			"event_type", evt.Type,
			"event_id", evt.ID,
		)
	}

	var errs []error
	for _, info := range handlers {
		if err := d.run(ctx, evt, info); err != nil {
			errs = append(errs, fmt.Errorf("handler %s failed: %w", info.Name, err))
		}
	}

	return errors.Join(errs...)
}

// DispatchAsync sends an event to handlers asynchronously
func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		if d.logger != nil {
			d.logger.Error("Cannot dispatch async event, dispatcher is closed",
				"event_type", evt.Type,
				"event_id", evt.ID,
			)
		}
		return
	}

	// Effects outlive the request that produced them
	ctx = context.WithoutCancel(ctx)

	for _, info := range d.handlers[evt.Type] {
		d.wg.Add(1)
		go func(h HandlerInfo) {
			defer d.wg.Done()
			_ = d.run(ctx, evt, h)
		}(info)
	}
}

// Execute attempts a list of effects, best-effort
func (d *eventDispatcher) Execute(ctx context.Context, effects []*event.Event) {
	for _, evt := range effects {
		if d.async {
			d.DispatchAsync(ctx, evt)
			continue
		}
		// Failures are already logged per handler
		_ = d.Dispatch(ctx, evt)
	}
}

// ListHandlers returns registered handlers for an event type
func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	handlers := d.handlers[eventType]
	result := make([]HandlerInfo, len(handlers))

	for i, h := range handlers {
		result[i] = HandlerInfo{
			Name:      h.Name,
			EventType: h.EventType,
		}
	}

	return result
}

// Close shuts down the dispatcher and waits for async handlers to complete
func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Info("Closing dispatcher, waiting for async handlers")
	}

	d.wg.Wait()

	if d.logger != nil {
		d.logger.Info("Dispatcher closed")
	}

	return nil
}

// run executes one handler, logs a failure and reports the outcome to the hook
func (d *eventDispatcher) run(ctx context.Context, evt *event.Event, info HandlerInfo) error {
	err := d.safeExecute(ctx, evt, info)
	if err != nil && d.logger != nil {
		d.logger.Error("Handler error",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"correlation_id", evt.CorrelationID,
			"process_id", evt.ProcessID,
			"handler_name", info.Name,
			"error", err,
		)
	}
	if d.hook != nil {
		d.hook(evt, info.Name, err)
	}
	return err
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return info.Handler(ctx, evt)
}
