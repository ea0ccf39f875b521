package dispatcher

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/event"
)

// Handler executes one kind of effect
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}

// ResultHook observes the outcome of every handler execution. err is nil on success.
type ResultHook func(evt *event.Event, handlerName string, err error)
