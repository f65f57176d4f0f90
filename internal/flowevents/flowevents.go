// Package flowevents dispatches in-process notifications whenever a flow is
// added, deleted, or overridden, so the REST live-stream endpoint can push
// them to websocket subscribers without polling the RIB.
package flowevents

import (
	"sync"

	"go.uber.org/zap"

	"github.com/upa-network/flowchaind/internal/flow"
)

// Kind identifies what happened to a flow.
type Kind int

const (
	Added Kind = iota
	Deleted
	Overridden
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	case Overridden:
		return "overridden"
	default:
		return "unknown"
	}
}

// Event is one flow lifecycle notification.
type Event struct {
	Kind Kind
	Flow *flow.Flow
}

// Handler is called for each Event.
type Handler func(Event)

// Dispatcher fans out flow lifecycle events to registered handlers. The
// RIB (or the REST layer wrapping it) calls Publish after a successful
// Add/Delete/Override; handlers never block publishing on each other
// because each runs in its own goroutine.
type Dispatcher struct {
	log *zap.Logger

	mu       sync.RWMutex
	handlers []Handler
}

// New creates an empty Dispatcher.
func New(log *zap.Logger) *Dispatcher {
	return &Dispatcher{log: log}
}

// OnEvent registers a handler to receive future events.
func (d *Dispatcher) OnEvent(h Handler) {
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

// Publish notifies every registered handler of ev.
func (d *Dispatcher) Publish(ev Event) {
	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()

	d.log.Debug("flow event", zap.String("kind", ev.Kind.String()), zap.String("flow", ev.Flow.String()))

	for _, h := range handlers {
		go h(ev)
	}
}
