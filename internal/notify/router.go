// Package notify routes change notifications to the live connections
// watching each event.
//
// The Router is the receiving end of the fanout bus: every process runs one,
// and every process's router sees every message. A router only delivers to
// connections registered with it, and only to those watching the message's
// event.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alfredjeanlab/liveqa/internal/viewers"
)

// Message is one change notification for a single event.
type Message struct {
	ID      uint64 // per-router sequence number
	EventID string
	Payload string
}

// Conn is a live client connection.
type Conn interface {
	ID() string
	// Deliver queues m without blocking and reports whether it was
	// accepted. A full connection drops the message.
	Deliver(m Message) bool
}

// Router tracks which connections watch which event.
type Router struct {
	mu      sync.RWMutex
	byEvent map[string]map[string]Conn // event id -> conn id -> conn
	byConn  map[string]string          // conn id -> event id

	counter viewers.Counter
	logger  *slog.Logger
	nextID  atomic.Uint64
	dropped atomic.Uint64
}

// NewRouter creates a router that reports registrations to counter, which
// may be nil.
func NewRouter(counter viewers.Counter, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		byEvent: make(map[string]map[string]Conn),
		byConn:  make(map[string]string),
		counter: counter,
		logger:  logger,
	}
}

// Register starts delivering eventID's notifications to c. A connection
// already watching another event is moved.
func (r *Router) Register(ctx context.Context, eventID string, c Conn) {
	r.mu.Lock()
	prev, moved := r.byConn[c.ID()]
	if moved {
		if prev == eventID {
			r.mu.Unlock()
			return
		}
		r.removeLocked(prev, c.ID())
	}
	conns, ok := r.byEvent[eventID]
	if !ok {
		conns = make(map[string]Conn)
		r.byEvent[eventID] = conns
	}
	conns[c.ID()] = c
	r.byConn[c.ID()] = eventID
	r.mu.Unlock()

	if r.counter != nil {
		if moved {
			r.counter.Remove(ctx, prev)
		}
		r.counter.Add(ctx, eventID)
	}
	r.logger.Debug("notify: registered", "event", eventID, "conn", c.ID())
}

// Deregister stops all deliveries to c. It is safe to call more than once.
func (r *Router) Deregister(ctx context.Context, c Conn) {
	r.mu.Lock()
	eventID, ok := r.byConn[c.ID()]
	if ok {
		r.removeLocked(eventID, c.ID())
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if r.counter != nil {
		r.counter.Remove(ctx, eventID)
	}
	r.logger.Debug("notify: deregistered", "event", eventID, "conn", c.ID())
}

func (r *Router) removeLocked(eventID, connID string) {
	delete(r.byConn, connID)
	conns := r.byEvent[eventID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byEvent, eventID)
	}
}

// OnEventChanged delivers payload to every local connection watching
// eventID. It has the shape of a fanout.Receiver.
func (r *Router) OnEventChanged(eventID, payload string) {
	msg := Message{ID: r.nextID.Add(1), EventID: eventID, Payload: payload}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byEvent[eventID] {
		if !c.Deliver(msg) {
			r.dropped.Add(1)
			r.logger.Debug("notify: connection full, dropped message", "event", eventID, "conn", c.ID())
		}
	}
}

// Connections returns the number of local connections watching eventID.
func (r *Router) Connections(eventID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEvent[eventID])
}

// Dropped returns how many deliveries were refused by full connections.
func (r *Router) Dropped() uint64 {
	return r.dropped.Load()
}
