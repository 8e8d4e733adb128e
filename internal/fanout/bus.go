// Package fanout carries change notifications between server processes.
//
// A Bus publishes a short payload on a topic (an event's public token) and
// hands every payload published by any process, including this one, to a
// single Receiver. Payloads are invalidation hints: a receiver that misses
// one recovers on the next.
package fanout

import "context"

// Receiver is called for every message seen on the bus.
type Receiver func(topic, payload string)

// Bus is a best-effort, fire-and-forget broadcast channel.
type Bus interface {
	// Publish sends payload on topic. Failures are logged, never returned.
	Publish(ctx context.Context, topic, payload string)
	// SetReceiver replaces the receiver for inbound messages.
	SetReceiver(r Receiver)
	Close() error
}
