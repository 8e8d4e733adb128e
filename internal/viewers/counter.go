// Package viewers counts live connections per event across processes.
//
// Every backend keeps one counter per event under Key(eventID) and refreshes
// a TTL expiry on each change, so counters abandoned by crashed processes
// eventually disappear. Failures are logged and swallowed.
package viewers

import (
	"context"
	"time"
)

// TTL is how long a counter survives without changes.
const TTL = 7 * 24 * time.Hour

// Counter tracks the number of live viewers of each event.
type Counter interface {
	Add(ctx context.Context, eventID string)
	Remove(ctx context.Context, eventID string)
	// Count never returns a negative value; errors read as zero.
	Count(ctx context.Context, eventID string) int64
}

// Key returns the counter key for an event.
func Key(eventID string) string {
	return "viewers/" + eventID
}
