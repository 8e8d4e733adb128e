package viewers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket is the KV bucket used when none is configured.
const DefaultBucket = "liveqa_viewers"

// casAttempts bounds the compare-and-swap loop of one KV change.
const casAttempts = 16

// KV is a Counter stored in a NATS JetStream key-value bucket, shared by
// every process connected to the same server. The bucket's TTL expires a
// counter that has not changed for TTL.
type KV struct {
	kv     jetstream.KeyValue
	logger *slog.Logger
}

var _ Counter = (*KV)(nil)

// NewKV creates or updates the bucket and returns a counter over it.
func NewKV(ctx context.Context, nc *nats.Conn, bucket string, logger *slog.Logger) (*KV, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	if logger == nil {
		logger = slog.Default()
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "live viewer counts per event",
		TTL:         TTL,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket %s: %w", bucket, err)
	}
	return &KV{kv: kv, logger: logger}, nil
}

func (c *KV) Add(ctx context.Context, eventID string) {
	if err := c.change(ctx, Key(eventID), 1); err != nil {
		c.logger.Warn("viewers: increment failed", "event", eventID, "err", err)
	}
}

func (c *KV) Remove(ctx context.Context, eventID string) {
	if err := c.change(ctx, Key(eventID), -1); err != nil {
		c.logger.Warn("viewers: decrement failed", "event", eventID, "err", err)
	}
}

func (c *KV) Count(ctx context.Context, eventID string) int64 {
	n, _, err := c.read(ctx, Key(eventID))
	if err != nil {
		c.logger.Warn("viewers: read failed", "event", eventID, "err", err)
		return 0
	}
	return max(0, n)
}

// read returns the counter and its revision; revision 0 means absent.
func (c *KV) read(ctx context.Context, key string) (int64, uint64, error) {
	entry, err := c.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	n, err := strconv.ParseInt(string(entry.Value()), 10, 64)
	if err != nil {
		// A corrupt value is overwritten on the next change.
		return 0, entry.Revision(), nil
	}
	return n, entry.Revision(), nil
}

// change applies delta with compare-and-swap, retrying from a fresh read
// when another writer got there first. Every write refreshes the key's age.
func (c *KV) change(ctx context.Context, key string, delta int64) error {
	var lastErr error
	for range casAttempts {
		n, rev, err := c.read(ctx, key)
		if err != nil {
			return err
		}
		value := []byte(strconv.FormatInt(max(0, n+delta), 10))
		if rev == 0 {
			_, err = c.kv.Create(ctx, key, value)
		} else {
			_, err = c.kv.Update(ctx, key, value, rev)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}
	return fmt.Errorf("gave up after %d attempts: %w", casAttempts, lastErr)
}
