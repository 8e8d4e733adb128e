// Package store defines the versioned record store that holds events, and the
// optimistic read-modify-write cycle every mutation goes through.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/liveqa/internal/codec"
	"github.com/alfredjeanlab/liveqa/internal/model"
)

var (
	// ErrNotFound is returned when no live record exists under a key.
	ErrNotFound = errors.New("record not found")

	// ErrConcurrency is returned by Put when the stored version is not the
	// one the caller read.
	ErrConcurrency = errors.New("concurrent modification")

	// ErrExists is returned by a version-0 Put against a populated key.
	ErrExists = fmt.Errorf("record already exists: %w", ErrConcurrency)

	// ErrConflict is returned by Mutate once every attempt lost a race.
	ErrConflict = fmt.Errorf("too many concurrent modifications: %w", ErrConcurrency)
)

// MaxAttempts bounds the read-modify-write attempts made by Mutate.
const MaxAttempts = 3

// Store persists event records under their public token.
//
// Put writes rec conditionally: a record at Version 0 must not exist yet, and
// a record at Version n replaces only the stored record at Version n-1.
type Store interface {
	Get(ctx context.Context, token string) (*model.Record, error)
	Put(ctx context.Context, rec *model.Record) error
	Close() error
}

// KeyLocker is implemented by stores that can serialize writers of one key
// within a process. Mutate holds the lock for one full attempt.
type KeyLocker interface {
	LockKey(token string) (unlock func())
}

// Key returns the store key for a public token.
func Key(token string) string {
	return codec.Key(token)
}

// Expired reports whether a record's TTL has passed at now.
func Expired(ttl *int64, now time.Time) bool {
	return ttl != nil && *ttl <= now.Unix()
}

// Create stores a new event at version 0.
func Create(ctx context.Context, s Store, ev *model.Event) (*model.Record, error) {
	rec := &model.Record{
		Version: 0,
		Format:  codec.CurrentFormat,
		TTL:     ev.Expiry(),
		Event:   ev,
	}
	if err := s.Put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Mutate reads the record for token, applies fn to its event and writes it
// back at the next version. A lost race restarts from a fresh read, up to
// MaxAttempts times, after which ErrConflict is returned. An error from fn
// aborts immediately and is returned unchanged.
func Mutate(ctx context.Context, s Store, token string, fn func(*model.Event) error) (*model.Record, error) {
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		rec, err := mutateOnce(ctx, s, token, fn)
		if err == nil {
			return rec, nil
		}
		var ae *abortedError
		if errors.As(err, &ae) {
			return nil, ae.err
		}
		if !errors.Is(err, ErrConcurrency) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, ErrConflict
}

// abortedError carries an error returned by the caller's transform, which
// must never be retried even if it wraps ErrConcurrency.
type abortedError struct{ err error }

func (e *abortedError) Error() string { return e.err.Error() }

func mutateOnce(ctx context.Context, s Store, token string, fn func(*model.Event) error) (*model.Record, error) {
	if kl, ok := s.(KeyLocker); ok {
		unlock := kl.LockKey(token)
		defer unlock()
	}
	rec, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := fn(rec.Event); err != nil {
		return nil, &abortedError{err: err}
	}
	rec.Version++
	rec.Format = codec.CurrentFormat
	rec.TTL = rec.Event.Expiry()
	if err := s.Put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
