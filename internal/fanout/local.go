package fanout

import (
	"context"
	"sync"
)

// LocalBus delivers every publish straight to the receiver. It only reaches
// connections held by this process.
type LocalBus struct {
	mu   sync.RWMutex
	recv Receiver
}

var _ Bus = (*LocalBus)(nil)

// NewLocalBus returns a bus with no receiver.
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Publish(_ context.Context, topic, payload string) {
	b.mu.RLock()
	recv := b.recv
	b.mu.RUnlock()
	if recv != nil {
		recv(topic, payload)
	}
}

func (b *LocalBus) SetReceiver(r Receiver) {
	b.mu.Lock()
	b.recv = r
	b.mu.Unlock()
}

func (b *LocalBus) Close() error { return nil }
