package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "liveqa.events"

// DefaultBackoff is the wait between failed connection attempts.
const DefaultBackoff = 2 * time.Second

// NATSOptions configures a NATSBus.
type NATSOptions struct {
	Prefix  string
	Backoff time.Duration
	Logger  *slog.Logger

	// OnStatus, if set, is called whenever the connection comes up or goes
	// down.
	OnStatus func(connected bool)

	// Extra options appended to the defaults passed to nats.Connect.
	Options []nats.Option
}

// NATSBus is a Bus spanning every process connected to the same NATS
// server. Topic t travels on subject <prefix>.<t>; the bus subscribes to
// <prefix>.> and strips the prefix before calling the receiver.
//
// A background loop owns the connection: it connects, subscribes, and on a
// failed attempt or a closed connection waits Backoff and starts over, until
// Close.
type NATSBus struct {
	url     string
	prefix  string
	backoff time.Duration
	logger  *slog.Logger
	status  func(bool)
	extra   []nats.Option

	mu   sync.RWMutex
	nc   *nats.Conn
	recv Receiver

	cancel context.CancelFunc
	done   chan struct{}
}

var _ Bus = (*NATSBus)(nil)

// NewNATSBus starts the connection loop and returns immediately; publishes
// made before the first connection succeeds are dropped.
func NewNATSBus(url string, opts NATSOptions) *NATSBus {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &NATSBus{
		url:     url,
		prefix:  strings.TrimSuffix(opts.Prefix, "."),
		backoff: opts.Backoff,
		logger:  opts.Logger,
		status:  opts.OnStatus,
		extra:   opts.Options,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go b.run(ctx)
	return b
}

// Subject returns the NATS subject carrying topic.
func (b *NATSBus) Subject(topic string) string {
	return b.prefix + "." + topic
}

func (b *NATSBus) Publish(_ context.Context, topic, payload string) {
	if !validTopic(topic) {
		b.logger.Warn("fanout: invalid topic, dropping publish", "topic", topic)
		return
	}
	nc := b.conn()
	if nc == nil {
		b.logger.Warn("fanout: not connected, dropping publish", "topic", topic)
		return
	}
	if err := nc.Publish(b.Subject(topic), []byte(payload)); err != nil {
		b.logger.Warn("fanout: publish failed", "topic", topic, "err", err)
	}
}

func (b *NATSBus) SetReceiver(r Receiver) {
	b.mu.Lock()
	b.recv = r
	b.mu.Unlock()
}

// Connected reports whether the bus currently holds a live connection.
func (b *NATSBus) Connected() bool {
	nc := b.conn()
	return nc != nil && nc.IsConnected()
}

// Flush waits until the server has processed everything published so far.
func (b *NATSBus) Flush() error {
	nc := b.conn()
	if nc == nil {
		return nats.ErrConnectionClosed
	}
	return nc.Flush()
}

// Close stops the connection loop and closes the connection.
func (b *NATSBus) Close() error {
	b.cancel()
	<-b.done
	return nil
}

func (b *NATSBus) conn() *nats.Conn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nc
}

func (b *NATSBus) setConn(nc *nats.Conn) {
	b.mu.Lock()
	b.nc = nc
	b.mu.Unlock()
}

func (b *NATSBus) report(connected bool) {
	if b.status != nil {
		b.status(connected)
	}
}

func (b *NATSBus) run(ctx context.Context) {
	defer close(b.done)
	for {
		err := b.session(ctx)
		if ctx.Err() != nil {
			return
		}
		b.logger.Warn("fanout: bus connection lost, retrying", "url", b.url, "err", err, "backoff", b.backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.backoff):
		}
	}
}

var errClosed = errors.New("connection closed")

// session holds one connection until it closes or ctx is cancelled.
func (b *NATSBus) session(ctx context.Context) error {
	closed := make(chan struct{})
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(b.backoff),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("fanout: disconnected", "err", err)
			}
			b.report(false)
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			b.logger.Info("fanout: reconnected", "url", b.url)
			b.report(true)
		}),
	}
	nc, err := nats.Connect(b.url, append(opts, b.extra...)...)
	if err != nil {
		return fmt.Errorf("connecting to NATS at %s: %w", b.url, err)
	}

	subject := b.prefix + ".>"
	if _, err := nc.Subscribe(subject, b.dispatch); err != nil {
		nc.Close()
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	// Flush ensures the subscription is registered on the server before
	// publishes from other processes are expected to arrive.
	if err := nc.Flush(); err != nil {
		nc.Close()
		return fmt.Errorf("flushing subscription: %w", err)
	}

	b.setConn(nc)
	b.report(true)
	b.logger.Info("fanout: bus connected", "url", b.url, "subject", subject)

	select {
	case <-ctx.Done():
		b.setConn(nil)
		nc.Close()
		return ctx.Err()
	case <-closed:
		b.setConn(nil)
		b.report(false)
		return errClosed
	}
}

// dispatch hands each message to the receiver on its own goroutine so a
// slow receiver never stalls the NATS client.
func (b *NATSBus) dispatch(msg *nats.Msg) {
	topic, ok := strings.CutPrefix(msg.Subject, b.prefix+".")
	if !ok {
		return
	}
	b.mu.RLock()
	recv := b.recv
	b.mu.RUnlock()
	if recv != nil {
		go recv(topic, string(msg.Data))
	}
}

// validTopic rejects topics that would change the subject's token structure.
func validTopic(topic string) bool {
	return topic != "" && !strings.ContainsAny(topic, ".*> \t\r\n")
}
