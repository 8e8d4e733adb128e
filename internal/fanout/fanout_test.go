package fanout

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// startTestNATS starts an embedded NATS server on port (-1 for any) and
// returns it.
func startTestNATS(t *testing.T, port int) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: port}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv
}

type message struct{ topic, payload string }

// collector records received messages.
type collector struct {
	ch chan message
}

func newCollector() *collector {
	return &collector{ch: make(chan message, 16)}
}

func (c *collector) receive(topic, payload string) {
	c.ch <- message{topic, payload}
}

func (c *collector) expect(t *testing.T, want message) {
	t.Helper()
	select {
	case got := <-c.ch:
		if got != want {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %+v", want)
	}
}

func (c *collector) expectNone(t *testing.T) {
	t.Helper()
	select {
	case got := <-c.ch:
		t.Fatalf("unexpected message %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitConnected(t *testing.T, b *NATSBus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !b.Connected() {
		if time.Now().After(deadline) {
			t.Fatal("bus never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newTestBus(t *testing.T, url string, opts NATSOptions) *NATSBus {
	t.Helper()
	if opts.Backoff == 0 {
		opts.Backoff = 50 * time.Millisecond
	}
	b := NewNATSBus(url, opts)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestPayloads(t *testing.T) {
	if got := PayloadQuestion(7); got != "q:7" {
		t.Errorf("PayloadQuestion(7) = %q", got)
	}
	for _, tc := range []struct {
		payload string
		id      int
		ok      bool
	}{
		{"q:7", 7, true},
		{"q:123", 123, true},
		{"q:", 0, false},
		{"q:x", 0, false},
		{"e", 0, false},
		{PayloadDeleted, 0, false},
	} {
		id, ok := QuestionID(tc.payload)
		if id != tc.id || ok != tc.ok {
			t.Errorf("QuestionID(%q) = %d, %v; want %d, %v", tc.payload, id, ok, tc.id, tc.ok)
		}
	}
}

func TestLocalBus(t *testing.T) {
	b := NewLocalBus()
	b.Publish(context.Background(), "42", "q:1") // no receiver yet

	c := newCollector()
	b.SetReceiver(c.receive)
	b.Publish(context.Background(), "42", "q:7")
	c.expect(t, message{"42", "q:7"})
	if err := b.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNATSBus_CrossProcessDelivery(t *testing.T) {
	srv := startTestNATS(t, -1)

	recvA, recvB := newCollector(), newCollector()
	a := newTestBus(t, srv.ClientURL(), NATSOptions{})
	a.SetReceiver(recvA.receive)
	b := newTestBus(t, srv.ClientURL(), NATSOptions{})
	b.SetReceiver(recvB.receive)
	waitConnected(t, a)
	waitConnected(t, b)

	a.Publish(context.Background(), "42", "q:7")
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	recvB.expect(t, message{"42", "q:7"})
	recvA.expect(t, message{"42", "q:7"})
}

func TestNATSBus_PrefixIsolation(t *testing.T) {
	srv := startTestNATS(t, -1)

	recvA, recvB := newCollector(), newCollector()
	a := newTestBus(t, srv.ClientURL(), NATSOptions{Prefix: "tenant-a"})
	a.SetReceiver(recvA.receive)
	b := newTestBus(t, srv.ClientURL(), NATSOptions{Prefix: "tenant-b"})
	b.SetReceiver(recvB.receive)
	waitConnected(t, a)
	waitConnected(t, b)

	if got := a.Subject("ev1"); got != "tenant-a.ev1" {
		t.Errorf("Subject = %q", got)
	}

	a.Publish(context.Background(), "ev1", PayloadState)
	a.Flush()
	recvA.expect(t, message{"ev1", "s"})
	recvB.expectNone(t)
}

func TestNATSBus_InvalidTopicDropped(t *testing.T) {
	srv := startTestNATS(t, -1)
	c := newCollector()
	b := newTestBus(t, srv.ClientURL(), NATSOptions{})
	b.SetReceiver(c.receive)
	waitConnected(t, b)

	for _, topic := range []string{"", "a.b", "a*", "a>"} {
		b.Publish(context.Background(), topic, "e")
	}
	b.Flush()
	c.expectNone(t)
}

func TestNATSBus_RetriesUntilServerAppears(t *testing.T) {
	// Reserve a port, then free it so the first attempts fail.
	probe := startTestNATS(t, -1)
	port := probe.Addr().(*net.TCPAddr).Port
	url := probe.ClientURL()
	probe.Shutdown()
	probe.WaitForShutdown()

	var ups atomic.Int32
	b := newTestBus(t, url, NATSOptions{OnStatus: func(connected bool) {
		if connected {
			ups.Add(1)
		}
	}})
	time.Sleep(150 * time.Millisecond)
	if b.Connected() {
		t.Fatalf("connected with no server at %s", url)
	}

	startTestNATS(t, port)
	waitConnected(t, b)
	if ups.Load() == 0 {
		t.Error("status handler never saw the connection come up")
	}
}

func TestNATSBus_CloseStopsLoop(t *testing.T) {
	srv := startTestNATS(t, -1)
	b := NewNATSBus(srv.ClientURL(), NATSOptions{Backoff: 10 * time.Millisecond})
	waitConnected(t, b)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Close()
	}()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return")
	}
	if b.Connected() {
		t.Error("still connected after Close")
	}
	// Publishing after Close is a logged no-op.
	b.Publish(context.Background(), "42", "e")
}
