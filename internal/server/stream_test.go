package server

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/liveqa/internal/fanout"
	"github.com/alfredjeanlab/liveqa/internal/model"
	"github.com/alfredjeanlab/liveqa/internal/store/memory"
	"github.com/alfredjeanlab/liveqa/internal/viewers"
)

// sseStream is an open SSE response read line by line.
type sseStream struct {
	lines chan string
}

// openStream connects to the event's SSE endpoint and waits for the ready
// comment, after which the connection is registered.
func openStream(t *testing.T, base, token string) *sseStream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/events/"+token+"/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("open stream: status %d", resp.StatusCode)
	}
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})

	s := &sseStream{lines: make(chan string, 64)}
	go func() {
		defer close(s.lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			s.lines <- sc.Text()
		}
	}()
	s.expectPrefix(t, ":ready ")
	return s
}

func (s *sseStream) expectPrefix(t *testing.T, prefix string) string {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				t.Fatalf("stream closed before %q", prefix)
			}
			if strings.HasPrefix(line, prefix) {
				return line
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", prefix)
		}
	}
}

func TestEventStream(t *testing.T) {
	s, ts := newTestServer(t)
	ev := createEvent(t, ts.URL)
	other := createEvent(t, ts.URL)
	token := ev.Tokens.Public

	stream := openStream(t, ts.URL, token)
	if n := s.Router().Connections(token); n != 1 {
		t.Fatalf("connections = %d, want 1", n)
	}

	var n map[string]int64
	doJSON(t, http.MethodGet, ts.URL+"/v1/events/"+token+"/viewers", nil, &n)
	if n["viewers"] != 1 {
		t.Errorf("viewers = %d, want 1", n["viewers"])
	}

	// A change to another event is not delivered; the next one is.
	doJSON(t, http.MethodPost, ts.URL+"/v1/events/"+other.Tokens.Public+"/questions", map[string]string{"text": "elsewhere"}, nil)
	doJSON(t, http.MethodPost, ts.URL+"/v1/events/"+token+"/questions", map[string]string{"text": "here"}, nil)

	if line := stream.expectPrefix(t, "event:"); line != "event:"+token {
		t.Errorf("event line = %q", line)
	}
	if line := stream.expectPrefix(t, "data:"); line != "data:q:1" {
		t.Errorf("data line = %q", line)
	}
}

func TestEventStream_UnknownEvent(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/v1/events/missing/stream")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func dialWS(t *testing.T, base, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(base, "http") + "/v1/events/" + token + "/ws"
	wc, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { wc.Close() })
	return wc
}

func waitConnections(t *testing.T, s *QAServer, token string, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for s.Router().Connections(token) != want {
		if time.Now().After(deadline) {
			t.Fatalf("connections(%s) = %d, want %d", token, s.Router().Connections(token), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readWS(t *testing.T, wc *websocket.Conn) WSMessage {
	t.Helper()
	wc.SetReadDeadline(time.Now().Add(3 * time.Second))
	var m WSMessage
	if err := wc.ReadJSON(&m); err != nil {
		t.Fatalf("read websocket: %v", err)
	}
	return m
}

func TestWebSocket(t *testing.T) {
	s, ts := newTestServer(t)
	a := createEvent(t, ts.URL).Tokens.Public
	b := createEvent(t, ts.URL).Tokens.Public

	wc := dialWS(t, ts.URL, a)
	waitConnections(t, s, a, 1)

	doJSON(t, http.MethodPut, ts.URL+"/v1/events/"+a+"/state", map[string]string{"state": "voting_closed"}, nil)
	if m := readWS(t, wc); m.Event != a || m.Payload != fanout.PayloadState {
		t.Errorf("message = %+v", m)
	}

	// Switch to event b.
	if err := wc.WriteJSON(WSCommand{Watch: b}); err != nil {
		t.Fatalf("write watch: %v", err)
	}
	waitConnections(t, s, b, 1)
	if n := s.Router().Connections(a); n != 0 {
		t.Errorf("connections(a) = %d after move", n)
	}
	doJSON(t, http.MethodPatch, ts.URL+"/v1/events/"+b, map[string]string{"name": "Renamed"}, nil)
	if m := readWS(t, wc); m.Event != b || m.Payload != fanout.PayloadEvent {
		t.Errorf("message = %+v", m)
	}

	wc.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	waitConnections(t, s, b, 0)
}

func TestHealth(t *testing.T) {
	s, ts := newTestServer(t)
	var got map[string]string
	doJSON(t, http.MethodGet, ts.URL+"/v1/health", nil, &got)
	if got["status"] != "ok" || got["fanout"] != "connected" {
		t.Errorf("health = %v", got)
	}
	s.SetFanoutStatus(false)
	doJSON(t, http.MethodGet, ts.URL+"/v1/health", nil, &got)
	if got["fanout"] != "disconnected" {
		t.Errorf("health after disconnect = %v", got)
	}
}

func TestGRPCHealth(t *testing.T) {
	s, _ := newTestServer(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := NewGRPCServer(s)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	cc, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cc.Close() })
	hc := healthpb.NewHealthClient(cc)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for _, tc := range []struct {
		connected bool
		want      healthpb.HealthCheckResponse_ServingStatus
	}{
		{true, healthpb.HealthCheckResponse_SERVING},
		{false, healthpb.HealthCheckResponse_NOT_SERVING},
	} {
		s.SetFanoutStatus(tc.connected)
		resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: FanoutService})
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if resp.GetStatus() != tc.want {
			t.Errorf("connected=%v: status %v, want %v", tc.connected, resp.GetStatus(), tc.want)
		}
	}

	_, err = hc.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})
	if status.Code(err) != codes.NotFound {
		t.Errorf("unknown service: %v, want NotFound", err)
	}
}

func startTestNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
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

// Two processes share one store and one NATS server: a like on A reaches an
// SSE connection on B.
func TestCrossProcessPush(t *testing.T) {
	nsrv := startTestNATS(t)
	shared := memory.New()
	counter := viewers.NewMemory()

	newInstance := func() (*QAServer, *httptest.Server) {
		bus := fanout.NewNATSBus(nsrv.ClientURL(), fanout.NATSOptions{Backoff: 50 * time.Millisecond})
		s := NewQAServer(Options{Store: shared, Bus: bus, Counter: counter})
		ts := httptest.NewServer(s.NewHTTPHandler())
		t.Cleanup(ts.Close)
		t.Cleanup(func() { s.Close() })
		deadline := time.Now().Add(5 * time.Second)
		for !bus.Connected() {
			if time.Now().After(deadline) {
				t.Fatal("bus never connected")
			}
			time.Sleep(10 * time.Millisecond)
		}
		return s, ts
	}
	_, tsA := newInstance()
	_, tsB := newInstance()

	ev := createEvent(t, tsA.URL)
	token := ev.Tokens.Public
	var q model.Question
	doJSON(t, http.MethodPost, tsA.URL+"/v1/events/"+token+"/questions", map[string]string{"text": "cross"}, &q)

	stream := openStream(t, tsB.URL, token)
	doJSON(t, http.MethodPost, tsA.URL+"/v1/events/"+token+"/questions/1/like", nil, nil)
	if line := stream.expectPrefix(t, "data:"); line != "data:q:1" {
		t.Errorf("data line = %q", line)
	}

	var n map[string]int64
	doJSON(t, http.MethodGet, tsA.URL+"/v1/events/"+token+"/viewers", nil, &n)
	if n["viewers"] != 1 {
		t.Errorf("viewers seen from A = %d, want 1", n["viewers"])
	}
}
