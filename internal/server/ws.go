package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alfredjeanlab/liveqa/internal/notify"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsPongTimeout  = 2 * wsPingInterval
)

// WSMessage is the JSON frame pushed to WebSocket clients.
type WSMessage struct {
	ID      uint64 `json:"id"`
	Event   string `json:"event"`
	Payload string `json:"payload"`
}

// WSCommand is the JSON frame a WebSocket client may send. Watch moves the
// connection to another event.
type WSCommand struct {
	Watch string `json:"watch"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWebSocket handles GET /v1/events/{token}/ws. The read loop owns the
// registration: when it exits the connection is deregistered and the write
// pump stops.
func (s *QAServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if _, err := s.GetEvent(r.Context(), token); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	wc, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	// The request context ends with the hijacked handler, not the socket.
	ctx := context.WithoutCancel(r.Context())
	conn := notify.NewChanConn(notify.DefaultBuffer)
	s.router.Register(ctx, token, conn)

	done := make(chan struct{})
	go s.wsWrite(wc, conn, done)
	err = s.wsRead(ctx, wc, conn)
	close(done)
	s.router.Deregister(ctx, conn)
	if err != nil {
		s.logger.Warn("websocket read failed", "conn", conn.ID(), "err", err)
	}
}

func (s *QAServer) wsRead(ctx context.Context, wc *websocket.Conn, conn *notify.ChanConn) error {
	wc.SetReadLimit(4096)
	wc.SetReadDeadline(time.Now().Add(wsPongTimeout))
	wc.SetPongHandler(func(string) error {
		return wc.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	for {
		op, data, err := wc.ReadMessage()
		if err != nil {
			// Anything but an abnormal close frame is a client going away.
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return err
			}
			return nil
		}
		if op != websocket.TextMessage {
			continue
		}
		var cmd WSCommand
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Watch == "" {
			s.logger.Debug("websocket: ignoring frame", "conn", conn.ID())
			continue
		}
		if _, err := s.GetEvent(ctx, cmd.Watch); err != nil {
			s.logger.Debug("websocket: watch rejected", "conn", conn.ID(), "event", cmd.Watch, "err", err)
			continue
		}
		s.router.Register(ctx, cmd.Watch, conn)
	}
}

func (s *QAServer) wsWrite(wc *websocket.Conn, conn *notify.ChanConn, done <-chan struct{}) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	defer wc.Close()
	for {
		select {
		case <-done:
			wc.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			wc.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case m := <-conn.C():
			wc.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := wc.WriteJSON(WSMessage{ID: m.ID, Event: m.EventID, Payload: m.Payload}); err != nil {
				return
			}
		case <-ping.C:
			wc.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
