package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alfredjeanlab/liveqa/internal/notify"
)

// sseKeepaliveInterval is how often keepalive comments are sent to
// prevent connection timeouts.
const sseKeepaliveInterval = 15 * time.Second

// handleEventStream handles GET /v1/events/{token}/stream (SSE endpoint).
// Each change notification for the event becomes one SSE message whose data
// is the payload hint; clients re-fetch what the hint names.
func (s *QAServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	token := r.PathValue("token")
	if _, err := s.GetEvent(r.Context(), token); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	conn := notify.NewChanConn(notify.DefaultBuffer)
	s.router.Register(r.Context(), token, conn)
	defer s.router.Deregister(context.WithoutCancel(r.Context()), conn)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ":ready %s\n\n", conn.ID())
	flusher.Flush()

	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-conn.C():
			writeSSEMessage(w, m)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEMessage writes a single SSE message to the writer.
func writeSSEMessage(w http.ResponseWriter, m notify.Message) {
	fmt.Fprintf(w, "id:%d\n", m.ID)
	fmt.Fprintf(w, "event:%s\n", m.EventID)
	fmt.Fprintf(w, "data:%s\n\n", m.Payload)
}
