package realtime

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// sseConn buffers frames for one event-stream response.
type sseConn struct {
	id        string
	ch        chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func (c *sseConn) ID() string { return c.id }

func (c *sseConn) Enqueue(f Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.ch <- f:
		return true
	default:
		return false
	}
}

func (c *sseConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// SetSSEHeaders applies headers that keep event streams stable across proxies.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Content-Type-Options", "nosniff")
}

func WriteSSE(w http.ResponseWriter, f Frame) error {
	if f.Seq > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", f.Seq); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", f.Event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", f.Payload); err != nil {
		return err
	}
	return nil
}

// ServeSSE streams one room's events until the client leaves or the room settles.
func ServeSSE(w http.ResponseWriter, r *http.Request, hub *Hub, roomID string, sendBuffer int, pingInterval time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming_unsupported"}`, http.StatusInternalServerError)
		return
	}
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	if pingInterval <= 0 {
		pingInterval = 15 * time.Second
	}
	c := &sseConn{id: newConnID(), ch: make(chan Frame, sendBuffer), done: make(chan struct{})}
	if err := hub.Subscribe(r.Context(), c, roomID); err != nil {
		code, status := errorCode(err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"error":%q}`, code)
		return
	}
	defer hub.UnsubscribeAll(c.id)
	defer c.Close()
	metricConnectionsTotal.Add(1)
	metricConnectionsActive.Add(1)
	defer metricConnectionsActive.Add(-1)

	SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case f := <-c.ch:
			if err := WriteSSE(w, f); err != nil {
				return
			}
			flusher.Flush()
			if f.Event == EventRoomSettled {
				return
			}
		case <-ticker.C:
			ping := Frame{Event: EventPing, Payload: []byte(fmt.Sprintf(`{"ts":%d}`, time.Now().UnixMilli()))}
			if err := WriteSSE(w, ping); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
