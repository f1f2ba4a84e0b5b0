package web

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/intake/internal/intake"
)

// subscriberBuffer is how many events a slow SSE client may lag behind.
const subscriberBuffer = 32

// hub fans controller events out to SSE subscribers of one session.
type hub struct {
	mu     sync.Mutex
	subs   map[chan intake.Event]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan intake.Event]struct{})}
}

func (h *hub) subscribe() (<-chan intake.Event, func()) {
	ch := make(chan intake.Event, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subs[ch] = struct{}{}
	}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// close ends every subscription; later subscriptions end at once.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}

// publish never blocks; a full subscriber misses the event.
func (h *hub) publish(ev intake.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("web: sse subscriber lagging, dropped %s event", ev.Kind)
		}
	}
}

// handleEvents streams controller events for one session.
func (s *Server) handleEvents(c *gin.Context, e *entry) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events, unsubscribe := e.hub.subscribe()
	defer unsubscribe()

	writeSSE(c.Writer, "connected", e.ctrl.State())
	c.Writer.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeSSE(c.Writer, string(ev.Kind), ev)
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
