package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Stream joins topic and writes its notifications to w as Server-Sent
// Events until the client disconnects. A comment line is written every
// keepAlive so idle proxies keep the connection open.
func (h *Hub) Stream(w http.ResponseWriter, r *http.Request, topic string, keepAlive time.Duration) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported by response writer")
	}

	l := h.Join(topic)
	defer h.Leave(l)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, ": subscribed %s\n\n", topic); err != nil {
		return err
	}
	flusher.Flush()

	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		case n, ok := <-l.C():
			if !ok {
				return nil
			}
			data, err := json.Marshal(n)
			if err != nil {
				return fmt.Errorf("failed to marshal notification: %w", err)
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Event, data); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}
