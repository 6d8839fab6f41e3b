package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opencode-ai/toolgate/internal/event"
)

// StreamKinds are the message kinds forwarded on /event.
var StreamKinds = []event.Kind{
	event.KindToolConfirmationRequest,
	event.KindToolConfirmationResponse,
	event.KindQuestionRequest,
	event.KindQuestionResponse,
	event.KindPlanApprovalRequest,
	event.KindPlanApprovalResponse,
	event.KindModeChanged,
}

// StreamEvent is one SSE payload: {"type": "...", "properties": {...}}.
type StreamEvent struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second
)

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes an SSE event.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}

	// ResponseController reaches through middleware wrappers.
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// events handles GET /event. Every request, response and mode change on
// the bus is streamed until the client disconnects. The optional kind query
// parameter (repeatable) narrows the stream.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	kinds := StreamKinds
	if q := r.URL.Query()["kind"]; len(q) > 0 {
		kinds = make([]event.Kind, 0, len(q))
		for _, k := range q {
			kinds = append(kinds, event.Kind(k))
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	stream, err := s.bus.Tap(r.Context(), kinds...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if err := sse.writeEvent("message", StreamEvent{Type: "server.connected", Properties: json.RawMessage(`{}`)}); err != nil {
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			err := sse.writeEvent("message", StreamEvent{
				Type:       msg.Metadata.Get(event.MetadataKind),
				Properties: json.RawMessage(msg.Payload),
			})
			msg.Ack()
			if err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
