package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/toolgate/internal/event"
)

// mockResponseWriter implements http.Flusher for testing
type mockResponseWriter struct {
	*httptest.ResponseRecorder
	flushed int
}

func (m *mockResponseWriter) Flush() {
	m.flushed++
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{
		ResponseRecorder: httptest.NewRecorder(),
	}
}

type noFlushWriter struct{}

func (n *noFlushWriter) Header() http.Header       { return http.Header{} }
func (n *noFlushWriter) Write([]byte) (int, error) { return 0, nil }
func (n *noFlushWriter) WriteHeader(int)           {}

func TestNewSSEWriter(t *testing.T) {
	sse, err := newSSEWriter(newMockResponseWriter())
	require.NoError(t, err)
	assert.NotNil(t, sse)

	_, err = newSSEWriter(&noFlushWriter{})
	assert.Error(t, err)
}

func TestSSEWriter_WriteEvent(t *testing.T) {
	w := newMockResponseWriter()
	sse, err := newSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sse.writeEvent("message", StreamEvent{Type: "mode.changed", Properties: json.RawMessage(`{"current":"plan"}`)}))
	assert.Equal(t, "event: message\ndata: {\"type\":\"mode.changed\",\"properties\":{\"current\":\"plan\"}}\n\n", w.Body.String())
	assert.Positive(t, w.flushed)
}

func TestSSEWriter_WriteHeartbeat(t *testing.T) {
	w := newMockResponseWriter()
	sse, err := newSSEWriter(w)
	require.NoError(t, err)

	sse.writeHeartbeat()
	assert.Equal(t, ": heartbeat\n\n", w.Body.String())
	assert.Equal(t, 1, w.flushed)
}

// readEvents decodes SSE data lines into events.
func readEvents(ctx context.Context, body *bufio.Reader, out chan<- StreamEvent) {
	defer close(out)
	for {
		line, err := body.ReadString('\n')
		if err != nil {
			return
		}
		data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok {
			continue
		}
		var evt StreamEvent
		if json.Unmarshal([]byte(data), &evt) != nil {
			continue
		}
		select {
		case out <- evt:
		case <-ctx.Done():
			return
		}
	}
}

func nextEvent(t *testing.T, events <-chan StreamEvent) StreamEvent {
	t.Helper()
	select {
	case evt, ok := <-events:
		require.True(t, ok, "stream closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return StreamEvent{}
}

func TestEventsStream(t *testing.T) {
	ts := setupTestServer(t)
	httpSrv := httptest.NewServer(ts.srv.Router())
	defer httpSrv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/event", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	events := make(chan StreamEvent, 16)
	go readEvents(ctx, bufio.NewReader(resp.Body), events)

	assert.Equal(t, "server.connected", nextEvent(t, events).Type)

	require.NoError(t, ts.mode.Set("plan"))
	evt := nextEvent(t, events)
	assert.Equal(t, string(event.KindModeChanged), evt.Type)
	assert.JSONEq(t, `{"previous":"default","current":"plan"}`, string(evt.Properties))
}

func TestEventsStreamKindFilter(t *testing.T) {
	ts := setupTestServer(t)
	httpSrv := httptest.NewServer(ts.srv.Router())
	defer httpSrv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/event?kind="+string(event.KindQuestionRequest), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	events := make(chan StreamEvent, 16)
	go readEvents(ctx, bufio.NewReader(resp.Body), events)
	assert.Equal(t, "server.connected", nextEvent(t, events).Type)

	// Mode changes are filtered out, so the question is the next event.
	require.NoError(t, ts.mode.Set("plan"))
	require.NoError(t, ts.bus.Publish(context.Background(), event.QuestionRequest{CorrelationID: "q1"}))

	evt := nextEvent(t, events)
	assert.Equal(t, string(event.KindQuestionRequest), evt.Type)
	assert.Contains(t, string(evt.Properties), `"correlationID":"q1"`)
}
