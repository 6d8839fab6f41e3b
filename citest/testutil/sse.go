package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/opencode-ai/toolgate/internal/event"
)

// Connected is the kind of the first message on every stream.
const Connected event.Kind = "server.connected"

// SSEEvent is one decoded /event message.
type SSEEvent struct {
	Type       event.Kind      `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// Decode unmarshals the message properties into v.
func (e *SSEEvent) Decode(v any) error {
	return json.Unmarshal(e.Properties, v)
}

// SSEClient subscribes to the bus stream of a test server and keeps every
// message it sees.
type SSEClient struct {
	url    string
	cancel context.CancelFunc

	mu      sync.Mutex
	seen    []SSEEvent
	next    chan SSEEvent
	readErr error
}

// NewSSEClient creates a client for baseURL. Call Connect to open the stream.
func NewSSEClient(baseURL string) *SSEClient {
	return &SSEClient{url: baseURL, next: make(chan SSEEvent, 256)}
}

// Connect opens path and starts decoding messages in the background.
func (c *SSEClient) Connect(ctx context.Context, path string) error {
	ctx, c.cancel = context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("connect %s: status %d", path, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return fmt.Errorf("connect %s: content type %q", path, ct)
	}

	go func() {
		defer resp.Body.Close()
		c.consume(bufio.NewScanner(resp.Body))
	}()
	return nil
}

// consume splits the stream into frames. Only data lines carry payload;
// heartbeat comments and event names are skipped.
func (c *SSEClient) consume(sc *bufio.Scanner) {
	defer close(c.next)

	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			var evt SSEEvent
			if data.Len() > 0 && json.Unmarshal([]byte(data.String()), &evt) == nil {
				c.record(evt)
			}
			data.Reset()
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			data.WriteString(strings.TrimSpace(payload))
		}
	}

	c.mu.Lock()
	c.readErr = sc.Err()
	c.mu.Unlock()
}

func (c *SSEClient) record(evt SSEEvent) {
	c.mu.Lock()
	c.seen = append(c.seen, evt)
	c.mu.Unlock()

	select {
	case c.next <- evt:
	default:
	}
}

// WaitFor returns the next message of the given kind, discarding others.
func (c *SSEClient) WaitFor(kind event.Kind, timeout time.Duration) (*SSEEvent, error) {
	deadline := time.After(timeout)
	for {
		select {
		case evt, ok := <-c.next:
			if !ok {
				c.mu.Lock()
				err := c.readErr
				c.mu.Unlock()
				return nil, fmt.Errorf("stream closed while waiting for %s: %v", kind, err)
			}
			if evt.Type == kind {
				return &evt, nil
			}
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for %s", kind)
		}
	}
}

// Count returns how many messages of kind were received so far.
func (c *SSEClient) Count(kind event.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, evt := range c.seen {
		if evt.Type == kind {
			n++
		}
	}
	return n
}

// Close drops the connection.
func (c *SSEClient) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}
