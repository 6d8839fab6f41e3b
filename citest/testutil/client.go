package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opencode-ai/toolgate/internal/event"
	"github.com/opencode-ai/toolgate/internal/permission"
	"github.com/opencode-ai/toolgate/internal/server"
)

// TestClient talks JSON to a running toolgate server.
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient creates a client for baseURL.
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// JSON unmarshals the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode/100 == 2
}

func (c *TestClient) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *TestClient) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *TestClient) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

func (c *TestClient) do(ctx context.Context, method, path string, body any) (*Response, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func decodeOK[T any](resp *Response, err error, what string) (*T, error) {
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%s: %d - %s", what, resp.StatusCode, resp.Body)
	}
	var v T
	if err := resp.JSON(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetMode returns the current approval mode.
func (c *TestClient) GetMode(ctx context.Context) (*server.ModeResponse, error) {
	resp, err := c.Get(ctx, "/mode")
	return decodeOK[server.ModeResponse](resp, err, "get mode")
}

// SetMode switches the approval mode. The raw response is returned so that
// callers can inspect refused transitions.
func (c *TestClient) SetMode(ctx context.Context, mode string) (*Response, error) {
	return c.Put(ctx, "/mode", server.SetModeRequest{Mode: mode})
}

// Decide evaluates a call without running it.
func (c *TestClient) Decide(ctx context.Context, req server.DecideRequest) (*permission.Evaluation, error) {
	resp, err := c.Post(ctx, "/decide", req)
	return decodeOK[permission.Evaluation](resp, err, "decide")
}

// PendingConfirmation is one entry of GET /confirmation with the request
// left undecoded.
type PendingConfirmation struct {
	ID           string          `json:"id"`
	Kind         event.Kind      `json:"kind"`
	ResponseKind event.Kind      `json:"responseKind"`
	Request      json.RawMessage `json:"request"`
	Started      time.Time       `json:"started"`
}

// Pending lists outstanding confirmations.
func (c *TestClient) Pending(ctx context.Context) ([]PendingConfirmation, error) {
	resp, err := c.Get(ctx, "/confirmation")
	infos, err := decodeOK[[]PendingConfirmation](resp, err, "list confirmations")
	if err != nil {
		return nil, err
	}
	return *infos, nil
}

// Answer responds to an outstanding confirmation.
func (c *TestClient) Answer(ctx context.Context, id string, answer server.AnswerRequest) (*Response, error) {
	return c.Post(ctx, "/confirmation/"+id, answer)
}

// Check asks the server whether a call may run. It blocks while the
// operator is asked; the raw response carries the refusal status.
func (c *TestClient) Check(ctx context.Context, req permission.Request) (*Response, error) {
	return c.Post(ctx, "/check", req)
}
