package confirm

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/toolgate/internal/event"
	"github.com/opencode-ai/toolgate/internal/logging"
)

// DefaultTimeout bounds how long a confirmation waits for an operator.
const DefaultTimeout = 10 * time.Minute

// Info describes an outstanding confirmation.
type Info struct {
	ID           string        `json:"id"`
	Kind         event.Kind    `json:"kind"`
	ResponseKind event.Kind    `json:"responseKind"`
	Request      event.Message `json:"request"`
	Started      time.Time     `json:"started"`
}

// Coordinator issues confirmation requests on a bus and waits for their
// correlated responses. It is safe for concurrent use; every request is
// independent and may resolve in any order.
type Coordinator struct {
	bus     *event.Bus
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.RWMutex
	pending map[string]Info
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the response ceiling. Zero or negative disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

// New creates a coordinator publishing on bus.
func New(bus *event.Bus, opts ...Option) *Coordinator {
	c := &Coordinator{
		bus:     bus,
		timeout: DefaultTimeout,
		log:     logging.Component("confirm"),
		pending: make(map[string]Info),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the configured response ceiling.
func (c *Coordinator) Timeout() time.Duration { return c.timeout }

// Request publishes the request built for a fresh correlation id and waits
// for the first of: a response of kind Resp carrying the same id, ctx being
// done, or the timeout. Cancellation publishes nothing. The response
// subscription is registered before the request is published and removed
// before Request returns.
func Request[Req event.Message, Resp event.Correlated](ctx context.Context, c *Coordinator, build func(id string) Req) Outcome[Resp] {
	id := ulid.Make().String()
	p := newPending[Resp](id)
	var zero Resp

	if err := ctx.Err(); err != nil {
		p.resolve(StatusCancelled, zero, err)
		return p.result()
	}

	sub := event.Subscribe(c.bus, func(_ context.Context, resp Resp) error {
		if resp.Correlation() != id {
			return nil
		}
		p.resolve(StatusAnswered, resp, nil)
		return nil
	})

	var timer *time.Timer
	if c.timeout > 0 {
		timer = time.AfterFunc(c.timeout, func() {
			p.resolve(StatusTimedOut, zero, ErrTimedOut)
		})
	}

	req := build(id)
	log := c.log.With().Str("correlationID", id).Str("kind", string(req.Kind())).Logger()

	c.track(Info{
		ID:           id,
		Kind:         req.Kind(),
		ResponseKind: zero.Kind(),
		Request:      req,
		Started:      time.Now(),
	})

	defer func() {
		c.bus.Unsubscribe(sub)
		if timer != nil {
			timer.Stop()
		}
		c.untrack(id)
	}()

	if c.bus.Subscribers(req.Kind()) == 0 {
		log.Warn().Msg("no subscribers for confirmation request")
	}
	if err := c.bus.Publish(ctx, req); err != nil {
		// The request may still have reached a UI; keep waiting.
		log.Warn().Err(err).Msg("confirmation request publish failed")
	}

	select {
	case <-p.Done():
	case <-ctx.Done():
		p.resolve(StatusCancelled, zero, context.Cause(ctx))
	}

	out := p.result()
	log.Debug().Str("status", string(out.Status)).Msg("confirmation resolved")
	return out
}

// Confirm asks the operator whether a tool call may run.
func (c *Coordinator) Confirm(ctx context.Context, req event.ToolConfirmationRequest) Outcome[event.ToolConfirmationResponse] {
	return Request[event.ToolConfirmationRequest, event.ToolConfirmationResponse](ctx, c, func(id string) event.ToolConfirmationRequest {
		req.CorrelationID = id
		return req
	})
}

// Ask puts a set of questions to the operator.
func (c *Coordinator) Ask(ctx context.Context, req event.QuestionRequest) Outcome[event.QuestionResponse] {
	return Request[event.QuestionRequest, event.QuestionResponse](ctx, c, func(id string) event.QuestionRequest {
		req.CorrelationID = id
		return req
	})
}

// ApprovePlan asks the operator to approve a plan before leaving plan mode.
func (c *Coordinator) ApprovePlan(ctx context.Context, req event.PlanApprovalRequest) Outcome[event.PlanApprovalResponse] {
	return Request[event.PlanApprovalRequest, event.PlanApprovalResponse](ctx, c, func(id string) event.PlanApprovalRequest {
		req.CorrelationID = id
		return req
	})
}

func (c *Coordinator) track(info Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[info.ID] = info
}

func (c *Coordinator) untrack(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// Pending lists outstanding confirmations, oldest first.
func (c *Coordinator) Pending() []Info {
	c.mu.RLock()
	out := make([]Info, 0, len(c.pending))
	for _, info := range c.pending {
		out = append(out, info)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].ID < out[j].ID
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

// Lookup returns an outstanding confirmation by id.
func (c *Coordinator) Lookup(id string) (Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.pending[id]
	return info, ok
}
