package headless

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/toolgate/internal/event"
	"github.com/opencode-ai/toolgate/internal/logging"
)

// AutoFeedback is the feedback attached to automatic rejections.
const AutoFeedback = "rejected automatically (--auto-reject)"

// AutoResponder answers every confirmation, question and plan approval
// request on the bus without operator input. It is used by --auto-approve
// and --auto-reject runs and by tests that need a responsive UI.
//
// Answers are published from a separate goroutine, the way a real UI
// answers after the request has been delivered.
type AutoResponder struct {
	bus     *event.Bus
	approve bool
	log     zerolog.Logger

	mu   sync.Mutex
	subs []event.Subscription
	wg   sync.WaitGroup
	ctx  context.Context
	stop context.CancelFunc
}

// NewAutoResponder creates a responder that approves (or rejects) everything.
func NewAutoResponder(bus *event.Bus, approve bool) *AutoResponder {
	return &AutoResponder{
		bus:     bus,
		approve: approve,
		log:     logging.Component("headless"),
	}
}

// Start subscribes to the request kinds. Calling Start twice is a no-op.
func (r *AutoResponder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs != nil {
		return
	}
	r.ctx, r.stop = context.WithCancel(context.Background())

	r.subs = []event.Subscription{
		event.Subscribe(r.bus, func(_ context.Context, req event.ToolConfirmationRequest) error {
			r.reply(req.CorrelationID, r.answerTool(req))
			return nil
		}),
		event.Subscribe(r.bus, func(_ context.Context, req event.QuestionRequest) error {
			r.reply(req.CorrelationID, r.answerQuestions(req))
			return nil
		}),
		event.Subscribe(r.bus, func(_ context.Context, req event.PlanApprovalRequest) error {
			r.reply(req.CorrelationID, r.answerPlan(req))
			return nil
		}),
	}
}

// Stop unsubscribes and waits for answers already in flight.
func (r *AutoResponder) Stop() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	stop := r.stop
	r.mu.Unlock()

	for _, s := range subs {
		r.bus.Unsubscribe(s)
	}
	if stop != nil {
		stop()
	}
	r.wg.Wait()
}

func (r *AutoResponder) reply(id string, msg event.Message) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.bus.Publish(r.ctx, msg); err != nil {
			r.log.Warn().Err(err).Str("correlationID", id).Msg("failed to publish automatic answer")
			return
		}
		r.log.Debug().
			Str("correlationID", id).
			Str("kind", string(msg.Kind())).
			Bool("approve", r.approve).
			Msg("answered automatically")
	}()
}

func (r *AutoResponder) answerTool(req event.ToolConfirmationRequest) event.ToolConfirmationResponse {
	if r.approve {
		return event.ToolConfirmationResponse{CorrelationID: req.CorrelationID, Outcome: event.OutcomeProceed}
	}
	return event.ToolConfirmationResponse{
		CorrelationID: req.CorrelationID,
		Outcome:       event.OutcomeCancel,
		Feedback:      AutoFeedback,
	}
}

// answerQuestions picks the first option of every question that has options.
func (r *AutoResponder) answerQuestions(req event.QuestionRequest) event.QuestionResponse {
	if !r.approve {
		return event.QuestionResponse{CorrelationID: req.CorrelationID, Dismissed: true}
	}
	answers := make(map[string][]string, len(req.Questions))
	for _, q := range req.Questions {
		if len(q.Options) > 0 {
			answers[q.Header] = []string{q.Options[0].Label}
		}
	}
	return event.QuestionResponse{CorrelationID: req.CorrelationID, Answers: answers}
}

func (r *AutoResponder) answerPlan(req event.PlanApprovalRequest) event.PlanApprovalResponse {
	if r.approve {
		return event.PlanApprovalResponse{CorrelationID: req.CorrelationID, Approved: true, Mode: "default"}
	}
	return event.PlanApprovalResponse{CorrelationID: req.CorrelationID, Feedback: AutoFeedback}
}
