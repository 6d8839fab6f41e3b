package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/toolgate/internal/confirm"
	"github.com/opencode-ai/toolgate/internal/event"
	"github.com/opencode-ai/toolgate/internal/logging"
)

const promptQueueSize = 64

// Lookup reports whether a confirmation is still outstanding.
// *confirm.Coordinator implements it.
type Lookup interface {
	Lookup(id string) (confirm.Info, bool)
}

// Prompter renders confirmation requests as terminal forms. Requests are
// queued by the bus handlers and rendered one at a time by a single
// goroutine, so publishing a request never waits for the operator.
type Prompter struct {
	bus        *event.Bus
	pending    Lookup
	output     io.Writer
	accessible bool
	log        zerolog.Logger

	// runForm is replaced in tests.
	runForm func(ctx context.Context, form *huh.Form) error

	queue chan event.Correlated

	mu     sync.Mutex
	subs   []event.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// PrompterOption configures a Prompter.
type PrompterOption func(*Prompter)

// WithPending skips queued requests that were resolved (by timeout or
// cancellation) before the prompter got to them.
func WithPending(l Lookup) PrompterOption {
	return func(p *Prompter) { p.pending = l }
}

// WithOutput sets where forms are drawn. Defaults to stderr.
func WithOutput(w io.Writer) PrompterOption {
	return func(p *Prompter) { p.output = w }
}

// WithAccessible renders forms as plain prompts for screen readers and
// dumb terminals.
func WithAccessible(accessible bool) PrompterOption {
	return func(p *Prompter) { p.accessible = accessible }
}

// NewPrompter creates a terminal prompter.
func NewPrompter(bus *event.Bus, opts ...PrompterOption) *Prompter {
	p := &Prompter{
		bus:    bus,
		output: os.Stderr,
		log:    logging.Component("prompter"),
		queue:  make(chan event.Correlated, promptQueueSize),
		runForm: func(ctx context.Context, form *huh.Form) error {
			return form.RunWithContext(ctx)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start subscribes to the request kinds and starts the render loop. It
// returns immediately; the loop ends when ctx is done or Stop is called.
func (p *Prompter) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	p.subs = []event.Subscription{
		event.Subscribe(p.bus, func(_ context.Context, req event.ToolConfirmationRequest) error {
			return p.enqueue(req)
		}),
		event.Subscribe(p.bus, func(_ context.Context, req event.QuestionRequest) error {
			return p.enqueue(req)
		}),
		event.Subscribe(p.bus, func(_ context.Context, req event.PlanApprovalRequest) error {
			return p.enqueue(req)
		}),
	}

	go p.loop(ctx, p.done)
}

// Stop unsubscribes, abandons queued requests and waits for the loop to end.
func (p *Prompter) Stop() {
	p.mu.Lock()
	subs, cancel, done := p.subs, p.cancel, p.done
	p.subs, p.cancel, p.done = nil, nil, nil
	p.mu.Unlock()

	for _, s := range subs {
		p.bus.Unsubscribe(s)
	}
	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Prompter) enqueue(req event.Correlated) error {
	select {
	case p.queue <- req:
		return nil
	default:
		return fmt.Errorf("prompt queue full, dropping %s %s", req.Kind(), req.Correlation())
	}
}

func (p *Prompter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-p.queue:
			if p.pending != nil {
				if _, ok := p.pending.Lookup(req.Correlation()); !ok {
					p.log.Debug().Str("correlationID", req.Correlation()).Msg("request already resolved, skipping")
					continue
				}
			}
			resp := p.prompt(ctx, req)
			if resp == nil || ctx.Err() != nil {
				continue
			}
			if err := p.bus.Publish(ctx, resp); err != nil {
				p.log.Warn().Err(err).Str("correlationID", req.Correlation()).Msg("failed to publish answer")
			}
		}
	}
}

// prompt returns the operator's answer, or nil when there is none. A
// prompter stopped while a form is open gives no answer: the request stays
// pending until its caller cancels it or it times out.
func (p *Prompter) prompt(ctx context.Context, req event.Correlated) event.Message {
	var resp event.Message
	switch r := req.(type) {
	case event.ToolConfirmationRequest:
		resp = p.promptTool(ctx, r)
	case event.QuestionRequest:
		resp = p.promptQuestions(ctx, r)
	case event.PlanApprovalRequest:
		resp = p.promptPlan(ctx, r)
	default:
		p.log.Warn().Str("kind", string(req.Kind())).Msg("no prompt for request kind")
		return nil
	}
	if ctx.Err() != nil {
		p.log.Debug().Str("correlationID", req.Correlation()).Msg("prompter stopped, leaving request unanswered")
		return nil
	}
	return resp
}

// run shows a form and reports whether the operator completed it.
func (p *Prompter) run(ctx context.Context, id string, form *huh.Form) bool {
	form.WithOutput(p.output).WithAccessible(p.accessible)
	err := p.runForm(ctx, form)
	if err == nil {
		return true
	}
	if !errors.Is(err, huh.ErrUserAborted) && ctx.Err() == nil {
		p.log.Warn().Err(err).Str("correlationID", id).Msg("prompt failed")
	}
	return false
}

func (p *Prompter) promptTool(ctx context.Context, req event.ToolConfirmationRequest) event.ToolConfirmationResponse {
	outcome := event.OutcomeProceed
	var feedback string

	var details []string
	if req.Reason != "" {
		details = append(details, req.Reason)
	}
	if len(req.Patterns) > 0 {
		details = append(details, "Commands: "+strings.Join(req.Patterns, ", "))
	}
	if req.Diff != "" {
		details = append(details, req.Diff)
	}

	always := "Always allow " + req.ToolName + " this session"
	if len(req.Patterns) > 0 {
		always = "Always allow these commands this session"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title(fmt.Sprintf("%s (%s mode)", req.Title, req.Mode)).
				Description(strings.Join(details, "\n\n")),
			huh.NewSelect[event.ConfirmationOutcome]().
				Title("Allow this call?").
				Options(
					huh.NewOption("Allow once", event.OutcomeProceed),
					huh.NewOption(always, event.OutcomeProceedAlways),
					huh.NewOption("Deny", event.OutcomeCancel),
				).
				Value(&outcome),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Tell the agent what to do instead (optional)").
				Value(&feedback),
		).WithHideFunc(func() bool { return outcome != event.OutcomeCancel }),
	)

	if !p.run(ctx, req.CorrelationID, form) {
		return event.ToolConfirmationResponse{CorrelationID: req.CorrelationID, Outcome: event.OutcomeCancel}
	}
	resp := event.ToolConfirmationResponse{CorrelationID: req.CorrelationID, Outcome: outcome}
	if outcome == event.OutcomeCancel {
		resp.Feedback = strings.TrimSpace(feedback)
	}
	return resp
}

func (p *Prompter) promptQuestions(ctx context.Context, req event.QuestionRequest) event.QuestionResponse {
	single := make(map[string]*string, len(req.Questions))
	multi := make(map[string]*[]string, len(req.Questions))

	fields := make([]huh.Field, 0, len(req.Questions))
	for _, q := range req.Questions {
		opts := make([]huh.Option[string], len(q.Options))
		for i, o := range q.Options {
			label := o.Label
			if o.Description != "" {
				label += " - " + o.Description
			}
			opts[i] = huh.NewOption(label, o.Label)
		}

		switch {
		case len(opts) > 0 && q.MultiSelect:
			v := new([]string)
			multi[q.Header] = v
			fields = append(fields, huh.NewMultiSelect[string]().
				Title(q.Header).
				Description(q.Question).
				Options(opts...).
				Value(v))
		case len(opts) > 0:
			v := q.Options[0].Label
			single[q.Header] = &v
			fields = append(fields, huh.NewSelect[string]().
				Title(q.Header).
				Description(q.Question).
				Options(opts...).
				Value(&v))
		default:
			v := new(string)
			single[q.Header] = v
			fields = append(fields, huh.NewInput().
				Title(q.Header).
				Description(q.Question).
				Value(v))
		}
	}

	if !p.run(ctx, req.CorrelationID, huh.NewForm(huh.NewGroup(fields...))) {
		return event.QuestionResponse{CorrelationID: req.CorrelationID, Dismissed: true}
	}

	answers := make(map[string][]string, len(req.Questions))
	for header, v := range single {
		if s := strings.TrimSpace(*v); s != "" {
			answers[header] = []string{s}
		}
	}
	for header, v := range multi {
		if len(*v) > 0 {
			answers[header] = *v
		}
	}
	return event.QuestionResponse{CorrelationID: req.CorrelationID, Answers: answers}
}

const planReject = "reject"

func (p *Prompter) promptPlan(ctx context.Context, req event.PlanApprovalRequest) event.PlanApprovalResponse {
	choice := "default"
	var feedback string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().Title("Proposed plan").Description(req.Plan),
			huh.NewSelect[string]().
				Title("Approve this plan?").
				Options(
					huh.NewOption("Approve and ask before edits", "default"),
					huh.NewOption("Approve and auto-accept edits", "auto_edit"),
					huh.NewOption("Keep planning", planReject),
				).
				Value(&choice),
		),
		huh.NewGroup(
			huh.NewText().
				Title("What should change in the plan?").
				Value(&feedback),
		).WithHideFunc(func() bool { return choice != planReject }),
	)

	if !p.run(ctx, req.CorrelationID, form) {
		return event.PlanApprovalResponse{CorrelationID: req.CorrelationID}
	}
	if choice == planReject {
		return event.PlanApprovalResponse{CorrelationID: req.CorrelationID, Feedback: strings.TrimSpace(feedback)}
	}
	return event.PlanApprovalResponse{CorrelationID: req.CorrelationID, Approved: true, Mode: choice}
}
