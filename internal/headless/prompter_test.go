package headless

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/toolgate/internal/confirm"
	"github.com/opencode-ai/toolgate/internal/event"
)

// newTestPrompter starts a prompter whose forms "complete" with the result
// of run, leaving every field at its initial value.
func newTestPrompter(t *testing.T, bus *event.Bus, coord *confirm.Coordinator, run func() error) (*Prompter, *atomic.Int32) {
	t.Helper()
	var shown atomic.Int32
	p := NewPrompter(bus, WithPending(coord), WithOutput(io.Discard), WithAccessible(true))
	p.runForm = func(_ context.Context, form *huh.Form) error {
		assert.NotNil(t, form)
		shown.Add(1)
		return run()
	}
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	return p, &shown
}

func TestPrompterDefaults(t *testing.T) {
	bus, coord := newCoordinator(t)
	_, shown := newTestPrompter(t, bus, coord, func() error { return nil })

	out := coord.Confirm(context.Background(), event.ToolConfirmationRequest{
		ToolName: "bash",
		Title:    "Run: ls",
		Mode:     "default",
		Patterns: []string{"ls *"},
	})
	require.True(t, out.Answered())
	assert.Equal(t, event.OutcomeProceed, out.Response.Outcome)

	q := coord.Ask(context.Background(), event.QuestionRequest{Questions: []event.Question{
		{Header: "Storage", Question: "Where?", Options: []event.QuestionOption{{Label: "sqlite", Description: "embedded"}, {Label: "postgres"}}},
		{Header: "Tags", Question: "Which?", MultiSelect: true, Options: []event.QuestionOption{{Label: "a"}}},
		{Header: "Name", Question: "Called?"},
	}})
	require.True(t, q.Answered())
	assert.Equal(t, map[string][]string{"Storage": {"sqlite"}}, q.Response.Answers)

	plan := coord.ApprovePlan(context.Background(), event.PlanApprovalRequest{Plan: "1. do it"})
	require.True(t, plan.Answered())
	assert.True(t, plan.Response.Approved)
	assert.Equal(t, "default", plan.Response.Mode)

	assert.Equal(t, int32(3), shown.Load())
}

func TestPrompterAbort(t *testing.T) {
	bus, coord := newCoordinator(t)
	newTestPrompter(t, bus, coord, func() error { return huh.ErrUserAborted })

	out := coord.Confirm(context.Background(), event.ToolConfirmationRequest{ToolName: "bash"})
	require.True(t, out.Answered())
	assert.Equal(t, event.OutcomeCancel, out.Response.Outcome)

	q := coord.Ask(context.Background(), event.QuestionRequest{Questions: []event.Question{{Header: "A", Question: "B"}}})
	require.True(t, q.Answered())
	assert.True(t, q.Response.Dismissed)

	plan := coord.ApprovePlan(context.Background(), event.PlanApprovalRequest{Plan: "p"})
	require.True(t, plan.Answered())
	assert.False(t, plan.Response.Approved)
}

func TestPrompterFormError(t *testing.T) {
	bus, coord := newCoordinator(t)
	newTestPrompter(t, bus, coord, func() error { return errors.New("no tty") })

	out := coord.Confirm(context.Background(), event.ToolConfirmationRequest{ToolName: "bash"})
	require.True(t, out.Answered())
	assert.Equal(t, event.OutcomeCancel, out.Response.Outcome)
}

func TestPrompterSkipsResolvedRequests(t *testing.T) {
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	coord := confirm.New(bus, confirm.WithTimeout(50*time.Millisecond))

	release := make(chan struct{})
	_, shown := newTestPrompter(t, bus, coord, func() error {
		<-release
		return nil
	})

	// The first request blocks the render loop until it times out, so the
	// second one is resolved by its own timeout while still queued.
	done := make(chan struct{})
	go func() {
		defer close(done)
		coord.Confirm(context.Background(), event.ToolConfirmationRequest{ToolName: "one"})
	}()
	require.Eventually(t, func() bool { return shown.Load() == 1 }, time.Second, 5*time.Millisecond)

	out := coord.Confirm(context.Background(), event.ToolConfirmationRequest{ToolName: "two"})
	assert.Equal(t, confirm.StatusTimedOut, out.Status)
	<-done

	close(release)
	assert.Never(t, func() bool { return shown.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestPrompterStop(t *testing.T) {
	bus, coord := newCoordinator(t)
	p, _ := newTestPrompter(t, bus, coord, func() error { return nil })

	p.Stop()
	assert.Equal(t, 0, bus.Subscribers(event.KindToolConfirmationRequest))
	assert.Equal(t, 0, bus.Subscribers(event.KindPlanApprovalRequest))
}

func TestPrompterStopWhileFormOpenLeavesRequestUnanswered(t *testing.T) {
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	coord := confirm.New(bus, confirm.WithTimeout(200*time.Millisecond))

	var answers atomic.Int32
	sub := event.Subscribe(bus, func(_ context.Context, _ event.ToolConfirmationResponse) error {
		answers.Add(1)
		return nil
	})
	t.Cleanup(func() { bus.Unsubscribe(sub) })

	opened := make(chan struct{})
	p := NewPrompter(bus, WithPending(coord), WithOutput(io.Discard))
	p.runForm = func(ctx context.Context, _ *huh.Form) error {
		close(opened)
		<-ctx.Done()
		return ctx.Err()
	}
	p.Start(context.Background())

	result := make(chan confirm.Outcome[event.ToolConfirmationResponse], 1)
	go func() {
		result <- coord.Confirm(context.Background(), event.ToolConfirmationRequest{ToolName: "bash"})
	}()

	<-opened
	p.Stop()

	select {
	case out := <-result:
		assert.Equal(t, confirm.StatusTimedOut, out.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation never resolved")
	}
	assert.Zero(t, answers.Load())
}
