package headless

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/toolgate/internal/confirm"
	"github.com/opencode-ai/toolgate/internal/event"
)

func newCoordinator(t *testing.T) (*event.Bus, *confirm.Coordinator) {
	t.Helper()
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	return bus, confirm.New(bus, confirm.WithTimeout(2*time.Second))
}

func TestAutoResponderApproves(t *testing.T) {
	bus, coord := newCoordinator(t)
	r := NewAutoResponder(bus, true)
	r.Start()
	r.Start()
	defer r.Stop()

	out := coord.Confirm(context.Background(), event.ToolConfirmationRequest{ToolName: "bash"})
	require.True(t, out.Answered())
	assert.Equal(t, event.OutcomeProceed, out.Response.Outcome)

	q := coord.Ask(context.Background(), event.QuestionRequest{Questions: []event.Question{
		{Header: "Color", Question: "Pick one", Options: []event.QuestionOption{{Label: "red"}, {Label: "blue"}}},
		{Header: "Name", Question: "Free text"},
	}})
	require.True(t, q.Answered())
	assert.Equal(t, map[string][]string{"Color": {"red"}}, q.Response.Answers)

	plan := coord.ApprovePlan(context.Background(), event.PlanApprovalRequest{Plan: "p"})
	require.True(t, plan.Answered())
	assert.True(t, plan.Response.Approved)
	assert.Equal(t, "default", plan.Response.Mode)
}

func TestAutoResponderRejects(t *testing.T) {
	bus, coord := newCoordinator(t)
	r := NewAutoResponder(bus, false)
	r.Start()
	defer r.Stop()

	out := coord.Confirm(context.Background(), event.ToolConfirmationRequest{ToolName: "bash"})
	require.True(t, out.Answered())
	assert.Equal(t, event.OutcomeCancel, out.Response.Outcome)
	assert.Equal(t, AutoFeedback, out.Response.Feedback)

	q := coord.Ask(context.Background(), event.QuestionRequest{Questions: []event.Question{{Header: "A", Question: "B"}}})
	require.True(t, q.Answered())
	assert.True(t, q.Response.Dismissed)

	plan := coord.ApprovePlan(context.Background(), event.PlanApprovalRequest{Plan: "p"})
	require.True(t, plan.Answered())
	assert.False(t, plan.Response.Approved)
}

func TestAutoResponderStop(t *testing.T) {
	bus, _ := newCoordinator(t)
	r := NewAutoResponder(bus, true)
	r.Start()
	require.Equal(t, 1, bus.Subscribers(event.KindToolConfirmationRequest))

	r.Stop()
	r.Stop()
	assert.Equal(t, 0, bus.Subscribers(event.KindToolConfirmationRequest))
	assert.Equal(t, 0, bus.Subscribers(event.KindQuestionRequest))
	assert.Equal(t, 0, bus.Subscribers(event.KindPlanApprovalRequest))
}
