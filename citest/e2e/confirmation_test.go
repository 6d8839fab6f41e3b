package e2e_test

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/toolgate/citest/testutil"
	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/event"
	"github.com/opencode-ai/toolgate/internal/permission"
	"github.com/opencode-ai/toolgate/internal/policy"
	"github.com/opencode-ai/toolgate/internal/server"
)

// awaitRequest waits for the next request of kind on the stream and
// returns it decoded.
func awaitRequest[T any](sse *testutil.SSEClient, kind event.Kind) T {
	GinkgoHelper()
	evt, err := sse.WaitFor(kind, 3*time.Second)
	Expect(err).NotTo(HaveOccurred())
	var req T
	Expect(evt.Decode(&req)).To(Succeed())
	return req
}

func connect() *testutil.SSEClient {
	GinkgoHelper()
	sse := testServer.SSEClient()
	Expect(sse.Connect(ctx, "/event")).To(Succeed())
	DeferCleanup(sse.Close)
	_, err := sse.WaitFor(testutil.Connected, 2*time.Second)
	Expect(err).NotTo(HaveOccurred())
	return sse
}

var _ = Describe("Tool confirmations", func() {
	It("runs the tool after the operator proceeds", func() {
		sse := connect()

		result := testServer.Invoke(ctx, "write_file", map[string]string{"file_path": "approved.txt", "content": "hello"})

		req := awaitRequest[event.ToolConfirmationRequest](sse, event.KindToolConfirmationRequest)
		Expect(req.ToolName).To(Equal("write_file"))
		Expect(req.Mode).To(Equal("default"))
		Expect(req.Title).To(ContainSubstring("approved.txt"))
		Expect(req.Diff).To(ContainSubstring("+hello"))

		pending, err := client.Pending(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(HaveLen(1))
		Expect(pending[0].ID).To(Equal(req.CorrelationID))

		resp, err := client.Answer(ctx, req.CorrelationID, server.AnswerRequest{Outcome: event.OutcomeProceed})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var res testutil.InvokeResult
		Eventually(result).Should(Receive(&res))
		Expect(res.Err).NotTo(HaveOccurred())
		Expect(filepath.Join(testServer.WorkDir, "approved.txt")).To(BeAnExistingFile())

		_, err = sse.WaitFor(event.KindToolConfirmationResponse, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
	})

	It("reports the operator's feedback when the call is rejected", func() {
		sse := connect()

		result := testServer.Invoke(ctx, "write_file", map[string]string{"file_path": "rejected.txt", "content": "no"})
		req := awaitRequest[event.ToolConfirmationRequest](sse, event.KindToolConfirmationRequest)

		_, err := client.Answer(ctx, req.CorrelationID, server.AnswerRequest{Outcome: event.OutcomeCancel, Feedback: "use notes.md"})
		Expect(err).NotTo(HaveOccurred())

		var res testutil.InvokeResult
		Eventually(result).Should(Receive(&res))
		Expect(permission.IsRejected(res.Err)).To(BeTrue(), "got %v", res.Err)
		Expect(res.Err.Error()).To(ContainSubstring("use notes.md"))
		Expect(filepath.Join(testServer.WorkDir, "rejected.txt")).NotTo(BeAnExistingFile())
	})

	It("stops asking for the tool after proceed_always", func() {
		sse := connect()

		first := testServer.Invoke(ctx, "write_file", map[string]string{"file_path": "always-1.txt", "content": "1"})
		req := awaitRequest[event.ToolConfirmationRequest](sse, event.KindToolConfirmationRequest)
		_, err := client.Answer(ctx, req.CorrelationID, server.AnswerRequest{Outcome: event.OutcomeProceedAlways})
		Expect(err).NotTo(HaveOccurred())
		Eventually(first).Should(Receive(HaveField("Err", BeNil())))

		second := testServer.Invoke(ctx, "write_file", map[string]string{"file_path": "always-2.txt", "content": "2"})
		Eventually(second).Should(Receive(HaveField("Err", BeNil())))
		Expect(sse.Count(event.KindToolConfirmationRequest)).To(Equal(1))
	})

	It("keeps asking for always-confirm tools in yolo mode", func() {
		Expect(testServer.Mode.Set(approvalmode.Yolo)).To(Succeed())

		ev, err := client.Decide(ctx, server.DecideRequest{ToolName: "deploy_staging"})
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Decision).To(Equal(policy.AskUser))
		Expect(ev.Source).To(Equal(policy.AlwaysConfirmLayer))
	})

	It("refuses answers for unknown confirmations", func() {
		resp, err := client.Answer(ctx, testutil.RandomID(), server.AnswerRequest{Outcome: event.OutcomeProceed})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})
})

var _ = Describe("Plan approval", func() {
	It("leaves plan mode for the mode the operator picked", func() {
		sse := connect()
		Expect(testServer.Mode.Set(approvalmode.Plan)).To(Succeed())

		result := testServer.Invoke(ctx, "exit_plan_mode", map[string]string{"plan": "1. write tests\n2. fix bug"})
		req := awaitRequest[event.PlanApprovalRequest](sse, event.KindPlanApprovalRequest)
		Expect(req.Plan).To(ContainSubstring("write tests"))

		_, err := client.Answer(ctx, req.CorrelationID, server.AnswerRequest{Approved: true, Mode: "auto_edit"})
		Expect(err).NotTo(HaveOccurred())

		var res testutil.InvokeResult
		Eventually(result).Should(Receive(&res))
		Expect(res.Err).NotTo(HaveOccurred())
		Expect(testServer.Mode.Get()).To(Equal(approvalmode.AutoEdit))

		evt, err := sse.WaitFor(event.KindModeChanged, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
		var changed event.ModeChanged
		Expect(evt.Decode(&changed)).To(Succeed())
		Expect(changed.Current).To(Equal("auto_edit"))
	})

	It("stays in plan mode when the plan is rejected", func() {
		sse := connect()
		Expect(testServer.Mode.Set(approvalmode.Plan)).To(Succeed())

		result := testServer.Invoke(ctx, "exit_plan_mode", map[string]string{"plan": "drop the database"})
		req := awaitRequest[event.PlanApprovalRequest](sse, event.KindPlanApprovalRequest)

		_, err := client.Answer(ctx, req.CorrelationID, server.AnswerRequest{Approved: false, Feedback: "too risky"})
		Expect(err).NotTo(HaveOccurred())

		var res testutil.InvokeResult
		Eventually(result).Should(Receive(&res))
		Expect(res.Err).NotTo(HaveOccurred())
		Expect(res.Result.Output).To(ContainSubstring("too risky"))
		Expect(testServer.Mode.Get()).To(Equal(approvalmode.Plan))
	})
})

var _ = Describe("Questions", func() {
	It("returns the operator's answers to the tool", func() {
		sse := connect()

		result := testServer.Invoke(ctx, "ask_user", map[string]any{
			"questions": []event.Question{{
				Header:   "Storage",
				Question: "Which backend?",
				Options:  []event.QuestionOption{{Label: "sqlite"}, {Label: "files"}},
			}},
		})
		req := awaitRequest[event.QuestionRequest](sse, event.KindQuestionRequest)
		Expect(req.Questions).To(HaveLen(1))

		_, err := client.Answer(ctx, req.CorrelationID, server.AnswerRequest{Answers: map[string][]string{"Storage": {"sqlite"}}})
		Expect(err).NotTo(HaveOccurred())

		var res testutil.InvokeResult
		Eventually(result).Should(Receive(&res))
		Expect(res.Err).NotTo(HaveOccurred())
		Expect(res.Result.Output).To(ContainSubstring("Storage: sqlite"))
	})
})

var _ = Describe("Policy hot reload", func() {
	It("applies a new rule file to subsequent decisions", func() {
		before, err := client.Decide(ctx, server.DecideRequest{ToolName: "lint_code"})
		Expect(err).NotTo(HaveOccurred())
		Expect(before.Decision).To(Equal(policy.AskUser))

		Expect(testServer.WritePolicy("lint.json", `{"rules": [{"name": "allow-lint", "tool": "lint_*", "decision": "allow", "priority": 60}]}`)).To(Succeed())

		Eventually(func() string {
			ev, err := client.Decide(ctx, server.DecideRequest{ToolName: "lint_code"})
			if err != nil {
				return ""
			}
			return ev.Rule
		}).WithTimeout(3 * time.Second).Should(Equal("allow-lint"))
	})

	It("keeps the previous rules when a rule file becomes invalid", func() {
		path := filepath.Join(testServer.WorkDir, ".toolgate", "policies", "broken.yaml")
		DeferCleanup(func() { _ = os.Remove(path) })

		Expect(testServer.WritePolicy("broken.yaml", "rules:\n  - tool: bash\n    decision: sometimes\n")).To(Succeed())

		Consistently(func() policy.Decision {
			ev, err := client.Decide(ctx, server.DecideRequest{ToolName: "bash", Arguments: map[string]any{"command": "rm -rf /tmp/x"}, Mode: "yolo"})
			if err != nil {
				return ""
			}
			return ev.Decision
		}).WithDuration(300 * time.Millisecond).Should(Equal(policy.Deny))
	})
})
