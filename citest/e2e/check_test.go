package e2e_test

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/toolgate/citest/testutil"
	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/event"
	"github.com/opencode-ai/toolgate/internal/permission"
	"github.com/opencode-ai/toolgate/internal/server"
)

type checkResult struct {
	resp *testutil.Response
	err  error
}

// checkAsync posts to /check from another goroutine, like a remote agent
// waiting on the decision.
func checkAsync(ctx context.Context, req permission.Request) <-chan checkResult {
	out := make(chan checkResult, 1)
	go func() {
		resp, err := client.Check(ctx, req)
		out <- checkResult{resp, err}
	}()
	return out
}

func failureCode(resp *testutil.Response) string {
	GinkgoHelper()
	var failure server.ErrorResponse
	Expect(resp.JSON(&failure)).To(Succeed())
	return failure.Error.Code
}

var _ = Describe("Remote checks", func() {
	It("allows read-only tools without asking", func() {
		resp, err := client.Check(ctx, permission.Request{ToolName: "read_file", Arguments: map[string]any{"file_path": "a.txt"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("reports policy denials as forbidden", func() {
		Expect(testServer.Mode.Set(approvalmode.Plan)).To(Succeed())

		resp, err := client.Check(ctx, permission.Request{ToolName: "write_file", Arguments: map[string]any{"file_path": "a.txt"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		Expect(failureCode(resp)).To(Equal(server.ErrCodePolicyDenied))
	})

	It("waits for an answer given over HTTP", func() {
		sse := connect()

		result := checkAsync(ctx, permission.Request{SessionID: "remote", ToolName: "bash", Arguments: map[string]any{"command": "make release"}})
		req := awaitRequest[event.ToolConfirmationRequest](sse, event.KindToolConfirmationRequest)
		Expect(req.SessionID).To(Equal("remote"))

		_, err := client.Answer(ctx, req.CorrelationID, server.AnswerRequest{Outcome: event.OutcomeProceed})
		Expect(err).NotTo(HaveOccurred())

		var res checkResult
		Eventually(result).Should(Receive(&res))
		Expect(res.err).NotTo(HaveOccurred())
		Expect(res.resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("reports an operator rejection as a conflict", func() {
		sse := connect()

		result := checkAsync(ctx, permission.Request{SessionID: "remote", ToolName: "bash", Arguments: map[string]any{"command": "git push"}})
		req := awaitRequest[event.ToolConfirmationRequest](sse, event.KindToolConfirmationRequest)

		_, err := client.Answer(ctx, req.CorrelationID, server.AnswerRequest{Outcome: event.OutcomeCancel, Feedback: "not yet"})
		Expect(err).NotTo(HaveOccurred())

		var res checkResult
		Eventually(result).Should(Receive(&res))
		Expect(res.err).NotTo(HaveOccurred())
		Expect(res.resp.StatusCode).To(Equal(http.StatusConflict))
		Expect(failureCode(res.resp)).To(Equal(server.ErrCodeRejected))
	})

	It("withdraws the confirmation when the caller disconnects", func() {
		sse := connect()

		callCtx, cancel := context.WithCancel(ctx)
		result := checkAsync(callCtx, permission.Request{SessionID: "remote", ToolName: "web_fetch", Arguments: map[string]any{"url": "https://a.test"}})
		awaitRequest[event.ToolConfirmationRequest](sse, event.KindToolConfirmationRequest)
		cancel()

		var res checkResult
		Eventually(result).Should(Receive(&res))
		Expect(res.err).To(HaveOccurred())
		Eventually(func() int {
			pending, err := client.Pending(ctx)
			Expect(err).NotTo(HaveOccurred())
			return len(pending)
		}).Should(BeZero())
	})
})
