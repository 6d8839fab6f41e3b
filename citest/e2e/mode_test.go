package e2e_test

import (
	"net/http"
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

var _ = Describe("Approval modes", func() {
	It("starts in default mode and lists every mode", func() {
		mode, err := client.GetMode(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(mode.Mode).To(Equal(approvalmode.Default))
		Expect(mode.Modes).To(ConsistOf(approvalmode.All))
	})

	It("streams mode changes", func() {
		sse := testServer.SSEClient()
		Expect(sse.Connect(ctx, "/event?kind="+string(event.KindModeChanged))).To(Succeed())
		defer sse.Close()
		_, err := sse.WaitFor(testutil.Connected, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())

		resp, err := client.SetMode(ctx, "auto-edit")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		evt, err := sse.WaitFor(event.KindModeChanged, 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
		var changed event.ModeChanged
		Expect(evt.Decode(&changed)).To(Succeed())
		Expect(changed.Previous).To(Equal("default"))
		Expect(changed.Current).To(Equal("auto_edit"))
	})

	It("cycles default, auto_edit and plan", func() {
		var seen []approvalmode.Mode
		for range 3 {
			resp, err := client.Post(ctx, "/mode/cycle", nil)
			Expect(err).NotTo(HaveOccurred())
			var mode server.ModeResponse
			Expect(resp.JSON(&mode)).To(Succeed())
			seen = append(seen, mode.Mode)
		}
		Expect(seen).To(Equal([]approvalmode.Mode{approvalmode.AutoEdit, approvalmode.Plan, approvalmode.Default}))
	})

	It("denies mutating tools in plan mode without asking", func() {
		Expect(testServer.Mode.Set(approvalmode.Plan)).To(Succeed())

		res := <-testServer.Invoke(ctx, "write_file", map[string]string{"file_path": "plan.txt", "content": "x"})
		Expect(permission.IsDenied(res.Err)).To(BeTrue(), "got %v", res.Err)
		Expect(testServer.Coord.Pending()).To(BeEmpty())
	})

	DescribeTable("decides per mode",
		func(mode, toolName string, args map[string]any, want policy.Decision) {
			ev, err := client.Decide(ctx, server.DecideRequest{ToolName: toolName, Arguments: args, Mode: mode})
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Decision).To(Equal(want))
		},
		Entry("edits ask in default", "default", "write_file", nil, policy.AskUser),
		Entry("edits run in auto_edit", "auto_edit", "write_file", nil, policy.Allow),
		Entry("shell asks in auto_edit", "auto_edit", "bash", map[string]any{"command": "go test"}, policy.AskUser),
		Entry("reads run in plan", "plan", "read_file", nil, policy.Allow),
		Entry("yolo runs shell", "yolo", "bash", map[string]any{"command": "go test"}, policy.Allow),
		Entry("always confirm wins over yolo", "yolo", "deploy_prod", nil, policy.AskUser),
		Entry("project policy denies rm", "yolo", "bash", map[string]any{"command": "rm -rf build"}, policy.Deny),
	)
})
