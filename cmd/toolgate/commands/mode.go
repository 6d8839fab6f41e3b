package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
)

var modeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Approval mode utilities",
}

var modeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approval modes and mark the configured one",
	RunE:  runModeList,
}

func init() {
	modeCmd.AddCommand(modeListCmd)
}

var modeDescriptions = map[approvalmode.Mode]string{
	approvalmode.Default:  "ask before edits, shell commands and unknown tools",
	approvalmode.AutoEdit: "file edits run without asking",
	approvalmode.Plan:     "read-only; mutating tools are denied",
	approvalmode.Yolo:     "every tool runs without asking",
}

func runModeList(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	current := a.mode.Get()
	for _, m := range approvalmode.All {
		marker := "  "
		if m == current {
			marker = "* "
		}
		suffix := ""
		if m == approvalmode.Yolo && a.mode.YoloDisabled() {
			suffix = " (disabled)"
		}
		fmt.Fprintf(out, "%s%-10s %s%s\n", marker, m, modeDescriptions[m], suffix)
	}
	return nil
}
