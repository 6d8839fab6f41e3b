package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/headless"
	"github.com/opencode-ai/toolgate/internal/permission"
)

var decideMode string

var decideCmd = &cobra.Command{
	Use:   "decide <tool> [arguments-json]",
	Short: "Show the decision for a tool call without running it",
	Long: `Evaluate a tool call against the loaded rules and print the decision,
the rule that produced it and the mode it was evaluated in.

Examples:
  toolgate decide write_file '{"file_path": "main.go"}'
  toolgate decide --mode plan bash '{"command": "rm -rf build"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDecide,
}

func init() {
	decideCmd.Flags().StringVarP(&decideMode, "mode", "m", "", "Evaluate in this approval mode instead of the configured one")
}

func runDecide(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	line := args[0]
	if len(args) == 2 {
		line += " " + args[1]
	}
	name, input, err := headless.ParseInvocation(line)
	if err != nil {
		return err
	}
	var arguments map[string]any
	if err := json.Unmarshal(input, &arguments); err != nil {
		return fmt.Errorf("arguments must be a JSON object: %w", err)
	}

	if decideMode != "" {
		m, err := approvalmode.Parse(decideMode)
		if err != nil {
			return err
		}
		if err := a.mode.Set(m); err != nil {
			return err
		}
	}

	ev := a.checker.Evaluate(permission.Request{ToolName: name, Arguments: arguments})
	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
