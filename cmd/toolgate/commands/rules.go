package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/policy"
)

var rulesMode string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the loaded rules in evaluation order",
	RunE:  runRules,
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check [file...]",
	Short: "Validate rule files, or the whole configuration when none are given",
	RunE:  runRulesCheck,
}

func init() {
	rulesCmd.Flags().StringVarP(&rulesMode, "mode", "m", "", "Only show rules that apply in this approval mode")
	rulesCmd.AddCommand(rulesCheckCmd)
}

func runRules(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	var modes []approvalmode.Mode
	if rulesMode != "" {
		m, err := approvalmode.Parse(rulesMode)
		if err != nil {
			return err
		}
		modes = append(modes, m)
	}

	engine := a.checker.Engine()
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tDECISION\tTOOL\tMODES\tNAME\tSOURCE")
	for _, r := range engine.Rules(modes...) {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.Priority, r.Decision, r.Tool, modeList(r.Modes), r.Name, r.Source)
	}
	fmt.Fprintf(tw, "-\t%s\t*\tall\tfallback\t-\n", engine.Fallback())
	return tw.Flush()
}

func modeList(modes []approvalmode.Mode) string {
	if len(modes) == 0 {
		return "all"
	}
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ",")
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		for _, src := range a.config.Sources {
			fmt.Fprintf(out, "ok  %s\n", src)
		}
		fmt.Fprintf(out, "%d rules loaded\n", len(a.checker.Engine().Rules()))
		return nil
	}

	var failed int
	for _, path := range args {
		layer, err := policy.LoadFile(path)
		if err == nil {
			err = policy.Validate(layer)
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "ERR %v\n", err)
			continue
		}
		fmt.Fprintf(out, "ok  %s (%d rules)\n", path, len(layer.Rules))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d rule files are invalid", failed, len(args))
	}
	return nil
}
