package policy

import (
	"fmt"
	"strings"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
)

// Tools that change the approval mode or talk to the operator.
const (
	EnterPlanModeTool = "enter_plan_mode"
	ExitPlanModeTool  = "exit_plan_mode"
	AskUserTool       = "ask_user"
)

// Tool categories used by the built-in rule set.
var (
	ReadOnlyTools = []string{
		"read", "read_file", "read_many_files",
		"glob", "grep", "search_file_content",
		"list", "ls", "list_directory",
		"todoread", "lsp", AskUserTool,
	}
	EditTools   = []string{"edit", "write", "write_file", "replace", "multiedit", "patch"}
	ShellTools  = []string{"bash", "shell", "run_shell_command"}
	MemoryTools = []string{"save_memory", "memory"}
	WebTools    = []string{"webfetch", "web_fetch", "google_web_search", "websearch"}
)

// Category names.
const (
	CategoryReadOnly = "read-only"
	CategoryEdit     = "edit"
	CategoryShell    = "shell"
	CategoryMemory   = "memory"
	CategoryWeb      = "web"
	CategoryMode     = "mode"
	CategoryOther    = "other"
)

// Category returns the built-in category of a tool name.
func Category(tool string) string {
	switch {
	case contains(EditTools, tool):
		return CategoryEdit
	case contains(ShellTools, tool):
		return CategoryShell
	case contains(MemoryTools, tool):
		return CategoryMemory
	case contains(WebTools, tool):
		return CategoryWeb
	case tool == EnterPlanModeTool || tool == ExitPlanModeTool:
		return CategoryMode
	case contains(ReadOnlyTools, tool):
		return CategoryReadOnly
	}
	return CategoryOther
}

// Mutating reports whether a tool writes files, runs commands or persists memory.
func Mutating(tool string) bool {
	switch Category(tool) {
	case CategoryEdit, CategoryShell, CategoryMemory:
		return true
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// anyOf builds a brace alternation glob matching exactly the given names.
func anyOf(groups ...[]string) string {
	var names []string
	for _, g := range groups {
		names = append(names, g...)
	}
	return "{" + strings.Join(names, ",") + "}"
}

// Built-in rule priorities. User rules at equal priority load later and win.
const (
	PriorityAlwaysConfirm = 900
	PriorityPlan          = 100
	PriorityReadOnly      = 50
	PriorityAutoEdit      = 40
	PriorityModeTools     = 30
	PriorityYolo          = 0
)

// Names of the generated rule layers.
const (
	BuiltinLayer       = "builtin"
	AlwaysConfirmLayer = "always-confirm"
)

// DefaultRules returns the built-in rule set. Anything it does not match
// falls through to the engine's fallback, ASK_USER.
func DefaultRules() Layer {
	nonPlan := []approvalmode.Mode{approvalmode.Default, approvalmode.AutoEdit}
	return Layer{
		Name: BuiltinLayer,
		Rules: []Rule{
			{
				Name:     "plan-deny-mutating",
				Tool:     anyOf(EditTools, ShellTools, MemoryTools),
				Modes:    []approvalmode.Mode{approvalmode.Plan},
				Decision: Deny,
				Priority: PriorityPlan,
				Reason:   "plan mode is read-only; exit plan mode to make changes",
			},
			{
				Name:     "plan-allow-exit",
				Tool:     ExitPlanModeTool,
				Modes:    []approvalmode.Mode{approvalmode.Plan},
				Decision: Allow,
				Priority: PriorityPlan,
				Reason:   "leaving plan mode requires plan approval",
			},
			{
				Name:     "allow-read-only",
				Tool:     anyOf(ReadOnlyTools),
				Decision: Allow,
				Priority: PriorityReadOnly,
				Reason:   "read-only tool",
			},
			{
				Name:     "auto-edit-allow-edits",
				Tool:     anyOf(EditTools),
				Modes:    []approvalmode.Mode{approvalmode.AutoEdit},
				Decision: Allow,
				Priority: PriorityAutoEdit,
				Reason:   "file edits are auto-approved in auto_edit mode",
			},
			{
				Name:     "allow-enter-plan",
				Tool:     EnterPlanModeTool,
				Modes:    nonPlan,
				Decision: Allow,
				Priority: PriorityModeTools,
				Reason:   "entering plan mode only restricts tools",
			},
			{
				Name:     "yolo-allow-all",
				Tool:     "*",
				Modes:    []approvalmode.Mode{approvalmode.Yolo},
				Decision: Allow,
				Priority: PriorityYolo,
				Reason:   "yolo mode approves every tool",
			},
		},
	}
}

// AlwaysConfirmRules builds the layer of tools that ask for confirmation in
// every mode except plan, where the plan rules still deny mutating tools.
func AlwaysConfirmRules(tools []string) Layer {
	layer := Layer{Name: AlwaysConfirmLayer}
	for i, glob := range tools {
		layer.Rules = append(layer.Rules, Rule{
			Name:     fmt.Sprintf("always-confirm-%d", i+1),
			Tool:     glob,
			Modes:    []approvalmode.Mode{approvalmode.Default, approvalmode.AutoEdit, approvalmode.Yolo},
			Decision: AskUser,
			Priority: PriorityAlwaysConfirm,
			Reason:   fmt.Sprintf("%s always requires confirmation", glob),
		})
	}
	return layer
}
