package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
)

// ErrNotCommand is returned by ExecuteLine for input that does not start with "/".
var ErrNotCommand = errors.New("not a slash command")

// Command describes a slash command.
type Command struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage,omitempty"`

	run func(e *Executor, args []string) (*ExecuteResult, error)
}

// ExecuteResult is the outcome of a slash command.
type ExecuteResult struct {
	CommandName string            `json:"commandName"`
	Output      string            `json:"output"`
	Mode        approvalmode.Mode `json:"mode"`
	Previous    approvalmode.Mode `json:"previous"`
}

// Changed reports whether the command switched the approval mode.
func (r *ExecuteResult) Changed() bool {
	return r.Mode != r.Previous
}

// Executor runs slash commands against the approval mode state.
type Executor struct {
	mode     *approvalmode.State
	commands map[string]*Command
}

// NewExecutor creates an executor with the built-in commands.
func NewExecutor(mode *approvalmode.State) *Executor {
	e := &Executor{
		mode:     mode,
		commands: make(map[string]*Command),
	}
	for _, cmd := range BuiltinCommands() {
		e.commands[cmd.Name] = cmd
	}
	return e
}

// List returns all commands ordered by name.
func (e *Executor) List() []*Command {
	commands := make([]*Command, 0, len(e.commands))
	for _, cmd := range e.commands {
		commands = append(commands, cmd)
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i].Name < commands[j].Name })
	return commands
}

// Get returns a specific command by name.
func (e *Executor) Get(name string) (*Command, bool) {
	cmd, ok := e.commands[name]
	return cmd, ok
}

// Parse splits "/name arg..." into the command name and its arguments.
func Parse(line string) (name string, args []string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", nil, false
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// ExecuteLine parses and executes a slash command line.
func (e *Executor) ExecuteLine(ctx context.Context, line string) (*ExecuteResult, error) {
	name, args, ok := Parse(line)
	if !ok {
		return nil, ErrNotCommand
	}
	return e.Execute(ctx, name, args...)
}

// Execute executes a command with the given arguments. Every mode change
// goes through the approval mode setter, so a rejected transition leaves the
// mode unchanged and returns the setter's error.
func (e *Executor) Execute(ctx context.Context, name string, args ...string) (*ExecuteResult, error) {
	cmd, ok := e.commands[name]
	if !ok {
		return nil, fmt.Errorf("command not found: /%s", name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prev := e.mode.Get()
	res, err := cmd.run(e, args)
	if err != nil {
		return nil, err
	}
	res.CommandName = cmd.Name
	res.Previous = prev
	res.Mode = e.mode.Get()
	return res, nil
}

func (e *Executor) set(m approvalmode.Mode) (*ExecuteResult, error) {
	prev := e.mode.Get()
	if err := e.mode.Set(m); err != nil {
		return nil, err
	}
	if prev == m {
		return &ExecuteResult{Output: fmt.Sprintf("Already in %s mode.", m)}, nil
	}
	return &ExecuteResult{Output: fmt.Sprintf("Approval mode: %s (was %s)", m, prev)}, nil
}

func runMode(e *Executor, args []string) (*ExecuteResult, error) {
	if len(args) == 0 {
		current := e.mode.Get()
		var sb strings.Builder
		for _, m := range approvalmode.All {
			marker := "  "
			if m == current {
				marker = "* "
			}
			sb.WriteString(marker + string(m))
			if m == approvalmode.Yolo && e.mode.YoloDisabled() {
				sb.WriteString(" (disabled)")
			}
			sb.WriteString("\n")
		}
		return &ExecuteResult{Output: strings.TrimSuffix(sb.String(), "\n")}, nil
	}
	if len(args) > 1 {
		return nil, fmt.Errorf("usage: /mode [default|auto_edit|plan|yolo]")
	}
	m, err := approvalmode.Parse(args[0])
	if err != nil {
		return nil, err
	}
	return e.set(m)
}

func runPlan(e *Executor, _ []string) (*ExecuteResult, error) {
	return e.set(approvalmode.Plan)
}

func runYolo(e *Executor, _ []string) (*ExecuteResult, error) {
	return e.set(approvalmode.Yolo)
}

func runCycle(e *Executor, _ []string) (*ExecuteResult, error) {
	prev := e.mode.Get()
	next := e.mode.Cycle()
	return &ExecuteResult{Output: fmt.Sprintf("Approval mode: %s (was %s)", next, prev)}, nil
}

func runHelp(e *Executor, _ []string) (*ExecuteResult, error) {
	var sb strings.Builder
	for _, cmd := range e.List() {
		usage := cmd.Usage
		if usage == "" {
			usage = "/" + cmd.Name
		}
		fmt.Fprintf(&sb, "%-28s %s\n", usage, cmd.Description)
	}
	return &ExecuteResult{Output: strings.TrimSuffix(sb.String(), "\n")}, nil
}

// BuiltinCommands returns the list of built-in commands.
func BuiltinCommands() []*Command {
	return []*Command{
		{
			Name:        "mode",
			Description: "Show the approval mode or switch to another one",
			Usage:       "/mode [default|auto_edit|plan|yolo]",
			run:         runMode,
		},
		{
			Name:        "plan",
			Description: "Switch to plan mode",
			run:         runPlan,
		},
		{
			Name:        "yolo",
			Description: "Allow every tool except always-confirm tools",
			run:         runYolo,
		},
		{
			Name:        "cycle",
			Description: "Cycle default, auto_edit and plan",
			run:         runCycle,
		},
		{
			Name:        "help",
			Description: "Show available commands",
			run:         runHelp,
		},
	}
}
