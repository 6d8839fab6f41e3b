package headless

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/toolgate/internal/command"
	"github.com/opencode-ai/toolgate/internal/logging"
	"github.com/opencode-ai/toolgate/internal/tool"
)

// ErrEmptyLine is returned by ParseInvocation for blank input.
var ErrEmptyLine = errors.New("empty line")

// Runner executes a script of slash commands and tool invocations, one per
// line:
//
//	/mode plan
//	read_file {"file_path": "main.go"}
//	write_file {"file_path": "notes.md", "content": "todo"}
//
// Blank lines and lines starting with # are skipped.
type Runner struct {
	config   *Config
	registry *tool.Registry
	commands *command.Executor
	printer  *Printer
	log      zerolog.Logger
}

// NewRunner creates a new headless runner.
func NewRunner(cfg *Config, registry *tool.Registry, commands *command.Executor, printer *Printer) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Runner{
		config:   cfg,
		registry: registry,
		commands: commands,
		printer:  printer,
		log:      logging.Component("headless"),
	}
}

// Run executes every line of in and returns the exit code of the first
// failed line, or ExitSuccess.
func (r *Runner) Run(ctx context.Context, in io.Reader) (ExitCode, error) {
	code := ExitSuccess
	var firstErr error

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return ExitCodeFor(err), err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		err := r.Execute(ctx, line)
		if err == nil {
			continue
		}
		if firstErr == nil {
			firstErr, code = err, ExitCodeFor(err)
		}
		if r.config.StopOnError {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return ExitError, fmt.Errorf("failed to read script: %w", err)
	}
	return code, firstErr
}

// Execute runs a single line and prints its result.
func (r *Runner) Execute(ctx context.Context, line string) error {
	if strings.HasPrefix(line, "/") {
		res, err := r.commands.ExecuteLine(ctx, line)
		if err != nil {
			r.printer.PrintResult(line, "", "", err)
			return err
		}
		r.printer.PrintResult(line, "", res.Output, nil)
		return nil
	}

	name, input, err := ParseInvocation(line)
	if err != nil {
		r.printer.PrintResult(line, "", "", err)
		return err
	}

	callID := ulid.Make().String()
	r.log.Debug().Str("tool", name).Str("callID", callID).Msg("invoking tool")

	res, err := r.registry.Invoke(ctx, name, input, &tool.Context{
		SessionID: r.config.SessionID,
		CallID:    callID,
		WorkDir:   r.config.WorkDir,
	})
	if err != nil {
		r.printer.PrintResult(line, "", "", err)
		return err
	}
	r.printer.PrintResult(line, res.Title, res.Output, nil)
	return nil
}

// ParseInvocation splits `tool {json}` into the tool name and its input.
// A missing input is treated as an empty object.
func ParseInvocation(line string) (string, json.RawMessage, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil, ErrEmptyLine
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return name, json.RawMessage(`{}`), nil
	}
	if !json.Valid([]byte(rest)) {
		return "", nil, fmt.Errorf("invalid input for %s: not valid JSON", name)
	}
	return name, json.RawMessage(rest), nil
}
