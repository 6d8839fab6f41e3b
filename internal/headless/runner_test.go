package headless

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/command"
	"github.com/opencode-ai/toolgate/internal/confirm"
	"github.com/opencode-ai/toolgate/internal/event"
	"github.com/opencode-ai/toolgate/internal/permission"
	"github.com/opencode-ai/toolgate/internal/policy"
	"github.com/opencode-ai/toolgate/internal/tool"
)

type runnerFixture struct {
	bus    *event.Bus
	mode   *approvalmode.State
	runner *Runner
	out    *bytes.Buffer
	dir    string
}

func newRunnerFixture(t *testing.T, format OutputFormat, approve bool) *runnerFixture {
	t.Helper()

	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	mode, err := approvalmode.New(approvalmode.Default)
	require.NoError(t, err)
	t.Cleanup(approvalmode.PublishChanges(mode, bus))

	engine, err := policy.NewEngine([]policy.Layer{policy.DefaultRules()})
	require.NoError(t, err)
	coord := confirm.New(bus, confirm.WithTimeout(2*time.Second))

	auto := NewAutoResponder(bus, approve)
	auto.Start()
	t.Cleanup(auto.Stop)

	dir := t.TempDir()
	out := &bytes.Buffer{}
	printer := NewPrinter(out, format, false)
	printer.Subscribe(bus)
	t.Cleanup(printer.Unsubscribe)

	checker := permission.NewChecker(mode, engine, coord, permission.WithBaseDir(dir))
	cfg := DefaultConfig()
	cfg.WorkDir = dir
	cfg.OutputFormat = format

	return &runnerFixture{
		bus:    bus,
		mode:   mode,
		runner: NewRunner(cfg, tool.DefaultRegistry(checker, mode, coord), command.NewExecutor(mode), printer),
		out:    out,
		dir:    dir,
	}
}

func TestParseInvocation(t *testing.T) {
	name, input, err := ParseInvocation(`write_file {"file_path": "a"}`)
	require.NoError(t, err)
	assert.Equal(t, "write_file", name)
	assert.JSONEq(t, `{"file_path": "a"}`, string(input))

	name, input, err = ParseInvocation("enter_plan_mode")
	require.NoError(t, err)
	assert.Equal(t, "enter_plan_mode", name)
	assert.Equal(t, "{}", string(input))

	_, _, err = ParseInvocation(`write_file {"file_path"`)
	assert.ErrorContains(t, err, "not valid JSON")

	_, _, err = ParseInvocation("  ")
	assert.ErrorIs(t, err, ErrEmptyLine)
}

func TestRunnerScript(t *testing.T) {
	f := newRunnerFixture(t, OutputText, true)

	script := `
# plan first, then write
/mode plan
write_file {"file_path": "out.txt", "content": "hello"}
/mode default
write_file {"file_path": "out.txt", "content": "hello"}
read_file {"file_path": "out.txt"}
`
	code, err := f.runner.Run(context.Background(), strings.NewReader(script))
	require.Error(t, err)
	assert.True(t, permission.IsDenied(err))
	assert.Equal(t, ExitPermissionDenied, code)

	data, err := os.ReadFile(filepath.Join(f.dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	output := f.out.String()
	assert.Contains(t, output, "[mode] default -> plan")
	assert.Contains(t, output, "[error] write_file is not permitted in plan mode")
	assert.Contains(t, output, "[confirm] ")
	assert.Contains(t, output, "proceed")
	assert.Contains(t, output, "     1\thello")
}

func TestRunnerStopOnError(t *testing.T) {
	f := newRunnerFixture(t, OutputText, true)
	f.runner.config.StopOnError = true

	code, err := f.runner.Run(context.Background(), strings.NewReader("/mode nope\n/mode plan\n"))
	require.Error(t, err)
	assert.Equal(t, ExitError, code)
	assert.Equal(t, approvalmode.Default, f.mode.Get())
}

func TestRunnerAutoReject(t *testing.T) {
	f := newRunnerFixture(t, OutputText, false)

	code, err := f.runner.Run(context.Background(), strings.NewReader(`write_file {"file_path": "x.txt", "content": "x"}`))
	require.Error(t, err)
	assert.True(t, permission.IsRejected(err))
	assert.Equal(t, ExitPermissionDenied, code)

	_, statErr := os.Stat(filepath.Join(f.dir, "x.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunnerJSONL(t *testing.T) {
	f := newRunnerFixture(t, OutputJSONL, true)

	code, err := f.runner.Run(context.Background(), strings.NewReader("/plan\n"))
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, code)

	var types []string
	for _, line := range strings.Split(strings.TrimSpace(f.out.String()), "\n") {
		var evt Event
		require.NoError(t, json.Unmarshal([]byte(line), &evt))
		types = append(types, evt.Type)
	}
	assert.Equal(t, []string{string(event.KindModeChanged), "result"}, types)
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCodeFor(nil))
	assert.Equal(t, ExitPermissionDenied, ExitCodeFor(&permission.DeniedError{}))
	assert.Equal(t, ExitTimeout, ExitCodeFor(&permission.TimeoutError{}))
	assert.Equal(t, ExitCancelled, ExitCodeFor(&permission.CancelledError{}))
	assert.Equal(t, ExitInvalidInput, ExitCodeFor(&policy.ConfigError{Index: -1}))
	assert.Equal(t, ExitInvalidInput, ExitCodeFor(&approvalmode.TransitionError{}))
	assert.Equal(t, ExitCancelled, ExitCodeFor(context.Canceled))
}
