package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/permission"
	"github.com/opencode-ai/toolgate/internal/policy"
)

// run executes the root command against an isolated project directory.
func run(t *testing.T, project string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--dir", project}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, ".state"))
	t.Setenv("TOOLGATE_APPROVAL_MODE", "")
	t.Setenv("TOOLGATE_DISABLE_YOLO", "")
	return t.TempDir()
}

func TestDecideCommand(t *testing.T) {
	project := isolate(t)

	out, err := run(t, project, "decide", "--mode", "plan", "write_file", `{"file_path": "a.txt"}`)
	require.NoError(t, err)

	var ev permission.Evaluation
	require.NoError(t, json.Unmarshal([]byte(out), &ev), out)
	assert.Equal(t, policy.Deny, ev.Decision)
	assert.Equal(t, approvalmode.Plan, ev.Mode)

	out, err = run(t, project, "decide", "--mode", "auto-edit", "write_file")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &ev), out)
	assert.Equal(t, policy.Allow, ev.Decision)

	_, err = run(t, project, "decide", "--mode", "", "write_file", `[1]`)
	assert.Error(t, err)
}

func TestModeListMarksConfiguredMode(t *testing.T) {
	project := isolate(t)
	writeProjectSettings(t, project, `{"approvalMode": "plan", "disableYolo": true}`)

	out, err := run(t, project, "mode", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "* plan")
	assert.Contains(t, out, "(disabled)")
}

func TestRulesCommand(t *testing.T) {
	project := isolate(t)
	writeProjectSettings(t, project, `{"alwaysConfirm": ["deploy_*"]}`)

	out, err := run(t, project, "rules", "--mode", "")
	require.NoError(t, err)
	assert.Contains(t, out, "always-confirm-1")
	assert.Contains(t, out, "plan-deny-mutating")
	assert.Contains(t, out, "fallback")

	out, err = run(t, project, "rules", "--mode", "plan")
	require.NoError(t, err)
	assert.NotContains(t, out, "always-confirm-1")
}

func TestRulesCheck(t *testing.T) {
	project := isolate(t)

	good := filepath.Join(project, "good.yaml")
	bad := filepath.Join(project, "bad.json")
	require.NoError(t, os.WriteFile(good, []byte("rules:\n  - tool: bash\n    decision: deny\n"), 0644))
	require.NoError(t, os.WriteFile(bad, []byte(`{"rules": [{"tool": "bash", "decision": "perhaps"}]}`), 0644))

	out, err := run(t, project, "rules", "check", good)
	require.NoError(t, err)
	assert.Contains(t, out, "(1 rules)")

	out, err = run(t, project, "rules", "check", good, bad)
	require.Error(t, err)
	assert.Contains(t, out, "ERR")
	assert.Contains(t, err.Error(), "1 of 2")
}

func TestMalformedConfigIsFatal(t *testing.T) {
	project := isolate(t)
	writeProjectSettings(t, project, `{"approvalMode": "sideways"}`)

	_, err := run(t, project, "mode", "list")
	require.Error(t, err)
	var cerr *policy.ConfigError
	assert.ErrorAs(t, err, &cerr)
}

func writeProjectSettings(t *testing.T, project, content string) {
	t.Helper()
	path := filepath.Join(project, ".toolgate", "toolgate.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}
