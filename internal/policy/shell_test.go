package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandNames(cmds []BashCommand) []string {
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	return names
}

func TestParseBashCommand(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		names []string
	}{
		{"simple", "ls -la", []string{"ls"}},
		{"pipeline", "cat file.txt | grep pattern", []string{"cat", "grep"}},
		{"and chain", "git add . && git commit -m 'message'", []string{"git", "git"}},
		{"or chain", "test -f file.txt || touch file.txt", []string{"test", "touch"}},
		{"semicolon", "echo hello; echo world", []string{"echo", "echo"}},
		{"substitution", "echo $(pwd)", []string{"echo", "pwd"}},
		{"redirect", "echo test > output.txt", []string{"echo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds, err := ParseBashCommand(tt.line)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.names, commandNames(cmds))
		})
	}
}

func TestParseBashCommandArguments(t *testing.T) {
	cmds, err := ParseBashCommand(`git commit -m "hello world" 'single quoted'`)
	require.NoError(t, err)
	require.Len(t, cmds, 1)

	assert.Equal(t, "git", cmds[0].Name)
	assert.Equal(t, "commit", cmds[0].Subcommand)
	assert.Equal(t, []string{"commit", "-m", "hello world", "single quoted"}, cmds[0].Args)

	cmds, err = ParseBashCommand("git --no-pager log")
	require.NoError(t, err)
	assert.Equal(t, "log", cmds[0].Subcommand)
}

func TestParseBashCommandHeredoc(t *testing.T) {
	cmds, err := ParseBashCommand(`git commit -m "$(cat <<'EOF'
Fix bug in parser
EOF
)"`)
	require.NoError(t, err)
	require.NotEmpty(t, cmds)
	assert.Equal(t, "git", cmds[0].Name)
}

func TestParseBashCommandInvalid(t *testing.T) {
	_, err := ParseBashCommand("echo 'unterminated")
	assert.Error(t, err)
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		cmd     BashCommand
		matches bool
	}{
		{"global wildcard", "*", BashCommand{Name: "anything"}, true},
		{"command wildcard", "git *", BashCommand{Name: "git", Args: []string{"commit"}}, true},
		{"command wildcard without args", "git *", BashCommand{Name: "git"}, true},
		{"command mismatch", "git *", BashCommand{Name: "npm"}, false},
		{"subcommand wildcard", "git commit *", BashCommand{Name: "git", Args: []string{"commit", "-m", "msg"}}, true},
		{"subcommand mismatch", "git commit *", BashCommand{Name: "git", Args: []string{"push"}}, false},
		{"subcommand missing", "git commit *", BashCommand{Name: "git"}, false},
		{"any command with subcommand", "* install *", BashCommand{Name: "npm", Args: []string{"install", "x"}}, true},
		{"exact command", "pwd", BashCommand{Name: "pwd"}, true},
		{"exact command with args", "pwd", BashCommand{Name: "pwd", Args: []string{"-L"}}, false},
		{"exact args", "go test ./...", BashCommand{Name: "go", Args: []string{"test", "./..."}}, true},
		{"exact args extra", "go test ./...", BashCommand{Name: "go", Args: []string{"test", "./...", "-v"}}, false},
		{"empty pattern", "  ", BashCommand{Name: "ls"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, MatchPattern(tt.pattern, tt.cmd))
		})
	}
}

func TestBuildPattern(t *testing.T) {
	assert.Equal(t, "ls *", BuildPattern(BashCommand{Name: "ls", Args: []string{"-la"}}))
	assert.Equal(t, "git commit *", BuildPattern(BashCommand{Name: "git", Subcommand: "commit", Args: []string{"commit", "-m", "msg"}}))
	assert.Equal(t, "git *", BuildPattern(BashCommand{Name: "git", Subcommand: "log", Args: []string{"--no-pager", "log"}}))
}

func TestBuildPatterns(t *testing.T) {
	cmds, err := ParseBashCommand("cd /tmp && git add . && git commit -m msg && npm install && git add file.txt")
	require.NoError(t, err)

	assert.Equal(t, []string{"git add *", "git commit *", "npm install *"}, BuildPatterns(cmds))
}
