package permission

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	files := map[string]string{
		"/repo/a.txt": "one\ntwo\nthree\n",
	}
	read := func(path string) (string, error) {
		if s, ok := files[path]; ok {
			return s, nil
		}
		if path == "/repo/locked.txt" {
			return "", fmt.Errorf("open %s: %w", path, fs.ErrPermission)
		}
		return "", fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}

	tests := []struct {
		name     string
		tool     string
		args     map[string]any
		contains []string
		empty    bool
	}{
		{
			name:     "write over existing file",
			tool:     "write_file",
			args:     map[string]any{"file_path": "a.txt", "content": "one\n2\nthree\n"},
			contains: []string{"--- a.txt", "-two", "+2"},
		},
		{
			name:     "write new file",
			tool:     "write",
			args:     map[string]any{"filePath": "/repo/new.txt", "content": "hello\n"},
			contains: []string{"--- new.txt", "+hello"},
		},
		{
			name:     "replace",
			tool:     "replace",
			args:     map[string]any{"file_path": "/repo/a.txt", "old_string": "three", "new_string": "3"},
			contains: []string{"-three", "+3"},
		},
		{
			name:  "old string not found",
			tool:  "edit",
			args:  map[string]any{"file_path": "a.txt", "old_string": "four", "new_string": "4"},
			empty: true,
		},
		{
			name:  "unchanged",
			tool:  "write_file",
			args:  map[string]any{"file_path": "a.txt", "content": "one\ntwo\nthree\n"},
			empty: true,
		},
		{
			name:  "unreadable file is not shown as a creation",
			tool:  "write_file",
			args:  map[string]any{"file_path": "locked.txt", "content": "x\n"},
			empty: true,
		},
		{
			name:  "not an edit tool",
			tool:  "bash",
			args:  map[string]any{"file_path": "a.txt", "content": "x"},
			empty: true,
		},
		{
			name:  "no path",
			tool:  "write_file",
			args:  map[string]any{"content": "x"},
			empty: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Preview(tt.tool, tt.args, "/repo", read)
			if tt.empty {
				assert.Empty(t, got)
				return
			}
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
		})
	}
}

func TestUnifiedDiffCounts(t *testing.T) {
	_, added, deleted := unifiedDiff("f", "a\nb\n", "a\nc\nd\n")
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, deleted)
}

func TestPreviewSkipsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.log")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(maxPreviewBytes+1))
	require.NoError(t, f.Close())

	got := Preview("write_file", map[string]any{"file_path": "big.log", "content": "small\n"}, dir, nil)
	assert.Empty(t, got)

	got = Preview("write_file", map[string]any{"file_path": "fresh.log", "content": "small\n"}, dir, nil)
	assert.Contains(t, got, "+small")
}
