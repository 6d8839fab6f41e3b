package permission

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/opencode-ai/toolgate/internal/policy"
)

// maxPreviewBytes caps the file size read for a diff preview.
const maxPreviewBytes = 1 << 20

// FileReader reads the current content of a file for previews. A missing
// file must be reported with an error wrapping fs.ErrNotExist.
type FileReader func(path string) (string, error)

func readFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > maxPreviewBytes {
		return "", fmt.Errorf("%s is too large to preview", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Preview renders the change an edit tool would make as a unified diff.
// It returns "" for other tools, when the arguments do not describe a
// change, or when the current content cannot be read.
func Preview(toolName string, args map[string]any, baseDir string, read FileReader) string {
	if policy.Category(toolName) != policy.CategoryEdit {
		return ""
	}
	path := firstString(args, "file_path", "filePath", "path")
	if path == "" {
		return ""
	}
	if read == nil {
		read = readFile
	}
	abs := path
	if !filepath.IsAbs(abs) && baseDir != "" {
		abs = filepath.Join(baseDir, abs)
	}

	before, err := read(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// A missing file is a creation.
		before = ""
	case err != nil:
		return ""
	}

	var after string
	if content, ok := args["content"].(string); ok {
		after = content
	} else {
		oldString := firstString(args, "old_string", "oldString")
		newString := firstString(args, "new_string", "newString")
		if oldString == "" || !strings.Contains(before, oldString) {
			return ""
		}
		if all, _ := args["replace_all"].(bool); all {
			after = strings.ReplaceAll(before, oldString, newString)
		} else {
			after = strings.Replace(before, oldString, newString, 1)
		}
	}

	text, _, _ := unifiedDiff(relativePath(abs, baseDir), before, after)
	return text
}

func firstString(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := args[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// contextLines is the number of unchanged lines kept around each change.
const contextLines = 3

type diffLine struct {
	op   diffmatchpatch.Operation
	text string
}

// unifiedDiff renders a line diff with file headers and returns it with the
// added and deleted line counts.
func unifiedDiff(path, before, after string) (string, int, int) {
	if before == after {
		return "", 0, 0
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	var lines []diffLine
	additions, deletions := 0, 0
	for _, d := range diffs {
		for _, l := range splitLines(d.Text) {
			lines = append(lines, diffLine{op: d.Type, text: l})
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			deletions += countLines(d.Text)
		}
	}

	// Mark lines within contextLines of a change.
	keep := make([]bool, len(lines))
	for i, l := range lines {
		if l.op == diffmatchpatch.DiffEqual {
			continue
		}
		for j := max(0, i-contextLines); j <= min(len(lines)-1, i+contextLines); j++ {
			keep[j] = true
		}
	}

	var sb strings.Builder
	if path != "" {
		fmt.Fprintf(&sb, "--- %s\n+++ %s\n", path, path)
	}
	skipped := false
	for i, l := range lines {
		if !keep[i] {
			skipped = true
			continue
		}
		if skipped {
			sb.WriteString("@@\n")
			skipped = false
		}
		switch l.op {
		case diffmatchpatch.DiffInsert:
			sb.WriteByte('+')
		case diffmatchpatch.DiffDelete:
			sb.WriteByte('-')
		default:
			sb.WriteByte(' ')
		}
		sb.WriteString(l.text)
		sb.WriteByte('\n')
	}
	return sb.String(), additions, deletions
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

func relativePath(path, baseDir string) string {
	if baseDir == "" {
		return path
	}
	if rel, err := filepath.Rel(baseDir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	lines := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		lines++
	}
	return lines
}
