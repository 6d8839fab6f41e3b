package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultReadLimit = 2000
	maxLineLength    = 2000
	sniffLen         = 8000
)

// FileInput is the argument shape shared by read_file and write_file. The
// policy engine and the diff preview read file_path from it.
type FileInput struct {
	FilePath string  `json:"file_path"`
	Content  *string `json:"content,omitempty"`
	Offset   int     `json:"offset,omitempty"`
	Limit    int     `json:"limit,omitempty"`
}

func decodeFileInput(raw json.RawMessage) (FileInput, error) {
	var in FileInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("invalid input: %w", err)
	}
	if in.FilePath == "" {
		return in, errors.New("file_path is required")
	}
	return in, nil
}

// ReadTool returns a numbered window of a text file.
type ReadTool struct{}

// NewReadTool creates the read_file tool.
func NewReadTool() *ReadTool { return &ReadTool{} }

func (t *ReadTool) ID() string { return "read_file" }

func (t *ReadTool) Description() string {
	return "Read a text file. Relative paths resolve against the working directory. " +
		"Returns at most 2000 numbered lines; use offset and limit to page."
}

func (t *ReadTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string", "description": "File to read"},
			"offset": {"type": "integer", "description": "First line to return (1-based)"},
			"limit": {"type": "integer", "description": "Maximum lines to return"}
		},
		"required": ["file_path"]
	}`)
}

func (t *ReadTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	in, err := decodeFileInput(input)
	if err != nil {
		return nil, err
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	first := max(in.Offset, 1)

	path := toolCtx.resolve(in.FilePath)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("no such file: %s", in.FilePath)
	case err != nil && isDir(path):
		return nil, fmt.Errorf("%s is a directory", in.FilePath)
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", in.FilePath, err)
	}
	if bytes.IndexByte(data[:min(len(data), sniffLen)], 0) >= 0 {
		return nil, fmt.Errorf("%s looks like a binary file", in.FilePath)
	}

	all := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(data) == 0 {
		all = nil
	}
	total := len(all)

	var sb strings.Builder
	shown := 0
	for n := first; n <= total && shown < limit; n++ {
		line := all[n-1]
		if len(line) > maxLineLength {
			line = line[:maxLineLength] + "..."
		}
		if shown > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%6d\t%s", n, line)
		shown++
	}
	if last := first + shown - 1; last < total {
		fmt.Fprintf(&sb, "\n\n[truncated: %d of %d lines shown, continue at offset %d]", shown, total, last+1)
	} else {
		fmt.Fprintf(&sb, "\n\n[%d lines total]", total)
	}

	return &Result{
		Title:  "read " + filepath.Base(path),
		Output: sb.String(),
		Metadata: map[string]any{
			"file":       path,
			"lines":      shown,
			"totalLines": total,
		},
	}, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// WriteTool replaces a file's contents, creating parent directories.
type WriteTool struct{}

// NewWriteTool creates the write_file tool.
func NewWriteTool() *WriteTool { return &WriteTool{} }

func (t *WriteTool) ID() string { return "write_file" }

func (t *WriteTool) Description() string {
	return "Write content to a file, overwriting it if present. Missing parent directories are created."
}

func (t *WriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string", "description": "File to write"},
			"content": {"type": "string", "description": "Full new contents"}
		},
		"required": ["file_path", "content"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	in, err := decodeFileInput(input)
	if err != nil {
		return nil, err
	}
	if in.Content == nil {
		return nil, errors.New("content is required")
	}

	path := toolCtx.resolve(in.FilePath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create parent of %s: %w", in.FilePath, err)
	}
	if err := os.WriteFile(path, []byte(*in.Content), 0644); err != nil {
		return nil, fmt.Errorf("write %s: %w", in.FilePath, err)
	}

	return &Result{
		Title:  "wrote " + filepath.Base(path),
		Output: fmt.Sprintf("%d bytes written to %s", len(*in.Content), path),
		Metadata: map[string]any{
			"file":  path,
			"bytes": len(*in.Content),
		},
	}, nil
}
