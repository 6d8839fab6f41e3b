package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a rule source.
type File struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

// Format is a rule source encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the encoding from a file extension. JSONC is read as JSON.
func FormatFor(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return "", false
}

// LoadFile reads and parses a rule file. The layer is named after the path.
func LoadFile(path string) (Layer, error) {
	format, ok := FormatFor(path)
	if !ok {
		return Layer{}, &ConfigError{Source: path, Index: -1, Err: fmt.Errorf("unsupported rule file extension %q", filepath.Ext(path))}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Layer{}, &ConfigError{Source: path, Index: -1, Err: err}
	}
	return Parse(path, format, data)
}

// Parse decodes a rule source. Unknown fields are rejected so that typos in
// hand-edited files surface at load time. Rules are validated by NewEngine.
func Parse(name string, format Format, data []byte) (Layer, error) {
	var f File
	var err error

	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		err = dec.Decode(&f)
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&f)
	default:
		err = fmt.Errorf("unknown format %q", format)
	}
	// An empty document is an empty layer.
	if errors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil {
		return Layer{}, &ConfigError{Source: name, Index: -1, Err: err}
	}

	return Layer{Name: name, Rules: f.Rules}, nil
}

// Validate compiles a layer on its own and reports the first malformed rule.
func Validate(layer Layer) error {
	for i, r := range layer.Rules {
		if _, err := compile(layer.Name, i, i, r); err != nil {
			return err
		}
	}
	return nil
}
