package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/tidwall/jsonc"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/confirm"
	"github.com/opencode-ai/toolgate/internal/permission"
	"github.com/opencode-ai/toolgate/internal/policy"
)

// Environment variables read by Load.
const (
	EnvConfig              = "TOOLGATE_CONFIG"
	EnvConfigContent       = "TOOLGATE_CONFIG_CONTENT"
	EnvApprovalMode        = "TOOLGATE_APPROVAL_MODE"
	EnvDisableYolo         = "TOOLGATE_DISABLE_YOLO"
	EnvConfirmationTimeout = "TOOLGATE_CONFIRMATION_TIMEOUT"
	EnvLogLevel            = "TOOLGATE_LOG_LEVEL"
)

// DefaultLogLevel is used when no source sets logLevel.
const DefaultLogLevel = "info"

// policyPattern selects rule files inside a policies directory.
const policyPattern = "*.{json,jsonc,yaml,yml}"

// Settings is the shape of a toolgate.json(c) file. Every field is optional;
// set fields override earlier sources.
type Settings struct {
	Schema              string        `json:"$schema,omitempty"`
	ApprovalMode        string        `json:"approvalMode,omitempty"`
	DisableYolo         *bool         `json:"disableYolo,omitempty"`
	ConfirmationTimeout string        `json:"confirmationTimeout,omitempty"`
	AlwaysConfirm       []string      `json:"alwaysConfirm,omitempty"`
	DoomLoop            string        `json:"doomLoop,omitempty"`
	Rules               []policy.Rule `json:"rules,omitempty"`
	LogLevel            string        `json:"logLevel,omitempty"`
}

// Config is the resolved configuration.
type Config struct {
	Directory           string
	ApprovalMode        approvalmode.Mode
	DisableYolo         bool
	ConfirmationTimeout time.Duration
	AlwaysConfirm       []string
	DoomLoop            permission.DoomLoopAction
	LogLevel            string

	// Layers are the rule sources in load order, built-in rules first.
	Layers []policy.Layer
	// Sources lists every file that contributed, in load order.
	Sources []string
}

// Default returns the configuration used when no source sets anything.
func Default() *Config {
	return &Config{
		ApprovalMode:        approvalmode.Default,
		ConfirmationTimeout: confirm.DefaultTimeout,
		DoomLoop:            permission.DoomLoopAsk,
		LogLevel:            DefaultLogLevel,
		Layers:              []policy.Layer{policy.DefaultRules()},
	}
}

// Load loads configuration from multiple sources (priority order):
// 1. Built-in rules
// 2. Global settings and policies (~/.config/toolgate/)
// 3. Project settings and policies (<directory>/.toolgate/)
// 4. TOOLGATE_CONFIG file
// 5. TOOLGATE_CONFIG_CONTENT inline JSON
// 6. Environment variables
//
// Missing files are skipped. A malformed file is a *policy.ConfigError.
func Load(directory string) (*Config, error) {
	cfg := Default()
	cfg.Directory = directory

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if loaded[absPath] {
			return nil
		}
		loaded[absPath] = true
		return loadSettingsFile(path, cfg, baseDir)
	}

	sources := []string{GetPaths().Config}
	if directory != "" {
		sources = append(sources, ProjectConfigDir(directory))
	}

	for i, dir := range sources {
		for _, name := range []string{appName + ".json", appName + ".jsonc"} {
			path := filepath.Join(dir, name)
			if err := loadOnce(path, dir); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, asConfigError(path, err)
			}
		}
		if err := loadPolicies(PolicyDirs(directory)[i], cfg); err != nil {
			return nil, err
		}
	}

	if configPath := os.Getenv(EnvConfig); configPath != "" {
		if err := loadOnce(configPath, filepath.Dir(configPath)); err != nil {
			return nil, asConfigError(configPath, err)
		}
	}

	if content := os.Getenv(EnvConfigContent); content != "" {
		base := directory
		if base == "" {
			base, _ = os.Getwd()
		}
		if err := applySettingsData(EnvConfigContent, []byte(content), cfg, base); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSettingsFile reads one settings file into cfg. os.ErrNotExist is
// returned unwrapped so callers can skip absent files.
func loadSettingsFile(path string, cfg *Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return applySettingsData(path, data, cfg, baseDir)
}

func applySettingsData(source string, data []byte, cfg *Config, baseDir string) error {
	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	// Apply interpolation
	data = interpolate(data, baseDir)

	var s Settings
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return &policy.ConfigError{Source: source, Index: -1, Err: err}
	}

	if err := mergeSettings(cfg, source, &s); err != nil {
		return err
	}
	cfg.Sources = append(cfg.Sources, source)
	return nil
}

// loadPolicies appends every rule file in dir as its own layer, in name order.
func loadPolicies(dir string, cfg *Config) error {
	matches, err := doublestar.Glob(os.DirFS(dir), policyPattern)
	if err != nil {
		return &policy.ConfigError{Source: dir, Index: -1, Err: err}
	}
	slices.Sort(matches)

	for _, name := range matches {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		layer, err := policy.LoadFile(path)
		if err != nil {
			return err
		}
		if err := policy.Validate(layer); err != nil {
			return err
		}
		cfg.Layers = append(cfg.Layers, layer)
		cfg.Sources = append(cfg.Sources, path)
	}
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	// Handle {env:VAR_NAME} placeholders
	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return jsonEscape(os.Getenv(varName))
	})

	// Handle {file:path} placeholders
	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}
		return jsonEscape(strings.TrimRight(string(content), "\r\n"))
	})

	return []byte(str)
}

// jsonEscape escapes s for use inside a JSON string literal.
func jsonEscape(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}

// mergeSettings validates s and applies its set fields to cfg.
func mergeSettings(cfg *Config, source string, s *Settings) error {
	fail := func(field string, err error) error {
		return &policy.ConfigError{Source: source, Index: -1, Field: field, Err: err}
	}

	if s.ApprovalMode != "" {
		mode, err := approvalmode.Parse(s.ApprovalMode)
		if err != nil {
			return fail("approvalMode", err)
		}
		cfg.ApprovalMode = mode
	}
	if s.DisableYolo != nil {
		cfg.DisableYolo = *s.DisableYolo
	}
	if s.ConfirmationTimeout != "" {
		d, err := parseTimeout(s.ConfirmationTimeout)
		if err != nil {
			return fail("confirmationTimeout", err)
		}
		cfg.ConfirmationTimeout = d
	}
	for _, pattern := range s.AlwaysConfirm {
		if !doublestar.ValidatePattern(pattern) {
			return fail("alwaysConfirm", fmt.Errorf("invalid tool glob %q", pattern))
		}
		if !slices.Contains(cfg.AlwaysConfirm, pattern) {
			cfg.AlwaysConfirm = append(cfg.AlwaysConfirm, pattern)
		}
	}
	if s.DoomLoop != "" {
		action := permission.DoomLoopAction(strings.ToLower(s.DoomLoop))
		if action != permission.DoomLoopAsk && action != permission.DoomLoopAllow {
			return fail("doomLoop", fmt.Errorf("must be %q or %q, got %q", permission.DoomLoopAsk, permission.DoomLoopAllow, s.DoomLoop))
		}
		cfg.DoomLoop = action
	}
	if s.LogLevel != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(s.LogLevel)); err != nil {
			return fail("logLevel", err)
		}
		cfg.LogLevel = strings.ToLower(s.LogLevel)
	}
	if len(s.Rules) > 0 {
		layer := policy.Layer{Name: source, Rules: s.Rules}
		if err := policy.Validate(layer); err != nil {
			return err
		}
		cfg.Layers = append(cfg.Layers, layer)
	}
	return nil
}

// parseTimeout accepts a Go duration. A bare "0" disables the timeout.
func parseTimeout(s string) (time.Duration, error) {
	if s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) error {
	var s Settings
	s.ApprovalMode = os.Getenv(EnvApprovalMode)
	s.ConfirmationTimeout = os.Getenv(EnvConfirmationTimeout)
	s.LogLevel = os.Getenv(EnvLogLevel)

	if v := os.Getenv(EnvDisableYolo); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return &policy.ConfigError{Source: "environment", Index: -1, Field: EnvDisableYolo, Err: err}
		}
		s.DisableYolo = &disabled
	}
	return mergeSettings(cfg, "environment", &s)
}

func asConfigError(source string, err error) error {
	var cerr *policy.ConfigError
	if errors.As(err, &cerr) {
		return err
	}
	return &policy.ConfigError{Source: source, Index: -1, Err: err}
}

// EngineLayers returns the configured layers followed by the generated
// always-confirm layer, if any.
func (c *Config) EngineLayers() []policy.Layer {
	layers := slices.Clone(c.Layers)
	if len(c.AlwaysConfirm) > 0 {
		layers = append(layers, policy.AlwaysConfirmRules(c.AlwaysConfirm))
	}
	return layers
}

// Engine compiles the configured rule layers.
func (c *Config) Engine() (*policy.Engine, error) {
	return policy.NewEngine(c.EngineLayers())
}

// ModeState creates the session approval mode from the configured defaults.
func (c *Config) ModeState() (*approvalmode.State, error) {
	return approvalmode.New(c.ApprovalMode, approvalmode.WithYoloDisabled(c.DisableYolo))
}

// CheckerOptions returns the permission options implied by the configuration.
func (c *Config) CheckerOptions() []permission.Option {
	opts := []permission.Option{permission.WithDoomLoop(c.DoomLoop)}
	if c.Directory != "" {
		opts = append(opts, permission.WithBaseDir(c.Directory))
	}
	return opts
}

// CoordinatorOptions returns the confirmation options implied by the configuration.
func (c *Config) CoordinatorOptions() []confirm.Option {
	return []confirm.Option{confirm.WithTimeout(c.ConfirmationTimeout)}
}

// WatchPaths returns the files and directories whose changes require a reload.
func (c *Config) WatchPaths() []string {
	paths := []string{GetPaths().Config}
	if c.Directory != "" {
		paths = append(paths, ProjectConfigDir(c.Directory))
	}
	paths = append(paths, PolicyDirs(c.Directory)...)
	if p := os.Getenv(EnvConfig); p != "" {
		paths = append(paths, filepath.Dir(p))
	}
	return paths
}
