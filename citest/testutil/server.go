package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/config"
	"github.com/opencode-ai/toolgate/internal/confirm"
	"github.com/opencode-ai/toolgate/internal/event"
	"github.com/opencode-ai/toolgate/internal/permission"
	"github.com/opencode-ai/toolgate/internal/server"
	"github.com/opencode-ai/toolgate/internal/tool"
)

// TestServer wraps a server instance and the permission layer behind it.
type TestServer struct {
	Server   *server.Server
	BaseURL  string
	Config   *config.Config
	Bus      *event.Bus
	Mode     *approvalmode.State
	Coord    *confirm.Coordinator
	Checker  *permission.Checker
	Registry *tool.Registry
	Watcher  *config.Watcher
	TempDir  string
	WorkDir  string

	stopMode func()
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	workDir  string
	envFile  string
	settings string
	policies map[string]string
}

// WithWorkDir sets the working directory
func WithWorkDir(dir string) TestServerOption {
	return func(c *testServerConfig) {
		c.workDir = dir
	}
}

// WithEnvFile sets the .env file to load
func WithEnvFile(path string) TestServerOption {
	return func(c *testServerConfig) {
		c.envFile = path
	}
}

// WithSettings writes the project toolgate.json before loading.
func WithSettings(content string) TestServerOption {
	return func(c *testServerConfig) {
		c.settings = content
	}
}

// WithPolicy writes a project rule file before loading.
func WithPolicy(name, content string) TestServerOption {
	return func(c *testServerConfig) {
		if c.policies == nil {
			c.policies = make(map[string]string)
		}
		c.policies[name] = content
	}
}

// StartTestServer creates and starts a test server. The global config
// directory is pointed at the temp directory so that the user's own
// settings never leak into a run.
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// Load environment variables
	if cfg.envFile != "" {
		_ = godotenv.Load(cfg.envFile)
	} else {
		// Try default locations
		_ = godotenv.Load("../../.env")
		_ = godotenv.Load(".env")
	}

	// Create temp directory for test data
	tempDir, err := os.MkdirTemp("", "toolgate-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	os.Setenv("XDG_CONFIG_HOME", filepath.Join(tempDir, "config"))
	os.Setenv("XDG_STATE_HOME", filepath.Join(tempDir, "state"))

	workDir := cfg.workDir
	if workDir == "" {
		workDir = filepath.Join(tempDir, "project")
	}
	if err := writeProjectConfig(workDir, cfg); err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	engine, err := appConfig.Engine()
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	mode, err := appConfig.ModeState()
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}

	bus := event.NewBus()
	stopMode := approvalmode.PublishChanges(mode, bus)
	coord := confirm.New(bus, appConfig.CoordinatorOptions()...)
	checker := permission.NewChecker(mode, engine, coord, appConfig.CheckerOptions()...)

	watcher, err := config.NewWatcher(appConfig, checker, config.WithDebounce(20*time.Millisecond))
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}
	watcher.Start()

	// Find available port
	port, err := findAvailablePort()
	if err != nil {
		watcher.Stop()
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = port
	srv := server.New(serverConfig, bus, checker, coord)

	// Start server in background
	go func() {
		_ = srv.Start()
	}()

	ts := &TestServer{
		Server:   srv,
		BaseURL:  fmt.Sprintf("http://127.0.0.1:%d", port),
		Config:   appConfig,
		Bus:      bus,
		Mode:     mode,
		Coord:    coord,
		Checker:  checker,
		Registry: tool.DefaultRegistry(checker, mode, coord),
		Watcher:  watcher,
		TempDir:  tempDir,
		WorkDir:  workDir,
		stopMode: stopMode,
	}

	// Wait for server to be ready
	if err := waitForServer(ts.BaseURL, 10*time.Second); err != nil {
		ts.Stop()
		return nil, fmt.Errorf("server failed to start: %w", err)
	}
	return ts, nil
}

func writeProjectConfig(workDir string, cfg *testServerConfig) error {
	dir := config.ProjectConfigDir(workDir)
	if err := os.MkdirAll(filepath.Join(dir, "policies"), 0755); err != nil {
		return err
	}
	if cfg.settings != "" {
		if err := os.WriteFile(filepath.Join(dir, "toolgate.json"), []byte(cfg.settings), 0644); err != nil {
			return err
		}
	}
	for name, content := range cfg.policies {
		if err := os.WriteFile(filepath.Join(dir, "policies", name), []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

// WritePolicy writes or replaces a project rule file. The watcher picks it up.
func (ts *TestServer) WritePolicy(name, content string) error {
	return os.WriteFile(filepath.Join(config.ProjectConfigDir(ts.WorkDir), "policies", name), []byte(content), 0644)
}

// Invoke runs a tool call through the permission layer in the background
// and delivers its result.
func (ts *TestServer) Invoke(ctx context.Context, toolName string, input any) <-chan InvokeResult {
	out := make(chan InvokeResult, 1)
	go func() {
		data, err := json.Marshal(input)
		if err != nil {
			out <- InvokeResult{Err: err}
			return
		}
		res, err := ts.Registry.Invoke(ctx, toolName, data, &tool.Context{
			SessionID: "citest",
			CallID:    RandomID(),
			WorkDir:   ts.WorkDir,
		})
		out <- InvokeResult{Result: res, Err: err}
	}()
	return out
}

// InvokeResult is the outcome of Invoke.
type InvokeResult struct {
	Result *tool.Result
	Err    error
}

// Stop shuts down the test server and cleans up
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if ts.Server != nil {
		firstErr = ts.Server.Shutdown(ctx)
	}
	if ts.Watcher != nil {
		_ = ts.Watcher.Stop()
	}
	if ts.stopMode != nil {
		ts.stopMode()
	}
	if ts.Bus != nil {
		_ = ts.Bus.Close()
	}
	if ts.TempDir != "" {
		os.RemoveAll(ts.TempDir)
	}
	return firstErr
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/health")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
