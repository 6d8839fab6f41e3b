package commands

import (
	"github.com/opencode-ai/toolgate/internal/approvalmode"
	"github.com/opencode-ai/toolgate/internal/config"
	"github.com/opencode-ai/toolgate/internal/confirm"
	"github.com/opencode-ai/toolgate/internal/event"
	"github.com/opencode-ai/toolgate/internal/logging"
	"github.com/opencode-ai/toolgate/internal/permission"
)

// app is the permission layer wired from configuration.
type app struct {
	workDir string
	config  *config.Config
	bus     *event.Bus
	mode    *approvalmode.State
	coord   *confirm.Coordinator
	checker *permission.Checker
	watcher *config.Watcher
	closers []func()
}

// newApp loads configuration for the project directory and wires the bus,
// mode state, coordinator and checker. With watch set, rule file changes
// are applied to the checker while the command runs.
func newApp(watch bool) (*app, error) {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return nil, err
	}

	appConfig, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	applyConfigLogLevel(appConfig)

	engine, err := appConfig.Engine()
	if err != nil {
		return nil, err
	}
	mode, err := appConfig.ModeState()
	if err != nil {
		return nil, err
	}

	a := &app{
		workDir: dir,
		config:  appConfig,
		bus:     event.NewBus(),
		mode:    mode,
	}
	a.closers = append(a.closers, approvalmode.PublishChanges(mode, a.bus))
	a.coord = confirm.New(a.bus, appConfig.CoordinatorOptions()...)
	a.checker = permission.NewChecker(mode, engine, a.coord, appConfig.CheckerOptions()...)

	logging.Info().
		Str("dir", dir).
		Str("mode", string(mode.Get())).
		Strs("sources", appConfig.Sources).
		Msg("configuration loaded")

	if watch {
		w, err := config.NewWatcher(appConfig, a.checker)
		if err != nil {
			a.Close()
			return nil, err
		}
		w.Start()
		a.watcher = w
	}
	return a, nil
}

// Close stops the watcher and the bus.
func (a *app) Close() {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			logging.Warn().Err(err).Msg("stop config watcher")
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if err := a.bus.Close(); err != nil {
		logging.Warn().Err(err).Msg("close bus")
	}
}
