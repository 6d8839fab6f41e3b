// Package commands provides the CLI commands for toolgate.
package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/toolgate/internal/config"
	"github.com/opencode-ai/toolgate/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	workDir   string
	envFiles  []string
)

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "toolgate - approval modes and tool-call policy for coding agents",
	Long: `toolgate decides whether an agent's tool call may run, must be denied,
or needs an operator's confirmation, based on the session's approval mode
and a layered rule set.

Run 'toolgate serve' to expose the permission layer over HTTP, or
'toolgate repl' to drive tool calls from a script or the terminal.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFiles(); err != nil {
			return err
		}
		initLogging()
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand, show help
		cmd.Help()
	},
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR), overrides logLevel from config")
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", "", "Project directory (defaults to the current directory)")
	rootCmd.PersistentFlags().StringArrayVar(&envFiles, "env-file", nil, "Additional .env file(s) to load")

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("toolgate %s (%s)\n", Version, BuildTime))

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(debugCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return filepath.Abs(dir)
	}
	return os.Getwd()
}

// loadEnvFiles loads .env from the project directory, then every --env-file.
// Variables already set in the environment win.
func loadEnvFiles() error {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return err
	}
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// initLogging configures the global logger. Logs go to stderr with
// --print-logs and to a file under the state directory otherwise.
func initLogging() {
	level := logLevel
	if level == "" {
		level = os.Getenv(config.EnvLogLevel)
	}

	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(level)
	if printLogs {
		cfg.Pretty = true
	} else {
		cfg.Output = io.Discard
		paths := config.GetPaths()
		if err := paths.EnsurePaths(); err == nil {
			cfg.LogToFile = true
			cfg.LogDir = paths.State
		}
	}
	logging.Init(cfg)
}

// applyConfigLogLevel raises or lowers the level to the configured one
// unless --log-level was given.
func applyConfigLogLevel(appConfig *config.Config) {
	if logLevel != "" || os.Getenv(config.EnvLogLevel) != "" {
		return
	}
	logging.Logger = logging.Logger.Level(logging.ParseLevel(appConfig.LogLevel))
}
