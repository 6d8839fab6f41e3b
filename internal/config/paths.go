package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "toolgate"

// Paths contains the standard paths for toolgate data.
type Paths struct {
	Config string // ~/.config/toolgate
	State  string // ~/.local/state/toolgate
}

// GetPaths returns the standard paths for toolgate data.
func GetPaths() *Paths {
	return &Paths{
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), appName),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), appName),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Config, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// PolicyDir returns the directory holding global rule files.
func (p *Paths) PolicyDir() string {
	return filepath.Join(p.Config, "policies")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GlobalConfigPath returns the path to the global settings file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, appName+".json")
}

// ProjectConfigDir returns the project configuration directory.
func ProjectConfigDir(directory string) string {
	return filepath.Join(directory, "."+appName)
}

// ProjectConfigPath returns the path to the project settings file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(ProjectConfigDir(directory), appName+".json")
}

// PolicyDirs returns the rule file directories for a project in load order.
func PolicyDirs(directory string) []string {
	dirs := []string{GetPaths().PolicyDir()}
	if directory != "" {
		dirs = append(dirs, filepath.Join(ProjectConfigDir(directory), "policies"))
	}
	return dirs
}
