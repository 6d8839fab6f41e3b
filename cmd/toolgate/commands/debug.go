package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/toolgate/internal/config"
	"github.com/opencode-ai/toolgate/internal/logging"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug utilities",
	Long:  `Debug utilities for troubleshooting toolgate configuration and setup.`,
}

var debugConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	RunE:  runDebugConfig,
}

var debugPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show system paths",
	RunE:  runDebugPaths,
}

func init() {
	debugCmd.AddCommand(debugConfigCmd)
	debugCmd.AddCommand(debugPathsCmd)
}

type configView struct {
	Directory           string   `json:"directory"`
	ApprovalMode        string   `json:"approvalMode"`
	DisableYolo         bool     `json:"disableYolo"`
	ConfirmationTimeout string   `json:"confirmationTimeout"`
	AlwaysConfirm       []string `json:"alwaysConfirm"`
	DoomLoop            string   `json:"doomLoop"`
	LogLevel            string   `json:"logLevel"`
	Sources             []string `json:"sources"`
	Layers              []string `json:"layers"`
}

func runDebugConfig(cmd *cobra.Command, args []string) error {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return err
	}

	appConfig, err := config.Load(dir)
	if err != nil {
		return err
	}

	view := configView{
		Directory:           appConfig.Directory,
		ApprovalMode:        string(appConfig.ApprovalMode),
		DisableYolo:         appConfig.DisableYolo,
		ConfirmationTimeout: appConfig.ConfirmationTimeout.String(),
		AlwaysConfirm:       appConfig.AlwaysConfirm,
		DoomLoop:            string(appConfig.DoomLoop),
		LogLevel:            appConfig.LogLevel,
		Sources:             appConfig.Sources,
	}
	for _, l := range appConfig.EngineLayers() {
		view.Layers = append(view.Layers, fmt.Sprintf("%s (%d rules)", l.Name, len(l.Rules)))
	}

	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runDebugPaths(cmd *cobra.Command, args []string) error {
	dir, err := GetWorkDir(workDir)
	if err != nil {
		return err
	}
	paths := config.GetPaths()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "toolgate System Paths:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Config:          %s\n", paths.Config)
	fmt.Fprintf(out, "  State:           %s\n", paths.State)
	fmt.Fprintf(out, "  Global settings: %s\n", config.GlobalConfigPath())
	fmt.Fprintf(out, "  Project:         %s\n", config.ProjectConfigPath(dir))
	for _, d := range config.PolicyDirs(dir) {
		fmt.Fprintf(out, "  Policies:        %s\n", d)
	}
	if p := logging.GetLogFilePath(); p != "" {
		fmt.Fprintf(out, "  Log file:        %s\n", p)
	}
	return nil
}
