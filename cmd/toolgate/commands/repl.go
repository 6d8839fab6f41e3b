package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/toolgate/internal/command"
	"github.com/opencode-ai/toolgate/internal/headless"
	"github.com/opencode-ai/toolgate/internal/logging"
	"github.com/opencode-ai/toolgate/internal/tool"
)

var (
	replOutputFormat string
	replQuiet        bool
	replStopOnError  bool
	replSessionID    string
	replResponder    responderFlags
)

var replCmd = &cobra.Command{
	Use:   "repl [script]",
	Short: "Run slash commands and tool calls through the permission layer",
	Long: `Run a script of slash commands and tool calls, one per line. Every tool
call goes through the approval mode and the loaded rules before it runs.

  /mode plan
  read_file {"file_path": "main.go"}
  write_file {"file_path": "notes.md", "content": "todo"}

Lines are read from the script file, or from stdin when none is given.
Confirmations are prompted in the terminal when a script file is given;
with stdin they are rejected unless --auto-approve or --prompt is set.

The exit code is 0 on success, 2 on timeout, 3 when a call was denied
or rejected, 4 when cancelled and 5 for invalid input.

Examples:
  toolgate repl session.txt
  echo 'write_file {"file_path": "a.txt", "content": "x"}' | toolgate repl --auto-approve
  toolgate repl -o jsonl --auto-reject script.txt | jq -r .type`,
	Args: cobra.MaximumNArgs(1),
	RunE: runREPL,
}

func init() {
	replCmd.Flags().StringVarP(&replOutputFormat, "output-format", "o", "text", "Output format: text, jsonl")
	replCmd.Flags().BoolVarP(&replQuiet, "quiet", "q", false, "Only print results, not bus events")
	replCmd.Flags().BoolVar(&replStopOnError, "stop-on-error", false, "Stop at the first failed line")
	replCmd.Flags().StringVarP(&replSessionID, "session", "s", "", "Session ID for remembered approvals")
	replCmd.Flags().BoolVar(&replResponder.autoApprove, "auto-approve", false, "Approve every confirmation request")
	replCmd.Flags().BoolVar(&replResponder.autoReject, "auto-reject", false, "Reject every confirmation request")
	replCmd.Flags().BoolVar(&replResponder.prompt, "prompt", false, "Answer confirmation requests in this terminal")
	replCmd.Flags().BoolVar(&replResponder.accessible, "accessible", false, "Use plain prompts instead of interactive forms")
}

func runREPL(cmd *cobra.Command, args []string) error {
	code, err := repl(cmd, args)
	if err != nil {
		logging.Error().Err(err).Int("exitCode", int(code)).Msg("repl failed")
	}
	if code != headless.ExitSuccess {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(int(code))
	}
	return err
}

func repl(cmd *cobra.Command, args []string) (headless.ExitCode, error) {
	var format headless.OutputFormat
	switch strings.ToLower(replOutputFormat) {
	case "text":
		format = headless.OutputText
	case "jsonl":
		format = headless.OutputJSONL
	default:
		return headless.ExitInvalidInput, fmt.Errorf("invalid output format: %s (must be text or jsonl)", replOutputFormat)
	}

	var in io.Reader = cmd.InOrStdin()
	responder := replResponder
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return headless.ExitInvalidInput, err
		}
		defer f.Close()
		in = f
		if !responder.autoApprove && !responder.autoReject {
			responder.prompt = true
		}
	} else if !responder.autoApprove && !responder.prompt {
		responder.autoReject = true
	}

	a, err := newApp(false)
	if err != nil {
		return headless.ExitCodeFor(err), err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopResponder, err := responder.start(ctx, a)
	if err != nil {
		return headless.ExitInvalidInput, err
	}
	defer stopResponder()

	cfg := headless.DefaultConfig()
	cfg.WorkDir = a.workDir
	cfg.OutputFormat = format
	cfg.Quiet = replQuiet
	cfg.StopOnError = replStopOnError
	if replSessionID != "" {
		cfg.SessionID = replSessionID
	}

	printer := headless.NewPrinter(cmd.OutOrStdout(), format, replQuiet)
	printer.Subscribe(a.bus)
	defer printer.Unsubscribe()

	registry := tool.DefaultRegistry(a.checker, a.mode, a.coord)
	runner := headless.NewRunner(cfg, registry, command.NewExecutor(a.mode), printer)
	return runner.Run(ctx, in)
}
