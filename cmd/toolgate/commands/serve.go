package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/toolgate/internal/logging"
	"github.com/opencode-ai/toolgate/internal/server"
)

var (
	servePort      int
	serveHostname  string
	serveNoCORS    bool
	serveResponder responderFlags
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the toolgate HTTP server",
	Long: `Start toolgate as a server that exposes the approval mode, policy
decisions and pending confirmations over HTTP.

Remote UIs subscribe to GET /event and answer requests with
POST /confirmation/{id}. Use --prompt to answer them in this terminal
instead, or --auto-approve / --auto-reject for unattended runs.

Rule files are watched and reloaded while the server runs.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 4747, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname to listen on")
	serveCmd.Flags().BoolVar(&serveNoCORS, "no-cors", false, "Disable CORS headers")
	serveCmd.Flags().BoolVar(&serveResponder.autoApprove, "auto-approve", false, "Approve every confirmation request")
	serveCmd.Flags().BoolVar(&serveResponder.autoReject, "auto-reject", false, "Reject every confirmation request")
	serveCmd.Flags().BoolVar(&serveResponder.prompt, "prompt", false, "Answer confirmation requests in this terminal")
	serveCmd.Flags().BoolVar(&serveResponder.accessible, "accessible", false, "Use plain prompts instead of interactive forms")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopResponder, err := serveResponder.start(ctx, a)
	if err != nil {
		return err
	}
	defer stopResponder()

	serverConfig := server.DefaultConfig()
	serverConfig.Host = serveHostname
	serverConfig.Port = servePort
	serverConfig.EnableCORS = !serveNoCORS

	srv := server.New(serverConfig, a.bus, a.checker, a.coord)

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", serverConfig.Addr()).Str("version", Version).Msg("server listening")
		cmd.PrintErrf("toolgate listening on http://%s\n", serverConfig.Addr())
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logging.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}
	logging.Info().Msg("server stopped")
	return nil
}
