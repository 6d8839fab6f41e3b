package commands

import (
	"context"
	"errors"
	"os"

	"github.com/opencode-ai/toolgate/internal/headless"
)

// responderFlags select who answers confirmation requests locally.
type responderFlags struct {
	autoApprove bool
	autoReject  bool
	prompt      bool
	accessible  bool
}

// start attaches the selected responder to the app's bus. It returns a
// no-op stop function when no local responder was requested.
func (f responderFlags) start(ctx context.Context, a *app) (func(), error) {
	selected := 0
	for _, on := range []bool{f.autoApprove, f.autoReject, f.prompt} {
		if on {
			selected++
		}
	}
	if selected > 1 {
		return nil, errors.New("--auto-approve, --auto-reject and --prompt are mutually exclusive")
	}

	switch {
	case f.autoApprove || f.autoReject:
		r := headless.NewAutoResponder(a.bus, f.autoApprove)
		r.Start()
		return r.Stop, nil
	case f.prompt:
		p := headless.NewPrompter(a.bus,
			headless.WithPending(a.coord),
			headless.WithOutput(os.Stderr),
			headless.WithAccessible(f.accessible || os.Getenv("ACCESSIBLE") != ""),
		)
		p.Start(ctx)
		return p.Stop, nil
	}
	return func() {}, nil
}
