package cli

import (
	"cmp"
	"context"
	"io"
	"os"
	"time"

	"github.com/gabapcia/swapbundle/internal/bundle"
	"github.com/gabapcia/swapbundle/internal/quote"
	"github.com/gabapcia/swapbundle/internal/reconcile"
	"github.com/gabapcia/swapbundle/internal/status"

	"github.com/urfave/cli/v3"
)

// StatusStore reads persisted bundle results.
type StatusStore interface {
	LoadBundleStatus(ctx context.Context, bundleID string) ([]status.ExecutionResult, error)
}

// Dependencies are the services the commands run against. Reconciler,
// StatusSink and StatusStore are optional.
type Dependencies struct {
	Bundle      bundle.Service
	Reconciler  reconcile.Service
	Quotes      quote.Estimator
	StatusSink  status.Sink
	StatusStore StatusStore

	MaxWallets  int
	QuoteWindow time.Duration

	// Stdin and Stdout default to the process streams.
	Stdin  io.Reader
	Stdout io.Writer
}

// Run initializes and executes the swapbundle CLI application.
//
// It registers all available commands:
//
//   - `run`: Executes a bundle plan.
//   - `quote`: Streams debounced estimates for amounts read from stdin.
//   - `inspect-key`: Shows the public key and encoding of a secret key.
//   - `status`: Prints the stored results of a past bundle.
func Run(ctx context.Context, deps Dependencies) error {
	deps.Stdin = cmp.Or[io.Reader](deps.Stdin, os.Stdin)
	deps.Stdout = cmp.Or[io.Writer](deps.Stdout, os.Stdout)
	deps.MaxWallets = cmp.Or(deps.MaxWallets, bundle.MaxWallets)
	deps.QuoteWindow = cmp.Or(deps.QuoteWindow, 400*time.Millisecond)

	app := &cli.Command{
		EnableShellCompletion: true,
		Name:                  "swapbundle",
		Description:           "Prices, signs and submits one swap per wallet for a group of independently keyed wallets.",
		Usage:                 "swapbundle [command] [flags]",
		Reader:                deps.Stdin,
		Writer:                deps.Stdout,
		Commands: []*cli.Command{
			runBundleCommand(deps),
			quoteCommand(deps),
			inspectKeyCommand(deps),
			statusCommand(deps),
		},
	}

	return app.Run(ctx, os.Args)
}
