package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/gabapcia/swapbundle/internal/bundle"
	"github.com/gabapcia/swapbundle/internal/pkg/logger"
	"github.com/gabapcia/swapbundle/internal/reconcile"
	"github.com/gabapcia/swapbundle/internal/status"

	"github.com/urfave/cli/v3"
)

// ErrIncomplete is returned by the run command when at least one executed
// wallet did not end in success.
var ErrIncomplete = errors.New("bundle incomplete")

// runBundleCommand returns a CLI command that loads a bundle plan, prices
// every wallet and executes the bundle.
//
// Usage example:
//
//	swapbundle run --plan bundle.yaml --reconcile
//
// An interrupt (SIGINT or SIGTERM) aborts wallets that have not submitted yet.
func runBundleCommand(deps Dependencies) *cli.Command {
	return &cli.Command{
		Name:        "run",
		Description: "Executes one swap per wallet of a bundle plan and reports each wallet's outcome.",
		Usage:       "Runs a bundle plan. Wallets with unusable keys are excluded.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "plan",
				Aliases:  []string{"p"},
				Usage:    "Path to the YAML bundle plan",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "reconcile",
				Usage: "Poll the chain for wallets left pending after submission",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print balances and estimates without executing",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var (
				in  = c.Root().Reader
				out = c.Root().Writer
			)

			p, err := loadPlan(c.String("plan"))
			if err != nil {
				return err
			}

			b, err := buildBundle(p, deps.MaxWallets, newSecretReader(in, out), out)
			if err != nil {
				return err
			}
			defer func() {
				for _, w := range b.Wallets() {
					w.ClearSecret()
				}
			}()

			ctx = logger.Derive(ctx, "bundle.id", b.ID)
			prepare(ctx, deps, b)

			fmt.Fprintf(out, "bundle %s\n", b.ID)
			if err := renderPlan(out, b); err != nil {
				return err
			}
			if c.Bool("dry-run") {
				return nil
			}

			results, err := execute(ctx, deps, b, c.Bool("reconcile"), out)
			if err != nil {
				return err
			}
			if err := renderResults(out, results); err != nil {
				return err
			}

			return incomplete(results)
		},
	}
}

// prepare refreshes balances and display estimates. Failures only degrade
// what is shown; preflight treats an unknown balance as a failure.
func prepare(ctx context.Context, deps Dependencies, b *bundle.Bundle) {
	if err := deps.Bundle.RefreshBalances(ctx, b); err != nil {
		logger.Warn(ctx, "some balances could not be fetched", "error", err)
	}

	if deps.Quotes == nil {
		return
	}
	for _, w := range b.Wallets() {
		if !w.HasKey() || !w.Spend().IsPositive() {
			continue
		}
		w.SetEstimate(deps.Quotes.Estimate(ctx, b.Mint(), w.Spend()))
	}
}

func execute(ctx context.Context, deps Dependencies, b *bundle.Bundle, withReconcile bool, out io.Writer) ([]status.ExecutionResult, error) {
	var opts []status.Option
	if deps.StatusSink != nil {
		opts = append(opts, status.WithSink(deps.StatusSink))
	}
	tracker := status.NewTracker(b.ID, opts...)

	subCtx, unsubscribe := context.WithCancel(ctx)
	printed := make(chan struct{})
	updates := tracker.Subscribe(subCtx, 4*bundle.MaxWallets)
	go func() {
		defer close(printed)
		for res := range updates {
			renderTransition(out, res)
		}
	}()
	defer func() {
		unsubscribe()
		<-printed
	}()

	results, err := deps.Bundle.Execute(ctx, b, tracker)
	if err != nil {
		return nil, err
	}

	if !withReconcile || deps.Reconciler == nil || len(tracker.Unresolved()) == 0 {
		return results, nil
	}

	err = deps.Reconciler.Run(ctx, tracker)
	switch {
	case errors.Is(err, reconcile.ErrUnresolved):
		logger.Warn(ctx, "some submissions are still unresolved", "wallets", len(tracker.Unresolved()))
	case err != nil && !errors.Is(err, context.Canceled):
		return nil, err
	}
	return tracker.Snapshot(), nil
}

func incomplete(results []status.ExecutionResult) error {
	succeeded := 0
	for _, res := range results {
		if res.State == status.Success {
			succeeded++
		}
	}
	if succeeded == len(results) {
		return nil
	}
	return fmt.Errorf("%w: %d of %d wallets succeeded", ErrIncomplete, succeeded, len(results))
}
