package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
)

// ErrNoStatusStore is returned by the status command when no shared store
// is configured.
var ErrNoStatusStore = errors.New("status store not configured")

// statusCommand returns a CLI command that prints the recorded outcome of a
// past bundle.
//
// Usage example:
//
//	swapbundle status --bundle 3f0c9d2e-5b7a-4c1e-9a8f-1d2b3c4d5e6f
func statusCommand(deps Dependencies) *cli.Command {
	return &cli.Command{
		Name:        "status",
		Description: "Prints the last recorded state of every wallet of a bundle.",
		Usage:       "Reads a bundle's results from the shared store. Requires Redis to be configured.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "bundle",
				Usage:    "Bundle id printed by the run command",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if deps.StatusStore == nil {
				return ErrNoStatusStore
			}

			bundleID := c.String("bundle")
			results, err := deps.StatusStore.LoadBundleStatus(ctx, bundleID)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				return fmt.Errorf("bundle %s: no recorded status", bundleID)
			}

			return renderResults(c.Root().Writer, results)
		},
	}
}
