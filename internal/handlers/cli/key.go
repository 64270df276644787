package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/gabapcia/swapbundle/internal/keymaterial"

	"github.com/urfave/cli/v3"
)

// inspectKeyCommand returns a CLI command that parses a secret key and
// prints the public key it controls. The secret itself is never printed.
//
// Usage example:
//
//	swapbundle inspect-key --file ./alpha.json
func inspectKeyCommand(_ Dependencies) *cli.Command {
	return &cli.Command{
		Name:        "inspect-key",
		Description: "Parses a secret key given as a JSON byte array or base58 text and prints its public key and detected encoding.",
		Usage:       "Validates a secret key. Reads it from --file or prompts for it without echo.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "Path to a file holding the secret key",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			out := c.Root().Writer

			var (
				secret []byte
				err    error
			)
			if path := c.String("file"); path != "" {
				secret, err = os.ReadFile(path)
			} else {
				secret, err = newSecretReader(c.Root().Reader, out).Read("secret key: ")
			}
			if err != nil {
				return err
			}

			kp, err := keymaterial.Parse(secret)
			clear(secret)
			if err != nil {
				return err
			}
			defer kp.Wipe()

			fmt.Fprintf(out, "public key: %s\nencoding:   %s\n", kp.PublicKey, kp.Encoding)
			return nil
		},
	}
}
