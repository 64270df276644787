package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gabapcia/swapbundle/internal/bundle"
	"github.com/gabapcia/swapbundle/internal/pkg/validator"

	"github.com/shopspring/decimal"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// promptKey is the key value that asks for the secret on stdin.
const promptKey = "-"

var errEmptySecret = errors.New("empty secret")

// planWallet is one wallet of a bundle plan. Exactly one of Key and KeyFile
// is expected; Key may be "-" to read the secret interactively.
type planWallet struct {
	ID      string `yaml:"id"`
	Key     string `yaml:"key" validate:"required_without=KeyFile"`
	KeyFile string `yaml:"keyFile"`
	Amount  string `yaml:"amount" validate:"required"`
}

// plan is the YAML document accepted by the run command.
//
//	mint: EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v
//	wallets:
//	  - id: alpha
//	    keyFile: ./alpha.json
//	    amount: "0.25"
//	  - id: beta
//	    key: "-"
//	    amount: "0.1"
type plan struct {
	Mint    string       `yaml:"mint" validate:"required,solana_pubkey"`
	Wallets []planWallet `yaml:"wallets" validate:"required,min=1,dive"`
}

func loadPlan(path string) (*plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	var p plan
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if err := validator.Validate(p); err != nil {
		return nil, err
	}

	for i, w := range p.Wallets {
		if _, err := decimal.NewFromString(w.Amount); err != nil {
			return nil, fmt.Errorf("wallet %d: invalid amount %q: %w", i, w.Amount, err)
		}
	}
	return &p, nil
}

// secretReader reads secrets without echo when attached to a terminal and
// line by line otherwise.
type secretReader struct {
	in     io.Reader
	out    io.Writer
	buffer *bufio.Reader
}

func newSecretReader(in io.Reader, out io.Writer) *secretReader {
	return &secretReader{in: in, out: out, buffer: bufio.NewReader(in)}
}

// Read prompts for and returns one secret. The caller owns the returned
// buffer and must clear it.
func (r *secretReader) Read(prompt string) ([]byte, error) {
	fmt.Fprint(r.out, prompt)

	if f, ok := r.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.out)
		if err != nil {
			return nil, fmt.Errorf("read secret: %w", err)
		}
		return nonEmpty(secret)
	}

	line, err := r.buffer.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		clear(line)
		return nil, fmt.Errorf("read secret: %w", err)
	}
	return nonEmpty(line)
}

func nonEmpty(secret []byte) ([]byte, error) {
	if len(bytes.TrimSpace(secret)) == 0 {
		clear(secret)
		return nil, errEmptySecret
	}
	return secret, nil
}

// secret returns the key material of w, reading it from its key file or
// from the prompt when requested.
func (w planWallet) secret(prompts *secretReader) ([]byte, error) {
	switch {
	case w.Key == promptKey:
		return prompts.Read(fmt.Sprintf("secret key for %s: ", w.ID))
	case w.Key != "":
		return []byte(w.Key), nil
	default:
		secret, err := os.ReadFile(w.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		return secret, nil
	}
}

// buildBundle turns p into a Bundle. Wallets whose key cannot be read or
// parsed are still added so they show up in the summary, but they never
// become eligible.
func buildBundle(p *plan, maxWallets int, prompts *secretReader, out io.Writer) (*bundle.Bundle, error) {
	b := bundle.New(p.Mint, bundle.WithMaxWallets(maxWallets))

	for _, pw := range p.Wallets {
		w := bundle.NewWalletEntry(pw.ID)
		w.SetSpend(decimal.RequireFromString(pw.Amount))

		secret, err := pw.secret(prompts)
		if err == nil {
			err = w.SetSecret(secret)
		}
		if err != nil {
			fmt.Fprintf(out, "wallet %s: key unusable, excluded: %v\n", w.ID(), err)
		}

		if err := b.Add(w); err != nil {
			w.ClearSecret()
			return nil, fmt.Errorf("wallet %s: %w", w.ID(), err)
		}
	}
	return b, nil
}
