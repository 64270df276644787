package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gabapcia/swapbundle/internal/pkg/types"
	"github.com/gabapcia/swapbundle/internal/pkg/x/chflow"
	"github.com/gabapcia/swapbundle/internal/quote"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v3"
)

// quoteSession feeds stdin commands into a Debouncer and remembers which
// wallets still wait for an estimate.
type quoteSession struct {
	debouncer *quote.Debouncer

	outMu sync.Mutex
	out   io.Writer

	mu       sync.Mutex
	amounts  map[string]decimal.Decimal
	awaiting types.Set[string]
	settled  chan struct{}
}

func newQuoteSession(ctx context.Context, estimator quote.Estimator, out io.Writer, opts ...quote.DebounceOption) *quoteSession {
	s := &quoteSession{
		out:      out,
		amounts:  make(map[string]decimal.Decimal),
		awaiting: types.NewSet[string](),
		settled:  make(chan struct{}, 1),
	}
	s.debouncer = quote.NewDebouncer(ctx, estimator, s.onUpdate, opts...)
	return s
}

func (s *quoteSession) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *quoteSession) onUpdate(u quote.Update) {
	s.mu.Lock()
	s.awaiting.Delete(u.WalletID)
	s.mu.Unlock()
	chflow.TrySend(s.settled, struct{}{})

	s.printf("%s\t%s SOL\t%s\n", u.WalletID, u.Amount.String(), u.Estimate.Display())
}

// handle applies one input line:
//
//	mint <address>     change the target mint
//	forget <wallet>    drop a wallet
//	<wallet> <amount>  set a wallet's spend in SOL
func (s *quoteSession) handle(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	if len(fields) != 2 {
		s.printf("expected two fields, got %q\n", line)
		return
	}

	switch fields[0] {
	case "mint":
		s.setMint(fields[1])
	case "forget":
		s.forget(fields[1])
	default:
		amount, err := decimal.NewFromString(fields[1])
		if err != nil {
			s.printf("%s: invalid amount %q\n", fields[0], fields[1])
			return
		}
		s.trigger(fields[0], amount)
	}
}

func (s *quoteSession) trigger(walletID string, amount decimal.Decimal) {
	s.mu.Lock()
	s.amounts[walletID] = amount
	s.awaiting.Add(walletID)
	s.mu.Unlock()

	s.debouncer.Trigger(walletID, amount)
}

func (s *quoteSession) setMint(mint string) {
	if len(mint) >= quote.MinMintLength {
		s.mu.Lock()
		for id, amount := range s.amounts {
			if amount.IsPositive() {
				s.awaiting.Add(id)
			}
		}
		s.mu.Unlock()
	}

	s.debouncer.SetMint(mint)
}

func (s *quoteSession) forget(walletID string) {
	s.mu.Lock()
	delete(s.amounts, walletID)
	s.awaiting.Delete(walletID)
	s.mu.Unlock()

	s.debouncer.Forget(walletID)
}

func (s *quoteSession) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.awaiting)
}

// wait blocks until no wallet awaits an estimate, ctx is done or timeout
// elapses. It returns the number of wallets still waiting.
func (s *quoteSession) wait(ctx context.Context, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for s.pending() > 0 {
		if _, ok := chflow.Receive(ctx, s.settled); !ok {
			return s.pending()
		}
	}
	return 0
}

func (s *quoteSession) Close() {
	s.debouncer.Close()
}

// quoteCommand returns a CLI command that streams debounced estimates for
// amounts typed on stdin.
//
// Usage example:
//
//	printf 'alpha 0.5\nbeta 1.2\n' | swapbundle quote --mint EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v
func quoteCommand(deps Dependencies) *cli.Command {
	return &cli.Command{
		Name:        "quote",
		Description: "Reads '<wallet> <amount>', 'mint <address>' and 'forget <wallet>' lines and prints an estimate for the latest amount of each wallet.",
		Usage:       "Streams receive estimates. Rapid edits of the same wallet are coalesced.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mint",
				Usage: "Initial target token mint",
			},
			&cli.DurationFlag{
				Name:  "wait",
				Usage: "How long to wait for outstanding estimates once input ends",
				Value: 10 * time.Second,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			s := newQuoteSession(ctx, deps.Quotes, c.Root().Writer,
				quote.WithWindow(deps.QuoteWindow),
				quote.WithMint(c.String("mint")),
			)
			defer s.Close()

			scanner := bufio.NewScanner(c.Root().Reader)
			for scanner.Scan() {
				s.handle(scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			if left := s.wait(ctx, c.Duration("wait")); left > 0 {
				s.printf("%d wallet(s) still waiting for an estimate\n", left)
			}
			return ctx.Err()
		},
	}
}
