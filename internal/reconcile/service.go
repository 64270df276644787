// Package reconcile resolves wallets left Pending after an ambiguous
// submission by asking the chain what became of their signatures.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabapcia/swapbundle/internal/pkg/logger"
	"github.com/gabapcia/swapbundle/internal/status"
	"github.com/gabapcia/swapbundle/internal/swap"

	"github.com/gagliardetto/solana-go"
)

var ErrUnresolved = errors.New("wallets still pending after reconciliation")

// SignatureStatus is what the chain knows about one signature.
type SignatureStatus struct {
	Signature solana.Signature

	// Found is false when the node has no record of the signature.
	Found bool
	// Settled is true once the transaction reached confirmed commitment.
	Settled bool
	// Err is the on-chain execution error, empty on success.
	Err string
}

// StatusChecker looks up signatures. The result has one entry per input
// signature, in the same order.
type StatusChecker interface {
	SignatureStatuses(ctx context.Context, sigs []solana.Signature) ([]SignatureStatus, error)
}

type Service interface {
	// Reconcile runs a single pass and returns how many wallets it resolved.
	Reconcile(ctx context.Context, tracker *status.Tracker) (int, error)

	// Run repeats Reconcile until nothing is unresolved, the attempts are
	// exhausted or ctx is done.
	Run(ctx context.Context, tracker *status.Tracker) error
}

type config struct {
	interval      time.Duration
	maxAttempts   int
	statusTimeout time.Duration
}

type Option func(*config)

// WithInterval sets the wait between passes. Defaults to 2s.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		c.interval = d
	}
}

// WithMaxAttempts caps the number of passes Run makes. Defaults to 30.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		c.maxAttempts = n
	}
}

// WithStatusTimeout bounds each signature status lookup. Defaults to 10s.
func WithStatusTimeout(d time.Duration) Option {
	return func(c *config) {
		c.statusTimeout = d
	}
}

type service struct {
	checker StatusChecker
	cfg     config
}

var _ Service = (*service)(nil)

func (s *service) Reconcile(ctx context.Context, tracker *status.Tracker) (int, error) {
	pending := tracker.Unresolved()
	if len(pending) == 0 {
		return 0, nil
	}

	var (
		sigs    = make([]solana.Signature, 0, len(pending))
		wallets = make([]string, 0, len(pending))
	)
	for _, res := range pending {
		sig, err := solana.SignatureFromBase58(res.Signature)
		if err != nil {
			logger.Warn(ctx, "skipping malformed signature", "wallet.id", res.WalletID, "error", err)
			continue
		}
		sigs = append(sigs, sig)
		wallets = append(wallets, res.WalletID)
	}
	if len(sigs) == 0 {
		return 0, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.statusTimeout)
	defer cancel()

	statuses, err := s.checker.SignatureStatuses(lookupCtx, sigs)
	if err != nil {
		return 0, fmt.Errorf("fetch signature statuses: %w", err)
	}
	if len(statuses) != len(sigs) {
		return 0, fmt.Errorf("fetch signature statuses: got %d results for %d signatures", len(statuses), len(sigs))
	}

	resolved := 0
	for i, st := range statuses {
		walletID := wallets[i]

		var (
			state status.State
			d     status.Details
		)
		switch {
		case !st.Found:
			continue
		case st.Err != "":
			state = status.Failed
			d = status.Details{ErrorKind: string(swap.KindOnChain), Error: fmt.Sprintf("%s: %s", swap.ErrOnChain, st.Err)}
		case st.Settled:
			state = status.Success
		default:
			continue
		}

		if err := tracker.Report(ctx, walletID, state, d); err != nil {
			logger.Warn(ctx, "could not record reconciled state", "wallet.id", walletID, "error", err)
			continue
		}
		logger.Info(ctx, "wallet reconciled", "wallet.id", walletID, "state", state, "signature", sigs[i].String())
		resolved++
	}
	return resolved, nil
}

func (s *service) Run(ctx context.Context, tracker *status.Tracker) error {
	for attempt := 1; ; attempt++ {
		if _, err := s.Reconcile(ctx, tracker); err != nil {
			logger.Warn(ctx, "reconciliation pass failed", "attempt", attempt, "error", err)
		}

		left := len(tracker.Unresolved())
		if left == 0 {
			return nil
		}
		if attempt >= s.cfg.maxAttempts {
			return fmt.Errorf("%w: %d", ErrUnresolved, left)
		}

		timer := time.NewTimer(s.cfg.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// NewService returns a Service backed by checker.
func NewService(checker StatusChecker, opts ...Option) *service {
	cfg := config{
		interval:      2 * time.Second,
		maxAttempts:   30,
		statusTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &service{
		checker: checker,
		cfg:     cfg,
	}
}
