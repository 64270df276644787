package bundle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gabapcia/swapbundle/internal/pkg/logger"
	"github.com/gabapcia/swapbundle/internal/pkg/resilience/retry"
	"github.com/gabapcia/swapbundle/internal/status"
	"github.com/gabapcia/swapbundle/internal/swap"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/gabapcia/swapbundle/internal/bundle"

// BalanceFetcher reads a wallet's native balance in lamports.
type BalanceFetcher interface {
	Balance(ctx context.Context, owner solana.PublicKey) (uint64, error)
}

// Executor runs one wallet's swap pipeline.
type Executor interface {
	Execute(ctx context.Context, job swap.Job) (swap.Result, error)
}

var _ Executor = (*swap.Pipeline)(nil)

type Service interface {
	// Execute starts one pipeline per eligible wallet of b, staggered, and
	// waits for all of them. Every eligible wallet ends in a terminal state
	// or in Pending with a signature when its submission was ambiguous.
	Execute(ctx context.Context, b *Bundle, tracker *status.Tracker) ([]status.ExecutionResult, error)

	// RefreshBalances fetches the balance of every keyed wallet. Wallets whose
	// fetch fails are left with an unknown balance.
	RefreshBalances(ctx context.Context, b *Bundle) error
}

type config struct {
	stagger        Stagger
	balanceTimeout time.Duration
	retry          retry.Retry
}

type Option func(*config)

// WithStagger replaces DefaultStagger.
func WithStagger(s Stagger) Option {
	return func(c *config) {
		c.stagger = s
	}
}

// WithBalanceTimeout bounds each balance fetch attempt. Defaults to 5s.
func WithBalanceTimeout(d time.Duration) Option {
	return func(c *config) {
		c.balanceTimeout = d
	}
}

// WithRetry sets the retry policy for balance fetches.
func WithRetry(r retry.Retry) Option {
	return func(c *config) {
		c.retry = r
	}
}

type service struct {
	balances BalanceFetcher
	executor Executor
	cfg      config

	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

var _ Service = (*service)(nil)

func (s *service) Execute(ctx context.Context, b *Bundle, tracker *status.Tracker) ([]status.ExecutionResult, error) {
	if !b.TotalSpend().IsPositive() {
		return nil, ErrNothingToExecute
	}

	wallets := b.Eligible()
	if len(wallets) == 0 {
		return nil, ErrNothingToExecute
	}

	ids := make([]string, len(wallets))
	for i, w := range wallets {
		ids[i] = w.ID()
	}

	ctx = logger.Derive(ctx, "bundle.id", b.ID)
	if err := tracker.Register(ctx, ids...); err != nil {
		return nil, fmt.Errorf("register wallets: %w", err)
	}

	mint := b.Mint()
	offsets := s.cfg.stagger.Offsets(len(wallets))

	logger.Info(ctx, "bundle execution started", "mint", mint, "wallets", len(wallets))

	var wg sync.WaitGroup
	for i, w := range wallets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.run(ctx, tracker, b.ID, w, mint, offsets[i])
		}()
	}
	wg.Wait()

	snapshot := tracker.Snapshot()
	logger.Info(ctx, "bundle execution finished", "wallets", len(snapshot))
	return snapshot, nil
}

func (s *service) run(ctx context.Context, tracker *status.Tracker, bundleID string, w *WalletEntry, mint string, delay time.Duration) {
	ctx = logger.Derive(ctx, "wallet.id", w.ID())
	ctx, span := s.tracer.Start(ctx, "swapbundle.pipeline", trace.WithAttributes(
		attribute.String("bundle.id", bundleID),
		attribute.String("wallet.id", w.ID()),
		attribute.Int64("stagger.ms", delay.Milliseconds()),
	))
	defer span.End()

	kp, spend, balance := w.take()
	defer kp.Wipe()

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "pipeline panicked", "panic", r)
			s.finish(ctx, tracker, span, w.ID(), swap.Result{}, fmt.Errorf("pipeline panic: %v", r))
		}
	}()

	if err := wait(ctx, delay); err != nil {
		s.finish(ctx, tracker, span, w.ID(), swap.Result{}, fmt.Errorf("aborted during stagger: %w", err))
		return
	}

	if err := tracker.Report(ctx, w.ID(), status.Pending, status.Details{}); err != nil {
		logger.Error(ctx, "could not mark wallet pending", "error", err)
	}

	res, err := s.executor.Execute(ctx, swap.Job{
		WalletID:      w.ID(),
		Keypair:       kp,
		Mint:          mint,
		SpendLamports: spend,
		Balance:       balance,
	})
	s.finish(ctx, tracker, span, w.ID(), res, err)
}

func (s *service) finish(ctx context.Context, tracker *status.Tracker, span trace.Span, walletID string, res swap.Result, err error) {
	var (
		state = status.Success
		kind  = swap.KindOf(err)
		d     status.Details
	)

	switch {
	case err == nil:
		d.Signature = res.Signature.String()
		logger.Info(ctx, "swap submitted", "signature", d.Signature)
	case swap.IsAmbiguous(err):
		state = status.Pending
		d = status.Details{ErrorKind: string(kind), Error: err.Error()}
		if res.Signature != (solana.Signature{}) {
			d.Signature = res.Signature.String()
		}
		logger.Warn(ctx, "swap outcome unknown", "signature", d.Signature, "error", err)
	default:
		state = status.Failed
		d = status.Details{ErrorKind: string(kind), Error: err.Error()}
		logger.Warn(ctx, "swap failed", "kind", kind, "error", err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
	}
	span.SetAttributes(attribute.String("outcome", string(state)))

	if rerr := tracker.Report(ctx, walletID, state, d); rerr != nil {
		logger.Error(ctx, "could not record pipeline outcome", "state", state, "error", rerr)
	}

	s.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", string(state)),
		attribute.String("error_kind", string(kind)),
	))
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *service) RefreshBalances(ctx context.Context, b *Bundle) error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)

	for _, w := range b.Wallets() {
		owner, ok := w.PublicKey()
		if !ok {
			w.ForgetBalance()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			lamports, err := s.fetchBalance(ctx, owner)
			if err != nil {
				w.ForgetBalance()
				logger.Warn(ctx, "balance refresh failed", "wallet.id", w.ID(), "error", err)

				mu.Lock()
				errs = append(errs, fmt.Errorf("wallet %s: %w", w.ID(), err))
				mu.Unlock()
				return
			}
			w.SetBalance(lamports)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (s *service) fetchBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	var lamports uint64
	err := s.cfg.retry.Execute(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.balanceTimeout)
		defer cancel()

		var err error
		lamports, err = s.balances.Balance(ctx, owner)
		return err
	})
	return lamports, err
}

// NewService returns a Service running pipelines through executor and
// reading balances through balances.
func NewService(balances BalanceFetcher, executor Executor, opts ...Option) *service {
	cfg := config{
		stagger:        DefaultStagger,
		balanceTimeout: 5 * time.Second,
		retry:          retry.New(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	outcomes, err := otel.Meter(instrumentationName).Int64Counter(
		"swapbundle.pipeline.outcomes",
		metric.WithDescription("Pipeline outcomes by final state and error kind"),
	)
	if err != nil {
		outcomes, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("swapbundle.pipeline.outcomes")
	}

	return &service{
		balances: balances,
		executor: executor,
		cfg:      cfg,
		tracer:   otel.Tracer(instrumentationName),
		outcomes: outcomes,
	}
}
