// Package swap runs the per-wallet swap pipeline: local preflight, fresh
// quote, aggregator-built transaction, local signing and relay submission.
//
// Each step runs only if the previous one succeeded. Failures before
// submission are deterministic. A transport failure or timeout during
// submission yields ErrAmbiguousNetwork together with the locally computed
// signature, so the outcome can be reconciled later.
package swap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gabapcia/swapbundle/internal/keymaterial"
	"github.com/gabapcia/swapbundle/internal/pkg/logger"
	"github.com/gabapcia/swapbundle/internal/quote"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// DefaultSafetyBufferLamports covers network fees and the rent of a newly
// created token account (0.01 SOL).
const DefaultSafetyBufferLamports = 10_000_000

// BuildRequest asks the aggregator for an unsigned swap transaction.
type BuildRequest struct {
	Quote                   *quote.Quote
	UserPublicKey           solana.PublicKey
	WrapAndUnwrapSOL        bool
	DynamicComputeUnitLimit bool
	PriorityFeeLamports     uint64
}

// Builder returns an unsigned transaction, base64 encoded in wire format.
type Builder interface {
	BuildSwap(ctx context.Context, req BuildRequest) (string, error)
}

// Relay submits a signed, base64 encoded transaction. An explicit rejection
// must be reported by wrapping ErrRelayRejected; any other error is treated
// as ambiguous.
type Relay interface {
	Submit(ctx context.Context, signedTx string) (solana.Signature, error)
}

// Job is the input of one pipeline run. Balance is the last known balance in
// lamports, or nil if it could not be fetched.
type Job struct {
	WalletID      string
	Keypair       *keymaterial.Keypair
	Mint          string
	SpendLamports uint64
	Balance       *uint64
}

// Result carries what the pipeline learned. Signature is set as soon as the
// transaction is signed, so it is present on success and on ambiguous
// failures.
type Result struct {
	Signature           solana.Signature
	Quote               *quote.Quote
	PriorityFeeLamports uint64
}

type config struct {
	slippageBps   int
	safetyBuffer  uint64
	feeMin        uint64
	feeMax        uint64
	quoteTimeout  time.Duration
	buildTimeout  time.Duration
	submitTimeout time.Duration
	rand          *rand.Rand
}

// Option configures a Pipeline.
type Option func(*config)

// WithSlippageBps sets the slippage tolerance for the fresh quote.
func WithSlippageBps(bps int) Option {
	return func(c *config) {
		c.slippageBps = bps
	}
}

// WithSafetyBuffer sets the lamports kept on top of the spend during preflight.
func WithSafetyBuffer(lamports uint64) Option {
	return func(c *config) {
		c.safetyBuffer = lamports
	}
}

// WithPriorityFeeRange sets the inclusive range a per-wallet priority fee is
// drawn from. min == max gives a fixed fee.
func WithPriorityFeeRange(minLamports, maxLamports uint64) Option {
	return func(c *config) {
		c.feeMin = minLamports
		c.feeMax = max(minLamports, maxLamports)
	}
}

// WithTimeouts sets the per-call timeouts for quote, build and submit.
func WithTimeouts(quoteTimeout, buildTimeout, submitTimeout time.Duration) Option {
	return func(c *config) {
		c.quoteTimeout = quoteTimeout
		c.buildTimeout = buildTimeout
		c.submitTimeout = submitTimeout
	}
}

// WithRand sets the random source used for priority fees. The default is the
// process-wide generator.
func WithRand(r *rand.Rand) Option {
	return func(c *config) {
		c.rand = r
	}
}

// Pipeline executes swap jobs. It holds no per-job state and is safe for
// concurrent use.
type Pipeline struct {
	aggregator quote.Aggregator
	builder    Builder
	relay      Relay
	cfg        config

	randMu sync.Mutex
}

// NewPipeline returns a Pipeline using aggregator for quotes, builder for
// transactions and relay for submission.
func NewPipeline(aggregator quote.Aggregator, builder Builder, relay Relay, opts ...Option) *Pipeline {
	cfg := config{
		slippageBps:   quote.DefaultSlippageBps,
		safetyBuffer:  DefaultSafetyBufferLamports,
		feeMin:        10_000,
		feeMax:        100_000,
		quoteTimeout:  10 * time.Second,
		buildTimeout:  15 * time.Second,
		submitTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pipeline{
		aggregator: aggregator,
		builder:    builder,
		relay:      relay,
		cfg:        cfg,
	}
}

// Preflight checks locally that the balance covers spend plus the safety
// buffer.
func (p *Pipeline) Preflight(job Job) error {
	if job.Balance == nil {
		return fmt.Errorf("%w: balance unknown", ErrInsufficientBalance)
	}

	required := job.SpendLamports + p.cfg.safetyBuffer
	if *job.Balance < required {
		return fmt.Errorf("%w: have %d lamports, need %d", ErrInsufficientBalance, *job.Balance, required)
	}
	return nil
}

// Execute runs job through every stage. Cancellation of ctx is honored up
// to the start of submission; submission itself runs to completion bounded
// only by the submit timeout.
func (p *Pipeline) Execute(ctx context.Context, job Job) (Result, error) {
	var res Result

	if err := p.Preflight(job); err != nil {
		return res, err
	}
	if job.Keypair == nil {
		return res, fmt.Errorf("%w: no signing key", keymaterial.ErrInvalidKeyMaterial)
	}

	q, err := p.quote(ctx, job)
	if err != nil {
		return res, abortedOr(ctx, err)
	}
	res.Quote = q

	res.PriorityFeeLamports = p.priorityFee()
	tx, err := p.build(ctx, job, q, res.PriorityFeeLamports)
	if err != nil {
		return res, abortedOr(ctx, err)
	}

	signed, sig, err := sign(tx, job.Keypair)
	if err != nil {
		return res, err
	}
	res.Signature = sig

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("aborted before submission: %w", err)
	}

	logger.Info(ctx, "submitting swap", "signature", sig.String(), "priority_fee", res.PriorityFeeLamports)

	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.submitTimeout)
	defer cancel()

	relayed, err := p.relay.Submit(submitCtx, signed)
	switch {
	case err == nil:
	case errors.Is(err, ErrRelayRejected):
		return res, err
	default:
		return res, fmt.Errorf("%w: %w", ErrAmbiguousNetwork, err)
	}

	if relayed != (solana.Signature{}) && relayed != sig {
		logger.Warn(ctx, "relay returned a different signature", "local", sig.String(), "relay", relayed.String())
		res.Signature = relayed
	}
	return res, nil
}

func (p *Pipeline) quote(ctx context.Context, job Job) (*quote.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.quoteTimeout)
	defer cancel()

	q, err := p.aggregator.Quote(ctx, quote.Request{
		InputMint:   quote.WrappedSOLMint,
		OutputMint:  job.Mint,
		Amount:      job.SpendLamports,
		SlippageBps: p.cfg.slippageBps,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRouteNotFound, err)
	}
	if q == nil || q.OutputAmount == 0 {
		return nil, ErrRouteNotFound
	}
	return q, nil
}

func (p *Pipeline) build(ctx context.Context, job Job, q *quote.Quote, fee uint64) (*solana.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.buildTimeout)
	defer cancel()

	encoded, err := p.builder.BuildSwap(ctx, BuildRequest{
		Quote:                   q,
		UserPublicKey:           job.Keypair.PublicKey,
		WrapAndUnwrapSOL:        true,
		DynamicComputeUnitLimit: true,
		PriorityFeeLamports:     fee,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildFailure, err)
	}
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty transaction", ErrBuildFailure)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %w", ErrBuildFailure, err)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decode transaction: %w", ErrBuildFailure, err)
	}
	return tx, nil
}

// sign signs tx with kp and returns the base64 wire encoding together with
// the fee payer signature, which is the transaction id.
func sign(tx *solana.Transaction, kp *keymaterial.Keypair) (string, solana.Signature, error) {
	// Aggregators return placeholder signatures; Sign appends, so start clean.
	tx.Signatures = nil
	if _, err := tx.Sign(kp.Signer()); err != nil {
		return "", solana.Signature{}, fmt.Errorf("%w: sign: %w", ErrBuildFailure, err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", solana.Signature{}, fmt.Errorf("%w: encode: %w", ErrBuildFailure, err)
	}

	return base64.StdEncoding.EncodeToString(raw), tx.Signatures[0], nil
}

func (p *Pipeline) priorityFee() uint64 {
	if p.cfg.feeMax <= p.cfg.feeMin {
		return p.cfg.feeMin
	}

	draw := rand.Uint64N
	if p.cfg.rand != nil {
		p.randMu.Lock()
		defer p.randMu.Unlock()
		draw = p.cfg.rand.Uint64N
	}

	// The full uint64 range has no representable span.
	span := p.cfg.feeMax - p.cfg.feeMin
	if span == math.MaxUint64 {
		return draw(math.MaxUint64)
	}
	return p.cfg.feeMin + draw(span+1)
}

// abortedOr reports a caller cancellation in place of the stage error it
// caused.
func abortedOr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); errors.Is(cerr, context.Canceled) {
		return fmt.Errorf("aborted: %w", cerr)
	}
	return err
}
