package quote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gabapcia/swapbundle/internal/pkg/logger"

	"github.com/shopspring/decimal"
)

// Estimate is a human-scale receive estimate for one spend amount.
type Estimate struct {
	Quote  *Quote
	Output decimal.Decimal
	Symbol string
}

// Display formats the estimate with four decimal places.
func (e *Estimate) Display() string {
	if e == nil {
		return "-"
	}
	if e.Symbol == "" {
		return e.Output.StringFixed(4)
	}
	return e.Output.StringFixed(4) + " " + e.Symbol
}

type cacheKey struct {
	mint   string
	amount uint64
}

type cachedQuote struct {
	quote     *Quote
	expiresAt time.Time
}

type config struct {
	inputMint   string
	slippageBps int
	cacheTTL    time.Duration
	timeout     time.Duration
	now         func() time.Time
}

// Option configures a Client.
type Option func(*config)

// WithSlippageBps sets the maximum slippage requested from the aggregator.
func WithSlippageBps(bps int) Option {
	return func(c *config) {
		c.slippageBps = bps
	}
}

// WithCacheTTL sets how long a quote is reused for the same (mint, amount).
// Zero disables the cache.
func WithCacheTTL(d time.Duration) Option {
	return func(c *config) {
		c.cacheTTL = d
	}
}

// WithTimeout bounds each aggregator and metadata call.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// Client produces display estimates for SOL spend amounts.
type Client struct {
	aggregator Aggregator
	metadata   MetadataProvider
	cfg        config

	mu    sync.Mutex
	cache map[cacheKey]cachedQuote
}

// NewClient returns a Client quoting through aggregator and scaling outputs
// with decimals from metadata.
func NewClient(aggregator Aggregator, metadata MetadataProvider, opts ...Option) *Client {
	cfg := config{
		inputMint:   WrappedSOLMint,
		slippageBps: DefaultSlippageBps,
		cacheTTL:    10 * time.Second,
		timeout:     10 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Client{
		aggregator: aggregator,
		metadata:   metadata,
		cfg:        cfg,
		cache:      make(map[cacheKey]cachedQuote),
	}
}

// SlippageBps returns the configured slippage tolerance.
func (c *Client) SlippageBps() int {
	return c.cfg.slippageBps
}

// Lookup prices spending amount SOL on mint. Every failure is wrapped in
// ErrQuoteUnavailable.
func (c *Client) Lookup(ctx context.Context, mint string, amount decimal.Decimal) (*Estimate, error) {
	lamports := LamportsFromSOL(amount)
	if lamports == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrQuoteUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout)
	defer cancel()

	md, err := c.metadata.TokenMetadata(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuoteUnavailable, err)
	}
	if md.Decimals == nil {
		return nil, fmt.Errorf("%w: %w", ErrQuoteUnavailable, ErrUnknownDecimals)
	}

	q, err := c.quote(ctx, mint, lamports)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuoteUnavailable, err)
	}

	return &Estimate{
		Quote:  q,
		Output: FromMinorUnits(q.OutputAmount, *md.Decimals),
		Symbol: md.Symbol,
	}, nil
}

// Estimate is Lookup for display callers: failures are logged and reported
// as a nil estimate.
func (c *Client) Estimate(ctx context.Context, mint string, amount decimal.Decimal) *Estimate {
	est, err := c.Lookup(ctx, mint, amount)
	if err != nil {
		logger.Debug(ctx, "estimate unavailable", "mint", mint, "amount", amount.String(), "error", err)
		return nil
	}
	return est
}

func (c *Client) quote(ctx context.Context, mint string, lamports uint64) (*Quote, error) {
	key := cacheKey{mint: mint, amount: lamports}
	now := c.cfg.now()

	if c.cfg.cacheTTL > 0 {
		c.mu.Lock()
		hit, ok := c.cache[key]
		c.mu.Unlock()
		if ok && now.Before(hit.expiresAt) {
			return hit.quote, nil
		}
	}

	q, err := c.aggregator.Quote(ctx, Request{
		InputMint:   c.cfg.inputMint,
		OutputMint:  mint,
		Amount:      lamports,
		SlippageBps: c.cfg.slippageBps,
	})
	if err != nil {
		return nil, err
	}
	if q.OutputAmount == 0 {
		return nil, ErrNoRoute
	}

	if c.cfg.cacheTTL > 0 {
		c.mu.Lock()
		c.evictExpired(now)
		c.cache[key] = cachedQuote{quote: q, expiresAt: now.Add(c.cfg.cacheTTL)}
		c.mu.Unlock()
	}

	return q, nil
}

// evictExpired must be called with c.mu held.
func (c *Client) evictExpired(now time.Time) {
	for k, v := range c.cache {
		if !now.Before(v.expiresAt) {
			delete(c.cache, k)
		}
	}
}
