package quote

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Estimator produces display estimates. *Client implements it.
type Estimator interface {
	Estimate(ctx context.Context, mint string, amount decimal.Decimal) *Estimate
}

var _ Estimator = (*Client)(nil)

// Update is delivered to the Debouncer callback once the estimate for a
// wallet's latest amount is known. Estimate is nil when no quote is available
// or the amount is not positive.
type Update struct {
	WalletID string
	Mint     string
	Amount   decimal.Decimal
	Estimate *Estimate
}

type debounceConfig struct {
	window     time.Duration
	mintWindow time.Duration
	mint       string
}

// DebounceOption configures a Debouncer.
type DebounceOption func(*debounceConfig)

// WithWindow sets the quiet period after the last amount change before a
// quote is requested.
func WithWindow(d time.Duration) DebounceOption {
	return func(c *debounceConfig) {
		c.window = d
	}
}

// WithMintWindow sets the quiet period after the last mint change before
// quotes are refreshed for the new mint.
func WithMintWindow(d time.Duration) DebounceOption {
	return func(c *debounceConfig) {
		c.mintWindow = d
	}
}

// WithMint sets the initial target mint. Like SetMint, a mint shorter than
// MinMintLength leaves the Debouncer without a mint.
func WithMint(mint string) DebounceOption {
	return func(c *debounceConfig) {
		if len(mint) < MinMintLength {
			mint = ""
		}
		c.mint = mint
	}
}

type slot struct {
	gen    uint64
	amount decimal.Decimal
	timer  *time.Timer
	cancel context.CancelFunc
}

func (s *slot) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Debouncer coalesces per-wallet amount changes. Within the quiet window
// only the most recent amount is quoted; a response that arrives after a
// newer change for the same wallet is dropped.
//
// The update callback runs on a timer goroutine, one delivery at a time, and
// must not call back into the Debouncer synchronously.
type Debouncer struct {
	estimator Estimator
	onUpdate  func(Update)
	cfg       debounceConfig

	ctx    context.Context
	cancel context.CancelFunc

	deliverMu sync.Mutex

	mu        sync.Mutex
	closed    bool
	mint      string
	mintGen   uint64
	mintTimer *time.Timer
	slots     map[string]*slot
}

// NewDebouncer returns a Debouncer that reports results to onUpdate.
// Requests run under a context derived from ctx; Close cancels it.
func NewDebouncer(ctx context.Context, estimator Estimator, onUpdate func(Update), opts ...DebounceOption) *Debouncer {
	cfg := debounceConfig{
		window:     400 * time.Millisecond,
		mintWindow: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Debouncer{
		estimator: estimator,
		onUpdate:  onUpdate,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		mint:      cfg.mint,
		slots:     make(map[string]*slot),
	}
}

// Mint returns the mint currently being quoted.
func (d *Debouncer) Mint() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mint
}

// Trigger records a new amount for walletID. Any pending or in-flight quote
// for that wallet is superseded. Non-positive amounts, or an unset mint,
// clear the wallet's estimate without a request.
func (d *Debouncer) Trigger(walletID string, amount decimal.Decimal) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	s, ok := d.slots[walletID]
	if !ok {
		s = &slot{}
		d.slots[walletID] = s
	}
	s.stop()
	s.gen++
	s.amount = amount
	gen, mint := s.gen, d.mint

	if !amount.IsPositive() || mint == "" {
		d.mu.Unlock()
		d.deliver(walletID, s, gen, Update{WalletID: walletID, Mint: mint, Amount: amount})
		return
	}

	s.timer = time.AfterFunc(d.cfg.window, func() { d.fire(walletID, s, gen) })
	d.mu.Unlock()
}

// SetMint changes the target mint after the mint quiet window. Strings
// shorter than MinMintLength clear the mint immediately. Once applied, every
// wallet with a positive amount is re-quoted.
func (d *Debouncer) SetMint(mint string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.mintGen++
	if d.mintTimer != nil {
		d.mintTimer.Stop()
		d.mintTimer = nil
	}

	if len(mint) < MinMintLength {
		d.mint = ""
		return
	}

	gen := d.mintGen
	d.mintTimer = time.AfterFunc(d.cfg.mintWindow, func() { d.applyMint(mint, gen) })
}

// Forget drops all state for walletID, discarding any pending result.
func (d *Debouncer) Forget(walletID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.slots[walletID]; ok {
		s.stop()
		delete(d.slots, walletID)
	}
}

// Close stops all timers and cancels in-flight requests. No update is
// delivered after Close returns, except one already being delivered.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	for _, s := range d.slots {
		s.stop()
	}
	if d.mintTimer != nil {
		d.mintTimer.Stop()
	}
	d.mu.Unlock()

	d.cancel()
}

func (d *Debouncer) applyMint(mint string, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || gen != d.mintGen {
		return
	}

	d.mint = mint
	for id, s := range d.slots {
		if !s.amount.IsPositive() {
			continue
		}
		s.stop()
		s.gen++
		sgen := s.gen
		s.timer = time.AfterFunc(0, func() { d.fire(id, s, sgen) })
	}
}

func (d *Debouncer) fire(walletID string, s *slot, gen uint64) {
	d.mu.Lock()
	if !d.currentLocked(walletID, s, gen) {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(d.ctx)
	s.cancel = cancel
	mint, amount := d.mint, s.amount
	d.mu.Unlock()

	est := d.estimator.Estimate(ctx, mint, amount)
	cancel()

	d.deliver(walletID, s, gen, Update{WalletID: walletID, Mint: mint, Amount: amount, Estimate: est})
}

// deliver hands u to the callback if gen is still the wallet's latest
// generation. Deliveries are serialized so a superseded result can never be
// applied after a newer one.
func (d *Debouncer) deliver(walletID string, s *slot, gen uint64, u Update) {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	current := d.currentLocked(walletID, s, gen)
	d.mu.Unlock()

	if current {
		d.onUpdate(u)
	}
}

func (d *Debouncer) currentLocked(walletID string, s *slot, gen uint64) bool {
	return !d.closed && d.slots[walletID] == s && s.gen == gen
}
