// Package bundle groups independently keyed wallets behind a single swap
// intent and executes them as staggered, isolated pipelines.
package bundle

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gabapcia/swapbundle/internal/keymaterial"
	"github.com/gabapcia/swapbundle/internal/quote"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxWallets is the default bundle capacity.
const MaxWallets = 16

var (
	ErrBundleFull       = errors.New("bundle is full")
	ErrDuplicateWallet  = errors.New("wallet id already in bundle")
	ErrWalletNotFound   = errors.New("wallet not found")
	ErrNothingToExecute = errors.New("no eligible wallet with a positive spend")
)

// WalletEntry is one wallet of a bundle. Its keypair exists if and only if
// the most recent SetSecret succeeded and the key has not been cleared or
// consumed by an execution since.
type WalletEntry struct {
	id string

	mu       sync.Mutex
	keypair  *keymaterial.Keypair
	parseErr error
	spend    decimal.Decimal
	balance  *uint64
	estimate *quote.Estimate
}

// NewWalletEntry returns an entry with the given id, or a random one when id
// is empty.
func NewWalletEntry(id string) *WalletEntry {
	if id == "" {
		id = uuid.NewString()
	}
	return &WalletEntry{id: id}
}

// ID returns the entry's stable identity.
func (w *WalletEntry) ID() string {
	return w.id
}

// SetSecret parses secret into a keypair, replacing any previous one. The
// secret buffer is zeroed before returning, whatever the outcome. On failure
// the entry is left without a keypair.
func (w *WalletEntry) SetSecret(secret []byte) error {
	kp, err := keymaterial.Parse(secret)
	clear(secret)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.keypair.Wipe()
	w.keypair = kp
	w.parseErr = err
	return err
}

// ClearSecret wipes the keypair.
func (w *WalletEntry) ClearSecret() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.keypair.Wipe()
	w.keypair = nil
}

// HasKey reports whether a keypair is present.
func (w *WalletEntry) HasKey() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keypair != nil
}

// ParseError returns the error of the last SetSecret, if it failed.
func (w *WalletEntry) ParseError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.parseErr
}

// PublicKey returns the wallet address when a keypair is present.
func (w *WalletEntry) PublicKey() (solana.PublicKey, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.keypair == nil {
		return solana.PublicKey{}, false
	}
	return w.keypair.PublicKey, true
}

// SetSpend sets the requested spend in SOL.
func (w *WalletEntry) SetSpend(amount decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.spend = amount
}

// Spend returns the requested spend in SOL.
func (w *WalletEntry) Spend() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.spend
}

// SetBalance records the last fetched balance in lamports.
func (w *WalletEntry) SetBalance(lamports uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balance = &lamports
}

// ForgetBalance marks the balance as unknown.
func (w *WalletEntry) ForgetBalance() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balance = nil
}

// Balance returns the last fetched balance in lamports.
func (w *WalletEntry) Balance() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.balance == nil {
		return 0, false
	}
	return *w.balance, true
}

// SetEstimate stores the latest display estimate; nil clears it.
func (w *WalletEntry) SetEstimate(est *quote.Estimate) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.estimate = est
}

// Estimate returns the latest display estimate, which may be stale or nil.
func (w *WalletEntry) Estimate() *quote.Estimate {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.estimate
}

func (w *WalletEntry) eligible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keypair != nil && quote.LamportsFromSOL(w.spend) > 0
}

// take hands the keypair over to a pipeline together with the spend and
// balance it runs against. The entry no longer holds the keypair afterwards.
func (w *WalletEntry) take() (kp *keymaterial.Keypair, spend uint64, balance *uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.balance != nil {
		b := *w.balance
		balance = &b
	}
	kp, w.keypair = w.keypair, nil
	return kp, quote.LamportsFromSOL(w.spend), balance
}

// Bundle is an ordered set of wallets sharing one target mint. Order is for
// display only.
type Bundle struct {
	ID string

	maxWallets int

	mu      sync.RWMutex
	mint    string
	wallets []*WalletEntry
}

// Option configures a Bundle.
type Option func(*Bundle)

// WithMaxWallets overrides MaxWallets.
func WithMaxWallets(n int) Option {
	return func(b *Bundle) {
		b.maxWallets = n
	}
}

// WithID sets the bundle id instead of a random one.
func WithID(id string) Option {
	return func(b *Bundle) {
		b.ID = id
	}
}

// New returns an empty bundle targeting mint.
func New(mint string, opts ...Option) *Bundle {
	b := &Bundle{
		ID:         uuid.NewString(),
		maxWallets: MaxWallets,
		mint:       mint,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Mint returns the target mint.
func (b *Bundle) Mint() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mint
}

// SetMint changes the target mint.
func (b *Bundle) SetMint(mint string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mint = mint
}

// Add appends w to the bundle.
func (b *Bundle) Add(w *WalletEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.wallets) >= b.maxWallets {
		return fmt.Errorf("%w: limit is %d", ErrBundleFull, b.maxWallets)
	}
	if slices.ContainsFunc(b.wallets, func(e *WalletEntry) bool { return e.id == w.id }) {
		return fmt.Errorf("%w: %s", ErrDuplicateWallet, w.id)
	}

	b.wallets = append(b.wallets, w)
	return nil
}

// Remove deletes the wallet with id and wipes its keypair.
func (b *Bundle) Remove(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.IndexFunc(b.wallets, func(e *WalletEntry) bool { return e.id == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrWalletNotFound, id)
	}

	b.wallets[i].ClearSecret()
	b.wallets = slices.Delete(b.wallets, i, i+1)
	return nil
}

// Get returns the wallet with id.
func (b *Bundle) Get(id string) (*WalletEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	i := slices.IndexFunc(b.wallets, func(e *WalletEntry) bool { return e.id == id })
	if i < 0 {
		return nil, false
	}
	return b.wallets[i], true
}

// Wallets returns the wallets in display order.
func (b *Bundle) Wallets() []*WalletEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.wallets)
}

// Len returns the number of wallets.
func (b *Bundle) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.wallets)
}

// TotalSpend sums the strictly positive spends of all wallets.
func (b *Bundle) TotalSpend() decimal.Decimal {
	total := decimal.Zero
	for _, w := range b.Wallets() {
		if s := w.Spend(); s.IsPositive() {
			total = total.Add(s)
		}
	}
	return total
}

// Eligible returns, in display order, the wallets holding a keypair and a
// spend of at least one lamport.
func (b *Bundle) Eligible() []*WalletEntry {
	var out []*WalletEntry
	for _, w := range b.Wallets() {
		if w.eligible() {
			out = append(out, w)
		}
	}
	return out
}
