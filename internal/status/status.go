// Package status tracks the execution state of every wallet in a bundle.
//
// Each wallet starts Queued, moves to Pending when its pipeline starts and
// ends Success or Failed. Pending may also be final for a run: an ambiguous
// submission stays Pending until something reconciles it. Success and Failed
// never change once reached.
package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gabapcia/swapbundle/internal/pkg/logger"
	"github.com/gabapcia/swapbundle/internal/pkg/x/chflow"
)

// State is a wallet's position in the execution lifecycle.
type State string

const (
	Queued  State = "queued"
	Pending State = "pending"
	Success State = "success"
	Failed  State = "failed"
)

// Terminal reports whether s can no longer change.
func (s State) Terminal() bool {
	return s == Success || s == Failed
}

var (
	ErrUnknownWallet     = errors.New("wallet not registered")
	ErrAlreadyRegistered = errors.New("wallet already registered")
	ErrTerminalState     = errors.New("wallet already in a terminal state")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Details accompanies a state report. Empty fields leave the previous value
// in place, except that reaching Success clears any recorded error.
type Details struct {
	Signature string
	ErrorKind string
	Error     string
}

// ExecutionResult is the externally visible state of one wallet.
type ExecutionResult struct {
	BundleID  string    `json:"bundleId"`
	WalletID  string    `json:"walletId"`
	State     State     `json:"state"`
	Signature string    `json:"signature,omitempty"`
	ErrorKind string    `json:"errorKind,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sink receives every accepted transition, for persistence or auditing.
type Sink interface {
	RecordTransition(ctx context.Context, res ExecutionResult) error
}

var transitions = map[State][]State{
	Queued:  {Pending, Failed},
	Pending: {Pending, Success, Failed},
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type entry struct {
	mu  sync.Mutex
	res ExecutionResult
}

type subscriber struct {
	ch chan ExecutionResult
}

// Tracker holds the per-wallet state of one bundle. Reports for different
// wallets never contend beyond a brief map lookup.
type Tracker struct {
	bundleID string
	sink     Sink
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	subsMu sync.Mutex
	subs   map[*subscriber]struct{}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithSink forwards every accepted transition to sink.
func WithSink(sink Sink) Option {
	return func(t *Tracker) {
		t.sink = sink
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker returns an empty Tracker for bundleID.
func NewTracker(bundleID string, opts ...Option) *Tracker {
	t := &Tracker{
		bundleID: bundleID,
		now:      time.Now,
		entries:  make(map[string]*entry),
		subs:     make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BundleID returns the bundle this tracker belongs to.
func (t *Tracker) BundleID() string {
	return t.bundleID
}

// Register adds wallets in the Queued state. It fails without registering
// anything if any id is already known.
func (t *Tracker) Register(ctx context.Context, walletIDs ...string) error {
	t.mu.Lock()
	for _, id := range walletIDs {
		if _, ok := t.entries[id]; ok {
			t.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
		}
	}

	added := make([]*entry, 0, len(walletIDs))
	now := t.now()
	for _, id := range walletIDs {
		e := &entry{res: ExecutionResult{BundleID: t.bundleID, WalletID: id, State: Queued, UpdatedAt: now}}
		t.entries[id] = e
		t.order = append(t.order, id)
		added = append(added, e)
	}
	t.mu.Unlock()

	for _, e := range added {
		t.publish(ctx, e.res)
	}
	return nil
}

// Report moves walletID to state. It is safe to call concurrently for any
// wallets.
func (t *Tracker) Report(ctx context.Context, walletID string, state State, d Details) error {
	t.mu.RLock()
	e, ok := t.entries[walletID]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWallet, walletID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.res.State
	if from.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminalState, walletID, from)
	}
	if !allowed(from, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, state)
	}

	e.res.State = state
	e.res.UpdatedAt = t.now()
	if d.Signature != "" {
		e.res.Signature = d.Signature
	}
	if d.ErrorKind != "" {
		e.res.ErrorKind = d.ErrorKind
	}
	if d.Error != "" {
		e.res.Error = d.Error
	}
	if state == Success {
		e.res.ErrorKind, e.res.Error = "", ""
	}

	t.publish(ctx, e.res)
	return nil
}

// Get returns the current state of walletID.
func (t *Tracker) Get(walletID string) (ExecutionResult, bool) {
	t.mu.RLock()
	e, ok := t.entries[walletID]
	t.mu.RUnlock()
	if !ok {
		return ExecutionResult{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.res, true
}

// Snapshot returns every wallet's state in registration order.
func (t *Tracker) Snapshot() []ExecutionResult {
	t.mu.RLock()
	entries := make([]*entry, 0, len(t.order))
	for _, id := range t.order {
		entries = append(entries, t.entries[id])
	}
	t.mu.RUnlock()

	out := make([]ExecutionResult, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.res)
		e.mu.Unlock()
	}
	return out
}

// Unresolved returns wallets held in Pending with a known signature.
func (t *Tracker) Unresolved() []ExecutionResult {
	var out []ExecutionResult
	for _, res := range t.Snapshot() {
		if res.State == Pending && res.Signature != "" {
			out = append(out, res)
		}
	}
	return out
}

// Subscribe returns a channel receiving every accepted transition until ctx
// is done, after which the channel is closed. A subscriber that falls more
// than buffer updates behind misses updates rather than blocking reporters.
func (t *Tracker) Subscribe(ctx context.Context, buffer int) <-chan ExecutionResult {
	sub := &subscriber{ch: make(chan ExecutionResult, buffer)}

	t.subsMu.Lock()
	t.subs[sub] = struct{}{}
	t.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		t.subsMu.Lock()
		delete(t.subs, sub)
		close(sub.ch)
		t.subsMu.Unlock()
	}()

	return sub.ch
}

func (t *Tracker) publish(ctx context.Context, res ExecutionResult) {
	t.subsMu.Lock()
	for sub := range t.subs {
		if !chflow.TrySend(sub.ch, res) {
			logger.Warn(ctx, "status subscriber lagging, update dropped", "wallet.id", res.WalletID, "state", res.State)
		}
	}
	t.subsMu.Unlock()

	if t.sink == nil {
		return
	}
	if err := t.sink.RecordTransition(ctx, res); err != nil {
		logger.Warn(ctx, "status sink write failed", "wallet.id", res.WalletID, "state", res.State, "error", err)
	}
}
