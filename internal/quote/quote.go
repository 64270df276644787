// Package quote prices swaps of the base asset (SOL) into a target mint.
//
// Client turns human spend amounts into aggregator quotes and human-scale
// estimates, caching by (mint, amount). Debouncer coalesces rapid amount
// edits per wallet into a single request for the latest value and drops
// stale responses. CachedMetadata resolves token decimals once per mint.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// WrappedSOLMint is the input mint used for every quote.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// DefaultSlippageBps is the slippage tolerance applied when none is configured.
const DefaultSlippageBps = 50

var (
	// ErrNoRoute is returned by an Aggregator when it has no route for the
	// requested pair and amount.
	ErrNoRoute = errors.New("no route found")

	// ErrQuoteUnavailable is returned by Client.Lookup when no usable
	// estimate could be produced. It only affects displayed estimates.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrUnknownDecimals means the target token's decimal exponent is not
	// known, so its minor-unit amounts cannot be scaled.
	ErrUnknownDecimals = errors.New("token decimals unknown")

	// ErrInvalidMint is returned for mint identifiers that are not valid
	// public keys.
	ErrInvalidMint = errors.New("invalid mint")

	// ErrTokenNotFound is returned by a MetadataProvider for unknown mints.
	ErrTokenNotFound = errors.New("token not found")

	// ErrMetadataNotCached is returned by a MetadataCache on a miss.
	ErrMetadataNotCached = errors.New("token metadata not cached")
)

// Request describes a quote lookup in minor units.
type Request struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// Quote is an aggregator price for one exact (mint, amount) pair. Raw holds
// the aggregator's response verbatim so it can be handed back when building
// the swap transaction.
type Quote struct {
	InputMint    string
	OutputMint   string
	InputAmount  uint64
	OutputAmount uint64
	SlippageBps  int
	FetchedAt    time.Time
	Raw          json.RawMessage
}

// Aggregator is a price aggregator able to quote a swap.
type Aggregator interface {
	Quote(ctx context.Context, req Request) (*Quote, error)
}

// TokenMetadata describes a mint. Decimals is nil when the provider does not
// know the token's exponent.
type TokenMetadata struct {
	Mint     string `json:"mint"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals *int32 `json:"decimals,omitempty"`
	ImageURL string `json:"imageUrl"`
}

// MetadataProvider looks up token metadata by mint.
type MetadataProvider interface {
	TokenMetadata(ctx context.Context, mint string) (*TokenMetadata, error)
}
