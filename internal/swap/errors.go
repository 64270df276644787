package swap

import (
	"context"
	"errors"

	"github.com/gabapcia/swapbundle/internal/keymaterial"
)

var (
	// ErrInsufficientBalance is a local preflight failure: the known balance
	// does not cover the spend plus the safety buffer. No network call has
	// been made.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrRouteNotFound means the aggregator returned no usable quote.
	ErrRouteNotFound = errors.New("route not found")

	// ErrBuildFailure means no signable transaction could be produced.
	ErrBuildFailure = errors.New("swap transaction build failed")

	// ErrRelayRejected is an explicit negative answer from the relay. The
	// transaction was not accepted.
	ErrRelayRejected = errors.New("relay rejected transaction")

	// ErrAmbiguousNetwork means submission failed at the transport level or
	// timed out. The transaction may still land.
	ErrAmbiguousNetwork = errors.New("ambiguous network outcome")

	// ErrOnChain means the transaction landed and failed during execution.
	ErrOnChain = errors.New("transaction failed on chain")
)

// ErrorKind is a stable, serializable name for a pipeline failure class.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindKeyParse            ErrorKind = "key_parse"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindRouteNotFound       ErrorKind = "route_not_found"
	KindBuildFailure        ErrorKind = "build_failure"
	KindRelayRejected       ErrorKind = "relay_rejected"
	KindAmbiguousNetwork    ErrorKind = "ambiguous_network"
	KindCanceled            ErrorKind = "canceled"
	KindOnChain             ErrorKind = "onchain_error"
	KindInternal            ErrorKind = "internal"
)

// KindOf classifies err. Ambiguity wins over cancellation so that an
// interrupted submission is never reported as a clean abort.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAmbiguousNetwork):
		return KindAmbiguousNetwork
	case errors.Is(err, keymaterial.ErrInvalidKeyMaterial):
		return KindKeyParse
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrRouteNotFound):
		return KindRouteNotFound
	case errors.Is(err, ErrBuildFailure):
		return KindBuildFailure
	case errors.Is(err, ErrRelayRejected):
		return KindRelayRejected
	case errors.Is(err, ErrOnChain):
		return KindOnChain
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// IsAmbiguous reports whether err leaves the transaction's fate unknown.
func IsAmbiguous(err error) bool {
	return errors.Is(err, ErrAmbiguousNetwork)
}
