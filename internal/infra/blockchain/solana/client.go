// Package solana adapts a Solana JSON-RPC node to the bundle, swap and
// reconcile collaborator interfaces.
package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gabapcia/swapbundle/internal/bundle"
	"github.com/gabapcia/swapbundle/internal/reconcile"
	"github.com/gabapcia/swapbundle/internal/swap"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// sendMaxRetries is how often the node itself rebroadcasts a submitted
// transaction.
const sendMaxRetries uint = 3

// client talks to one RPC endpoint.
type client struct {
	conn       *rpc.Client
	commitment rpc.CommitmentType
}

var (
	_ bundle.BalanceFetcher   = (*client)(nil)
	_ swap.Relay              = (*client)(nil)
	_ reconcile.StatusChecker = (*client)(nil)
)

// Balance returns the native balance of owner at confirmed commitment.
func (c *client) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	res, err := c.conn.GetBalance(ctx, owner, c.commitment)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

// Submit sends a signed transaction straight to the node with preflight
// simulation enabled. A JSON-RPC error answer is an explicit rejection; any
// other failure leaves the outcome unknown.
func (c *client) Submit(ctx context.Context, signedTx string) (solana.Signature, error) {
	raw, err := base64.StdEncoding.DecodeString(signedTx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: decode base64: %w", swap.ErrRelayRejected, err)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: decode transaction: %w", swap.ErrRelayRejected, err)
	}

	maxRetries := sendMaxRetries
	sig, err := c.conn.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: c.commitment,
		MaxRetries:          &maxRetries,
	})
	if err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			return solana.Signature{}, fmt.Errorf("%w: [%d] %s", swap.ErrRelayRejected, rpcErr.Code, rpcErr.Message)
		}
		return solana.Signature{}, err
	}
	return sig, nil
}

// SignatureStatuses looks sigs up, searching the full transaction history.
func (c *client) SignatureStatuses(ctx context.Context, sigs []solana.Signature) ([]reconcile.SignatureStatus, error) {
	res, err := c.conn.GetSignatureStatuses(ctx, true, sigs...)
	if err != nil {
		return nil, err
	}

	out := make([]reconcile.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		out[i].Signature = sig
		if i >= len(res.Value) || res.Value[i] == nil {
			continue
		}

		st := res.Value[i]
		out[i].Found = true
		out[i].Settled = st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
			st.ConfirmationStatus == rpc.ConfirmationStatusFinalized
		if st.Err != nil {
			out[i].Err = describe(st.Err)
		}
	}
	return out, nil
}

func describe(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

// NewClient returns a client for the node at endpoint.
func NewClient(endpoint string) *client {
	return &client{
		conn:       rpc.New(endpoint),
		commitment: rpc.CommitmentConfirmed,
	}
}
