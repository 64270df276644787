// Package relay submits signed transactions through an HTTP relay service.
//
// The relay accepts {"rawTx": "<base64>"} and answers with a signature on
// success, {"signature": "..."} optionally with "ok": true, or with
// {"error": "..."} on failure.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gabapcia/swapbundle/internal/swap"

	"github.com/gagliardetto/solana-go"
	"github.com/hashicorp/go-retryablehttp"
)

type request struct {
	RawTx string `json:"rawTx"`
}

type response struct {
	OK        bool   `json:"ok"`
	Signature string `json:"signature"`
	Error     string `json:"error"`
}

type client struct {
	endpoint   string
	httpClient *retryablehttp.Client
}

var _ swap.Relay = (*client)(nil)

// Submit posts signedTx once. The relay accepted the transaction when its
// answer carries a parsable signature and no error. An error field, or an
// answer with neither signature nor error, is a rejection. Transport
// failures, unreadable answers and unparsable signatures are returned
// unwrapped, since the transaction may have been forwarded.
func (c *client) Submit(ctx context.Context, signedTx string) (solana.Signature, error) {
	body, err := json.Marshal(request{RawTx: signedTx})
	if err != nil {
		return solana.Signature{}, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return solana.Signature{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return solana.Signature{}, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("read relay answer: %w", err)
	}

	var data response
	if err := json.Unmarshal(raw, &data); err != nil {
		return solana.Signature{}, fmt.Errorf("relay answered %d with an unreadable body: %w", res.StatusCode, err)
	}

	switch {
	case data.Error != "":
		return solana.Signature{}, fmt.Errorf("%w: %s", swap.ErrRelayRejected, data.Error)
	case data.Signature == "":
		return solana.Signature{}, fmt.Errorf("%w: no signature returned (status %d)", swap.ErrRelayRejected, res.StatusCode)
	}

	sig, err := solana.SignatureFromBase58(data.Signature)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("relay returned an unparsable signature %q: %w", data.Signature, err)
	}
	return sig, nil
}

// NewClient returns a relay client posting to endpoint. httpClient must have
// retries disabled.
func NewClient(endpoint string, httpClient *retryablehttp.Client) (*client, error) {
	if endpoint == "" {
		return nil, errors.New("relay endpoint is required")
	}
	if httpClient.RetryMax != 0 {
		return nil, errors.New("relay http client must have retries disabled")
	}

	return &client{
		endpoint:   endpoint,
		httpClient: httpClient,
	}, nil
}
