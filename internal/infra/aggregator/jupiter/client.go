// Package jupiter implements quote.Aggregator and swap.Builder against the
// Jupiter v6 swap API.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabapcia/swapbundle/internal/quote"
	"github.com/gabapcia/swapbundle/internal/swap"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL is the public Jupiter endpoint.
const DefaultBaseURL = "https://quote-api.jup.ag"

// maxErrorBody bounds how much of an error response is kept in messages.
const maxErrorBody = 512

// quoteResponse holds the fields of a /v6/quote answer this client reads.
// The whole document is kept verbatim in quote.Quote.Raw for /v6/swap.
type quoteResponse struct {
	InputMint   string `json:"inputMint"`
	OutputMint  string `json:"outputMint"`
	InAmount    string `json:"inAmount"`
	OutAmount   string `json:"outAmount"`
	SlippageBps int    `json:"slippageBps"`
}

type swapRequest struct {
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSOL          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports"`
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

type client struct {
	baseURL    string
	httpClient *retryablehttp.Client
	now        func() time.Time
}

var (
	_ quote.Aggregator = (*client)(nil)
	_ swap.Builder     = (*client)(nil)
)

func (c *client) Quote(ctx context.Context, req quote.Request) (*quote.Quote, error) {
	params := url.Values{}
	params.Set("inputMint", req.InputMint)
	params.Set("outputMint", req.OutputMint)
	params.Set("amount", strconv.FormatUint(req.Amount, 10))
	params.Set("slippageBps", strconv.Itoa(req.SlippageBps))

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v6/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	body, status, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, quoteError(status, body)
	}

	var data quoteResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}

	in, err := parseAmount(data.InAmount)
	if err != nil {
		return nil, fmt.Errorf("decode quote inAmount: %w", err)
	}
	out, err := parseAmount(data.OutAmount)
	if err != nil {
		return nil, fmt.Errorf("decode quote outAmount: %w", err)
	}
	if out == 0 {
		return nil, quote.ErrNoRoute
	}

	return &quote.Quote{
		InputMint:    data.InputMint,
		OutputMint:   data.OutputMint,
		InputAmount:  in,
		OutputAmount: out,
		SlippageBps:  data.SlippageBps,
		FetchedAt:    c.now(),
		Raw:          json.RawMessage(body),
	}, nil
}

func (c *client) BuildSwap(ctx context.Context, req swap.BuildRequest) (string, error) {
	if req.Quote == nil || len(req.Quote.Raw) == 0 {
		return "", errors.New("quote response missing")
	}

	payload, err := json.Marshal(swapRequest{
		UserPublicKey:             req.UserPublicKey.String(),
		WrapAndUnwrapSOL:          req.WrapAndUnwrapSOL,
		DynamicComputeUnitLimit:   req.DynamicComputeUnitLimit,
		PrioritizationFeeLamports: req.PriorityFeeLamports,
		QuoteResponse:             req.Quote.Raw,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v6/swap", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(httpReq)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("swap endpoint returned %d: %s", status, truncate(body))
	}

	var data swapResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("decode swap: %w", err)
	}
	if data.SwapTransaction == "" {
		return "", errors.New("swap endpoint returned no transaction")
	}
	return data.SwapTransaction, nil
}

func (c *client) do(req *retryablehttp.Request) ([]byte, int, error) {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, err
	}
	return body, res.StatusCode, nil
}

func quoteError(status int, body []byte) error {
	var data errorResponse
	_ = json.Unmarshal(body, &data)

	if status == http.StatusBadRequest || status == http.StatusNotFound {
		if strings.Contains(data.ErrorCode, "ROUTE") || strings.Contains(strings.ToLower(data.Error), "route") {
			return fmt.Errorf("%w: %s", quote.ErrNoRoute, data.Error)
		}
	}
	return fmt.Errorf("quote endpoint returned %d: %s", status, truncate(body))
}

func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("empty amount")
	}
	return strconv.ParseUint(s, 10, 64)
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}

// NewClient returns a Jupiter client rooted at baseURL, DefaultBaseURL when
// empty.
func NewClient(baseURL string, httpClient *retryablehttp.Client) *client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		now:        time.Now,
	}
}
