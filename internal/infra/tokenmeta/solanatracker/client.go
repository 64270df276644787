// Package solanatracker implements quote.MetadataProvider with the Solana
// Tracker data API.
package solanatracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabapcia/swapbundle/internal/quote"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL is the public Solana Tracker data endpoint.
const DefaultBaseURL = "https://data.solanatracker.io"

type tokenResponse struct {
	Token *struct {
		Symbol   string `json:"symbol"`
		Name     string `json:"name"`
		Image    string `json:"image"`
		Decimals *int32 `json:"decimals"`
	} `json:"token"`
}

type client struct {
	baseURL    string
	apiKey     string
	httpClient *retryablehttp.Client
}

var _ quote.MetadataProvider = (*client)(nil)

func (c *client) TokenMetadata(ctx context.Context, mint string) (*quote.TokenMetadata, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tokens/"+url.PathEscape(mint), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", quote.ErrTokenNotFound, mint)
	case res.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("token metadata endpoint returned %d", res.StatusCode)
	}

	var data tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode token metadata: %w", err)
	}
	if data.Token == nil {
		return nil, fmt.Errorf("%w: %s", quote.ErrTokenNotFound, mint)
	}

	return &quote.TokenMetadata{
		Mint:     mint,
		Symbol:   data.Token.Symbol,
		Name:     data.Token.Name,
		Decimals: data.Token.Decimals,
		ImageURL: data.Token.Image,
	}, nil
}

// NewClient returns a client for baseURL, DefaultBaseURL when empty.
func NewClient(baseURL, apiKey string, httpClient *retryablehttp.Client) (*client, error) {
	if httpClient == nil {
		return nil, errors.New("http client is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}, nil
}
