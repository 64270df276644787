package solanatracker

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	transporthttp "github.com/gabapcia/swapbundle/internal/pkg/transport/http"
	"github.com/gabapcia/swapbundle/internal/quote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func newTestClient(t *testing.T, handler http.HandlerFunc) *client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "secret-key", transporthttp.NewClient(transporthttp.WithRetryMax(0)))
	require.NoError(t, err)
	return c
}

func TestClient_TokenMetadata(t *testing.T) {
	t.Run("maps the token document", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/tokens/"+testMint, r.URL.Path)
			assert.Equal(t, "secret-key", r.Header.Get("x-api-key"))
			_, _ = io.WriteString(w, `{"token":{"symbol":"USDC","name":"USD Coin","image":"https://img/usdc.png","decimals":6},"pools":[]}`)
		})

		got, err := c.TokenMetadata(t.Context(), testMint)

		require.NoError(t, err)
		assert.Equal(t, testMint, got.Mint)
		assert.Equal(t, "USDC", got.Symbol)
		assert.Equal(t, "USD Coin", got.Name)
		assert.Equal(t, "https://img/usdc.png", got.ImageURL)
		require.NotNil(t, got.Decimals)
		assert.Equal(t, int32(6), *got.Decimals)
	})

	t.Run("missing decimals stay unknown", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"token":{"symbol":"NEW"}}`)
		})

		got, err := c.TokenMetadata(t.Context(), testMint)

		require.NoError(t, err)
		assert.Nil(t, got.Decimals)
	})

	t.Run("not found", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		_, err := c.TokenMetadata(t.Context(), testMint)

		assert.ErrorIs(t, err, quote.ErrTokenNotFound)
	})

	t.Run("empty token document", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{}`)
		})

		_, err := c.TokenMetadata(t.Context(), testMint)

		assert.ErrorIs(t, err, quote.ErrTokenNotFound)
	})

	t.Run("server error is retryable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := c.TokenMetadata(t.Context(), testMint)

		require.Error(t, err)
		assert.NotErrorIs(t, err, quote.ErrTokenNotFound)
	})
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("", "", transporthttp.NewClient())
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)

	_, err = NewClient("", "", nil)
	assert.Error(t, err)
}
