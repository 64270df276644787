package quote

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func decimalsPtr(d int32) *int32 { return &d }

func usdc() *TokenMetadata {
	return &TokenMetadata{Mint: testMint, Symbol: "USDC", Decimals: decimalsPtr(6)}
}

func quoteRequest(lamports uint64) Request {
	return Request{
		InputMint:   WrappedSOLMint,
		OutputMint:  testMint,
		Amount:      lamports,
		SlippageBps: DefaultSlippageBps,
	}
}

func TestClient_Lookup(t *testing.T) {
	t.Run("scales output with token decimals", func(t *testing.T) {
		agg := NewAggregatorMock(t)
		meta := NewMetadataProviderMock(t)
		meta.On("TokenMetadata", mock.Anything, testMint).Return(usdc(), nil).Once()
		agg.On("Quote", mock.Anything, quoteRequest(100_000_000)).
			Return(&Quote{InputAmount: 100_000_000, OutputAmount: 17_123_456}, nil).Once()

		est, err := NewClient(agg, meta).Lookup(t.Context(), testMint, decimal.RequireFromString("0.1"))
		require.NoError(t, err)

		assert.Equal(t, "17.1235 USDC", est.Display())
		assert.Equal(t, uint64(17_123_456), est.Quote.OutputAmount)
	})

	t.Run("unknown decimals refuses without quoting", func(t *testing.T) {
		agg := NewAggregatorMock(t)
		meta := NewMetadataProviderMock(t)
		meta.On("TokenMetadata", mock.Anything, testMint).
			Return(&TokenMetadata{Mint: testMint, Symbol: "???"}, nil).Once()

		est, err := NewClient(agg, meta).Lookup(t.Context(), testMint, decimal.RequireFromString("0.1"))

		assert.Nil(t, est)
		assert.ErrorIs(t, err, ErrQuoteUnavailable)
		assert.ErrorIs(t, err, ErrUnknownDecimals)
		agg.AssertNotCalled(t, "Quote", mock.Anything, mock.Anything)
	})

	t.Run("zero amount is unavailable without any call", func(t *testing.T) {
		agg := NewAggregatorMock(t)
		meta := NewMetadataProviderMock(t)

		_, err := NewClient(agg, meta).Lookup(t.Context(), testMint, decimal.Zero)

		assert.ErrorIs(t, err, ErrQuoteUnavailable)
	})

	t.Run("zero out amount means no route", func(t *testing.T) {
		agg := NewAggregatorMock(t)
		meta := NewMetadataProviderMock(t)
		meta.On("TokenMetadata", mock.Anything, testMint).Return(usdc(), nil)
		agg.On("Quote", mock.Anything, mock.Anything).Return(&Quote{}, nil)

		_, err := NewClient(agg, meta).Lookup(t.Context(), testMint, decimal.RequireFromString("1"))

		assert.ErrorIs(t, err, ErrQuoteUnavailable)
		assert.ErrorIs(t, err, ErrNoRoute)
	})

	t.Run("aggregator failure is wrapped", func(t *testing.T) {
		agg := NewAggregatorMock(t)
		meta := NewMetadataProviderMock(t)
		errDown := errors.New("aggregator down")
		meta.On("TokenMetadata", mock.Anything, testMint).Return(usdc(), nil)
		agg.On("Quote", mock.Anything, mock.Anything).Return(nil, errDown)

		_, err := NewClient(agg, meta).Lookup(t.Context(), testMint, decimal.RequireFromString("1"))

		assert.ErrorIs(t, err, ErrQuoteUnavailable)
		assert.ErrorIs(t, err, errDown)
	})
}

func TestClient_Estimate(t *testing.T) {
	t.Run("failure yields nil", func(t *testing.T) {
		agg := NewAggregatorMock(t)
		meta := NewMetadataProviderMock(t)
		meta.On("TokenMetadata", mock.Anything, testMint).Return(nil, errors.New("timeout"))

		est := NewClient(agg, meta).Estimate(t.Context(), testMint, decimal.RequireFromString("1"))

		assert.Nil(t, est)
		assert.Equal(t, "-", est.Display())
	})
}

func TestClient_Cache(t *testing.T) {
	t.Run("same mint and amount reuse the quote", func(t *testing.T) {
		agg := NewAggregatorMock(t)
		meta := NewMetadataProviderMock(t)
		meta.On("TokenMetadata", mock.Anything, testMint).Return(usdc(), nil)
		agg.On("Quote", mock.Anything, quoteRequest(50_000_000)).
			Return(&Quote{OutputAmount: 1_000_000}, nil).Once()

		c := NewClient(agg, meta)
		for range 3 {
			est := c.Estimate(t.Context(), testMint, decimal.RequireFromString("0.05"))
			require.NotNil(t, est)
		}
	})

	t.Run("changed amount is quoted again", func(t *testing.T) {
		agg := NewAggregatorMock(t)
		meta := NewMetadataProviderMock(t)
		meta.On("TokenMetadata", mock.Anything, testMint).Return(usdc(), nil)
		agg.On("Quote", mock.Anything, quoteRequest(50_000_000)).Return(&Quote{OutputAmount: 1}, nil).Once()
		agg.On("Quote", mock.Anything, quoteRequest(60_000_000)).Return(&Quote{OutputAmount: 2}, nil).Once()

		c := NewClient(agg, meta)
		a := c.Estimate(t.Context(), testMint, decimal.RequireFromString("0.05"))
		b := c.Estimate(t.Context(), testMint, decimal.RequireFromString("0.06"))

		require.NotNil(t, a)
		require.NotNil(t, b)
		assert.NotEqual(t, a.Quote.OutputAmount, b.Quote.OutputAmount)
	})

	t.Run("expired entries are refreshed", func(t *testing.T) {
		agg := NewAggregatorMock(t)
		meta := NewMetadataProviderMock(t)
		meta.On("TokenMetadata", mock.Anything, testMint).Return(usdc(), nil)
		agg.On("Quote", mock.Anything, quoteRequest(50_000_000)).Return(&Quote{OutputAmount: 1}, nil).Twice()

		now := time.Unix(1_700_000_000, 0)
		c := NewClient(agg, meta, WithCacheTTL(time.Second), WithClock(func() time.Time { return now }))

		require.NotNil(t, c.Estimate(t.Context(), testMint, decimal.RequireFromString("0.05")))
		now = now.Add(2 * time.Second)
		require.NotNil(t, c.Estimate(t.Context(), testMint, decimal.RequireFromString("0.05")))
	})

	t.Run("zero ttl disables caching", func(t *testing.T) {
		agg := NewAggregatorMock(t)
		meta := NewMetadataProviderMock(t)
		meta.On("TokenMetadata", mock.Anything, testMint).Return(usdc(), nil)
		agg.On("Quote", mock.Anything, mock.Anything).Return(&Quote{OutputAmount: 1}, nil).Twice()

		c := NewClient(agg, meta, WithCacheTTL(0))
		c.Estimate(t.Context(), testMint, decimal.RequireFromString("0.05"))
		c.Estimate(t.Context(), testMint, decimal.RequireFromString("0.05"))
	})
}

func TestClient_Options(t *testing.T) {
	c := NewClient(nil, nil, WithSlippageBps(100), WithTimeout(time.Second))

	assert.Equal(t, 100, c.SlippageBps())
	assert.Equal(t, time.Second, c.cfg.timeout)
}
