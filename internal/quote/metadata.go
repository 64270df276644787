package quote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gabapcia/swapbundle/internal/pkg/logger"
	"github.com/gabapcia/swapbundle/internal/pkg/resilience/retry"

	"github.com/gagliardetto/solana-go"
)

// MinMintLength is the shortest string considered for a mint lookup. Shorter
// input is treated as still being typed.
const MinMintLength = 32

// MetadataCache is a shared store for token metadata.
type MetadataCache interface {
	GetTokenMetadata(ctx context.Context, mint string) (*TokenMetadata, error)
	SetTokenMetadata(ctx context.Context, md *TokenMetadata, ttl time.Duration) error
}

type metadataConfig struct {
	cache MetadataCache
	ttl   time.Duration
	retry retry.Retry
}

// MetadataOption configures CachedMetadata.
type MetadataOption func(*metadataConfig)

// WithMetadataCache adds a shared cache consulted before the provider.
func WithMetadataCache(cache MetadataCache, ttl time.Duration) MetadataOption {
	return func(c *metadataConfig) {
		c.cache = cache
		c.ttl = ttl
	}
}

// WithMetadataRetry overrides the retry policy for provider lookups.
func WithMetadataRetry(r retry.Retry) MetadataOption {
	return func(c *metadataConfig) {
		c.retry = r
	}
}

// CachedMetadata is a MetadataProvider decorator. Metadata with known
// decimals is kept in process for the lifetime of the value, since a mint's
// exponent never changes; it is also written to the optional shared cache.
type CachedMetadata struct {
	provider MetadataProvider
	cfg      metadataConfig
	local    sync.Map // mint -> *TokenMetadata
}

var _ MetadataProvider = (*CachedMetadata)(nil)

// NewCachedMetadata wraps provider.
func NewCachedMetadata(provider MetadataProvider, opts ...MetadataOption) *CachedMetadata {
	cfg := metadataConfig{
		ttl:   24 * time.Hour,
		retry: retry.New(retry.WithAttempts(3), retry.WithDelay(200*time.Millisecond), retry.WithMaxDelay(time.Second)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &CachedMetadata{
		provider: provider,
		cfg:      cfg,
	}
}

// TokenMetadata validates mint and resolves its metadata from the local map,
// the shared cache or the provider, in that order.
func (m *CachedMetadata) TokenMetadata(ctx context.Context, mint string) (*TokenMetadata, error) {
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMint, mint)
	}

	if v, ok := m.local.Load(mint); ok {
		return v.(*TokenMetadata), nil
	}

	if m.cfg.cache != nil {
		md, err := m.cfg.cache.GetTokenMetadata(ctx, mint)
		switch {
		case err == nil:
			m.remember(mint, md)
			return md, nil
		case !errors.Is(err, ErrMetadataNotCached):
			logger.Warn(ctx, "token metadata cache read failed", "mint", mint, "error", err)
		}
	}

	var md *TokenMetadata
	err := m.cfg.retry.Execute(ctx, func() error {
		var err error
		md, err = m.provider.TokenMetadata(ctx, mint)
		if errors.Is(err, ErrTokenNotFound) {
			return retry.Unrecoverable(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	m.remember(mint, md)
	if m.cfg.cache != nil && md.Decimals != nil {
		if err := m.cfg.cache.SetTokenMetadata(ctx, md, m.cfg.ttl); err != nil {
			logger.Warn(ctx, "token metadata cache write failed", "mint", mint, "error", err)
		}
	}

	return md, nil
}

func (m *CachedMetadata) remember(mint string, md *TokenMetadata) {
	if md != nil && md.Decimals != nil {
		m.local.Store(mint, md)
	}
}
