package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gabapcia/swapbundle/internal/quote"

	"github.com/redis/go-redis/v9"
)

// tokenMetadataKey returns the key caching the metadata of mint.
//
// Format: "swapbundle:tokenmeta:{mint}"
func tokenMetadataKey(mint string) string {
	return fmt.Sprintf("%s:tokenmeta:%s", keyPrefix, mint)
}

// GetTokenMetadata returns the cached metadata of mint, or
// quote.ErrMetadataNotCached when nothing is stored.
func (c *client) GetTokenMetadata(ctx context.Context, mint string) (*quote.TokenMetadata, error) {
	raw, err := c.conn.Get(ctx, tokenMetadataKey(mint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			err = quote.ErrMetadataNotCached
		}
		return nil, err
	}

	var md quote.TokenMetadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("decode cached token metadata: %w", err)
	}
	return &md, nil
}

// SetTokenMetadata stores md under its mint for ttl. A zero ttl keeps it
// forever.
func (c *client) SetTokenMetadata(ctx context.Context, md *quote.TokenMetadata, ttl time.Duration) error {
	payload, err := json.Marshal(md)
	if err != nil {
		return err
	}
	return c.conn.Set(ctx, tokenMetadataKey(md.Mint), payload, ttl).Err()
}

var _ quote.MetadataCache = new(client)
