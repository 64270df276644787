package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/gabapcia/swapbundle/internal/status"

	"github.com/redis/go-redis/v9"
)

// statusRetention is how long a bundle's status hash survives its last
// update.
const statusRetention = 7 * 24 * time.Hour

// bundleStatusKey returns the hash holding one field per wallet of a bundle.
//
// Format: "swapbundle:bundle:{bundleID}:status"
func bundleStatusKey(bundleID string) string {
	return fmt.Sprintf("%s:bundle:%s:status", keyPrefix, bundleID)
}

// RecordTransition implements status.Sink.
//
// The wallet's latest ExecutionResult is stored as JSON in the bundle's hash,
// overwriting the previous one, and the hash expiry is pushed back to
// statusRetention.
//
// Returns:
//   - An error if encoding fails or the Redis transaction cannot be applied.
func (c *client) RecordTransition(ctx context.Context, res status.ExecutionResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}

	key := bundleStatusKey(res.BundleID)
	_, err = c.conn.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, res.WalletID, payload)
		pipe.Expire(ctx, key, statusRetention)
		return nil
	})
	return err
}

// LoadBundleStatus returns every stored wallet result of bundleID, ordered
// by wallet id. An unknown bundle yields an empty slice.
func (c *client) LoadBundleStatus(ctx context.Context, bundleID string) ([]status.ExecutionResult, error) {
	fields, err := c.conn.HGetAll(ctx, bundleStatusKey(bundleID)).Result()
	if err != nil {
		return nil, err
	}

	return decodeStatusFields(fields)
}

func decodeStatusFields(fields map[string]string) ([]status.ExecutionResult, error) {
	out := make([]status.ExecutionResult, 0, len(fields))
	for walletID, raw := range fields {
		var res status.ExecutionResult
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			return nil, fmt.Errorf("decode status of wallet %s: %w", walletID, err)
		}
		out = append(out, res)
	}

	slices.SortFunc(out, func(a, b status.ExecutionResult) int {
		switch {
		case a.WalletID < b.WalletID:
			return -1
		case a.WalletID > b.WalletID:
			return 1
		}
		return 0
	})
	return out, nil
}

// Compile-time assertion that client can back a status.Tracker.
var _ status.Sink = new(client)
