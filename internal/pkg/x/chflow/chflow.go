// Package chflow provides helpers for receiving from and sending to Go
// channels. Receive respects cancellation and deadlines via context.Context,
// while TrySend never blocks.
package chflow

import "context"

// Receive waits to receive a value from ch or for ctx to be done.
//
// Returns:
//   - T: The received value, or the zero value when ctx ended first or ch
//     was closed.
//   - bool: true if a value was received.
func Receive[T any](ctx context.Context, ch <-chan T) (T, bool) {
	var data T
	select {
	case <-ctx.Done():
		return data, false
	case data, ok := <-ch:
		return data, ok
	}
}

// TrySend delivers data on ch only if it can do so without blocking. It
// returns false when ch is full or has no ready receiver.
//
// It suits coalescing wake-up signals on a buffered channel of size one:
// extra signals are dropped while one is already pending.
func TrySend[T any](ch chan<- T, data T) bool {
	select {
	case ch <- data:
		return true
	default:
		return false
	}
}
