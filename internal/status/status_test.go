package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type SinkMock struct {
	mock.Mock
}

func NewSinkMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *SinkMock {
	m := &SinkMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *SinkMock) RecordTransition(ctx context.Context, res ExecutionResult) error {
	return m.Called(ctx, res).Error(0)
}

func TestTracker_Register(t *testing.T) {
	t.Run("wallets start queued in registration order", func(t *testing.T) {
		tr := NewTracker("b1")
		require.NoError(t, tr.Register(t.Context(), "w2", "w1"))

		snap := tr.Snapshot()
		require.Len(t, snap, 2)
		assert.Equal(t, "w2", snap[0].WalletID)
		assert.Equal(t, Queued, snap[0].State)
		assert.Equal(t, "b1", snap[1].BundleID)
	})

	t.Run("duplicate id registers nothing", func(t *testing.T) {
		tr := NewTracker("b1")
		require.NoError(t, tr.Register(t.Context(), "w1"))

		err := tr.Register(t.Context(), "w2", "w1")

		assert.ErrorIs(t, err, ErrAlreadyRegistered)
		_, ok := tr.Get("w2")
		assert.False(t, ok)
	})
}

func TestTracker_Report(t *testing.T) {
	tests := []struct {
		name    string
		path    []State
		wantErr error
	}{
		{name: "queued to pending", path: []State{Pending}},
		{name: "pending to success", path: []State{Pending, Success}},
		{name: "pending to failed", path: []State{Pending, Failed}},
		{name: "queued to failed", path: []State{Failed}},
		{name: "pending stays pending", path: []State{Pending, Pending}},
		{name: "queued to success skips pending", path: []State{Success}, wantErr: ErrInvalidTransition},
		{name: "queued to queued", path: []State{Queued}, wantErr: ErrInvalidTransition},
		{name: "pending back to queued", path: []State{Pending, Queued}, wantErr: ErrInvalidTransition},
		{name: "success is terminal", path: []State{Pending, Success, Failed}, wantErr: ErrTerminalState},
		{name: "failed is terminal", path: []State{Failed, Pending}, wantErr: ErrTerminalState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker("b1")
			require.NoError(t, tr.Register(t.Context(), "w1"))

			var err error
			for _, s := range tt.path {
				if err = tr.Report(t.Context(), "w1", s, Details{}); err != nil {
					break
				}
			}

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			got, _ := tr.Get("w1")
			assert.Equal(t, tt.path[len(tt.path)-1], got.State)
		})
	}

	t.Run("unknown wallet", func(t *testing.T) {
		err := NewTracker("b1").Report(t.Context(), "ghost", Pending, Details{})

		assert.ErrorIs(t, err, ErrUnknownWallet)
	})

	t.Run("terminal result keeps its details", func(t *testing.T) {
		tr := NewTracker("b1")
		require.NoError(t, tr.Register(t.Context(), "w1"))
		require.NoError(t, tr.Report(t.Context(), "w1", Pending, Details{}))
		require.NoError(t, tr.Report(t.Context(), "w1", Success, Details{Signature: "sig1"}))

		_ = tr.Report(t.Context(), "w1", Failed, Details{ErrorKind: "build_failure"})

		got, _ := tr.Get("w1")
		assert.Equal(t, Success, got.State)
		assert.Equal(t, "sig1", got.Signature)
		assert.Empty(t, got.ErrorKind)
	})

	t.Run("details merge across pending updates", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		tr := NewTracker("b1", WithClock(func() time.Time { return now }))
		require.NoError(t, tr.Register(t.Context(), "w1"))
		require.NoError(t, tr.Report(t.Context(), "w1", Pending, Details{}))
		require.NoError(t, tr.Report(t.Context(), "w1", Pending, Details{Signature: "sig1", ErrorKind: "ambiguous_network"}))

		got, _ := tr.Get("w1")
		assert.Equal(t, "sig1", got.Signature)
		assert.Equal(t, "ambiguous_network", got.ErrorKind)
		assert.Equal(t, now, got.UpdatedAt)
		assert.Equal(t, []ExecutionResult{got}, tr.Unresolved())
	})

	t.Run("success clears a recorded error", func(t *testing.T) {
		tr := NewTracker("b1")
		require.NoError(t, tr.Register(t.Context(), "w1"))
		require.NoError(t, tr.Report(t.Context(), "w1", Pending, Details{Signature: "sig1", ErrorKind: "ambiguous_network", Error: "timeout"}))

		require.NoError(t, tr.Report(t.Context(), "w1", Success, Details{}))

		got, _ := tr.Get("w1")
		assert.Equal(t, "sig1", got.Signature)
		assert.Empty(t, got.ErrorKind)
		assert.Empty(t, got.Error)
		assert.Empty(t, tr.Unresolved())
	})

	t.Run("concurrent reports do not interfere", func(t *testing.T) {
		tr := NewTracker("b1")
		ids := make([]string, 64)
		for i := range ids {
			ids[i] = fmt.Sprintf("w%d", i)
		}
		require.NoError(t, tr.Register(t.Context(), ids...))

		var wg sync.WaitGroup
		for i, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = tr.Report(t.Context(), id, Pending, Details{})
				if i%2 == 0 {
					_ = tr.Report(t.Context(), id, Success, Details{Signature: id})
				} else {
					_ = tr.Report(t.Context(), id, Failed, Details{ErrorKind: "route_not_found"})
				}
			}()
		}
		wg.Wait()

		for i, res := range tr.Snapshot() {
			if i%2 == 0 {
				assert.Equal(t, Success, res.State)
				assert.Equal(t, res.WalletID, res.Signature)
			} else {
				assert.Equal(t, Failed, res.State)
			}
		}
	})
}

func TestTracker_Subscribe(t *testing.T) {
	t.Run("receives transitions and closes on cancel", func(t *testing.T) {
		tr := NewTracker("b1")
		ctx, cancel := context.WithCancel(t.Context())
		updates := tr.Subscribe(ctx, 8)

		require.NoError(t, tr.Register(t.Context(), "w1"))
		require.NoError(t, tr.Report(t.Context(), "w1", Pending, Details{}))

		first := <-updates
		second := <-updates
		assert.Equal(t, Queued, first.State)
		assert.Equal(t, Pending, second.State)

		cancel()
		require.Eventually(t, func() bool {
			select {
			case _, ok := <-updates:
				return !ok
			default:
				return false
			}
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("slow subscriber does not block reporters", func(t *testing.T) {
		tr := NewTracker("b1")
		_ = tr.Subscribe(t.Context(), 0)

		done := make(chan struct{})
		go func() {
			_ = tr.Register(t.Context(), "w1")
			_ = tr.Report(t.Context(), "w1", Pending, Details{})
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("reporter blocked on subscriber")
		}
	})
}

func TestTracker_Sink(t *testing.T) {
	t.Run("every transition is recorded", func(t *testing.T) {
		sink := NewSinkMock(t)
		sink.On("RecordTransition", mock.Anything, mock.MatchedBy(func(r ExecutionResult) bool { return r.State == Queued })).Return(nil).Once()
		sink.On("RecordTransition", mock.Anything, mock.MatchedBy(func(r ExecutionResult) bool { return r.State == Pending })).Return(nil).Once()

		tr := NewTracker("b1", WithSink(sink))
		require.NoError(t, tr.Register(t.Context(), "w1"))
		require.NoError(t, tr.Report(t.Context(), "w1", Pending, Details{}))
	})

	t.Run("sink failure does not fail the report", func(t *testing.T) {
		sink := NewSinkMock(t)
		sink.On("RecordTransition", mock.Anything, mock.Anything).Return(errors.New("redis down"))

		tr := NewTracker("b1", WithSink(sink))
		require.NoError(t, tr.Register(t.Context(), "w1"))
		assert.NoError(t, tr.Report(t.Context(), "w1", Failed, Details{ErrorKind: "canceled"}))
	})
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, Queued.Terminal())
	assert.False(t, Pending.Terminal())
	assert.True(t, Success.Terminal())
	assert.True(t, Failed.Terminal())
}
