package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gabapcia/swapbundle/internal/status"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type StatusCheckerMock struct {
	mock.Mock
}

func NewStatusCheckerMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *StatusCheckerMock {
	m := &StatusCheckerMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *StatusCheckerMock) SignatureStatuses(ctx context.Context, sigs []solana.Signature) ([]SignatureStatus, error) {
	args := m.Called(ctx, sigs)
	out, _ := args.Get(0).([]SignatureStatus)
	return out, args.Error(1)
}

// pendingTracker returns a tracker where each wallet is Pending with the
// signature {i+1}.
func pendingTracker(t *testing.T, ids ...string) (*status.Tracker, []solana.Signature) {
	t.Helper()
	tr := status.NewTracker("b1")
	require.NoError(t, tr.Register(t.Context(), ids...))

	sigs := make([]solana.Signature, len(ids))
	for i, id := range ids {
		sigs[i] = solana.Signature{byte(i + 1)}
		require.NoError(t, tr.Report(t.Context(), id, status.Pending, status.Details{
			Signature: sigs[i].String(),
			ErrorKind: "ambiguous_network",
		}))
	}
	return tr, sigs
}

func TestService_Reconcile(t *testing.T) {
	t.Run("settled succeeds, chain error fails, unknown stays pending", func(t *testing.T) {
		tr, sigs := pendingTracker(t, "landed", "reverted", "lost", "processing")

		checker := NewStatusCheckerMock(t)
		checker.On("SignatureStatuses", mock.Anything, sigs).Return([]SignatureStatus{
			{Signature: sigs[0], Found: true, Settled: true},
			{Signature: sigs[1], Found: true, Settled: true, Err: "InstructionError"},
			{Signature: sigs[2]},
			{Signature: sigs[3], Found: true},
		}, nil).Once()

		n, err := NewService(checker).Reconcile(t.Context(), tr)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		landed, _ := tr.Get("landed")
		assert.Equal(t, status.Success, landed.State)
		assert.Empty(t, landed.ErrorKind)

		reverted, _ := tr.Get("reverted")
		assert.Equal(t, status.Failed, reverted.State)
		assert.Equal(t, "onchain_error", reverted.ErrorKind)
		assert.Contains(t, reverted.Error, "InstructionError")

		lost, _ := tr.Get("lost")
		assert.Equal(t, status.Pending, lost.State)
		processing, _ := tr.Get("processing")
		assert.Equal(t, status.Pending, processing.State)
	})

	t.Run("nothing pending makes no call", func(t *testing.T) {
		tr := status.NewTracker("b1")
		require.NoError(t, tr.Register(t.Context(), "w1"))

		n, err := NewService(NewStatusCheckerMock(t)).Reconcile(t.Context(), tr)

		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("checker failure leaves wallets pending", func(t *testing.T) {
		tr, sigs := pendingTracker(t, "w1")

		checker := NewStatusCheckerMock(t)
		checker.On("SignatureStatuses", mock.Anything, sigs).Return(nil, errors.New("rpc down")).Once()

		_, err := NewService(checker).Reconcile(t.Context(), tr)

		assert.ErrorContains(t, err, "rpc down")
		assert.Len(t, tr.Unresolved(), 1)
	})

	t.Run("mismatched result count is an error", func(t *testing.T) {
		tr, sigs := pendingTracker(t, "w1", "w2")

		checker := NewStatusCheckerMock(t)
		checker.On("SignatureStatuses", mock.Anything, sigs).Return([]SignatureStatus{{Found: true, Settled: true}}, nil).Once()

		_, err := NewService(checker).Reconcile(t.Context(), tr)

		assert.Error(t, err)
		assert.Len(t, tr.Unresolved(), 2)
	})

	t.Run("status lookup is bounded by the status timeout", func(t *testing.T) {
		tr, sigs := pendingTracker(t, "w1")

		checker := NewStatusCheckerMock(t)
		checker.On("SignatureStatuses", mock.MatchedBy(func(ctx context.Context) bool {
			deadline, ok := ctx.Deadline()
			return ok && time.Until(deadline) <= 50*time.Millisecond
		}), sigs).Return([]SignatureStatus{{Signature: sigs[0]}}, nil).Once()

		n, err := NewService(checker, WithStatusTimeout(50*time.Millisecond)).Reconcile(t.Context(), tr)

		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("hung lookup fails once the status timeout elapses", func(t *testing.T) {
		tr, sigs := pendingTracker(t, "w1")

		checker := NewStatusCheckerMock(t)
		checker.On("SignatureStatuses", mock.Anything, sigs).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(nil, context.DeadlineExceeded).Once()

		_, err := NewService(checker, WithStatusTimeout(20*time.Millisecond)).Reconcile(t.Context(), tr)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Len(t, tr.Unresolved(), 1)
	})
}

func TestService_Run(t *testing.T) {
	t.Run("stops once everything is resolved", func(t *testing.T) {
		tr, sigs := pendingTracker(t, "w1")

		checker := NewStatusCheckerMock(t)
		checker.On("SignatureStatuses", mock.Anything, sigs).Return([]SignatureStatus{{Found: true}}, nil).Once()
		checker.On("SignatureStatuses", mock.Anything, sigs).Return([]SignatureStatus{{Found: true, Settled: true}}, nil).Once()

		err := NewService(checker, WithInterval(time.Millisecond)).Run(t.Context(), tr)

		require.NoError(t, err)
		got, _ := tr.Get("w1")
		assert.Equal(t, status.Success, got.State)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		tr, sigs := pendingTracker(t, "w1")

		checker := NewStatusCheckerMock(t)
		checker.On("SignatureStatuses", mock.Anything, sigs).Return([]SignatureStatus{{}}, nil).Times(3)

		err := NewService(checker, WithInterval(time.Millisecond), WithMaxAttempts(3)).Run(t.Context(), tr)

		assert.ErrorIs(t, err, ErrUnresolved)
	})

	t.Run("honors cancellation between passes", func(t *testing.T) {
		tr, sigs := pendingTracker(t, "w1")
		ctx, cancel := context.WithCancel(t.Context())

		checker := NewStatusCheckerMock(t)
		checker.On("SignatureStatuses", mock.Anything, sigs).Return([]SignatureStatus{{}}, nil).Run(func(mock.Arguments) { cancel() }).Once()

		err := NewService(checker, WithInterval(time.Hour)).Run(ctx, tr)

		assert.ErrorIs(t, err, context.Canceled)
	})
}
