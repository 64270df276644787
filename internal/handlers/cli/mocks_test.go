package cli

import (
	"context"
	"sync"

	"github.com/gabapcia/swapbundle/internal/bundle"
	"github.com/gabapcia/swapbundle/internal/quote"
	"github.com/gabapcia/swapbundle/internal/reconcile"
	"github.com/gabapcia/swapbundle/internal/status"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

type BundleServiceMock struct {
	mock.Mock
}

func NewBundleServiceMock(t testingT) *BundleServiceMock {
	m := &BundleServiceMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *BundleServiceMock) Execute(ctx context.Context, b *bundle.Bundle, tracker *status.Tracker) ([]status.ExecutionResult, error) {
	args := m.Called(ctx, b, tracker)
	out, _ := args.Get(0).([]status.ExecutionResult)
	return out, args.Error(1)
}

func (m *BundleServiceMock) RefreshBalances(ctx context.Context, b *bundle.Bundle) error {
	return m.Called(ctx, b).Error(0)
}

type ReconcilerMock struct {
	mock.Mock
}

func NewReconcilerMock(t testingT) *ReconcilerMock {
	m := &ReconcilerMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *ReconcilerMock) Reconcile(ctx context.Context, tracker *status.Tracker) (int, error) {
	args := m.Called(ctx, tracker)
	return args.Int(0), args.Error(1)
}

func (m *ReconcilerMock) Run(ctx context.Context, tracker *status.Tracker) error {
	return m.Called(ctx, tracker).Error(0)
}

type EstimatorMock struct {
	mock.Mock
}

func NewEstimatorMock(t testingT) *EstimatorMock {
	m := &EstimatorMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *EstimatorMock) Estimate(ctx context.Context, mint string, amount decimal.Decimal) *quote.Estimate {
	est, _ := m.Called(ctx, mint, amount).Get(0).(*quote.Estimate)
	return est
}

type StatusStoreMock struct {
	mock.Mock
}

func NewStatusStoreMock(t testingT) *StatusStoreMock {
	m := &StatusStoreMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *StatusStoreMock) LoadBundleStatus(ctx context.Context, bundleID string) ([]status.ExecutionResult, error) {
	args := m.Called(ctx, bundleID)
	out, _ := args.Get(0).([]status.ExecutionResult)
	return out, args.Error(1)
}

type recordingSink struct {
	mu       sync.Mutex
	recorded []status.ExecutionResult
}

func newRecordingSink() *recordingSink {
	return &recordingSink{}
}

func (s *recordingSink) RecordTransition(_ context.Context, res status.ExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, res)
	return nil
}

func (s *recordingSink) states() []status.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]status.State, len(s.recorded))
	for i, res := range s.recorded {
		out[i] = res.State
	}
	return out
}

var (
	_ status.Sink       = (*recordingSink)(nil)
	_ bundle.Service    = (*BundleServiceMock)(nil)
	_ reconcile.Service = (*ReconcilerMock)(nil)
	_ quote.Estimator   = (*EstimatorMock)(nil)
	_ StatusStore       = (*StatusStoreMock)(nil)
)
