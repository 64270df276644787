package bundle

import (
	"context"

	"github.com/gabapcia/swapbundle/internal/quote"
	"github.com/gabapcia/swapbundle/internal/swap"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/mock"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

type BalanceFetcherMock struct {
	mock.Mock
}

func NewBalanceFetcherMock(t testingT) *BalanceFetcherMock {
	m := &BalanceFetcherMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *BalanceFetcherMock) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	args := m.Called(ctx, owner)
	v, _ := args.Get(0).(uint64)
	return v, args.Error(1)
}

type ExecutorMock struct {
	mock.Mock
}

func NewExecutorMock(t testingT) *ExecutorMock {
	m := &ExecutorMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *ExecutorMock) Execute(ctx context.Context, job swap.Job) (swap.Result, error) {
	args := m.Called(ctx, job)
	res, _ := args.Get(0).(swap.Result)
	return res, args.Error(1)
}

type AggregatorMock struct {
	mock.Mock
}

func NewAggregatorMock(t testingT) *AggregatorMock {
	m := &AggregatorMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *AggregatorMock) Quote(ctx context.Context, req quote.Request) (*quote.Quote, error) {
	args := m.Called(ctx, req)
	q, _ := args.Get(0).(*quote.Quote)
	return q, args.Error(1)
}

type BuilderMock struct {
	mock.Mock
}

func NewBuilderMock(t testingT) *BuilderMock {
	m := &BuilderMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *BuilderMock) BuildSwap(ctx context.Context, req swap.BuildRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type RelayMock struct {
	mock.Mock
}

func NewRelayMock(t testingT) *RelayMock {
	m := &RelayMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *RelayMock) Submit(ctx context.Context, signedTx string) (solana.Signature, error) {
	args := m.Called(ctx, signedTx)
	sig, _ := args.Get(0).(solana.Signature)
	return sig, args.Error(1)
}
