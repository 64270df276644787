package swap

import (
	"context"

	"github.com/gabapcia/swapbundle/internal/quote"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/mock"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
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

func (m *BuilderMock) BuildSwap(ctx context.Context, req BuildRequest) (string, error) {
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
