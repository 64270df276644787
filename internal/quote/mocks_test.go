package quote

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type AggregatorMock struct {
	mock.Mock
}

func NewAggregatorMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *AggregatorMock {
	m := &AggregatorMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *AggregatorMock) Quote(ctx context.Context, req Request) (*Quote, error) {
	args := m.Called(ctx, req)
	q, _ := args.Get(0).(*Quote)
	return q, args.Error(1)
}

type MetadataProviderMock struct {
	mock.Mock
}

func NewMetadataProviderMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *MetadataProviderMock {
	m := &MetadataProviderMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MetadataProviderMock) TokenMetadata(ctx context.Context, mint string) (*TokenMetadata, error) {
	args := m.Called(ctx, mint)
	md, _ := args.Get(0).(*TokenMetadata)
	return md, args.Error(1)
}

type MetadataCacheMock struct {
	mock.Mock
}

func NewMetadataCacheMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *MetadataCacheMock {
	m := &MetadataCacheMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MetadataCacheMock) GetTokenMetadata(ctx context.Context, mint string) (*TokenMetadata, error) {
	args := m.Called(ctx, mint)
	md, _ := args.Get(0).(*TokenMetadata)
	return md, args.Error(1)
}

func (m *MetadataCacheMock) SetTokenMetadata(ctx context.Context, md *TokenMetadata, ttl time.Duration) error {
	args := m.Called(ctx, md, ttl)
	return args.Error(0)
}
