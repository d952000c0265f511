package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/linepoll/linepoll/internal/domain/gateway"
)

// MockGateway is a mock implementation of gateway.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) PublishPoll(ctx context.Context, chatID, question string, options []string) (gateway.PollHandle, error) {
	args := m.Called(ctx, chatID, question, options)
	return args.Get(0).(gateway.PollHandle), args.Error(1)
}

func (m *MockGateway) ClosePoll(ctx context.Context, chatID, messageRef string) error {
	args := m.Called(ctx, chatID, messageRef)
	return args.Error(0)
}

func (m *MockGateway) SendMessage(ctx context.Context, chatID, text string) error {
	args := m.Called(ctx, chatID, text)
	return args.Error(0)
}

func (m *MockGateway) SendDocument(ctx context.Context, chatID string, data []byte, filename, caption string) error {
	args := m.Called(ctx, chatID, data, filename, caption)
	return args.Error(0)
}
