package messenger

import (
	"context"
	"log/slog"
)

// MockProvider logs messages instead of sending them.
type MockProvider struct {
	logger *slog.Logger
}

// NewMockProvider creates a new mock provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

func (*MockProvider) Name() string { return "mock" }

// Send logs the message instead of sending it.
func (m *MockProvider) Send(_ context.Context, chatID, text string) error {
	m.logger.Info("MOCK MESSAGE",
		"chat_id", chatID,
		"text", text)
	return nil
}
