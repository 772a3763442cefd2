// Package messenger delivers notification text to the configured chat.
package messenger

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Provider defines the interface for message delivery implementations.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string
	// Send delivers text to a chat.
	Send(ctx context.Context, chatID, text string) error
}

// Sender sends messages to a single chat using a pluggable provider.
type Sender struct {
	provider Provider
	logger   *slog.Logger
	chatID   string
}

// New creates a new sender for chatID.
func New(provider Provider, chatID string, logger *slog.Logger) *Sender {
	return &Sender{
		provider: provider,
		logger:   logger,
		chatID:   chatID,
	}
}

// Send delivers text and returns the delivery error, if any.
func (s *Sender) Send(ctx context.Context, text string) error {
	if text == "" {
		return errors.New("empty message")
	}
	return s.provider.Send(ctx, s.chatID, text)
}

// Notify delivers text and reports whether it was delivered.
// Delivery errors are logged and dropped; callers never see them.
func (s *Sender) Notify(ctx context.Context, text string) bool {
	startTime := time.Now()
	if err := s.Send(ctx, text); err != nil {
		s.logger.Error("Failed to deliver message",
			"provider", s.provider.Name(),
			"chat_id", s.chatID,
			"duration_ms", time.Since(startTime).Milliseconds(),
			"error", err)
		return false
	}

	s.logger.Info("Message delivered",
		"provider", s.provider.Name(),
		"chat_id", s.chatID,
		"length", len(text),
		"duration_ms", time.Since(startTime).Milliseconds())
	return true
}
