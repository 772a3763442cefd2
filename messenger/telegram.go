package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const telegramBaseURL = "https://api.telegram.org"

// TelegramError is a sendMessage call rejected by the Bot API.
type TelegramError struct {
	Description string
	StatusCode  int
}

func (e *TelegramError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram API error %d", e.StatusCode)
	}
	return fmt.Sprintf("telegram API error %d: %s", e.StatusCode, e.Description)
}

// TelegramProvider sends messages via the Telegram Bot API.
type TelegramProvider struct {
	client   *http.Client
	logger   *slog.Logger
	botToken string
	baseURL  string
}

// NewTelegramProvider creates a Telegram provider with the given bot token.
func NewTelegramProvider(botToken string, client *http.Client, logger *slog.Logger) *TelegramProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TelegramProvider{
		client:   client,
		logger:   logger,
		botToken: botToken,
		baseURL:  telegramBaseURL,
	}
}

// WithBaseURL sets a custom API base URL.
func (t *TelegramProvider) WithBaseURL(baseURL string) *TelegramProvider {
	t.baseURL = strings.TrimSuffix(baseURL, "/")
	return t
}

func (*TelegramProvider) Name() string { return "telegram" }

// Send posts text to chatID with sendMessage.
func (t *TelegramProvider) Send(ctx context.Context, chatID, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	form := url.Values{
		"chat_id": {chatID},
		"text":    {text},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	t.logger.Debug("Telegram API request starting",
		"method", "POST",
		"endpoint", "sendMessage",
		"chat_id", chatID)

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of logs and messages.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return fmt.Errorf("telegram request: %w", urlErr.Err)
		}
		return fmt.Errorf("telegram request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			t.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
			OK          bool   `json:"ok"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.logger.Debug("Failed to decode Telegram error body", "error", err)
		}
		return &TelegramError{StatusCode: resp.StatusCode, Description: body.Description}
	}

	return nil
}
