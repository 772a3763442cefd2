// Package practicum talks to the homework_statuses API.
package practicum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// DefaultEndpoint is the production homework_statuses URL.
const DefaultEndpoint = "https://practicum.yandex.ru/api/user_api/homework_statuses/"

const maxDetailLen = 200

// Client fetches homework statuses.
type Client struct {
	client   *http.Client
	logger   *slog.Logger
	endpoint string
	token    string
}

// New creates a new API client.
func New(client *http.Client, endpoint, token string, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		client:   client,
		logger:   logger,
		endpoint: endpoint,
		token:    token,
	}
}

// Homeworks requests homework activity since fromDate and returns the decoded
// JSON body. The payload is not validated; see CheckResponse.
func (c *Client) Homeworks(ctx context.Context, fromDate int64) (any, error) {
	params := url.Values{}
	params.Set("from_date", strconv.FormatInt(fromDate, 10))

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: fmt.Errorf("parse endpoint: %w", err)}
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", "OAuth "+c.token)
	req.Header.Set("Accept", "application/json")

	c.logger.Info("HTTP request starting",
		"method", "GET",
		"url", c.endpoint,
		"from_date", fromDate)

	startTime := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("HTTP request failed",
			"url", c.endpoint,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return nil, &TransportError{Endpoint: c.endpoint, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Info("HTTP request completed",
		"url", c.endpoint,
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
		"content_length", len(body))

	if resp.StatusCode != http.StatusOK {
		return nil, &ResponseCodeError{
			StatusCode: resp.StatusCode,
			Endpoint:   c.endpoint,
			Params:     params,
			Detail:     describeBody(resp.Header.Get("Content-Type"), body),
		}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, &ShapeError{Reason: fmt.Sprintf("decode JSON: %v", err)}
	}
	return payload, nil
}

// describeBody extracts a short human-readable reason from an error response.
func describeBody(contentType string, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var text string
	switch {
	case strings.Contains(contentType, "json") || trimmed[0] == '{':
		text = describeJSON(trimmed)
	case strings.Contains(contentType, "html") || trimmed[0] == '<':
		text = describeHTML(trimmed)
	}
	if text == "" {
		text = string(trimmed)
	}
	return truncate(strings.Join(strings.Fields(text), " "), maxDetailLen)
}

func describeJSON(body []byte) string {
	var doc struct {
		Error   json.RawMessage `json:"error"`
		Code    string          `json:"code"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}

	// The API nests some errors as {"error": {"error": "..."}}.
	var nested struct {
		Error string `json:"error"`
	}
	var detail string
	if len(doc.Error) > 0 {
		if err := json.Unmarshal(doc.Error, &nested); err == nil {
			detail = nested.Error
		} else {
			_ = json.Unmarshal(doc.Error, &detail)
		}
	}

	var parts []string
	for _, p := range []string{doc.Code, doc.Message, detail} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ": ")
}

func describeHTML(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("body").Text())
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
