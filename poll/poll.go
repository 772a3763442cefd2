// Package poll runs the homework status polling loop.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"homework-notifier/pkg/homework"
	"homework-notifier/practicum"
	"homework-notifier/status"
)

// DefaultRetryPeriod is the wait between two iterations.
const DefaultRetryPeriod = 10 * time.Minute

// failurePrefix starts every error report sent to the chat.
const failurePrefix = "Program failure: "

// API fetches raw homework statuses newer than fromDate.
type API interface {
	Homeworks(ctx context.Context, fromDate int64) (any, error)
}

// Notifier delivers a message. Implementations swallow delivery errors.
type Notifier interface {
	Notify(ctx context.Context, text string) bool
}

// Journal records finished iterations.
type Journal interface {
	Save(ctx context.Context, rec *homework.Iteration) error
}

// Snapshot is a point-in-time view of the loop state.
type Snapshot struct {
	LastStartedAt   time.Time `json:"last_started_at,omitzero"`
	LastIterationID string    `json:"last_iteration_id,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	Cursor          int64     `json:"cursor"`
	Iterations      int       `json:"iterations"`
	Failures        int       `json:"failures"`
	Notifications   int       `json:"notifications"`
}

// Config holds monitor dependencies.
type Config struct {
	API         API
	Notifier    Notifier
	Journal     Journal // optional
	Logger      *slog.Logger
	Now         func() time.Time // defaults to time.Now
	RetryPeriod time.Duration    // defaults to DefaultRetryPeriod
}

// Monitor polls the API and relays status changes.
type Monitor struct {
	api         API
	notifier    Notifier
	journal     Journal
	logger      *slog.Logger
	now         func() time.Time
	trigger     chan struct{}
	snap        Snapshot
	retryPeriod time.Duration
	cursor      int64 // owned by the goroutine calling Iterate
	mu          sync.Mutex
}

// New creates a monitor whose time cursor starts at the current time.
func New(cfg *Config) *Monitor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	retryPeriod := cfg.RetryPeriod
	if retryPeriod <= 0 {
		retryPeriod = DefaultRetryPeriod
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		api:         cfg.API,
		notifier:    cfg.Notifier,
		journal:     cfg.Journal,
		logger:      logger,
		now:         now,
		trigger:     make(chan struct{}, 1),
		retryPeriod: retryPeriod,
		cursor:      now().Unix(),
	}
	m.snap.Cursor = m.cursor
	return m
}

// Run iterates until ctx is cancelled, waiting the retry period after every
// iteration whatever its outcome.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Poll loop started",
		"cursor", m.cursor,
		"retry_period", m.retryPeriod.String())

	for {
		_ = m.Iterate(ctx)

		if !m.wait(ctx) {
			m.logger.Info("Poll loop stopped", "cursor", m.cursor, "error", ctx.Err())
			return ctx.Err()
		}
	}
}

// Trigger asks the loop to start the next iteration without waiting.
// It returns false if a request is already pending.
func (m *Monitor) Trigger() bool {
	select {
	case m.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Snapshot returns the current loop state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Cursor returns the current time cursor.
func (m *Monitor) Cursor() int64 {
	return m.Snapshot().Cursor
}

func (m *Monitor) wait(ctx context.Context) bool {
	timer := time.NewTimer(m.retryPeriod)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-m.trigger:
		m.logger.Info("Manual poll requested")
		return true
	}
}

// Iterate runs one poll cycle. Any error is logged and reported to the chat
// before being returned; the cursor only moves when the whole cycle succeeds.
func (m *Monitor) Iterate(ctx context.Context) error {
	rec := &homework.Iteration{
		ID:           uuid.NewString(),
		StartedAt:    m.now(),
		CursorBefore: m.cursor,
	}
	logger := m.logger.With("iteration_id", rec.ID)
	logger.Info("Iteration starting", "cursor", m.cursor)

	err := m.check(ctx, logger, rec)
	switch {
	case err == nil:
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		logger.Info("Iteration interrupted by shutdown", "error", err)
	default:
		logger.Error("Iteration failed", "error", err)
		if m.notifier.Notify(ctx, failurePrefix+err.Error()) {
			rec.Notifications++
		}
	}

	rec.FinishedAt = m.now()
	rec.CursorAfter = m.cursor
	if err != nil {
		rec.Error = err.Error()
	}

	logger.Info("Iteration completed",
		"cursor", m.cursor,
		"homeworks", rec.Homeworks,
		"notifications", rec.Notifications,
		"duration_ms", rec.FinishedAt.Sub(rec.StartedAt).Milliseconds(),
		"success", err == nil)

	m.record(ctx, logger, rec)
	return err
}

func (m *Monitor) check(ctx context.Context, logger *slog.Logger, rec *homework.Iteration) error {
	payload, err := m.api.Homeworks(ctx, m.cursor)
	if err != nil {
		return fmt.Errorf("get API answer: %w", err)
	}

	resp, err := practicum.CheckResponse(payload)
	if err != nil {
		return fmt.Errorf("check response: %w", err)
	}
	rec.Homeworks = len(resp.Homeworks)

	if len(resp.Homeworks) == 0 {
		logger.Debug("No homework updates")
	}

	for i, hw := range resp.Homeworks {
		msg, err := status.Parse(hw)
		if err != nil {
			return fmt.Errorf("parse homework #%d: %w", i, err)
		}
		logger.Info("Homework status changed",
			"homework", hw.Name,
			"status", hw.Status,
			"id", hw.ID)
		if m.notifier.Notify(ctx, msg) {
			rec.Notifications++
		}
	}

	m.advance(logger, resp.CurrentDate)
	return nil
}

// advance moves the cursor forward; it never goes back.
func (m *Monitor) advance(logger *slog.Logger, currentDate int64) {
	if currentDate < m.cursor {
		logger.Warn("Server date is behind the cursor, keeping cursor",
			"cursor", m.cursor,
			"current_date", currentDate)
		return
	}
	m.cursor = currentDate
}

func (m *Monitor) record(ctx context.Context, logger *slog.Logger, rec *homework.Iteration) {
	m.mu.Lock()
	m.snap.Cursor = rec.CursorAfter
	m.snap.LastIterationID = rec.ID
	m.snap.LastStartedAt = rec.StartedAt
	m.snap.LastError = rec.Error
	m.snap.Iterations++
	m.snap.Notifications += rec.Notifications
	if rec.Error != "" {
		m.snap.Failures++
	}
	m.mu.Unlock()

	if m.journal == nil || ctx.Err() != nil {
		return
	}
	if err := m.journal.Save(ctx, rec); err != nil {
		logger.Warn("Failed to save iteration to journal", "error", err)
	}
}
