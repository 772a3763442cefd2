package poll

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"homework-notifier/pkg/homework"
	"homework-notifier/practicum"
	"homework-notifier/status"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAPI replays canned answers, one per call; the last one repeats.
type fakeAPI struct {
	called  chan int64
	answers []answer
	dates   []int64
	mu      sync.Mutex
}

type answer struct {
	err  error
	body string
}

func (f *fakeAPI) Homeworks(ctx context.Context, fromDate int64) (any, error) {
	f.mu.Lock()
	f.dates = append(f.dates, fromDate)
	n := len(f.dates)
	f.mu.Unlock()
	if f.called != nil {
		select {
		case f.called <- fromDate:
		default:
		}
	}

	a := f.answers[min(n, len(f.answers))-1]
	if a.err != nil {
		return nil, a.err
	}
	dec := json.NewDecoder(strings.NewReader(a.body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dates)
}

type fakeNotifier struct {
	messages []string
	fail     bool
	mu       sync.Mutex
}

func (f *fakeNotifier) Notify(_ context.Context, text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return !f.fail
}

func (f *fakeNotifier) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type fakeJournal struct {
	err  error
	recs []*homework.Iteration
}

func (f *fakeJournal) Save(_ context.Context, rec *homework.Iteration) error {
	f.recs = append(f.recs, rec)
	return f.err
}

func newTestMonitor(api API, n Notifier, j Journal) *Monitor {
	cfg := &Config{
		API:         api,
		Notifier:    n,
		Logger:      testLogger(),
		Now:         func() time.Time { return time.Unix(500, 0) },
		RetryPeriod: 10 * time.Millisecond,
	}
	if j != nil {
		cfg.Journal = j
	}
	return New(cfg)
}

func TestIterateScenarios(t *testing.T) {
	tests := []struct {
		name         string
		answer       answer
		wantMessages []string
		wantCursor   int64
		wantErr      func(error) bool
	}{
		{
			name:   "A: approved homework",
			answer: answer{body: `{"homeworks":[{"homework_name":"hw1","status":"approved"}],"current_date":1000}`},
			wantMessages: []string{
				`Changed review status for "hw1". Work reviewed: the reviewer liked everything. Hooray!`,
			},
			wantCursor: 1000,
		},
		{
			name:       "B: no homeworks",
			answer:     answer{body: `{"homeworks":[],"current_date":2000}`},
			wantCursor: 2000,
		},
		{
			name:         "C: unknown status",
			answer:       answer{body: `{"homeworks":[{"homework_name":"hw2","status":"pending"}],"current_date":3000}`},
			wantMessages: []string{`Program failure: parse homework #0: unknown homework status: "pending"`},
			wantCursor:   500,
			wantErr:      status.IsUnknownStatus,
		},
		{
			name: "D: service unavailable",
			answer: answer{err: &practicum.ResponseCodeError{
				StatusCode: 503,
				Endpoint:   "https://example.test/api/",
				Params:     url.Values{"from_date": {"500"}},
			}},
			wantMessages: []string{
				"Program failure: get API answer: endpoint https://example.test/api/ returned HTTP 503 (params: from_date=500)",
			},
			wantCursor: 500,
			wantErr:    practicum.IsResponseCodeError,
		},
		{
			name:         "transport error",
			answer:       answer{err: &practicum.TransportError{Endpoint: "https://example.test/api/", Err: errors.New("connection refused")}},
			wantMessages: []string{"Program failure: get API answer: request https://example.test/api/: connection refused"},
			wantCursor:   500,
			wantErr:      practicum.IsTransportError,
		},
		{
			name:         "malformed payload",
			answer:       answer{body: `{"homeworks":{},"current_date":3000}`},
			wantMessages: []string{`Program failure: check response: unexpected API response: "homeworks" is an object, not a list`},
			wantCursor:   500,
			wantErr:      practicum.IsShapeError,
		},
		{
			name:         "missing homework name",
			answer:       answer{body: `{"homeworks":[{"status":"approved"}],"current_date":3000}`},
			wantMessages: []string{`Program failure: parse homework #0: homework record has no "homework_name" field`},
			wantCursor:   500,
			wantErr:      status.IsMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{answers: []answer{tt.answer}}
			n := &fakeNotifier{}
			m := newTestMonitor(api, n, nil)

			err := m.Iterate(context.Background())
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Iterate() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !tt.wantErr(err) {
				t.Fatalf("Iterate() error = %v, wrong type", err)
			}

			if api.dates[0] != 500 {
				t.Errorf("from_date = %d, want 500", api.dates[0])
			}
			got := n.sent()
			if len(got) != len(tt.wantMessages) {
				t.Fatalf("sent %d messages %q, want %d", len(got), got, len(tt.wantMessages))
			}
			for i := range got {
				if got[i] != tt.wantMessages[i] {
					t.Errorf("message[%d] = %q, want %q", i, got[i], tt.wantMessages[i])
				}
			}
			if c := m.Cursor(); c != tt.wantCursor {
				t.Errorf("Cursor() = %d, want %d", c, tt.wantCursor)
			}
		})
	}
}

func TestIterateNotifiesEveryHomeworkInOrder(t *testing.T) {
	api := &fakeAPI{answers: []answer{{body: `{"homeworks":[
		{"homework_name":"a","status":"reviewing"},
		{"homework_name":"b","status":"rejected"},
		{"homework_name":"c","status":"approved"}],"current_date":900}`}}}
	n := &fakeNotifier{}
	m := newTestMonitor(api, n, nil)

	if err := m.Iterate(context.Background()); err != nil {
		t.Fatalf("Iterate() unexpected error: %v", err)
	}

	got := n.sent()
	want := []string{
		`Changed review status for "a". Work taken for review by the reviewer.`,
		`Changed review status for "b". Work reviewed: the reviewer has remarks.`,
		`Changed review status for "c". Work reviewed: the reviewer liked everything. Hooray!`,
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("messages = %q, want %q", got, want)
	}
}

func TestIterateStopsAtFirstBadRecord(t *testing.T) {
	api := &fakeAPI{answers: []answer{{body: `{"homeworks":[
		{"homework_name":"a","status":"approved"},
		{"homework_name":"b","status":"bogus"},
		{"homework_name":"c","status":"approved"}],"current_date":900}`}}}
	n := &fakeNotifier{}
	m := newTestMonitor(api, n, nil)

	if err := m.Iterate(context.Background()); !status.IsUnknownStatus(err) {
		t.Fatalf("Iterate() error = %v, want UnknownStatusError", err)
	}
	got := n.sent()
	if len(got) != 2 {
		t.Fatalf("sent %q, want the first status and a failure report", got)
	}
	if !strings.HasPrefix(got[1], "Program failure: ") {
		t.Errorf("second message = %q, want failure report", got[1])
	}
	if m.Cursor() != 500 {
		t.Errorf("Cursor() = %d, want 500", m.Cursor())
	}
}

func TestCursorNeverDecreases(t *testing.T) {
	api := &fakeAPI{answers: []answer{
		{body: `{"homeworks":[],"current_date":1000}`},
		{body: `{"homeworks":[],"current_date":800}`},
		{err: errors.New("boom")},
		{body: `{"homeworks":[],"current_date":1000}`},
		{body: `{"homeworks":[],"current_date":1500}`},
	}}
	m := newTestMonitor(api, &fakeNotifier{}, nil)

	prev := m.Cursor()
	for i := range 5 {
		_ = m.Iterate(context.Background())
		cur := m.Cursor()
		if cur < prev {
			t.Fatalf("iteration %d: cursor went back from %d to %d", i, prev, cur)
		}
		prev = cur
	}
	if prev != 1500 {
		t.Errorf("final cursor = %d, want 1500", prev)
	}
	wantDates := []int64{500, 1000, 1000, 1000, 1000}
	for i, d := range wantDates {
		if api.dates[i] != d {
			t.Errorf("call %d from_date = %d, want %d", i, api.dates[i], d)
		}
	}
}

func TestNotifierFailureDoesNotFailIteration(t *testing.T) {
	api := &fakeAPI{answers: []answer{{body: `{"homeworks":[{"homework_name":"hw1","status":"approved"}],"current_date":1000}`}}}
	n := &fakeNotifier{fail: true}
	j := &fakeJournal{}
	m := newTestMonitor(api, n, j)

	if err := m.Iterate(context.Background()); err != nil {
		t.Fatalf("Iterate() unexpected error: %v", err)
	}
	if m.Cursor() != 1000 {
		t.Errorf("Cursor() = %d, want 1000", m.Cursor())
	}
	if len(j.recs) != 1 || j.recs[0].Notifications != 0 {
		t.Errorf("journal = %+v, want one record with zero delivered notifications", j.recs)
	}
}

func TestIterateJournal(t *testing.T) {
	api := &fakeAPI{answers: []answer{
		{body: `{"homeworks":[{"homework_name":"hw1","status":"approved"}],"current_date":1000}`},
		{err: errors.New("boom")},
	}}
	j := &fakeJournal{err: errors.New("bucket unavailable")}
	m := newTestMonitor(api, &fakeNotifier{}, j)

	if err := m.Iterate(context.Background()); err != nil {
		t.Fatalf("Iterate() unexpected error: %v", err)
	}
	if err := m.Iterate(context.Background()); err == nil {
		t.Fatal("Iterate() expected error")
	}

	if len(j.recs) != 2 {
		t.Fatalf("journal got %d records, want 2", len(j.recs))
	}
	first, second := j.recs[0], j.recs[1]
	if first.ID == "" || first.ID == second.ID {
		t.Errorf("iteration ids should be unique and non-empty: %q %q", first.ID, second.ID)
	}
	if first.CursorBefore != 500 || first.CursorAfter != 1000 || first.Homeworks != 1 || first.Notifications != 1 || first.Error != "" {
		t.Errorf("first record = %+v", first)
	}
	if second.CursorBefore != 1000 || second.CursorAfter != 1000 || second.Error == "" || second.Notifications != 1 {
		t.Errorf("second record = %+v", second)
	}

	snap := m.Snapshot()
	if snap.Iterations != 2 || snap.Failures != 1 || snap.Notifications != 2 || snap.LastError == "" || snap.LastIterationID != second.ID {
		t.Errorf("Snapshot() = %+v", snap)
	}
}

func TestIterateShutdownSkipsFailureReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := &fakeAPI{answers: []answer{{err: &practicum.TransportError{Endpoint: "x", Err: context.Canceled}}}}
	n := &fakeNotifier{}
	m := newTestMonitor(api, n, nil)

	if err := m.Iterate(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Iterate() error = %v, want context.Canceled", err)
	}
	if got := n.sent(); len(got) != 0 {
		t.Errorf("sent %q during shutdown, want nothing", got)
	}
}

func TestRunSurvivesFailures(t *testing.T) {
	api := &fakeAPI{
		called:  make(chan int64, 10),
		answers: []answer{{err: errors.New("boom")}},
	}
	n := &fakeNotifier{fail: true}
	m := newTestMonitor(api, n, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	for range 3 {
		select {
		case <-api.called:
		case <-time.After(5 * time.Second):
			t.Fatal("loop stopped iterating after failures")
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if m.Snapshot().Failures < 3 {
		t.Errorf("Failures = %d, want at least 3", m.Snapshot().Failures)
	}
}

func TestRunWaitsRetryPeriod(t *testing.T) {
	api := &fakeAPI{
		called:  make(chan int64, 10),
		answers: []answer{{body: `{"homeworks":[],"current_date":600}`}},
	}
	m := New(&Config{
		API:         api,
		Notifier:    &fakeNotifier{},
		Logger:      testLogger(),
		RetryPeriod: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	select {
	case <-api.called:
	case <-time.After(5 * time.Second):
		t.Fatal("first iteration did not run")
	}
	select {
	case <-api.called:
		t.Fatal("second iteration ran before the retry period")
	case <-time.After(50 * time.Millisecond):
	}

	if !m.Trigger() {
		t.Fatal("Trigger() = false, want true")
	}
	select {
	case <-api.called:
	case <-time.After(5 * time.Second):
		t.Fatal("Trigger() did not start an iteration")
	}
	if api.calls() != 2 {
		t.Errorf("calls = %d, want 2", api.calls())
	}
}

func TestTriggerPendingOnce(t *testing.T) {
	m := newTestMonitor(&fakeAPI{}, &fakeNotifier{}, nil)
	if !m.Trigger() {
		t.Error("first Trigger() = false, want true")
	}
	if m.Trigger() {
		t.Error("second Trigger() = true, want false while one is pending")
	}
}

func TestNewDefaults(t *testing.T) {
	before := time.Now().Unix()
	m := New(&Config{API: &fakeAPI{}, Notifier: &fakeNotifier{}})
	if m.retryPeriod != DefaultRetryPeriod {
		t.Errorf("retryPeriod = %v, want %v", m.retryPeriod, DefaultRetryPeriod)
	}
	if c := m.Cursor(); c < before || c > time.Now().Unix() {
		t.Errorf("Cursor() = %d, want current time", c)
	}
}
