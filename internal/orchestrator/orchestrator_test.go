// Package orchestrator provides unit tests for the throttled retry policy.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/medilens/internal/domain"
	"go.uber.org/zap"
)

// fakeClock advances instantly on After and records every wait.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

type reply struct {
	text string
	err  error
}

// scriptedGenerator returns replies in order and records when it was called.
type scriptedGenerator struct {
	mu      sync.Mutex
	clock   Clock
	replies []reply
	calls   []time.Time
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, g.clock.Now())
	if len(g.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := g.replies[0]
	if len(g.replies) > 1 {
		g.replies = g.replies[1:]
	}
	return r.text, r.err
}

func (g *scriptedGenerator) Calls() []time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]time.Time(nil), g.calls...)
}

func newTestOrchestrator(gen Generator, clock Clock, interval time.Duration) *Orchestrator {
	return New(gen, NewLocalGate(interval, clock), Options{
		Provider:       "test",
		MaxAttempts:    3,
		RetryBaseDelay: 2 * time.Second,
		Clock:          clock,
	}, zap.NewNop())
}

func TestOrchestrator_ThrottlesConsecutiveCalls(t *testing.T) {
	clock := newFakeClock()
	gen := &scriptedGenerator{clock: clock, replies: []reply{{text: "one"}, {text: "two"}}}
	o := newTestOrchestrator(gen, clock, 4*time.Second)

	first := o.Invoke(context.Background(), "a")
	second := o.Invoke(context.Background(), "b")

	if !first.Ok() || !second.Ok() {
		t.Fatalf("both calls should succeed: %+v %+v", first, second)
	}

	calls := gen.Calls()
	if len(calls) != 2 {
		t.Fatalf("generator calls = %d, want 2", len(calls))
	}
	if gap := calls[1].Sub(calls[0]); gap < 4*time.Second {
		t.Errorf("second call started %v after the first, want >= 4s", gap)
	}
}

func TestOrchestrator_NoWaitAfterIntervalElapsed(t *testing.T) {
	clock := newFakeClock()
	gen := &scriptedGenerator{clock: clock, replies: []reply{{text: "one"}, {text: "two"}}}
	o := newTestOrchestrator(gen, clock, 4*time.Second)

	o.Invoke(context.Background(), "a")
	clock.Advance(5 * time.Second)
	o.Invoke(context.Background(), "b")

	if waits := clock.Waits(); len(waits) != 0 {
		t.Errorf("expected no waits once the interval elapsed, got %v", waits)
	}
}

func TestOrchestrator_RetriesThenSucceeds(t *testing.T) {
	for k := 0; k < 3; k++ {
		k := k
		t.Run(fmt.Sprintf("failures=%d", k), func(t *testing.T) {
			clock := newFakeClock()
			var replies []reply
			for i := 0; i < k; i++ {
				replies = append(replies, reply{err: errors.New("connection reset")})
			}
			replies = append(replies, reply{text: "  answer  "})
			gen := &scriptedGenerator{clock: clock, replies: replies}

			// Zero interval isolates the retry backoff waits.
			o := newTestOrchestrator(gen, clock, 0)
			res := o.Invoke(context.Background(), "prompt")

			if !res.Ok() {
				t.Fatalf("expected success, got %q", res.Message())
			}
			if data, _ := res.Data(); data != "answer" {
				t.Errorf("Data() = %q, want trimmed text", data)
			}
			if got := len(gen.Calls()); got != k+1 {
				t.Errorf("generator calls = %d, want %d", got, k+1)
			}

			waits := clock.Waits()
			if len(waits) != k {
				t.Fatalf("backoff waits = %v, want %d of them", waits, k)
			}
			for i, w := range waits {
				if want := time.Duration(i+1) * 2 * time.Second; w != want {
					t.Errorf("wait %d = %v, want %v", i, w, want)
				}
				if i > 0 && w < waits[i-1] {
					t.Errorf("waits should be non-decreasing: %v", waits)
				}
			}
		})
	}
}

func TestOrchestrator_GateRecheckedOnRetry(t *testing.T) {
	clock := newFakeClock()
	gen := &scriptedGenerator{clock: clock, replies: []reply{
		{err: errors.New("503")},
		{text: "ok"},
	}}
	o := newTestOrchestrator(gen, clock, 4*time.Second)

	res := o.Invoke(context.Background(), "prompt")
	if !res.Ok() {
		t.Fatalf("expected success, got %q", res.Message())
	}

	calls := gen.Calls()
	if gap := calls[1].Sub(calls[0]); gap != 4*time.Second {
		t.Errorf("retry started %v after first attempt, want the 4s interval to dominate the 2s backoff", gap)
	}
	// 2s backoff, then the remaining 2s of the throttle window.
	waits := clock.Waits()
	if len(waits) != 2 || waits[0] != 2*time.Second || waits[1] != 2*time.Second {
		t.Errorf("waits = %v, want [2s 2s]", waits)
	}
}

func TestOrchestrator_MaxRetries(t *testing.T) {
	clock := newFakeClock()
	gen := &scriptedGenerator{clock: clock, replies: []reply{{err: errors.New("unavailable")}}}
	o := newTestOrchestrator(gen, clock, 4*time.Second)

	res := o.Invoke(context.Background(), "prompt")

	if res.Ok() {
		t.Fatal("expected failure")
	}
	if res.Kind() != domain.FailureMaxRetries || res.Message() != MsgMaxRetries {
		t.Errorf("got kind %q message %q", res.Kind(), res.Message())
	}
	if got := len(gen.Calls()); got != 3 {
		t.Errorf("generator calls = %d, want 3", got)
	}
}

func TestOrchestrator_EmptyResponseNotRetried(t *testing.T) {
	tests := []struct {
		name  string
		reply reply
	}{
		{"blank text", reply{text: "   \n"}},
		{"empty sentinel", reply{err: domain.WrapError("empty_response", domain.ErrEmptyResponse, false)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			gen := &scriptedGenerator{clock: clock, replies: []reply{tt.reply, {text: "never"}}}
			o := newTestOrchestrator(gen, clock, 4*time.Second)

			res := o.Invoke(context.Background(), "prompt")
			if res.Kind() != domain.FailureEmptyResponse {
				t.Errorf("Kind() = %q, want empty_response", res.Kind())
			}
			if got := len(gen.Calls()); got != 1 {
				t.Errorf("generator calls = %d, want 1", got)
			}
		})
	}
}

func TestOrchestrator_PermanentErrorNotRetried(t *testing.T) {
	clock := newFakeClock()
	authErr := domain.WrapError("auth_error", errors.New("bad key"), false)
	gen := &scriptedGenerator{clock: clock, replies: []reply{{err: authErr}, {err: authErr}, {err: authErr}}}
	o := newTestOrchestrator(gen, clock, 0)

	res := o.Invoke(context.Background(), "prompt")
	if res.Kind() == domain.FailureMaxRetries {
		t.Fatal("permanent errors must not exhaust the retry budget")
	}
	if res.Kind() != domain.FailureUnexpected || res.Message() != MsgRejected {
		t.Errorf("got kind %q message %q", res.Kind(), res.Message())
	}
	if got := len(gen.Calls()); got != 1 {
		t.Errorf("generator calls = %d, want 1", got)
	}
}

func TestOrchestrator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	clock := newFakeClock()
	gen := &scriptedGenerator{clock: clock, replies: []reply{{text: "x"}}}
	o := newTestOrchestrator(gen, clock, 4*time.Second)

	res := o.Invoke(ctx, "prompt")
	if res.Ok() || res.Message() != MsgCancelled {
		t.Errorf("expected cancellation failure, got %+v", res)
	}
	if got := len(gen.Calls()); got != 0 {
		t.Errorf("generator should not be called, got %d", got)
	}
}

func TestOrchestrator_Do(t *testing.T) {
	clock := newFakeClock()
	o := newTestOrchestrator(nil, clock, 0)

	calls := 0
	res := o.Do(context.Background(), "ocr", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("timeout")
		}
		return "extracted", nil
	})

	if data, ok := res.Data(); !ok || data != "extracted" {
		t.Errorf("Do() = %+v", res)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestLocalGate_ConcurrentCallersShareWindow(t *testing.T) {
	clock := newFakeClock()
	gate := NewLocalGate(4*time.Second, clock)

	const callers = 5
	starts := make([]time.Time, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slot, err := gate.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			starts[i] = slot.Start
		}(i)
	}
	wg.Wait()

	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for i := 1; i < callers; i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < 4*time.Second {
			t.Errorf("starts %d and %d are %v apart, want >= 4s", i-1, i, gap)
		}
	}
}

func TestLocalGate_FirstCallDoesNotWait(t *testing.T) {
	clock := newFakeClock()
	gate := NewLocalGate(time.Hour, clock)

	slot, err := gate.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if slot.Waited != 0 || !slot.Start.Equal(clock.Now()) {
		t.Errorf("first slot = %+v, want immediate start", slot)
	}
}
