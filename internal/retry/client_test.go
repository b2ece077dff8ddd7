package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eddiefleurent/pmcc_tracker/internal/broker"
)

// flakyBroker fails the first failCount calls, then succeeds.
type flakyBroker struct {
	mu        sync.Mutex
	failCount int
	failWith  error
	calls     int
}

func (f *flakyBroker) next() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failCount {
		return f.failWith
	}
	return nil
}

func (f *flakyBroker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *flakyBroker) GetAccountIDCtx(context.Context) (string, error) {
	if err := f.next(); err != nil {
		return "", err
	}
	return "VA000001", nil
}

func (f *flakyBroker) GetBalancesCtx(context.Context, string) (*broker.BalanceResponse, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return &broker.BalanceResponse{}, nil
}

func (f *flakyBroker) GetPositionsCtx(context.Context, string) ([]broker.PositionItem, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *flakyBroker) GetGainLossCtx(context.Context, string) ([]broker.ClosedPosition, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (f *flakyBroker) GetQuotesCtx(context.Context, []string) (map[string]broker.QuoteItem, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return map[string]broker.QuoteItem{}, nil
}

func (f *flakyBroker) GetHistoricalDataCtx(context.Context, string, time.Time, time.Time) ([]broker.HistoricalDataPoint, error) {
	if err := f.next(); err != nil {
		return nil, err
	}
	return nil, nil
}

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestRetriesTransientError(t *testing.T) {
	flaky := &flakyBroker{failCount: 2, failWith: errors.New("connection reset")}
	r := NewBroker(flaky, fastConfig())

	id, err := r.GetAccountIDCtx(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "VA000001" {
		t.Errorf("account = %q, want VA000001", id)
	}
	if got := flaky.callCount(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestPermanentErrorFailsFast(t *testing.T) {
	flaky := &flakyBroker{failCount: 10, failWith: &broker.APIError{Status: 401, Body: "bad token"}}
	r := NewBroker(flaky, fastConfig())

	_, err := r.GetAccountIDCtx(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := flaky.callCount(); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent error)", got)
	}
}

func TestRateLimitIsRetried(t *testing.T) {
	flaky := &flakyBroker{failCount: 1, failWith: &broker.APIError{Status: 429, Body: "rate limited"}}
	r := NewBroker(flaky, fastConfig())

	if _, err := r.GetQuotesCtx(context.Background(), []string{"SPY"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := flaky.callCount(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestExhaustsRetries(t *testing.T) {
	flaky := &flakyBroker{failCount: 100, failWith: errors.New("server error")}
	r := NewBroker(flaky, fastConfig())

	_, err := r.GetPositionsCtx(context.Background(), "VA000001")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := flaky.callCount(); got != 4 {
		t.Errorf("calls = %d, want 4 (initial + 3 retries)", got)
	}
}

func TestContextCancellation(t *testing.T) {
	flaky := &flakyBroker{failCount: 100, failWith: errors.New("server error")}
	r := NewBroker(flaky, Config{
		MaxRetries:     5,
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.GetBalancesCtx(ctx, "VA000001")
	if err == nil {
		t.Fatal("expected error from canceled context")
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation did not interrupt backoff promptly")
	}
}
