// Package retry wraps a Broker with bounded exponential-backoff retries for
// transient upstream failures. Permanent API errors (4xx other than 429)
// fail immediately.
package retry

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/eddiefleurent/pmcc_tracker/internal/broker"
)

// Config controls retry behavior.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig retries three times with backoff capped at 30 seconds.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
}

// Broker retries every call of the wrapped Broker on transient errors.
type Broker struct {
	inner  broker.Broker
	config Config
}

var _ broker.Broker = (*Broker)(nil)

// NewBroker wraps b with retry behavior.
func NewBroker(b broker.Broker, config ...Config) *Broker {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Broker{inner: b, config: cfg}
}

// execRetry runs fn with backoff until it succeeds, a permanent error
// surfaces, the attempts run out, or the context ends.
func execRetry[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("operation canceled: %w", err)
		}

		res, err := fn()
		if err == nil {
			return res, nil
		}
		lastErr = err

		if broker.IsPermanentAPIError(err) || attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(backoff):
			backoff = nextBackoff(backoff, cfg.MaxBackoff)
		case <-ctx.Done():
			return zero, fmt.Errorf("operation canceled during backoff: %w", ctx.Err())
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

// nextBackoff grows the delay by 1.5x with up to 25% random jitter.
func nextBackoff(current, max time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > max {
		backoff = max
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("Failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

func (r *Broker) GetAccountIDCtx(ctx context.Context) (string, error) {
	return execRetry(ctx, r.config, func() (string, error) {
		return r.inner.GetAccountIDCtx(ctx)
	})
}

func (r *Broker) GetBalancesCtx(ctx context.Context, accountID string) (*broker.BalanceResponse, error) {
	return execRetry(ctx, r.config, func() (*broker.BalanceResponse, error) {
		return r.inner.GetBalancesCtx(ctx, accountID)
	})
}

func (r *Broker) GetPositionsCtx(ctx context.Context, accountID string) ([]broker.PositionItem, error) {
	return execRetry(ctx, r.config, func() ([]broker.PositionItem, error) {
		return r.inner.GetPositionsCtx(ctx, accountID)
	})
}

func (r *Broker) GetGainLossCtx(ctx context.Context, accountID string) ([]broker.ClosedPosition, error) {
	return execRetry(ctx, r.config, func() ([]broker.ClosedPosition, error) {
		return r.inner.GetGainLossCtx(ctx, accountID)
	})
}

func (r *Broker) GetQuotesCtx(ctx context.Context, symbols []string) (map[string]broker.QuoteItem, error) {
	return execRetry(ctx, r.config, func() (map[string]broker.QuoteItem, error) {
		return r.inner.GetQuotesCtx(ctx, symbols)
	})
}

func (r *Broker) GetHistoricalDataCtx(ctx context.Context, symbol string, start, end time.Time) ([]broker.HistoricalDataPoint, error) {
	return execRetry(ctx, r.config, func() ([]broker.HistoricalDataPoint, error) {
		return r.inner.GetHistoricalDataCtx(ctx, symbol, start, end)
	})
}
