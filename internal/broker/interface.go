package broker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// Broker defines the read-only interface for pulling account and market
// data from a brokerage.
type Broker interface {
	// Account operations
	GetAccountIDCtx(ctx context.Context) (string, error)
	GetBalancesCtx(ctx context.Context, accountID string) (*BalanceResponse, error)
	GetPositionsCtx(ctx context.Context, accountID string) ([]PositionItem, error)
	GetGainLossCtx(ctx context.Context, accountID string) ([]ClosedPosition, error)

	// Market data
	GetQuotesCtx(ctx context.Context, symbols []string) (map[string]QuoteItem, error)
	GetHistoricalDataCtx(ctx context.Context, symbol string, start, end time.Time) ([]HistoricalDataPoint, error)
}

// Ensure TradierAPI implements Broker at compile time.
var _ Broker = (*TradierAPI)(nil)

// IsPermanentAPIError checks if an error is a permanent API error that will
// not succeed on retry (4xx other than 429).
func IsPermanentAPIError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != 429
	}
	return false
}

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality so
// that a flapping upstream stops being hammered every refresh cycle.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerBroker implements Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a new CircuitBreakerBroker with sensible defaults
func NewCircuitBreakerBroker(broker Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings
func NewCircuitBreakerBrokerWithSettings(broker Broker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// GetAccountIDCtx wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) GetAccountIDCtx(ctx context.Context) (string, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (string, error) {
		return b.GetAccountIDCtx(ctx)
	})
}

// GetBalancesCtx wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) GetBalancesCtx(ctx context.Context, accountID string) (*BalanceResponse, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*BalanceResponse, error) {
		return b.GetBalancesCtx(ctx, accountID)
	})
}

// GetPositionsCtx wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) GetPositionsCtx(ctx context.Context, accountID string) ([]PositionItem, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]PositionItem, error) {
		return b.GetPositionsCtx(ctx, accountID)
	})
}

// GetGainLossCtx wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) GetGainLossCtx(ctx context.Context, accountID string) ([]ClosedPosition, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]ClosedPosition, error) {
		return b.GetGainLossCtx(ctx, accountID)
	})
}

// GetQuotesCtx wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) GetQuotesCtx(ctx context.Context, symbols []string) (map[string]QuoteItem, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (map[string]QuoteItem, error) {
		return b.GetQuotesCtx(ctx, symbols)
	})
}

// GetHistoricalDataCtx wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) GetHistoricalDataCtx(ctx context.Context, symbol string, start, end time.Time) ([]HistoricalDataPoint, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]HistoricalDataPoint, error) {
		return b.GetHistoricalDataCtx(ctx, symbol, start, end)
	})
}
