// Package mock provides a canned-data Broker implementation for tests and
// offline development.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eddiefleurent/pmcc_tracker/internal/broker"
)

// Broker serves fixture data through the broker.Broker interface. Zero
// value is usable; populate the fields a test cares about. When Err is set
// every call returns it.
type Broker struct {
	mu sync.Mutex

	AccountID string
	Balances  *broker.BalanceResponse
	Positions []broker.PositionItem
	GainLoss  []broker.ClosedPosition
	Quotes    map[string]broker.QuoteItem
	History   map[string][]broker.HistoricalDataPoint

	// Err fails every call when non-nil.
	Err error

	// Per-method errors, for exercising one failing fetch at a time.
	PositionsErr error
	QuotesErr    error

	// HistoryErr fails only historical-data calls, letting a test exercise
	// the degrade-to-default path without aborting the run.
	HistoryErr error

	// Calls counts invocations per method name.
	Calls map[string]int
}

var _ broker.Broker = (*Broker)(nil)

func (m *Broker) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Calls == nil {
		m.Calls = make(map[string]int)
	}
	m.Calls[method]++
}

// CallCount returns how many times the named method was invoked.
func (m *Broker) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[method]
}

func (m *Broker) GetAccountIDCtx(_ context.Context) (string, error) {
	m.record("GetAccountIDCtx")
	if m.Err != nil {
		return "", m.Err
	}
	if m.AccountID == "" {
		return "", fmt.Errorf("mock: no account configured")
	}
	return m.AccountID, nil
}

func (m *Broker) GetBalancesCtx(_ context.Context, _ string) (*broker.BalanceResponse, error) {
	m.record("GetBalancesCtx")
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Balances == nil {
		return &broker.BalanceResponse{}, nil
	}
	return m.Balances, nil
}

func (m *Broker) GetPositionsCtx(_ context.Context, _ string) ([]broker.PositionItem, error) {
	m.record("GetPositionsCtx")
	if m.Err != nil {
		return nil, m.Err
	}
	if m.PositionsErr != nil {
		return nil, m.PositionsErr
	}
	return m.Positions, nil
}

func (m *Broker) GetGainLossCtx(_ context.Context, _ string) ([]broker.ClosedPosition, error) {
	m.record("GetGainLossCtx")
	if m.Err != nil {
		return nil, m.Err
	}
	return m.GainLoss, nil
}

func (m *Broker) GetQuotesCtx(_ context.Context, symbols []string) (map[string]broker.QuoteItem, error) {
	m.record("GetQuotesCtx")
	if m.Err != nil {
		return nil, m.Err
	}
	if m.QuotesErr != nil {
		return nil, m.QuotesErr
	}
	out := make(map[string]broker.QuoteItem, len(symbols))
	for _, s := range symbols {
		if q, ok := m.Quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func (m *Broker) GetHistoricalDataCtx(_ context.Context, symbol string, _, _ time.Time) ([]broker.HistoricalDataPoint, error) {
	m.record("GetHistoricalDataCtx")
	if m.Err != nil {
		return nil, m.Err
	}
	if m.HistoryErr != nil {
		return nil, m.HistoryErr
	}
	return m.History[symbol], nil
}
