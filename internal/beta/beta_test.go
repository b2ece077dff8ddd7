package beta

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/pmcc_tracker/internal/broker"
	"github.com/eddiefleurent/pmcc_tracker/internal/mock"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// bars builds a daily bar series from consecutive closes, one bar per day.
func bars(closes ...float64) []broker.HistoricalDataPoint {
	out := make([]broker.HistoricalDataPoint, len(closes))
	day := time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = broker.HistoricalDataPoint{Date: day.AddDate(0, 0, i), Close: c}
	}
	return out
}

// scaledBars returns a series whose daily returns are exactly factor times
// the base series' returns.
func scaledBars(base []broker.HistoricalDataPoint, factor float64) []broker.HistoricalDataPoint {
	out := make([]broker.HistoricalDataPoint, len(base))
	price := 100.0
	out[0] = broker.HistoricalDataPoint{Date: base[0].Date, Close: price}
	for i := 1; i < len(base); i++ {
		r := (base[i].Close - base[i-1].Close) / base[i-1].Close
		price *= 1 + factor*r
		out[i] = broker.HistoricalDataPoint{Date: base[i].Date, Close: price}
	}
	return out
}

func TestEstimateAllScaledReturns(t *testing.T) {
	// Benchmark closes with enough variance for a stable covariance.
	bench := bars(100, 101, 100.5, 102, 101.2, 103, 102.4, 104, 103.1, 105, 104.2, 106, 105.5, 107)
	b := &mock.Broker{
		History: map[string][]broker.HistoricalDataPoint{
			"SPY":  bench,
			"AAPL": scaledBars(bench, 1.5),
		},
	}

	e := NewEstimator(b, Config{Benchmark: "SPY", LookbackDays: 30}, quietLogger())
	betas := e.EstimateAll(context.Background(), []string{"AAPL", "SPY"})

	if math.Abs(betas["AAPL"]-1.5) > 0.01 {
		t.Errorf("beta(AAPL) = %v, want ~1.5", betas["AAPL"])
	}
	if betas["SPY"] != 1.0 {
		t.Errorf("beta(benchmark) = %v, want 1.0", betas["SPY"])
	}
	// Benchmark history fetched once, plus one fetch for AAPL.
	if got := b.CallCount("GetHistoricalDataCtx"); got != 2 {
		t.Errorf("historical fetches = %d, want 2", got)
	}
}

func TestEstimateAllCashTicker(t *testing.T) {
	b := &mock.Broker{
		History: map[string][]broker.HistoricalDataPoint{
			"SPY": bars(100, 101, 100.5, 102, 101.2, 103, 102.4, 104, 103.1, 105, 104.2, 106),
		},
	}
	e := NewEstimator(b, Config{Benchmark: "SPY", CashTickers: []string{"SGOV"}}, quietLogger())

	betas := e.EstimateAll(context.Background(), []string{"SGOV"})
	if betas["SGOV"] != 0 {
		t.Errorf("beta(cash ticker) = %v, want 0", betas["SGOV"])
	}
}

func TestEstimateAllDefaultsToNeutral(t *testing.T) {
	bench := bars(100, 101, 100.5, 102, 101.2, 103, 102.4, 104, 103.1, 105, 104.2, 106)

	tests := []struct {
		name string
		b    *mock.Broker
	}{
		{
			name: "history fetch fails",
			b:    &mock.Broker{HistoryErr: errors.New("upstream down")},
		},
		{
			name: "too few overlapping points",
			b: &mock.Broker{History: map[string][]broker.HistoricalDataPoint{
				"SPY":  bench,
				"AAPL": bars(200, 201, 202), // only 2 returns
			}},
		},
		{
			name: "ticker history missing entirely",
			b:    &mock.Broker{History: map[string][]broker.HistoricalDataPoint{"SPY": bench}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEstimator(tt.b, Config{Benchmark: "SPY"}, quietLogger())
			betas := e.EstimateAll(context.Background(), []string{"AAPL"})
			if betas["AAPL"] != 1.0 {
				t.Errorf("beta = %v, want neutral 1.0", betas["AAPL"])
			}
		})
	}
}

func TestNewEstimatorDefaults(t *testing.T) {
	e := NewEstimator(&mock.Broker{}, Config{}, quietLogger())
	if e.cfg.Benchmark != "SPY" {
		t.Errorf("benchmark default = %q, want SPY", e.cfg.Benchmark)
	}
	if e.cfg.LookbackDays != 180 {
		t.Errorf("lookback default = %d, want 180", e.cfg.LookbackDays)
	}
}
