// Package beta estimates per-underlying beta against a benchmark index
// proxy from aligned daily return series. Estimation failures degrade to a
// neutral beta of 1 rather than failing the analysis run.
package beta

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/eddiefleurent/pmcc_tracker/internal/broker"
)

// minAlignedPoints is the fewest overlapping daily returns needed for a
// covariance estimate worth using.
const minAlignedPoints = 10

// neutralBeta is the fallback when history cannot be fetched or is too thin.
const neutralBeta = 1.0

// Config controls beta estimation.
type Config struct {
	// Benchmark is the index proxy returns are regressed against, e.g. SPY.
	Benchmark string
	// LookbackDays is how far back daily bars are pulled.
	LookbackDays int
	// CashTickers are instruments treated as cash equivalents with beta 0.
	CashTickers []string
}

// Estimator computes betas from broker historical data.
type Estimator struct {
	broker broker.Broker
	logger *logrus.Logger
	cfg    Config
	cash   map[string]struct{}
}

// NewEstimator creates an Estimator.
func NewEstimator(b broker.Broker, cfg Config, logger *logrus.Logger) *Estimator {
	if cfg.Benchmark == "" {
		cfg.Benchmark = "SPY"
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 180
	}
	cash := make(map[string]struct{}, len(cfg.CashTickers))
	for _, t := range cfg.CashTickers {
		cash[t] = struct{}{}
	}
	return &Estimator{broker: b, logger: logger, cfg: cfg, cash: cash}
}

// EstimateAll returns a beta per underlying. The benchmark series is
// fetched once and reused. Every failure mode resolves to a default value,
// never an error.
func (e *Estimator) EstimateAll(ctx context.Context, underlyings []string) map[string]float64 {
	betas := make(map[string]float64, len(underlyings))

	benchReturns := e.dailyReturns(ctx, e.cfg.Benchmark)
	for _, u := range underlyings {
		betas[u] = e.estimate(ctx, u, benchReturns)
	}
	return betas
}

func (e *Estimator) estimate(ctx context.Context, ticker string, benchReturns map[time.Time]float64) float64 {
	if _, ok := e.cash[ticker]; ok {
		return 0
	}
	if ticker == e.cfg.Benchmark {
		return 1.0
	}
	if len(benchReturns) == 0 {
		return neutralBeta
	}

	tickerReturns := e.dailyReturns(ctx, ticker)
	x, y := alignReturns(tickerReturns, benchReturns)
	if len(x) < minAlignedPoints {
		e.logger.WithFields(logrus.Fields{
			"ticker": ticker,
			"points": len(x),
		}).Warn("Insufficient overlapping history, defaulting beta to 1.0")
		return neutralBeta
	}

	variance := stat.Variance(y, nil)
	if variance == 0 {
		return neutralBeta
	}
	return stat.Covariance(x, y, nil) / variance
}

// dailyReturns fetches daily bars and converts them to close-to-close
// returns keyed by bar date. Fetch failures yield an empty series.
func (e *Estimator) dailyReturns(ctx context.Context, ticker string) map[time.Time]float64 {
	end := time.Now()
	start := end.AddDate(0, 0, -e.cfg.LookbackDays)

	bars, err := e.broker.GetHistoricalDataCtx(ctx, ticker, start, end)
	if err != nil {
		e.logger.WithError(err).WithField("ticker", ticker).Warn("Historical data fetch failed")
		return nil
	}

	returns := make(map[time.Time]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		returns[bars[i].Date] = (bars[i].Close - prev) / prev
	}
	return returns
}

// alignReturns pairs the two return series on shared dates, ordered by
// date, and returns parallel slices (ticker, benchmark).
func alignReturns(ticker, bench map[time.Time]float64) (x, y []float64) {
	dates := make([]time.Time, 0, len(ticker))
	for d := range ticker {
		if _, ok := bench[d]; ok {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	x = make([]float64, 0, len(dates))
	y = make([]float64, 0, len(dates))
	for _, d := range dates {
		x = append(x, ticker[d])
		y = append(y, bench[d])
	}
	return x, y
}
