// Package engine runs one complete analysis pass: fetch account and market
// data, rebuild the campaign book, attribute closed trades, and derive all
// metrics. Every run produces a fresh snapshot; nothing is carried over
// between runs.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/pmcc_tracker/internal/analytics"
	"github.com/eddiefleurent/pmcc_tracker/internal/broker"
	"github.com/eddiefleurent/pmcc_tracker/internal/campaign"
	"github.com/eddiefleurent/pmcc_tracker/internal/occ"
)

// BetaSource supplies a beta per underlying ticker.
type BetaSource interface {
	EstimateAll(ctx context.Context, underlyings []string) map[string]float64
}

// Config holds the analysis thresholds.
type Config struct {
	Campaign           campaign.Config
	RollAlertExtrinsic float64
	Benchmark          string
}

// DefaultConfig returns the thresholds the strategy was run with.
func DefaultConfig() Config {
	return Config{
		Campaign:           campaign.DefaultConfig(),
		RollAlertExtrinsic: analytics.DefaultRollAlertExtrinsic,
		Benchmark:          "SPY",
	}
}

// Analyzer performs analysis runs against a broker.
type Analyzer struct {
	broker broker.Broker
	betas  BetaSource
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time
}

// NewAnalyzer creates an Analyzer. betas may be nil, in which case every
// underlying gets a neutral beta of 1.
func NewAnalyzer(b broker.Broker, betas BetaSource, cfg Config, logger *logrus.Logger) *Analyzer {
	return &Analyzer{
		broker: b,
		betas:  betas,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// CampaignResult pairs a campaign with its derived metrics.
type CampaignResult struct {
	Campaign *campaign.Campaign        `json:"campaign"`
	Metrics  analytics.CampaignMetrics `json:"metrics"`
	Short    *analytics.ShortMetrics   `json:"short,omitempty"`
}

// Snapshot is the complete result of one analysis run.
type Snapshot struct {
	RunID        string             `json:"run_id"`
	Timestamp    time.Time          `json:"timestamp"`
	AccountID    string             `json:"account_id"`
	NetLiquidity float64            `json:"net_liquidity"`
	Campaigns    []CampaignResult   `json:"campaigns"`
	Exposure     analytics.Exposure `json:"exposure"`
}

// Run executes one analysis pass. A failure to establish account identity
// or fetch any of the primary data sets aborts the run with an error;
// per-record problems inside the data degrade to defaults instead.
func (a *Analyzer) Run(ctx context.Context) (*Snapshot, error) {
	runID := uuid.NewString()
	now := a.now()
	log := a.logger.WithField("run_id", runID)

	accountID, err := a.broker.GetAccountIDCtx(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving account: %w", err)
	}

	// The remaining account fetches are independent read-only queries, so
	// they run concurrently.
	var (
		balances  *broker.BalanceResponse
		positions []broker.PositionItem
		trades    []broker.ClosedPosition
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balances, err = a.broker.GetBalancesCtx(gctx, accountID)
		if err != nil {
			return fmt.Errorf("fetching balances: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		positions, err = a.broker.GetPositionsCtx(gctx, accountID)
		if err != nil {
			return fmt.Errorf("fetching positions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		trades, err = a.broker.GetGainLossCtx(gctx, accountID)
		if err != nil {
			return fmt.Errorf("fetching gain/loss history: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	quotes, err := a.broker.GetQuotesCtx(ctx, quoteSymbols(positions, a.cfg.Benchmark))
	if err != nil {
		return nil, fmt.Errorf("fetching quotes: %w", err)
	}

	book := campaign.Build(positions, quotes, now, a.cfg.Campaign)
	campaign.Attribute(book, trades, a.cfg.Campaign)

	underlyings := underlyingsOf(positions)
	betas := map[string]float64{}
	if a.betas != nil {
		betas = a.betas.EstimateAll(ctx, underlyings)
	}

	benchmarkPrice := 0.0
	if q, ok := quotes[a.cfg.Benchmark]; ok {
		benchmarkPrice = q.Last
	}
	netLiq := balances.Balances.TotalEquity

	snapshot := &Snapshot{
		RunID:        runID,
		Timestamp:    now,
		AccountID:    accountID,
		NetLiquidity: netLiq,
		Exposure:     analytics.ComputeExposure(positions, quotes, betas, benchmarkPrice, netLiq),
	}

	for _, c := range book.Campaigns() {
		result := CampaignResult{
			Campaign: c,
			Metrics:  analytics.ComputeCampaign(c),
		}
		if c.Short != nil {
			sm := analytics.ComputeShort(c.Short, c.Spot, now, a.cfg.RollAlertExtrinsic)
			result.Short = &sm
			if sm.NeedsRoll {
				log.WithFields(logrus.Fields{
					"underlying": c.Underlying,
					"strike":     c.Short.Strike,
					"extrinsic":  sm.Extrinsic,
				}).Warn("Active short extrinsic below roll threshold")
			}
		}
		snapshot.Campaigns = append(snapshot.Campaigns, result)
	}

	log.WithFields(logrus.Fields{
		"campaigns": len(snapshot.Campaigns),
		"positions": len(positions),
		"net_liq":   netLiq,
	}).Info("Analysis run complete")

	return snapshot, nil
}

// quoteSymbols collects every position symbol plus its bare underlying (for
// spot prices) plus the benchmark.
func quoteSymbols(positions []broker.PositionItem, benchmark string) []string {
	symbols := make([]string, 0, len(positions)*2+1)
	for _, p := range positions {
		symbols = append(symbols, p.Symbol, occ.Underlying(p.Symbol))
	}
	if benchmark != "" {
		symbols = append(symbols, benchmark)
	}
	return symbols
}

// underlyingsOf returns the distinct underlyings across positions, in scan
// order.
func underlyingsOf(positions []broker.PositionItem) []string {
	seen := make(map[string]struct{}, len(positions))
	out := make([]string, 0, len(positions))
	for _, p := range positions {
		u := occ.Underlying(p.Symbol)
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
