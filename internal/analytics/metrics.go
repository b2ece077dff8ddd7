// Package analytics derives the display numbers from a campaign book:
// per-campaign profitability, the active short's value decomposition, and
// portfolio-level risk exposure.
package analytics

import (
	"math"
	"time"

	"github.com/eddiefleurent/pmcc_tracker/internal/broker"
	"github.com/eddiefleurent/pmcc_tracker/internal/campaign"
	"github.com/eddiefleurent/pmcc_tracker/internal/occ"
)

const contractMultiplier = 100.0

// DefaultRollAlertExtrinsic is the extrinsic value, in currency units per
// share, below which an active short is worth closing or rolling.
const DefaultRollAlertExtrinsic = 0.20

// CampaignMetrics summarizes one campaign's profitability.
type CampaignMetrics struct {
	TotalCost    float64 `json:"total_cost"`
	TotalValue   float64 `json:"total_value"`
	Realized     float64 `json:"realized"`
	NetIncome    float64 `json:"net_income"`
	ReturnOnCost float64 `json:"return_on_cost"` // percent
}

// ComputeCampaign derives cost, value, and income figures for a campaign.
// A campaign with zero total cost reports zero return rather than dividing
// by zero.
func ComputeCampaign(c *campaign.Campaign) CampaignMetrics {
	var m CampaignMetrics
	for _, leg := range c.CoreLegs {
		m.TotalCost += leg.CostBasis
		m.TotalValue += leg.MarketValue
	}
	m.Realized = c.Realized
	m.NetIncome = (m.TotalValue - m.TotalCost) + m.Realized
	if m.TotalCost > 0 {
		m.ReturnOnCost = m.NetIncome / m.TotalCost * 100
	}
	return m
}

// ShortMetrics decomposes the active short's value and profit.
type ShortMetrics struct {
	Intrinsic float64 `json:"intrinsic"`
	Extrinsic float64 `json:"extrinsic"`
	PLJuice   float64 `json:"pl_juice"`
	PLTotal   float64 `json:"pl_total"`
	DTE       int     `json:"dte"`
	NeedsRoll bool    `json:"needs_roll"`
}

// ComputeShort derives the intrinsic/extrinsic split and both P/L figures
// for an active short against the given spot price. rollAlert is the
// extrinsic threshold below which the roll flag is raised.
func ComputeShort(short *campaign.ActiveShort, spot float64, now time.Time, rollAlert float64) ShortMetrics {
	intrinsic := math.Max(0, spot-short.Strike)
	extrinsic := short.LastPrice - intrinsic
	qty := float64(short.Quantity)
	return ShortMetrics{
		Intrinsic: intrinsic,
		Extrinsic: extrinsic,
		PLJuice:   (short.OpenPrice - extrinsic) * contractMultiplier * qty,
		PLTotal:   (short.OpenPrice - short.LastPrice) * contractMultiplier * qty,
		DTE:       campaign.DaysUntil(short.Expiration, now),
		NeedsRoll: NeedsRoll(extrinsic, rollAlert),
	}
}

// NeedsRoll reports whether an active short's remaining extrinsic value has
// decayed below the alert threshold.
func NeedsRoll(extrinsic, threshold float64) bool {
	return extrinsic < threshold
}

// Exposure aggregates directional and time risk across every position in
// the account, not just campaign legs.
type Exposure struct {
	NetDelta     float64 `json:"net_delta"`     // share-equivalent delta
	DailyTheta   float64 `json:"daily_theta"`   // dollars per day
	BetaWeighted float64 `json:"beta_weighted"` // benchmark share equivalents
	Leverage     float64 `json:"leverage"`      // gross delta-dollars / net liq
}

// ComputeExposure sums per-position delta, theta, beta-weighted delta, and
// gross leverage. Options carry the 100x contract multiplier; equities
// without greeks are treated as delta 1. Underlyings missing from the beta
// map default to beta 1.
func ComputeExposure(
	positions []broker.PositionItem,
	quotes map[string]broker.QuoteItem,
	betas map[string]float64,
	benchmarkPrice float64,
	netLiquidity float64,
) Exposure {
	var exp Exposure
	var grossDeltaDollars float64

	for _, pos := range positions {
		underlying := occ.Underlying(pos.Symbol)

		delta := 1.0
		theta := 0.0
		multiplier := 1.0
		if q, ok := quotes[pos.Symbol]; ok && q.Greeks != nil {
			delta = q.Greeks.Delta
			theta = q.Greeks.Theta
			multiplier = contractMultiplier
		}

		deltaShares := pos.Quantity * delta * multiplier
		exp.NetDelta += deltaShares
		exp.DailyTheta += pos.Quantity * theta * multiplier

		spot := 0.0
		if uq, ok := quotes[underlying]; ok {
			spot = uq.Last
		}

		beta := 1.0
		if b, ok := betas[underlying]; ok {
			beta = b
		}

		if benchmarkPrice > 0 {
			exp.BetaWeighted += deltaShares * spot * beta / benchmarkPrice
		}
		grossDeltaDollars += math.Abs(deltaShares * spot)
	}

	if netLiquidity > 0 {
		exp.Leverage = grossDeltaDollars / netLiquidity
	}
	return exp
}
