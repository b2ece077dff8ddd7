package campaign

import (
	"math"

	"github.com/eddiefleurent/pmcc_tracker/internal/broker"
	"github.com/eddiefleurent/pmcc_tracker/internal/occ"
)

// Attribute assigns historical closed trades to campaign realized income.
// A trade qualifies only when its decoded underlying has a campaign, it is
// a call, both its dates parse, it closed on or after the campaign start,
// and its strike is not within StrikeTolerance of any core-leg strike
// (those are disposals or rolls of the core, not income).
//
// Each call recomputes every campaign's ledger from scratch, so attribution
// is a pure function of (book, trades): running it twice never double
// counts.
func Attribute(book *Book, trades []broker.ClosedPosition, cfg Config) {
	for _, c := range book.Campaigns() {
		c.Realized = 0
		c.Closed = nil
	}

	for _, trade := range trades {
		underlying, kind, strike := occ.Decode(trade.Symbol)
		if kind != occ.Call {
			continue
		}
		c := book.Get(underlying)
		if c == nil {
			continue
		}

		closed, ok := parseDay(trade.CloseDate)
		if !ok {
			continue
		}
		opened, ok := parseDay(trade.OpenDate)
		if !ok {
			continue
		}
		if closed.Before(c.Start) {
			continue
		}
		if matchesCoreStrike(c.CoreStrikes, strike, cfg.StrikeTolerance) {
			continue
		}

		c.Realized += trade.GainLoss
		c.Closed = append(c.Closed, ClosedTrade{
			CloseDate:   closed,
			Strike:      strike,
			GainLoss:    trade.GainLoss,
			DaysInTrade: int(closed.Sub(opened).Hours() / 24),
		})
	}
}

func matchesCoreStrike(coreStrikes []float64, strike, tolerance float64) bool {
	for _, cs := range coreStrikes {
		if math.Abs(strike-cs) < tolerance {
			return true
		}
	}
	return false
}
