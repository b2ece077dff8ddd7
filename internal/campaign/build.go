package campaign

import (
	"math"
	"time"

	"github.com/eddiefleurent/pmcc_tracker/internal/broker"
	"github.com/eddiefleurent/pmcc_tracker/internal/occ"
)

const sharesPerContract = 100.0

// Classify decides what role a single open position plays. hasCampaign
// reports whether a campaign already exists for the position's underlying;
// a short with no campaign to belong to is Ignore.
func Classify(pos broker.PositionItem, quote *broker.QuoteItem, hasCampaign bool, now time.Time, cfg Config) Classification {
	switch {
	case pos.Quantity > 0:
		if quote == nil || quote.Greeks == nil {
			return Ignore
		}
		if math.Abs(quote.Greeks.Delta) <= cfg.CoreDeltaMin {
			return Ignore
		}
		if DaysUntil(quote.ExpirationDate, now) <= cfg.CoreDTEMin {
			return Ignore
		}
		return Core
	case pos.Quantity < 0 && hasCampaign:
		return Short
	default:
		return Ignore
	}
}

// Build scans open positions against their quotes and produces the campaign
// book for this run: one campaign per underlying with at least one core
// leg, each with its active short attached if one exists.
//
// Core legs keep position scan order. The campaign start date is the
// earliest core-leg acquisition date; unparsable acquisition dates fall
// back to a fixed placeholder rather than failing the build.
func Build(positions []broker.PositionItem, quotes map[string]broker.QuoteItem, now time.Time, cfg Config) *Book {
	book := NewBook()

	// Seed campaigns from core legs.
	for _, pos := range positions {
		quote := quoteFor(quotes, pos.Symbol)
		if Classify(pos, quote, false, now, cfg) != Core {
			continue
		}
		underlying := occ.Underlying(pos.Symbol)
		c := book.getOrCreate(underlying, spotOf(quotes, underlying))

		acquired, ok := parseDay(pos.DateAcquired)
		if !ok {
			acquired = placeholderDate
		}
		leg := CoreLeg{
			Acquired:    acquired,
			Expiration:  quote.ExpirationDate,
			Strike:      quote.Strike,
			Quantity:    int(pos.Quantity),
			CostBasis:   math.Abs(pos.CostBasis),
			MarketValue: pos.Quantity * quote.Last * sharesPerContract,
		}
		c.CoreLegs = append(c.CoreLegs, leg)
		c.CoreStrikes = append(c.CoreStrikes, quote.Strike)
		if c.Start.IsZero() || acquired.Before(c.Start) {
			c.Start = acquired
		}
	}

	// Attach active shorts. Same classifier, same thresholds; a second
	// short for one underlying replaces the first (last wins).
	for _, pos := range positions {
		underlying := occ.Underlying(pos.Symbol)
		quote := quoteFor(quotes, pos.Symbol)
		if Classify(pos, quote, book.Has(underlying), now, cfg) != Short {
			continue
		}
		c := book.Get(underlying)

		contracts := math.Abs(pos.Quantity)
		var openPrice, lastPrice float64
		var strike float64
		var expiration string
		if contracts > 0 {
			openPrice = math.Abs(pos.CostBasis) / (contracts * sharesPerContract)
		}
		if quote != nil {
			lastPrice = quote.Last
			strike = quote.Strike
			expiration = quote.ExpirationDate
		}
		c.Short = &ActiveShort{
			Symbol:     pos.Symbol,
			Strike:     strike,
			Quantity:   int(contracts),
			OpenPrice:  openPrice,
			LastPrice:  lastPrice,
			Expiration: expiration,
		}
	}

	return book
}

func quoteFor(quotes map[string]broker.QuoteItem, symbol string) *broker.QuoteItem {
	if q, ok := quotes[symbol]; ok {
		return &q
	}
	return nil
}

// spotOf returns the last price of the bare underlying ticker, 0 when no
// quote is available.
func spotOf(quotes map[string]broker.QuoteItem, underlying string) float64 {
	if q, ok := quotes[underlying]; ok {
		return q.Last
	}
	return 0
}
