// Package campaign reconstructs PMCC campaigns from raw account data: it
// classifies open positions into core legs and short legs, groups them per
// underlying, and attributes historical closed trades to each campaign's
// realized income.
package campaign

import (
	"time"
)

// Classification tags what role an open position plays in a campaign.
type Classification int

const (
	// Ignore marks positions that belong to no campaign: low-delta longs,
	// short-dated longs, stock holdings, shorts with no core position.
	Ignore Classification = iota
	// Core marks a long, high-delta, long-dated call (a LEAPS stock
	// surrogate).
	Core
	// Short marks a short leg sold against an existing campaign.
	Short
)

// Config holds the classification and attribution thresholds. Values are
// strict lower bounds: a position exactly at a threshold does not qualify.
type Config struct {
	// CoreDeltaMin is the absolute delta a long call must exceed to count
	// as a core leg.
	CoreDeltaMin float64
	// CoreDTEMin is the days-to-expiration a long call must exceed to
	// count as a core leg.
	CoreDTEMin int
	// StrikeTolerance is the distance within which a closed trade's strike
	// is considered the same as a core-leg strike (a disposal or roll of
	// the core, not income).
	StrikeTolerance float64
}

// DefaultConfig matches the thresholds the strategy was run with.
func DefaultConfig() Config {
	return Config{
		CoreDeltaMin:    0.60,
		CoreDTEMin:      180,
		StrikeTolerance: 0.5,
	}
}

// placeholderDate substitutes for unparsable core-leg acquisition dates.
var placeholderDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// CoreLeg is a snapshot of one long-dated deep-ITM call in a campaign.
type CoreLeg struct {
	Acquired    time.Time `json:"acquired"`
	Expiration  string    `json:"expiration"`
	Strike      float64   `json:"strike"`
	Quantity    int       `json:"quantity"`
	CostBasis   float64   `json:"cost_basis"`
	MarketValue float64   `json:"market_value"`
}

// ActiveShort is the currently open short call sold against a campaign.
// At most one per campaign; when several shorts exist for one underlying
// the last one scanned wins.
type ActiveShort struct {
	Symbol     string  `json:"symbol"`
	Strike     float64 `json:"strike"`
	Quantity   int     `json:"quantity"` // positive count of contracts
	OpenPrice  float64 `json:"open_price"`
	LastPrice  float64 `json:"last_price"`
	Expiration string  `json:"expiration"`
}

// ClosedTrade is one historical short sale attributed to a campaign's
// realized income.
type ClosedTrade struct {
	CloseDate   time.Time `json:"close_date"`
	Strike      float64   `json:"strike"`
	GainLoss    float64   `json:"gain_loss"`
	DaysInTrade int       `json:"days_in_trade"`
}

// Campaign aggregates the core legs, realized income, and active short for
// one underlying. Rebuilt from scratch on every analysis run.
type Campaign struct {
	Underlying  string        `json:"underlying"`
	Spot        float64       `json:"spot"`
	Start       time.Time     `json:"start"`
	CoreLegs    []CoreLeg     `json:"core_legs"`
	CoreStrikes []float64     `json:"core_strikes"`
	Realized    float64       `json:"realized"`
	Closed      []ClosedTrade `json:"closed"`
	Short       *ActiveShort  `json:"short,omitempty"`
}

// Book is the set of campaigns for one analysis run, keyed by underlying.
// Iteration order is the order underlyings were first seen while scanning
// positions.
type Book struct {
	byUnderlying map[string]*Campaign
	order        []string
}

// NewBook returns an empty Book.
func NewBook() *Book {
	return &Book{byUnderlying: make(map[string]*Campaign)}
}

// Get returns the campaign for an underlying, or nil.
func (b *Book) Get(underlying string) *Campaign {
	return b.byUnderlying[underlying]
}

// Has reports whether a campaign exists for the underlying.
func (b *Book) Has(underlying string) bool {
	_, ok := b.byUnderlying[underlying]
	return ok
}

// Len returns the number of campaigns.
func (b *Book) Len() int { return len(b.order) }

// Campaigns returns every campaign in first-seen order.
func (b *Book) Campaigns() []*Campaign {
	out := make([]*Campaign, 0, len(b.order))
	for _, u := range b.order {
		out = append(out, b.byUnderlying[u])
	}
	return out
}

// getOrCreate returns the campaign for an underlying, creating it on first
// sight and recording display order.
func (b *Book) getOrCreate(underlying string, spot float64) *Campaign {
	if c, ok := b.byUnderlying[underlying]; ok {
		return c
	}
	c := &Campaign{Underlying: underlying, Spot: spot}
	b.byUnderlying[underlying] = c
	b.order = append(b.order, underlying)
	return c
}

// parseDay parses the leading YYYY-MM-DD of a broker date string, which may
// carry a time suffix ("2024-01-02T00:00:00.000Z").
func parseDay(s string) (time.Time, bool) {
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DaysUntil returns whole days from now until the YYYY-MM-DD expiration,
// 0 when the date is missing, unparsable, or already past.
func DaysUntil(expiration string, now time.Time) int {
	exp, ok := parseDay(expiration)
	if !ok {
		return 0
	}
	days := int(exp.Sub(now.UTC().Truncate(24*time.Hour)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
