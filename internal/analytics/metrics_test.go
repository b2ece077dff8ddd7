package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/eddiefleurent/pmcc_tracker/internal/broker"
	"github.com/eddiefleurent/pmcc_tracker/internal/campaign"
)

var testNow = time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestComputeCampaign(t *testing.T) {
	c := &campaign.Campaign{
		Underlying: "AAPL",
		CoreLegs: []campaign.CoreLeg{
			{CostBasis: 5000, MarketValue: 5200},
		},
		Realized: 450,
	}

	m := ComputeCampaign(c)

	if m.TotalCost != 5000 {
		t.Errorf("total cost = %v, want 5000", m.TotalCost)
	}
	if m.TotalValue != 5200 {
		t.Errorf("total value = %v, want 5200", m.TotalValue)
	}
	// (5200-5000) + 450 = 650; 650/5000 = 13%.
	if !almostEqual(m.NetIncome, 650) {
		t.Errorf("net income = %v, want 650", m.NetIncome)
	}
	if !almostEqual(m.ReturnOnCost, 13.0) {
		t.Errorf("return on cost = %v, want 13.0", m.ReturnOnCost)
	}
}

func TestComputeCampaignZeroCost(t *testing.T) {
	c := &campaign.Campaign{Underlying: "AAPL", Realized: 100}
	m := ComputeCampaign(c)
	if m.ReturnOnCost != 0 {
		t.Errorf("return on cost with zero cost basis = %v, want 0", m.ReturnOnCost)
	}
}

func TestComputeShort(t *testing.T) {
	tests := []struct {
		name          string
		short         campaign.ActiveShort
		spot          float64
		wantIntrinsic float64
		wantExtrinsic float64
		wantPLJuice   float64
		wantPLTotal   float64
		wantRoll      bool
	}{
		{
			name: "OTM short with decayed juice",
			short: campaign.ActiveShort{
				Strike: 110, Quantity: 1, OpenPrice: 2.00, LastPrice: 0.10,
				Expiration: "2026-01-30",
			},
			spot:          105,
			wantIntrinsic: 0,
			wantExtrinsic: 0.10,
			wantPLJuice:   190, // (2.00-0.10)*100
			wantPLTotal:   190,
			wantRoll:      true,
		},
		{
			name: "ITM short splits intrinsic and extrinsic",
			short: campaign.ActiveShort{
				Strike: 100, Quantity: 1, OpenPrice: 2.00, LastPrice: 6.50,
				Expiration: "2026-01-30",
			},
			spot:          105,
			wantIntrinsic: 5,
			wantExtrinsic: 1.50,
			wantPLJuice:   50,   // (2.00-1.50)*100
			wantPLTotal:   -450, // (2.00-6.50)*100
			wantRoll:      false,
		},
		{
			name: "multiple contracts scale linearly",
			short: campaign.ActiveShort{
				Strike: 110, Quantity: 3, OpenPrice: 1.50, LastPrice: 0.50,
				Expiration: "2026-01-30",
			},
			spot:          105,
			wantIntrinsic: 0,
			wantExtrinsic: 0.50,
			wantPLJuice:   300,
			wantPLTotal:   300,
			wantRoll:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ComputeShort(&tt.short, tt.spot, testNow, DefaultRollAlertExtrinsic)
			if !almostEqual(m.Intrinsic, tt.wantIntrinsic) {
				t.Errorf("intrinsic = %v, want %v", m.Intrinsic, tt.wantIntrinsic)
			}
			if !almostEqual(m.Extrinsic, tt.wantExtrinsic) {
				t.Errorf("extrinsic = %v, want %v", m.Extrinsic, tt.wantExtrinsic)
			}
			if !almostEqual(m.PLJuice, tt.wantPLJuice) {
				t.Errorf("pl_juice = %v, want %v", m.PLJuice, tt.wantPLJuice)
			}
			if !almostEqual(m.PLTotal, tt.wantPLTotal) {
				t.Errorf("pl_total = %v, want %v", m.PLTotal, tt.wantPLTotal)
			}
			if m.NeedsRoll != tt.wantRoll {
				t.Errorf("needs_roll = %v, want %v", m.NeedsRoll, tt.wantRoll)
			}
			if m.DTE != 15 {
				t.Errorf("dte = %d, want 15", m.DTE)
			}
		})
	}
}

func TestNeedsRollBoundary(t *testing.T) {
	if NeedsRoll(0.20, 0.20) {
		t.Error("extrinsic exactly at threshold must not trigger the roll alert")
	}
	if !NeedsRoll(0.19, 0.20) {
		t.Error("extrinsic below threshold must trigger the roll alert")
	}
}

func TestComputeExposure(t *testing.T) {
	positions := []broker.PositionItem{
		{Symbol: "AAPL261218C00150000", Quantity: 1},  // long call
		{Symbol: "AAPL260220C00210000", Quantity: -1}, // short call
		{Symbol: "SPY", Quantity: 100},                // stock, no greeks
	}
	quotes := map[string]broker.QuoteItem{
		"AAPL261218C00150000": {
			Symbol: "AAPL261218C00150000", Type: "option",
			Greeks: &broker.Greeks{Delta: 0.85, Theta: -0.02},
		},
		"AAPL260220C00210000": {
			Symbol: "AAPL260220C00210000", Type: "option",
			Greeks: &broker.Greeks{Delta: 0.25, Theta: -0.05},
		},
		"AAPL": {Symbol: "AAPL", Type: "stock", Last: 200},
		"SPY":  {Symbol: "SPY", Type: "stock", Last: 450},
	}
	betas := map[string]float64{"AAPL": 1.2, "SPY": 1.0}

	exp := ComputeExposure(positions, quotes, betas, 450, 100000)

	// 0.85*100 - 0.25*100 + 100 = 160
	if !almostEqual(exp.NetDelta, 160) {
		t.Errorf("net delta = %v, want 160", exp.NetDelta)
	}
	// -0.02*100 + 0.05*100 + 0 = 3 per day
	if !almostEqual(exp.DailyTheta, 3) {
		t.Errorf("daily theta = %v, want 3", exp.DailyTheta)
	}
	// (85*200*1.2 - 25*200*1.2 + 100*450*1.0) / 450 = (20400-6000+45000)/450 = 132
	if !almostEqual(exp.BetaWeighted, 132) {
		t.Errorf("beta weighted = %v, want 132", exp.BetaWeighted)
	}
	// (|85*200| + |-25*200| + |100*450|) / 100000 = (17000+5000+45000)/100000 = 0.67
	if !almostEqual(exp.Leverage, 0.67) {
		t.Errorf("leverage = %v, want 0.67", exp.Leverage)
	}
}

func TestComputeExposureGuards(t *testing.T) {
	positions := []broker.PositionItem{{Symbol: "SPY", Quantity: 100}}
	quotes := map[string]broker.QuoteItem{"SPY": {Symbol: "SPY", Last: 450}}

	exp := ComputeExposure(positions, quotes, nil, 0, 0)
	if exp.BetaWeighted != 0 {
		t.Errorf("beta weighted with zero benchmark price = %v, want 0", exp.BetaWeighted)
	}
	if exp.Leverage != 0 {
		t.Errorf("leverage with zero net liquidity = %v, want 0", exp.Leverage)
	}
}
