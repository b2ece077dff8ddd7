package occ

import (
	"math"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		symbol     string
		wantUnder  string
		wantKind   Kind
		wantStrike float64
	}{
		{
			name:       "standard call",
			symbol:     "AMD260618C00090000",
			wantUnder:  "AMD",
			wantKind:   Call,
			wantStrike: 90,
		},
		{
			name:       "standard put",
			symbol:     "SPY241220P00450000",
			wantUnder:  "SPY",
			wantKind:   Put,
			wantStrike: 450,
		},
		{
			name:       "fractional strike",
			symbol:     "F260116C00012500",
			wantUnder:  "F",
			wantKind:   Call,
			wantStrike: 12.5,
		},
		{
			name:       "three decimal places",
			symbol:     "XYZ250919C00123457",
			wantUnder:  "XYZ",
			wantKind:   Call,
			wantStrike: 123.457,
		},
		{
			name:       "bare ticker",
			symbol:     "AMD",
			wantUnder:  "AMD",
			wantKind:   Stock,
			wantStrike: 0,
		},
		{
			name:       "empty",
			symbol:     "",
			wantUnder:  "",
			wantKind:   Stock,
			wantStrike: 0,
		},
		{
			name:       "short option-ish string is stock",
			symbol:     "AB123456C",
			wantUnder:  "AB123456C",
			wantKind:   Stock,
			wantStrike: 0,
		},
		{
			name:       "bad flag letter",
			symbol:     "AMD260618X00090000",
			wantUnder:  "AMD260618X00090000",
			wantKind:   Unknown,
			wantStrike: 0,
		},
		{
			name:       "letters in strike",
			symbol:     "AMD260618C0009000Z",
			wantUnder:  "AMD260618C0009000Z",
			wantKind:   Unknown,
			wantStrike: 0,
		},
		{
			name:       "no leading letters",
			symbol:     "260618C000900001234",
			wantUnder:  "260618C000900001234",
			wantKind:   Unknown,
			wantStrike: 0,
		},
		{
			name:       "trailing garbage",
			symbol:     "AMD260618C00090000X",
			wantUnder:  "AMD260618C00090000X",
			wantKind:   Unknown,
			wantStrike: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			under, kind, strike := Decode(tt.symbol)
			if under != tt.wantUnder || kind != tt.wantKind {
				t.Fatalf("Decode(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.symbol, under, kind, strike, tt.wantUnder, tt.wantKind, tt.wantStrike)
			}
			if math.Abs(strike-tt.wantStrike) > 1e-9 {
				t.Fatalf("Decode(%q) strike = %v, want %v", tt.symbol, strike, tt.wantStrike)
			}
		})
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	roots := []string{"A", "GM", "AMD", "GOOG", "GOOGL"}
	strikes := []float64{0.5, 12.5, 90, 123.457, 455, 9999.999}
	for _, root := range roots {
		for _, strike := range strikes {
			sym := Encode(root, "260618", Call, strike)
			under, kind, got := Decode(sym)
			if under != root || kind != Call {
				t.Fatalf("round trip %q: got (%q, %q)", sym, under, kind)
			}
			if math.Abs(got-strike) > 1e-9 {
				t.Fatalf("round trip %q: strike %v, want %v", sym, got, strike)
			}
		}
	}
}

func TestUnderlying(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"AMD260618C00090000", "AMD"},
		{"SPY241220P00450000", "SPY"},
		{"AMD", "AMD"},
		{"GOOGL", "GOOGL"},
		{"BRK.B", "BRK.B"},
		{"123456", "123456"},
	}
	for _, tt := range tests {
		if got := Underlying(tt.symbol); got != tt.want {
			t.Errorf("Underlying(%q) = %q, want %q", tt.symbol, got, tt.want)
		}
	}
}
