// Package occ decodes OCC/OSI-style option contract symbols.
// e.g. "AMD260618C00090000" -> underlying AMD, call, strike 90.00.
package occ

import "strings"

// Kind classifies what a decoded symbol represents.
type Kind string

const (
	// Call is a call option contract.
	Call Kind = "CALL"
	// Put is a put option contract.
	Put Kind = "PUT"
	// Stock is a bare equity ticker (symbol too short to be a contract).
	Stock Kind = "STOCK"
	// Unknown is a symbol that is long enough to be a contract but does
	// not match the OCC encoding.
	Unknown Kind = "UNKNOWN"
)

// minContractLen is the shortest valid OCC symbol: 1-char root + 6-digit
// date + C/P flag + 8-digit strike (strike * 1000, zero padded).
const minContractLen = 15

// Decode parses an OCC option symbol into its underlying ticker, kind, and
// strike price. Symbols shorter than a valid contract decode as Stock with
// strike 0; malformed contract-length symbols decode as Unknown. Decode is
// total: it never returns an error for any input.
func Decode(symbol string) (underlying string, kind Kind, strike float64) {
	if len(symbol) < minContractLen {
		return symbol, Stock, 0
	}

	// Leading run of letters is the root.
	i := 0
	for i < len(symbol) && isUpper(symbol[i]) {
		i++
	}
	if i == 0 {
		return symbol, Unknown, 0
	}

	rest := symbol[i:]
	// YYMMDD + C/P + 8-digit strike, nothing after.
	if len(rest) != 15 {
		return symbol, Unknown, 0
	}
	if !allDigits(rest[:6]) || !allDigits(rest[7:]) {
		return symbol, Unknown, 0
	}

	switch rest[6] {
	case 'C':
		kind = Call
	case 'P':
		kind = Put
	default:
		return symbol, Unknown, 0
	}

	// Strike is fixed-point with 3 implied decimal places.
	var n int64
	for j := 7; j < 15; j++ {
		n = n*10 + int64(rest[j]-'0')
	}
	return symbol[:i], kind, float64(n) / 1000
}

// Underlying extracts the leading run of uppercase letters from a symbol.
// Symbols shorter than 6 characters are bare tickers and returned unchanged.
func Underlying(symbol string) string {
	if len(symbol) < 6 {
		return symbol
	}
	i := 0
	for i < len(symbol) && isUpper(symbol[i]) {
		i++
	}
	if i == 0 {
		return symbol
	}
	return symbol[:i]
}

// Encode builds the OCC symbol for an option contract. The inverse of
// Decode for strikes representable with 3 decimal places.
func Encode(underlying, yymmdd string, kind Kind, strike float64) string {
	flag := "C"
	if kind == Put {
		flag = "P"
	}
	n := int64(strike*1000 + 0.5)
	var b strings.Builder
	b.WriteString(underlying)
	b.WriteString(yymmdd)
	b.WriteString(flag)
	digits := make([]byte, 8)
	for j := 7; j >= 0; j-- {
		digits[j] = byte('0' + n%10)
		n /= 10
	}
	b.Write(digits)
	return b.String()
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
