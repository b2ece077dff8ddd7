// Package broker provides the Tradier API client used to pull account and
// market data for campaign analysis. All operations are read-only.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierAPI is a client for the Tradier brokerage REST API.
type TradierAPI struct {
	client  *http.Client
	apiKey  string
	baseURL string
	sandbox bool
	timeout time.Duration
}

// NewTradierAPI creates a new TradierAPI client. An empty baseURL selects
// the production or sandbox endpoint based on the sandbox flag.
func NewTradierAPI(apiKey string, sandbox bool, baseURL string) *TradierAPI {
	if baseURL == "" {
		if sandbox {
			baseURL = "https://sandbox.tradier.com/v1"
		} else {
			baseURL = "https://api.tradier.com/v1"
		}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	const defaultTimeout = 10 * time.Second
	return &TradierAPI{
		apiKey:  apiKey,
		baseURL: baseURL,
		sandbox: sandbox,
		client:  &http.Client{Timeout: defaultTimeout},
		timeout: defaultTimeout,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (t *TradierAPI) WithHTTPClient(c *http.Client) *TradierAPI {
	if c != nil {
		t.client = c
	}
	return t
}

// WithTimeout sets the HTTP client timeout duration.
func (t *TradierAPI) WithTimeout(timeout time.Duration) *TradierAPI {
	t.timeout = timeout
	if t.client != nil {
		t.client.Timeout = timeout
	}
	return t
}

// ============ API Response Structures ============

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// ProfileResponse represents the user profile response from the Tradier API.
type ProfileResponse struct {
	Profile struct {
		ID      string                        `json:"id"`
		Name    string                        `json:"name"`
		Account singleOrArray[ProfileAccount] `json:"account"`
	} `json:"profile"`
}

// ProfileAccount is one account listed on a user profile.
type ProfileAccount struct {
	AccountNumber  string `json:"account_number"`
	Classification string `json:"classification"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	DateCreated    string `json:"date_created"`
}

// BalanceResponse represents the account balance response from the Tradier API.
type BalanceResponse struct {
	Balances struct {
		AccountNumber    string  `json:"account_number"`
		AccountType      string  `json:"account_type"`
		TotalEquity      float64 `json:"total_equity"`
		TotalCash        float64 `json:"total_cash"`
		MarketValue      float64 `json:"market_value"`
		LongMarketValue  float64 `json:"long_market_value"`
		ShortMarketValue float64 `json:"short_market_value"`
		OptionLongValue  float64 `json:"option_long_value"`
		OptionShortValue float64 `json:"option_short_value"`
		StockLongValue   float64 `json:"stock_long_value"`
		OpenPL           float64 `json:"open_pl"`
		ClosePL          float64 `json:"close_pl"`
	} `json:"balances"`
}

// PositionsResponse represents the positions response from the Tradier API.
type PositionsResponse struct {
	Positions PositionsWrapper `json:"positions"`
}

// PositionsWrapper handles the case where positions can be "null" string or an object
type PositionsWrapper struct {
	Position singleOrArray[PositionItem] `json:"position"`
}

func (pw *PositionsWrapper) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)

	// Handle both bare null and quoted "null" cases
	if bytes.Equal(trimmed, []byte(`null`)) || bytes.Equal(trimmed, []byte(`"null"`)) {
		*pw = PositionsWrapper{}
		return nil
	}

	type normalWrapper PositionsWrapper
	return json.Unmarshal(b, (*normalWrapper)(pw))
}

// PositionItem represents a single open position from the Tradier API.
type PositionItem struct {
	DateAcquired string  `json:"date_acquired"`
	Symbol       string  `json:"symbol"`
	CostBasis    float64 `json:"cost_basis"`
	ID           int     `json:"id"`
	Quantity     float64 `json:"quantity"`
}

// GainLossResponse represents the gain/loss history response from the
// Tradier API.
type GainLossResponse struct {
	GainLoss GainLossWrapper `json:"gainloss"`
}

// GainLossWrapper handles the case where gainloss can be "null" string or an object
type GainLossWrapper struct {
	ClosedPosition singleOrArray[ClosedPosition] `json:"closed_position"`
}

func (gw *GainLossWrapper) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)

	if bytes.Equal(trimmed, []byte(`null`)) || bytes.Equal(trimmed, []byte(`"null"`)) {
		*gw = GainLossWrapper{}
		return nil
	}

	type normalWrapper GainLossWrapper
	return json.Unmarshal(b, (*normalWrapper)(gw))
}

// ClosedPosition represents a single closed trade from the gain/loss history.
type ClosedPosition struct {
	Symbol          string  `json:"symbol"`
	OpenDate        string  `json:"open_date"`
	CloseDate       string  `json:"close_date"`
	Cost            float64 `json:"cost"`
	Proceeds        float64 `json:"proceeds"`
	GainLoss        float64 `json:"gain_loss"`
	GainLossPercent float64 `json:"gain_loss_percent"`
	Quantity        float64 `json:"quantity"`
	Term            int     `json:"term"`
}

// QuotesResponse represents the quotes response from the Tradier API.
type QuotesResponse struct {
	Quotes struct {
		Quote singleOrArray[QuoteItem] `json:"quote"`
	} `json:"quotes"`
}

// QuoteItem represents a single quote item from the Tradier API. Option
// fields (strike, expiration, greeks) are populated only for option
// contracts.
type QuoteItem struct {
	Greeks         *Greeks `json:"greeks,omitempty"`
	Symbol         string  `json:"symbol"`
	Description    string  `json:"description"`
	Type           string  `json:"type"` // stock | option | etf | index
	OptionType     string  `json:"option_type,omitempty"`
	ExpirationDate string  `json:"expiration_date,omitempty"`
	Underlying     string  `json:"underlying,omitempty"`
	Last           float64 `json:"last"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Change         float64 `json:"change"`
	PrevClose      float64 `json:"prevclose"`
	Volume         int64   `json:"volume"`
	Strike         float64 `json:"strike,omitempty"`
}

// Greeks contains option Greeks data from the Tradier API.
type Greeks struct {
	UpdatedAt string  `json:"updated_at"`
	Delta     float64 `json:"delta"`
	Gamma     float64 `json:"gamma"`
	Theta     float64 `json:"theta"`
	Vega      float64 `json:"vega"`
	Rho       float64 `json:"rho"`
	BidIV     float64 `json:"bid_iv"`
	MidIV     float64 `json:"mid_iv"`
	AskIV     float64 `json:"ask_iv"`
	SmvVol    float64 `json:"smv_vol"`
}

// HistoricalDataPoint represents a single daily bar.
type HistoricalDataPoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

type historicalDay struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// HistoricalDataResponse represents the response from the history endpoint.
type HistoricalDataResponse struct {
	History struct {
		Day singleOrArray[historicalDay] `json:"day"`
	} `json:"history"`
}

// ============ API Methods ============

// GetAccountIDCtx looks up the account number from the user profile. When a
// profile lists several accounts the first one is used.
func (t *TradierAPI) GetAccountIDCtx(ctx context.Context) (string, error) {
	endpoint := t.baseURL + "/user/profile"

	var response ProfileResponse
	if err := t.makeRequestCtx(ctx, endpoint, &response); err != nil {
		return "", err
	}

	accounts := response.Profile.Account
	if len(accounts) == 0 {
		return "", fmt.Errorf("no accounts on profile")
	}
	return accounts[0].AccountNumber, nil
}

// GetBalancesCtx retrieves account balance information.
func (t *TradierAPI) GetBalancesCtx(ctx context.Context, accountID string) (*BalanceResponse, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/balances", t.baseURL, accountID)

	var response BalanceResponse
	if err := t.makeRequestCtx(ctx, endpoint, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetPositionsCtx retrieves current open positions for the account.
func (t *TradierAPI) GetPositionsCtx(ctx context.Context, accountID string) ([]PositionItem, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/positions", t.baseURL, accountID)

	var response PositionsResponse
	if err := t.makeRequestCtx(ctx, endpoint, &response); err != nil {
		return nil, err
	}
	return []PositionItem(response.Positions.Position), nil
}

// GetGainLossCtx retrieves the closed-trade history for the account.
func (t *TradierAPI) GetGainLossCtx(ctx context.Context, accountID string) ([]ClosedPosition, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/gainloss", t.baseURL, accountID)

	var response GainLossResponse
	if err := t.makeRequestCtx(ctx, endpoint, &response); err != nil {
		return nil, err
	}
	return []ClosedPosition(response.GainLoss.ClosedPosition), nil
}

// GetQuotesCtx retrieves quotes with greeks for a set of symbols, keyed by
// symbol. Symbols the API does not recognize are absent from the result.
func (t *TradierAPI) GetQuotesCtx(ctx context.Context, symbols []string) (map[string]QuoteItem, error) {
	if len(symbols) == 0 {
		return map[string]QuoteItem{}, nil
	}

	// Dedupe and sort for a stable request URL.
	seen := make(map[string]struct{}, len(symbols))
	unique := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		unique = append(unique, s)
	}
	sort.Strings(unique)

	params := url.Values{}
	params.Set("symbols", strings.Join(unique, ","))
	params.Set("greeks", "true")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	var response QuotesResponse
	if err := t.makeRequestCtx(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	quotes := make(map[string]QuoteItem, len(response.Quotes.Quote))
	for _, q := range response.Quotes.Quote {
		quotes[q.Symbol] = q
	}
	return quotes, nil
}

// GetHistoricalDataCtx retrieves daily bars for a symbol over [start, end].
func (t *TradierAPI) GetHistoricalDataCtx(ctx context.Context, symbol string, start, end time.Time) ([]HistoricalDataPoint, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "daily")
	params.Set("start", start.Format("2006-01-02"))
	params.Set("end", end.Format("2006-01-02"))
	endpoint := t.baseURL + "/markets/history?" + params.Encode()

	var response HistoricalDataResponse
	if err := t.makeRequestCtx(ctx, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
	}

	dataPoints := make([]HistoricalDataPoint, 0, len(response.History.Day))
	for _, day := range response.History.Day {
		date, err := time.Parse("2006-01-02", day.Date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date %s: %w", day.Date, err)
		}
		dataPoints = append(dataPoints, HistoricalDataPoint{
			Date:   date,
			Open:   day.Open,
			High:   day.High,
			Low:    day.Low,
			Close:  day.Close,
			Volume: day.Volume,
		})
	}
	return dataPoints, nil
}

// makeRequestCtx makes a GET request with context support for
// timeout/cancellation and decodes the JSON response.
func (t *TradierAPI) makeRequestCtx(ctx context.Context, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}

	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "pmcc-tracker/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> failed to read error body", endpoint)}
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s (retry-after: %s)", endpoint, string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s", endpoint, string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
