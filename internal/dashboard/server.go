// Package dashboard serves the analysis results over HTTP as JSON. It
// contains no classification or attribution logic; it only reshapes the
// latest snapshot for display.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/pmcc_tracker/internal/engine"
	"github.com/eddiefleurent/pmcc_tracker/internal/storage"
	"github.com/eddiefleurent/pmcc_tracker/internal/util"
)

// RefreshFunc triggers a new analysis run and returns its snapshot.
type RefreshFunc func(ctx context.Context) (*engine.Snapshot, error)

// Config holds server settings.
type Config struct {
	Port      int
	AuthToken string
}

// Server is the HTTP dashboard.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	store     storage.Interface
	refresh   RefreshFunc
	logger    *logrus.Logger
	port      int
	authToken string

	mu     sync.RWMutex
	latest *engine.Snapshot
}

// NewServer creates the dashboard server. refresh may be nil, in which
// case POST /api/refresh is rejected.
func NewServer(cfg Config, store storage.Interface, refresh RefreshFunc, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		refresh:   refresh,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/snapshot", s.handleGetSnapshot)
	s.router.Get("/api/campaigns", s.handleGetCampaigns)
	s.router.Get("/api/campaigns/{underlying}", s.handleGetCampaign)
	s.router.Get("/api/shorts", s.handleGetShorts)
	s.router.Get("/api/exposure", s.handleGetExposure)
	s.router.Get("/api/history", s.handleGetHistory)
	s.router.Post("/api/refresh", s.handleRefresh)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SetSnapshot publishes the result of a completed analysis run.
func (s *Server) SetSnapshot(snap *engine.Snapshot) {
	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()
}

func (s *Server) snapshot() *engine.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, health)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	if snap == nil {
		http.Error(w, "No Data", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, snap)
}

// CampaignView is one campaign flattened for display.
type CampaignView struct {
	Underlying   string            `json:"underlying"`
	Spot         float64           `json:"spot"`
	Start        time.Time         `json:"start"`
	TotalCost    float64           `json:"total_cost"`
	TotalValue   float64           `json:"total_value"`
	Realized     float64           `json:"realized"`
	NetIncome    float64           `json:"net_income"`
	ReturnOnCost float64           `json:"return_on_cost"`
	CoreLegs     []CoreLegView     `json:"core_legs"`
	ClosedTrades []ClosedTradeView `json:"closed_trades"`
	Short        *ShortView        `json:"short,omitempty"`
}

// CoreLegView is one core leg row.
type CoreLegView struct {
	Acquired   string  `json:"acquired"`
	Expiration string  `json:"expiration"`
	Strike     float64 `json:"strike"`
	Quantity   int     `json:"quantity"`
	Cost       float64 `json:"cost"`
	Value      float64 `json:"value"`
	PnL        float64 `json:"pnl"`
}

// ClosedTradeView is one closed-trade ledger row.
type ClosedTradeView struct {
	CloseDate   string  `json:"close_date"`
	Strike      float64 `json:"strike"`
	GainLoss    float64 `json:"gain_loss"`
	DaysInTrade int     `json:"days_in_trade"`
}

// ShortView is the active-short summary row.
type ShortView struct {
	Underlying string  `json:"underlying"`
	Symbol     string  `json:"symbol"`
	Strike     float64 `json:"strike"`
	OpenPrice  float64 `json:"open_price"`
	LastPrice  float64 `json:"last_price"`
	Intrinsic  float64 `json:"intrinsic"`
	Extrinsic  float64 `json:"extrinsic"`
	PLJuice    float64 `json:"pl_juice"`
	PLTotal    float64 `json:"pl_total"`
	DTE        int     `json:"dte"`
	NeedsRoll  bool    `json:"needs_roll"`
}

func (s *Server) handleGetCampaigns(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	if snap == nil {
		http.Error(w, "No Data", http.StatusServiceUnavailable)
		return
	}

	views := make([]CampaignView, 0, len(snap.Campaigns))
	for _, result := range snap.Campaigns {
		views = append(views, buildCampaignView(result))
	}
	s.writeJSON(w, views)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	if snap == nil {
		http.Error(w, "No Data", http.StatusServiceUnavailable)
		return
	}

	underlying := chi.URLParam(r, "underlying")
	for _, result := range snap.Campaigns {
		if result.Campaign.Underlying == underlying {
			s.writeJSON(w, buildCampaignView(result))
			return
		}
	}
	http.Error(w, "Not Found", http.StatusNotFound)
}

func (s *Server) handleGetShorts(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	if snap == nil {
		http.Error(w, "No Data", http.StatusServiceUnavailable)
		return
	}

	views := make([]ShortView, 0, len(snap.Campaigns))
	for _, result := range snap.Campaigns {
		if result.Campaign.Short == nil || result.Short == nil {
			continue
		}
		views = append(views, buildShortView(result))
	}
	s.writeJSON(w, views)
}

func (s *Server) handleGetExposure(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	if snap == nil {
		http.Error(w, "No Data", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, snap.Exposure)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.store.History())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		http.Error(w, "Refresh not available", http.StatusNotImplemented)
		return
	}

	snap, err := s.refresh(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Manual refresh failed")
		http.Error(w, "Upstream Unavailable", http.StatusBadGateway)
		return
	}
	s.SetSnapshot(snap)
	s.writeJSON(w, snap)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func buildCampaignView(result engine.CampaignResult) CampaignView {
	c := result.Campaign
	m := result.Metrics

	view := CampaignView{
		Underlying:   c.Underlying,
		Spot:         util.RoundCents(c.Spot),
		Start:        c.Start,
		TotalCost:    util.RoundCents(m.TotalCost),
		TotalValue:   util.RoundCents(m.TotalValue),
		Realized:     util.RoundCents(m.Realized),
		NetIncome:    util.RoundCents(m.NetIncome),
		ReturnOnCost: util.RoundToTick(m.ReturnOnCost, 0.1),
		CoreLegs:     make([]CoreLegView, 0, len(c.CoreLegs)),
		ClosedTrades: make([]ClosedTradeView, 0, len(c.Closed)),
	}

	for _, leg := range c.CoreLegs {
		view.CoreLegs = append(view.CoreLegs, CoreLegView{
			Acquired:   leg.Acquired.Format("2006-01-02"),
			Expiration: leg.Expiration,
			Strike:     leg.Strike,
			Quantity:   leg.Quantity,
			Cost:       util.RoundCents(leg.CostBasis),
			Value:      util.RoundCents(leg.MarketValue),
			PnL:        util.RoundCents(leg.MarketValue - leg.CostBasis),
		})
	}

	for _, trade := range c.Closed {
		view.ClosedTrades = append(view.ClosedTrades, ClosedTradeView{
			CloseDate:   trade.CloseDate.Format("2006-01-02"),
			Strike:      trade.Strike,
			GainLoss:    util.RoundCents(trade.GainLoss),
			DaysInTrade: trade.DaysInTrade,
		})
	}
	// Newest closes first; display order only.
	sort.SliceStable(view.ClosedTrades, func(i, j int) bool {
		return view.ClosedTrades[i].CloseDate > view.ClosedTrades[j].CloseDate
	})

	if c.Short != nil && result.Short != nil {
		sv := buildShortView(result)
		view.Short = &sv
	}
	return view
}

func buildShortView(result engine.CampaignResult) ShortView {
	short := result.Campaign.Short
	m := result.Short
	return ShortView{
		Underlying: result.Campaign.Underlying,
		Symbol:     short.Symbol,
		Strike:     short.Strike,
		OpenPrice:  util.RoundCents(short.OpenPrice),
		LastPrice:  util.RoundCents(short.LastPrice),
		Intrinsic:  util.RoundCents(m.Intrinsic),
		Extrinsic:  util.RoundCents(m.Extrinsic),
		PLJuice:    util.RoundCents(m.PLJuice),
		PLTotal:    util.RoundCents(m.PLTotal),
		DTE:        m.DTE,
		NeedsRoll:  m.NeedsRoll,
	}
}
