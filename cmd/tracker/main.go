// Command tracker periodically reconstructs PMCC campaign economics from a
// Tradier account and serves the results on an HTTP dashboard.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/pmcc_tracker/internal/beta"
	"github.com/eddiefleurent/pmcc_tracker/internal/broker"
	"github.com/eddiefleurent/pmcc_tracker/internal/campaign"
	"github.com/eddiefleurent/pmcc_tracker/internal/config"
	"github.com/eddiefleurent/pmcc_tracker/internal/dashboard"
	"github.com/eddiefleurent/pmcc_tracker/internal/engine"
	"github.com/eddiefleurent/pmcc_tracker/internal/retry"
	"github.com/eddiefleurent/pmcc_tracker/internal/storage"
)

func main() {
	var configPath string
	var once bool
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.BoolVar(&once, "once", false, "Run a single analysis pass and exit")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	mode := "production"
	if cfg.Broker.Sandbox {
		mode = "sandbox"
	}
	logger.Infof("Starting PMCC tracker against %s Tradier API", mode)

	tradier := broker.NewTradierAPI(cfg.Broker.APIKey, cfg.Broker.Sandbox, cfg.Broker.APIEndpoint).
		WithTimeout(cfg.GetBrokerTimeout())
	// Transient upstream errors are retried per call; the breaker only sees
	// failures that survive the retries.
	client := broker.NewCircuitBreakerBroker(retry.NewBroker(tradier))

	estimator := beta.NewEstimator(client, beta.Config{
		Benchmark:    cfg.Beta.Benchmark,
		LookbackDays: cfg.Beta.LookbackDays,
		CashTickers:  cfg.Beta.CashTickers,
	}, logger)

	analyzer := engine.NewAnalyzer(client, estimator, engine.Config{
		Campaign: campaign.Config{
			CoreDeltaMin:    cfg.Strategy.CoreDeltaMin,
			CoreDTEMin:      cfg.Strategy.CoreDTEMin,
			StrikeTolerance: cfg.Strategy.StrikeTolerance,
		},
		RollAlertExtrinsic: cfg.Strategy.RollAlertExtrinsic,
		Benchmark:          cfg.Beta.Benchmark,
	}, logger)

	store, err := storage.NewJSONStorage(cfg.Storage.Path)
	if err != nil {
		logger.Fatalf("Failed to open snapshot history: %v", err)
	}

	runAndRecord := func(ctx context.Context) (*engine.Snapshot, error) {
		snap, err := analyzer.Run(ctx)
		if err != nil {
			return nil, err
		}
		record := storage.Snapshot{
			ID:           snap.RunID,
			Timestamp:    snap.Timestamp,
			NetLiquidity: snap.NetLiquidity,
			NetDelta:     snap.Exposure.NetDelta,
			BetaWeighted: snap.Exposure.BetaWeighted,
			DailyTheta:   snap.Exposure.DailyTheta,
			Leverage:     snap.Exposure.Leverage,
		}
		if err := store.Append(record); err != nil {
			logger.WithError(err).Warn("Failed to append snapshot history")
		}
		return snap, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if once {
		if _, err := runAndRecord(ctx); err != nil {
			logger.Fatalf("Analysis run failed: %v", err)
		}
		return
	}

	srv := dashboard.NewServer(dashboard.Config{
		Port:      cfg.Dashboard.Port,
		AuthToken: cfg.Dashboard.AuthToken,
	}, store, runAndRecord, logger)

	if cfg.Dashboard.Port > 0 {
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				logger.Fatalf("Dashboard server error: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping tracker...")
		cancel()
	}()

	runLoop(ctx, cfg.GetRefreshInterval(), logger, srv, runAndRecord)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Dashboard shutdown error")
	}
	logger.Info("Tracker stopped")
}

// runLoop performs one analysis run immediately and then on every tick
// until the context is canceled. A failed run is surfaced and retried on
// the next tick; it never carries partial results forward.
func runLoop(
	ctx context.Context,
	interval time.Duration,
	logger *logrus.Logger,
	srv *dashboard.Server,
	run func(ctx context.Context) (*engine.Snapshot, error),
) {
	doRun := func() {
		snap, err := run(ctx)
		if err != nil {
			logger.WithError(err).Error("Analysis run failed, no data for this cycle")
			return
		}
		srv.SetSnapshot(snap)
	}

	doRun()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			doRun()
		}
	}
}
