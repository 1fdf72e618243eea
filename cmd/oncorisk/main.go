package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"oncorisk/internal/api"
	"oncorisk/internal/cfg"
	"oncorisk/internal/metrics"
	"oncorisk/internal/ml"
	"oncorisk/internal/notify"
	"oncorisk/internal/storage"
)

func main() {
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	engine := buildEngine(c, store, m)
	restoreModel(engine)

	notifier := notify.New(c.WebhookURL, 5*time.Second)

	var wg sync.WaitGroup
	server := api.New(engine, store, notifier, c.APIPort)
	startAPIServer(ctx, &wg, server)
	startMetricsServer(ctx, c)

	waitForShutdown(ctx, cancel, &wg)
}

// initializeStorage opens the artifact store if DATA_PATH is configured.
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

func buildEngine(c cfg.Settings, store *storage.Store, m *metrics.Metrics) *ml.Engine {
	ec := ml.EngineConfig{
		Thresholds: ml.RiskThresholds{Medium: c.RiskMedium, High: c.RiskHigh},
		Roster:     c.Roster,
		Train: ml.TrainOptions{
			Seed:               c.Seed,
			SplitRatio:         c.SplitRatio,
			CVFolds:            c.CVFolds,
			ImbalanceThreshold: c.ImbalanceThreshold,
			CandidateTimeout:   c.CandidateTimeout,
			Workers:            c.TrainWorkers,
		},
	}

	var as ml.ArtifactStore
	if store != nil {
		as = store
	}
	return ml.NewEngine(ec, as, m)
}

// restoreModel reloads the last deployed model so the API can serve
// predictions across restarts. A fresh deployment simply starts untrained.
func restoreModel(engine *ml.Engine) {
	if err := engine.Restore(); err != nil {
		log.Warn().Err(err).Msg("no previous model restored, waiting for training")
		return
	}
	if trained, ok := engine.ActiveModel(); ok {
		log.Info().
			Str("algorithm", trained.Algorithm).
			Str("schema_version", trained.SchemaVersion).
			Msg("restored previously deployed model")
	}
}

func startAPIServer(ctx context.Context, wg *sync.WaitGroup, server *api.Server) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown API server")
		}
	}()

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("API server failed")
		}
	}()
}

// startMetricsServer starts the Prometheus metrics HTTP server.
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// waitForShutdown blocks until a signal arrives, then drains goroutines.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
