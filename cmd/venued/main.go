// main.go - Venue daemon: commit-reveal order engine behind a JSON REST API.
//
// Startup sequence:
//   - load configuration (JSON file, environment overrides)
//   - compile the reveal circuit and generate/load the Groth16 key pair
//   - open the pebble-backed event outbox and, if enabled, the Kafka broadcaster
//   - construct the venue with the proof verifier attached
//   - whitelist configured assets and serve the HTTP API
//
// Usage:
//   venued -config config.json

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"darkpool/internal/custody"
	"darkpool/internal/outbox"
	"darkpool/internal/reveal"
	"darkpool/internal/venue"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.json", "path to configuration file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, logCloser, err := NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	log.Info().Str("version", version).Msg("venue daemon starting")

	// Proof system: compile the reveal circuit and load or generate keys.
	compileStart := time.Now()
	ccs, err := reveal.Compile()
	if err != nil {
		log.Fatal().Err(err).Msg("circuit compilation failed")
	}
	log.Info().Dur("elapsed", time.Since(compileStart)).Msg("reveal circuit compiled")

	pkPath := filepath.Join(cfg.KeyDir, "reveal_pk.bin")
	vkPath := filepath.Join(cfg.KeyDir, "reveal_vk.bin")
	if err := os.MkdirAll(cfg.KeyDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("key directory creation failed")
	}
	_, vk, err := reveal.SetupOrLoadKeys(ccs, pkPath, vkPath)
	if err != nil {
		log.Fatal().Err(err).Msg("proving key setup failed")
	}
	verifier := reveal.NewGroth16Verifier(vk)

	// Durable event outbox.
	ob, err := outbox.Open(filepath.Join(cfg.DataDir, "outbox"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("outbox open failed")
	}
	defer ob.Close()

	// Balances survive restarts through the file ledger; an empty
	// ledger_path selects the in-memory one.
	var ledger custody.AssetLedger
	if cfg.LedgerPath != "" {
		fl, err := custody.OpenFileLedger(cfg.LedgerPath)
		if err != nil {
			log.Fatal().Err(err).Msg("ledger open failed")
		}
		ledger = fl
	} else {
		ledger = custody.NewMemoryLedger()
	}
	operator := venue.TraderID(cfg.Operator)

	v, err := venue.New(venue.Config{
		RevealDelay:              time.Duration(cfg.RevealDelaySeconds) * time.Second,
		CommitmentExpiry:         time.Duration(cfg.CommitmentExpirySeconds) * time.Second,
		FeeRateBps:               cfg.FeeRateBps,
		FeeCollector:             venue.TraderID(cfg.FeeCollector),
		MinOrderSize:             cfg.MinOrderSize,
		MaxOrderSize:             cfg.MaxOrderSize,
		EnforceIcebergVisibility: cfg.EnforceIcebergVisible,
	}, ledger, venue.SystemClock{}, log, ob, operator)
	if err != nil {
		log.Fatal().Err(err).Msg("venue construction failed")
	}
	if err := v.SetVerifier(operator, verifier); err != nil {
		log.Fatal().Err(err).Msg("verifier attach failed")
	}
	for _, asset := range cfg.Assets {
		if err := v.WhitelistAsset(operator, venue.AssetID(asset)); err != nil {
			log.Fatal().Err(err).Str("asset", asset).Msg("asset whitelist failed")
		}
	}

	metrics := NewMetricsCollector()
	health := NewHealthChecker(version)
	health.RegisterComponent("outbox", func() error {
		return ob.ScanPending(func(*outbox.Record) error { return nil })
	})
	health.RegisterComponent("venue", func() error { return nil })

	limiter := NewTraderRateLimiter(cfg.RateMaxTokens, cfg.RateRefillRate, time.Second)
	server := NewServer(v, limiter, metrics, health, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Kafka broadcaster drains the outbox in the background.
	if cfg.KafkaEnabled {
		bc := outbox.NewBroadcaster(ob, cfg.KafkaBrokers, cfg.KafkaTopic,
			time.Duration(cfg.PublishIntervalS)*time.Second, log)
		go func() {
			if err := bc.Run(ctx); err != nil {
				log.Error().Err(err).Msg("broadcaster stopped")
			}
		}()
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka broadcaster started")
	}

	// Periodic sweep flips past-expiry orders and releases their escrow.
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.SweepIntervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := v.ExpireOrders()
				if err != nil {
					log.Error().Err(err).Msg("expiry sweep failed")
					metrics.RecordError("expiry_sweep")
					continue
				}
				if n > 0 {
					log.Info().Int("expired", n).Msg("orders expired")
					metrics.IncrementCounter(MetricExpiredOrders, nil)
				}
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	log.Info().Msg("venue daemon stopped")
}
