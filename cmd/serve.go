package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/backstage/services/fleet/internal/api"
	"example.com/backstage/services/fleet/internal/core"
	"example.com/backstage/services/fleet/internal/infrastructure"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the fleet simulator API server",
	Long:  `Launches the HTTP server driving the simulated fleet: per-robot mission cycles, stats aggregation, alerting and retention.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServer() error {
	logger.Info("Initializing Fleet Simulator Service...")

	// --- Infrastructure Setup ---
	logger.Info("Connecting to database...")
	db, err := infrastructure.NewDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	logger.Info("Connecting to cache...")
	cache, err := infrastructure.NewCache(cfg.Redis)
	if err != nil {
		logger.WithError(err).Warn("Cache unavailable, stats will not be mirrored")
		cache = nil
	} else {
		defer cache.Close()
	}

	logger.Info("Connecting to messaging service...")
	messaging, err := infrastructure.NewMessaging(cfg.ServiceBus)
	if err != nil {
		logger.Warn("Messaging service unavailable, continuing without it")
		messaging = nil
	} else {
		defer messaging.Close()
	}

	var mqttPub *infrastructure.MQTTPublisher
	if cfg.MQTT != nil && cfg.MQTT.BrokerURL != "" {
		logger.Info("Connecting to MQTT broker...")
		mqttPub, err = infrastructure.NewMQTTPublisher(cfg.MQTT, logger)
		if err != nil {
			logger.WithError(err).Warn("MQTT broker unavailable, continuing without it")
			mqttPub = nil
		} else {
			defer mqttPub.Close()
		}
	}

	// --- Service Layer Setup ---
	repo := core.NewRepository(db.DB)

	var publishers []core.EventPublisher
	if messaging != nil {
		publishers = append(publishers, messaging)
	}
	if mqttPub != nil {
		publishers = append(publishers, mqttPub)
	}

	normalized := cfg.Simulation.NormalizedStorage

	generator := core.NewGenerator(cfg)
	writer := core.NewWriter(repo, normalized, logger, publishers...)
	simulator := core.NewSimulator(cfg, generator, writer, repo, logger)
	manager := core.NewManager(cfg, simulator, generator, logger)
	defer manager.Close()

	// A typed-nil *Cache must not end up in the interface value.
	var snapCache core.SnapshotCache
	if cache != nil {
		snapCache = cache
	}
	aggregator := core.NewAggregator(repo, snapCache, manager, normalized,
		cfg.Stats.CacheTTL, cfg.Stats.HourlyTarget, cfg.Stats.QueryTimeout, logger)
	evaluator := core.NewEvaluator(cfg.Alerts)
	retention := core.NewRetentionManager(repo, manager, cfg.Retention, normalized, logger, publishers...)

	services := &core.ServiceRegistry{
		Manager:   manager,
		Stats:     aggregator,
		Alerts:    evaluator,
		Writer:    writer,
		Retention: retention,
	}

	// --- Background Jobs ---
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	go func() {
		ticker := time.NewTicker(cfg.Stats.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				if _, err := aggregator.GetStats(jobCtx); err != nil {
					logger.WithError(err).Debug("Background stats refresh failed")
				}
				if cfg.Retention.Enabled {
					retention.Tick(jobCtx)
				}
			}
		}
	}()

	// --- API Layer Setup ---
	if gin.Mode() == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	handlers := api.NewAPIHandlers(services)
	api.SetupRoutes(router, handlers, logger)

	// --- HTTP Server ---
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful Shutdown ---
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Infof("Fleet Simulator API listening on %s", serverAddr)
		logger.Info("Service started successfully")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-shutdownChan

	logger.Warn("Shutdown signal received, initiating graceful shutdown...")

	// Stop cycle drivers before closing connections they depend on
	cancelJobs()
	manager.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	} else {
		logger.Info("Server stopped gracefully")
	}

	logger.Info("Fleet Simulator Service shutdown complete")
	return nil
}
