package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"zcsmower/internal/api"
	"zcsmower/internal/bridge"
	"zcsmower/internal/config"
	"zcsmower/internal/coordinator"
	"zcsmower/internal/ha"
	"zcsmower/internal/router"
	"zcsmower/internal/zcs"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const defaultAPIPort = 8099

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	configPath := os.Getenv("ZCSMOWER_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	endpoint := os.Getenv("ZCS_API_ENDPOINT")
	appToken := os.Getenv("ZCS_APP_TOKEN")
	haURL := os.Getenv("HA_URL")
	haToken := os.Getenv("HA_TOKEN")

	apiPort := defaultAPIPort
	if raw := os.Getenv("API_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			logger.Fatal("Invalid API_PORT", zap.String("value", raw))
		}
		apiPort = port
	}

	cfg, err := config.Load(configPath, logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Starting lawn mower coordinator",
		zap.Int("accounts", len(cfg.Accounts)),
		zap.Duration("update_interval", cfg.UpdateInterval()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	serviceRouter := router.New(logger)

	// Optional Home Assistant bridge
	var publisher *bridge.Publisher
	if haURL != "" && haToken != "" {
		haClient := ha.NewClient(haURL, haToken, logger)
		if err := haClient.Connect(); err != nil {
			logger.Fatal("Failed to connect to Home Assistant", zap.Error(err))
		}
		defer haClient.Disconnect()
		publisher = bridge.NewPublisher(haClient, logger)
		logger.Info("Home Assistant bridge enabled", zap.String("url", haURL))
	}

	coordinators := make([]*coordinator.Coordinator, 0, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		client := zcs.NewClient(zcs.Config{
			Endpoint: endpoint,
			AppID:    account.ClientKey,
			AppToken: appToken,
			ThingKey: account.ClientKey,
		}, logger)

		metrics := coordinator.NewMetrics(account.Name)
		registry.MustRegister(metrics.Collectors()...)

		c := coordinator.New(account.Name, account.Registrations(), client, logger, metrics)
		c.SetUpdateInterval(cfg.UpdateInterval())
		c.SetReauthHandler(func(err error) {
			logger.Error("Account requires reauthentication",
				zap.String("account", account.Name),
				zap.Error(err))
		})
		serviceRouter.Register(c)
		if publisher != nil {
			publisher.Attach(c)
		}
		coordinators = append(coordinators, c)
	}

	// First refresh is synchronous so startup fails loudly on bad credentials.
	for _, c := range coordinators {
		if _, err := c.Refresh(ctx); err != nil {
			if errors.Is(err, coordinator.ErrReauthRequired) {
				logger.Fatal("Initial refresh rejected credentials",
					zap.String("account", c.Name()),
					zap.Error(err))
			}
			logger.Warn("Initial refresh failed, continuing with placeholders",
				zap.String("account", c.Name()),
				zap.Error(err))
		}
	}

	for _, c := range coordinators {
		go c.Run(ctx)
	}

	server := api.NewServer(serviceRouter, registry, logger, apiPort)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("HTTP server stopped", zap.Error(err))
			stop()
		}
	}()

	logger.Info("Application running. Press Ctrl+C to exit.")
	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
}
