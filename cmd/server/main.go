package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gridmarket-go/internal/api"
	"gridmarket-go/internal/auth"
	"gridmarket-go/internal/common"
	"gridmarket-go/internal/config"
	"gridmarket-go/internal/ledger"
	"gridmarket-go/internal/siwe"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting grid market server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	market, err := common.LoadMarketConfig(cfg.Chain.MarketFile)
	if err != nil {
		zap.L().Fatal("Failed to load market config", zap.Error(err))
	}

	sessions := auth.NewManager(services.DbService, cfg.Auth.SessionTTL, cfg.Auth.CookieSecure)
	challenges := auth.NewChallengeStore()
	verifier := siwe.NewVerifier(siwe.Expected{
		Domain:  cfg.Auth.Domain,
		URI:     cfg.Auth.Origin,
		ChainId: market.ChainId,
	}, cfg.Auth.MessageMaxAge)

	authService := auth.NewService(
		services.DbService,
		services.Settlement,
		services.Reconciler,
		sessions,
		challenges,
		verifier,
		cfg.Chain.InitialGrantKWh,
	)

	coordinator := ledger.NewCoordinator(services.DbService, services.Settlement)
	handler := api.NewHandler(authService, coordinator, services.Reconciler, services.DbService)

	go sessions.RunCleanup(ctx, cfg.Auth.CleanupInterval, challenges)
	if cfg.Chain.ReconcileEvery > 0 {
		go services.Reconciler.RunSweep(ctx, cfg.Chain.ReconcileEvery)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.SetupRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zap.L().Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, draining connections...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Forced shutdown after timeout", zap.Error(err))
	} else {
		zap.L().Info("Server stopped gracefully")
	}
}
