package common

import (
	"context"
	"log"
	"strings"

	"gridmarket-go/internal/chain"
	"gridmarket-go/internal/database"
	"gridmarket-go/internal/ledger"
	"gridmarket-go/internal/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can be set via other means (shell export, docker,
	// etc.), so a missing .env file is fine.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService  *database.Service
	Settlement chain.SettlementClient
	Reconciler *ledger.Reconciler
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires storage and the settlement client. The settlement
// mode is decided here, once; everything downstream works against the
// SettlementClient interface.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	var settlement chain.SettlementClient
	if cfg.Chain.Mode == chain.ModeLive {
		market, err := LoadMarketConfig(cfg.Chain.MarketFile)
		if err != nil {
			dbService.Close()
			return nil, err
		}
		settlement, err = chain.NewLiveClient(ctx, cfg.Chain, market)
		if err != nil {
			dbService.Close()
			return nil, err
		}
	} else {
		settlement = chain.NewSimulatedClient()
	}

	zap.L().Info("Settlement client ready", zap.String("mode", settlement.Mode()))

	return &Services{
		DbService:  dbService,
		Settlement: settlement,
		Reconciler: ledger.NewReconciler(dbService, settlement),
	}, nil
}

// InitializeDatabaseOnly initializes just the database service.
// Useful for read-only operations like inspecting trade history.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
