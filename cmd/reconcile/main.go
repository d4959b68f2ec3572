package main

import (
	"context"
	"flag"
	"fmt"

	"gridmarket-go/internal/common"
	"gridmarket-go/internal/config"
	"gridmarket-go/internal/models"

	"go.uber.org/zap"
)

func printUser(user *models.User, stale bool, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	marker := ""
	if stale {
		marker = " (stale, chain unreachable)"
	}
	fmt.Printf("%s %s%s\n", symbol, user.WalletAddress, marker)
	fmt.Printf("%s   eth: %s  energy: %s kWh  earnings: %s\n",
		symbol,
		user.EthBalance.String(),
		user.EnergyBalance.String(),
		user.TotalEarnings.String())
}

func main() {
	walletFlag := flag.String("wallet", "", "Reconcile a single wallet address (default: all users)")
	flag.Parse()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()

	logger.Info("Starting balance reconciliation")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	common.PrintHeader("BALANCE RECONCILIATION REPORT", common.DefaultWidth)

	if *walletFlag != "" {
		user, stale, err := services.Reconciler.Refresh(ctx, *walletFlag)
		if err != nil {
			logger.Fatal("Failed to reconcile wallet",
				zap.String("wallet", *walletFlag), zap.Error(err))
		}
		printUser(user, stale, true)
		status := "refreshed from chain"
		if stale {
			status = "left stale"
		}
		common.PrintFooter(fmt.Sprintf("SUMMARY: 1 wallet %s", status), common.DefaultWidth)
		return
	}

	users, err := services.DbService.GetUsers(ctx)
	if err != nil {
		logger.Fatal("Failed to list users", zap.Error(err))
	}

	refreshed, stale := 0, 0
	for i, u := range users {
		user, wasStale, err := services.Reconciler.Refresh(ctx, u.WalletAddress)
		if err != nil {
			logger.Error("Failed to reconcile user",
				zap.String("user_id", u.Id), zap.Error(err))
			stale++
			continue
		}
		printUser(user, wasStale, i == len(users)-1)
		if wasStale {
			stale++
		} else {
			refreshed++
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d refreshed, %d stale (%d users queried)",
		refreshed, stale, len(users))
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Reconciliation completed",
		zap.Int("refreshed", refreshed),
		zap.Int("stale", stale))
}
