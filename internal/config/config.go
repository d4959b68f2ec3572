package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gridmarket-go/internal/chain"
	"gridmarket-go/internal/models"
)

func Load() (*models.Config, error) {
	readTimeout, err := getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	writeTimeout, err := getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	idleTimeout, err := getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	sessionTTL, err := getEnvDuration("AUTH_SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	cleanupInterval, err := getEnvDuration("AUTH_CLEANUP_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	messageMaxAge, err := getEnvDuration("AUTH_MESSAGE_MAX_AGE", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	callTimeout, err := getEnvDuration("CHAIN_CALL_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	reconcileEvery, err := getEnvDuration("CHAIN_RECONCILE_INTERVAL", 0)
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Server: models.ServerConfig{
			Port:            getEnvString("SERVER_PORT", "8080"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			IdleTimeout:     idleTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "gridmarket.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Auth: models.AuthConfig{
			Domain:          getEnvString("AUTH_DOMAIN", "localhost:8080"),
			Origin:          getEnvString("AUTH_ORIGIN", "http://localhost:8080"),
			SessionTTL:      sessionTTL,
			CleanupInterval: cleanupInterval,
			MessageMaxAge:   messageMaxAge,
			CookieSecure:    getEnvBool("AUTH_COOKIE_SECURE", false),
		},
		Chain: models.ChainConfig{
			Mode:            getEnvString("CHAIN_MODE", chain.ModeSimulated),
			RpcUrl:          getEnvString("CHAIN_RPC_URL", ""),
			OperatorKey:     getEnvString("CHAIN_OPERATOR_KEY", ""),
			CallTimeout:     callTimeout,
			MarketFile:      getEnvString("MARKET_FILE", "market.yaml"),
			ReconcileEvery:  reconcileEvery,
			InitialGrantKWh: int64(getEnvInt("INITIAL_GRANT_KWH", 1000)),
		},
	}

	if cfg.Chain.Mode != chain.ModeLive && cfg.Chain.Mode != chain.ModeSimulated {
		return nil, fmt.Errorf("invalid CHAIN_MODE %q: must be %q or %q",
			cfg.Chain.Mode, chain.ModeLive, chain.ModeSimulated)
	}
	if cfg.Chain.Mode == chain.ModeLive && cfg.Chain.OperatorKey == "" {
		return nil, fmt.Errorf("CHAIN_OPERATOR_KEY is required when CHAIN_MODE=%s", chain.ModeLive)
	}

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
