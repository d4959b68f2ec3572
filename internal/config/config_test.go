package config

import (
	"testing"
	"time"

	"gridmarket-go/internal/chain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Chain.Mode != chain.ModeSimulated {
		t.Errorf("Expected default simulated mode, got %s", cfg.Chain.Mode)
	}
	if cfg.Auth.SessionTTL != 24*time.Hour {
		t.Errorf("Expected default session ttl 24h, got %v", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.MessageMaxAge != 10*time.Minute {
		t.Errorf("Expected default message max age 10m, got %v", cfg.Auth.MessageMaxAge)
	}
	if cfg.Chain.InitialGrantKWh != 1000 {
		t.Errorf("Expected default grant 1000, got %d", cfg.Chain.InitialGrantKWh)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("AUTH_SESSION_TTL", "1h")
	t.Setenv("AUTH_MESSAGE_MAX_AGE", "0")
	t.Setenv("INITIAL_GRANT_KWH", "250")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Server.Port)
	}
	if cfg.Auth.SessionTTL != time.Hour {
		t.Errorf("Expected session ttl 1h, got %v", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.MessageMaxAge != 0 {
		t.Errorf("Expected message max age disabled, got %v", cfg.Auth.MessageMaxAge)
	}
	if cfg.Chain.InitialGrantKWh != 250 {
		t.Errorf("Expected grant 250, got %d", cfg.Chain.InitialGrantKWh)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("AUTH_SESSION_TTL", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for invalid duration")
	}
}

func TestLoad_InvalidChainMode(t *testing.T) {
	t.Setenv("CHAIN_MODE", "testnet")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for invalid chain mode")
	}
}

func TestLoad_LiveModeRequiresOperatorKey(t *testing.T) {
	t.Setenv("CHAIN_MODE", chain.ModeLive)
	t.Setenv("CHAIN_OPERATOR_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for live mode without operator key")
	}
}
