package models

import "time"

// Config represents the application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Chain    ChainConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// AuthConfig holds sign-in and session settings. Domain and Origin are the
// values every sign-in message is checked against. MessageMaxAge of zero
// disables the issued-at staleness check.
type AuthConfig struct {
	Domain          string
	Origin          string
	SessionTTL      time.Duration
	CleanupInterval time.Duration
	MessageMaxAge   time.Duration
	CookieSecure    bool
}

// ChainConfig holds settlement client settings. Mode is chosen once at
// startup; call sites never re-derive it.
type ChainConfig struct {
	Mode            string // "live" or "simulated"
	RpcUrl          string
	OperatorKey     string
	CallTimeout     time.Duration
	MarketFile      string
	ReconcileEvery  time.Duration // 0 disables the background sweep
	InitialGrantKWh int64
}

// MarketConfig is the chain-side market description loaded from market.yaml.
type MarketConfig struct {
	ChainId         int64  `yaml:"chain_id"`
	ContractAddress string `yaml:"contract_address"`
	TokenDecimals   int32  `yaml:"token_decimals"`
}
