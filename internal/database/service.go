package database

import (
	"context"
	"database/sql"
	"fmt"

	"gridmarket-go/internal/models"
	"gridmarket-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.MarketStore.
var _ store.MarketStore = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) initSchema() error {
	schema := `
	-- Market participants, one row per wallet address
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		wallet_address TEXT NOT NULL UNIQUE,
		energy_balance TEXT NOT NULL DEFAULT '0',
		eth_balance TEXT NOT NULL DEFAULT '0',
		total_earnings TEXT NOT NULL DEFAULT '0',
		is_new_user BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_wallet ON users(wallet_address);

	-- Open sell offers (hot rows, optimistic version column)
	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL REFERENCES users(id),
		amount_kwh TEXT NOT NULL,
		rate_per_kwh TEXT NOT NULL,
		total_value TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		external_tx_ref TEXT NOT NULL DEFAULT '',
		external_listing_id TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_listings_seller ON listings(seller_id);
	CREATE INDEX IF NOT EXISTS idx_listings_active ON listings(is_active);

	-- Settlement events (immutable audit trail)
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL REFERENCES users(id),
		seller_id TEXT NOT NULL REFERENCES users(id),
		listing_id TEXT NOT NULL REFERENCES listings(id),
		amount_kwh TEXT NOT NULL,
		rate_per_kwh TEXT NOT NULL,
		total_cost TEXT NOT NULL,
		kind TEXT NOT NULL,
		external_tx_ref TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trades_buyer ON trades(buyer_id);
	CREATE INDEX IF NOT EXISTS idx_trades_seller ON trades(seller_id);
	CREATE INDEX IF NOT EXISTS idx_trades_listing ON trades(listing_id);
	CREATE INDEX IF NOT EXISTS idx_trades_created_at ON trades(created_at);

	-- Server-side sessions, opaque beyond expiry cleanup
	CREATE TABLE IF NOT EXISTS sessions (
		sid TEXT PRIMARY KEY,
		data TEXT NOT NULL DEFAULT '{}',
		expires_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}
