package database

const (
	// User queries
	queryGetUsers = `
		SELECT id, wallet_address, energy_balance, eth_balance, total_earnings, is_new_user, created_at, updated_at
		FROM users
		ORDER BY created_at`

	queryGetUserById = `
		SELECT id, wallet_address, energy_balance, eth_balance, total_earnings, is_new_user, created_at, updated_at
		FROM users
		WHERE id = ?`

	queryGetUserByWallet = `
		SELECT id, wallet_address, energy_balance, eth_balance, total_earnings, is_new_user, created_at, updated_at
		FROM users
		WHERE wallet_address = ?`

	queryInsertUser = `
		INSERT INTO users (id, wallet_address, energy_balance, eth_balance, total_earnings, is_new_user)
		VALUES (?, ?, ?, '0', '0', 1)`

	querySetUserBalances = `
		UPDATE users
		SET eth_balance = ?, energy_balance = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryDebitSellerEnergy = `
		UPDATE users
		SET energy_balance = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND energy_balance = ?`

	queryApplyBuyerLegs = `
		UPDATE users
		SET eth_balance = ?, energy_balance = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryApplySellerLegs = `
		UPDATE users
		SET eth_balance = ?, total_earnings = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryCreditSellerEnergy = `
		UPDATE users
		SET energy_balance = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	// Listing queries
	queryGetListing = `
		SELECT id, seller_id, amount_kwh, rate_per_kwh, total_value, is_active,
		       external_tx_ref, external_listing_id, version, created_at, updated_at
		FROM listings
		WHERE id = ?`

	queryGetActiveListings = `
		SELECT l.id, l.seller_id, u.wallet_address, l.amount_kwh, l.rate_per_kwh,
		       l.total_value, l.is_active, l.external_tx_ref, l.created_at
		FROM listings l
		JOIN users u ON u.id = l.seller_id
		WHERE l.is_active = 1
		ORDER BY l.created_at DESC`

	queryInsertListing = `
		INSERT INTO listings (id, seller_id, amount_kwh, rate_per_kwh, total_value, is_active, external_tx_ref, version)
		VALUES (?, ?, ?, ?, ?, 1, ?, 1)`

	queryShrinkListing = `
		UPDATE listings
		SET amount_kwh = ?, total_value = ?, is_active = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_active = 1 AND version = ?`

	queryCloseListing = `
		UPDATE listings
		SET amount_kwh = '0', total_value = '0', is_active = 0, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_active = 1 AND version = ?`

	// Trade queries
	queryInsertTrade = `
		INSERT INTO trades (id, buyer_id, seller_id, listing_id, amount_kwh, rate_per_kwh, total_cost, kind, external_tx_ref, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetTradesByUser = `
		SELECT t.id, t.listing_id, b.wallet_address, s.wallet_address,
		       t.amount_kwh, t.rate_per_kwh, t.total_cost, t.kind, t.external_tx_ref, t.status, t.created_at
		FROM trades t
		JOIN users b ON b.id = t.buyer_id
		JOIN users s ON s.id = t.seller_id
		WHERE t.buyer_id = ? OR t.seller_id = ?
		ORDER BY t.created_at DESC
		LIMIT ? OFFSET ?`

	// Session queries
	queryGetSession = `
		SELECT sid, data, expires_at
		FROM sessions
		WHERE sid = ? AND expires_at > CURRENT_TIMESTAMP`

	queryUpsertSession = `
		INSERT INTO sessions (sid, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(sid) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`

	queryDeleteSession = `
		DELETE FROM sessions WHERE sid = ?`

	queryDeleteExpiredSessions = `
		DELETE FROM sessions WHERE expires_at <= CURRENT_TIMESTAMP`
)
