package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create ibet_wst_tx table",
			SQL: `
				CREATE TABLE IF NOT EXISTS ibet_wst_tx (
					tx_id TEXT PRIMARY KEY,
					tx_type TEXT NOT NULL,
					version TEXT NOT NULL,
					status TEXT NOT NULL,
					tx_params TEXT NOT NULL, -- JSON
					tx_sender TEXT NOT NULL,
					tx_hash TEXT,
					ibet_wst_address TEXT,
					block_number INTEGER,
					gas_used INTEGER,
					event_log TEXT, -- JSON
					finalized BOOLEAN NOT NULL DEFAULT FALSE,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_ibet_wst_tx_pending ON ibet_wst_tx(finalized, status, created_at);
				CREATE INDEX IF NOT EXISTS idx_ibet_wst_tx_type ON ibet_wst_tx(tx_type);
				CREATE INDEX IF NOT EXISTS idx_ibet_wst_tx_hash ON ibet_wst_tx(tx_hash);
			`,
		},
		{
			Version:     "002",
			Description: "Create token table",
			SQL: `
				CREATE TABLE IF NOT EXISTS token (
					token_address TEXT PRIMARY KEY,
					issuer_address TEXT NOT NULL,
					ibet_wst_tx_id TEXT,
					ibet_wst_deployed BOOLEAN NOT NULL DEFAULT FALSE,
					ibet_wst_address TEXT,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_token_ibet_wst_tx_id ON token(ibet_wst_tx_id);
			`,
		},
		{
			Version:     "003",
			Description: "Create whitelist projection table",
			SQL: `
				CREATE TABLE IF NOT EXISTS idx_eth_ibet_wst_whitelist (
					ibet_wst_address TEXT NOT NULL,
					account_address TEXT NOT NULL,
					sc_account_address_in TEXT NOT NULL,
					sc_account_address_out TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					PRIMARY KEY (ibet_wst_address, account_address)
				);
			`,
		},
		{
			Version:     "004",
			Description: "Create dvp_delivery table",
			SQL: `
				CREATE TABLE IF NOT EXISTS dvp_delivery (
					exchange_address TEXT NOT NULL,
					delivery_id INTEGER NOT NULL,
					token_address TEXT NOT NULL,
					seller_address TEXT NOT NULL,
					buyer_address TEXT NOT NULL,
					agent_address TEXT NOT NULL,
					amount INTEGER NOT NULL,
					data TEXT NOT NULL DEFAULT '',
					status INTEGER NOT NULL,
					valid BOOLEAN NOT NULL DEFAULT TRUE,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					PRIMARY KEY (exchange_address, delivery_id)
				);

				CREATE INDEX IF NOT EXISTS idx_dvp_delivery_status ON dvp_delivery(status);
			`,
		},
		{
			Version:     "005",
			Description: "Create account table",
			SQL: `
				CREATE TABLE IF NOT EXISTS account (
					account_address TEXT PRIMARY KEY,
					keyfile BLOB NOT NULL,
					created_at DATETIME NOT NULL
				);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create ibet_wst_tx table",
			SQL: `
				CREATE TABLE IF NOT EXISTS ibet_wst_tx (
					tx_id VARCHAR(36) PRIMARY KEY,
					tx_type VARCHAR(32) NOT NULL,
					version VARCHAR(16) NOT NULL,
					status VARCHAR(16) NOT NULL,
					tx_params JSONB NOT NULL,
					tx_sender VARCHAR(42) NOT NULL,
					tx_hash VARCHAR(66),
					ibet_wst_address VARCHAR(42),
					block_number BIGINT,
					gas_used BIGINT,
					event_log JSONB,
					finalized BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_ibet_wst_tx_pending ON ibet_wst_tx(finalized, status, created_at);
				CREATE INDEX IF NOT EXISTS idx_ibet_wst_tx_type ON ibet_wst_tx(tx_type);
				CREATE INDEX IF NOT EXISTS idx_ibet_wst_tx_hash ON ibet_wst_tx(tx_hash);
			`,
		},
		{
			Version:     "002",
			Description: "Create token table",
			SQL: `
				CREATE TABLE IF NOT EXISTS token (
					token_address VARCHAR(42) PRIMARY KEY,
					issuer_address VARCHAR(42) NOT NULL,
					ibet_wst_tx_id VARCHAR(36),
					ibet_wst_deployed BOOLEAN NOT NULL DEFAULT FALSE,
					ibet_wst_address VARCHAR(42),
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_token_ibet_wst_tx_id ON token(ibet_wst_tx_id);
			`,
		},
		{
			Version:     "003",
			Description: "Create whitelist projection table",
			SQL: `
				CREATE TABLE IF NOT EXISTS idx_eth_ibet_wst_whitelist (
					ibet_wst_address VARCHAR(42) NOT NULL,
					account_address VARCHAR(42) NOT NULL,
					sc_account_address_in VARCHAR(42) NOT NULL,
					sc_account_address_out VARCHAR(42) NOT NULL,
					created_at TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (ibet_wst_address, account_address)
				);
			`,
		},
		{
			Version:     "004",
			Description: "Create dvp_delivery table",
			SQL: `
				CREATE TABLE IF NOT EXISTS dvp_delivery (
					exchange_address VARCHAR(42) NOT NULL,
					delivery_id BIGINT NOT NULL,
					token_address VARCHAR(42) NOT NULL,
					seller_address VARCHAR(42) NOT NULL,
					buyer_address VARCHAR(42) NOT NULL,
					agent_address VARCHAR(42) NOT NULL,
					amount BIGINT NOT NULL,
					data TEXT NOT NULL DEFAULT '',
					status SMALLINT NOT NULL,
					valid BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (exchange_address, delivery_id)
				);

				CREATE INDEX IF NOT EXISTS idx_dvp_delivery_status ON dvp_delivery(status);
			`,
		},
		{
			Version:     "005",
			Description: "Create account table",
			SQL: `
				CREATE TABLE IF NOT EXISTS account (
					account_address VARCHAR(42) PRIMARY KEY,
					keyfile BYTEA NOT NULL,
					created_at TIMESTAMPTZ NOT NULL
				);
			`,
		},
	}
}
