package store

type dialect struct {
	name   string
	schema []string

	insertAccount string
	upsertAgency  string
	upsertToken   string
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			external_id INTEGER NOT NULL UNIQUE,
			address TEXT NOT NULL DEFAULT '0',
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS agencies (
			account_id INTEGER NOT NULL REFERENCES accounts(id),
			agency_address TEXT NOT NULL,
			agent_address TEXT NOT NULL,
			agency_name TEXT NOT NULL,
			token_address TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (account_id, agency_address)
		);`,
		`CREATE TABLE IF NOT EXISTS token_info (
			token_address TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			decimals INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	},
	insertAccount: `INSERT INTO accounts (external_id, address, created_at) VALUES (?, '0', ?)
		ON CONFLICT(external_id) DO NOTHING`,
	upsertAgency: `INSERT INTO agencies (account_id, agency_address, agent_address, agency_name, token_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, agency_address) DO UPDATE SET
			agent_address=excluded.agent_address,
			agency_name=excluded.agency_name,
			token_address=excluded.token_address`,
	upsertToken: `INSERT INTO token_info (token_address, symbol, decimals, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(token_address) DO UPDATE SET
			symbol=excluded.symbol,
			decimals=excluded.decimals,
			updated_at=excluded.updated_at`,
}

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			external_id BIGINT NOT NULL UNIQUE,
			address VARCHAR(42) NOT NULL DEFAULT '0',
			created_at BIGINT NOT NULL
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS agencies (
			account_id BIGINT NOT NULL,
			agency_address VARCHAR(42) NOT NULL,
			agent_address VARCHAR(42) NOT NULL,
			agency_name VARCHAR(255) NOT NULL,
			token_address VARCHAR(42) NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (account_id, agency_address),
			CONSTRAINT fk_agencies_account FOREIGN KEY (account_id) REFERENCES accounts(id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS token_info (
			token_address VARCHAR(42) NOT NULL PRIMARY KEY,
			symbol VARCHAR(64) NOT NULL,
			decimals TINYINT UNSIGNED NOT NULL,
			updated_at BIGINT NOT NULL
		) ENGINE=InnoDB`,
	},
	insertAccount: `INSERT IGNORE INTO accounts (external_id, address, created_at) VALUES (?, '0', ?)`,
	upsertAgency: `INSERT INTO agencies (account_id, agency_address, agent_address, agency_name, token_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			agent_address=VALUES(agent_address),
			agency_name=VALUES(agency_name),
			token_address=VALUES(token_address)`,
	upsertToken: `INSERT INTO token_info (token_address, symbol, decimals, updated_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			symbol=VALUES(symbol),
			decimals=VALUES(decimals),
			updated_at=VALUES(updated_at)`,
}
