package database

var schemas = map[string][]string{
	DriverMySQL:  mysqlSchema,
	DriverSQLite: sqliteSchema,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
    id VARCHAR(64) PRIMARY KEY,
    guest_token VARCHAR(64) NULL UNIQUE,
    fingerprint VARCHAR(255) NULL,
    created_from_ip VARCHAR(64) NULL,
    is_guest BOOLEAN NOT NULL DEFAULT TRUE,
    credits INT NOT NULL DEFAULT 0,
    email VARCHAR(320) NULL UNIQUE,
    name VARCHAR(255) NULL,
    password_hash VARCHAR(255) NULL,
    role VARCHAR(16) NOT NULL DEFAULT 'USER',
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    CONSTRAINT chk_accounts_credits CHECK (credits >= 0),
    INDEX idx_accounts_fingerprint (fingerprint, created_at),
    INDEX idx_accounts_ip (created_from_ip, created_at)
)`,
	`CREATE TABLE IF NOT EXISTS generations (
    id VARCHAR(64) PRIMARY KEY,
    account_id VARCHAR(64) NOT NULL,
    template_id VARCHAR(64) NOT NULL,
    model_key VARCHAR(64) NOT NULL,
    source_image_url TEXT NOT NULL,
    template_image_url TEXT NOT NULL,
    result_image_url TEXT NOT NULL,
    cost INT NOT NULL,
    created_at DATETIME(6) NOT NULL,
    INDEX idx_generations_account (account_id, created_at),
    FOREIGN KEY (account_id) REFERENCES accounts(id)
)`,
	`CREATE TABLE IF NOT EXISTS pricing_plans (
    id VARCHAR(64) PRIMARY KEY,
    title VARCHAR(255) NOT NULL,
    description TEXT NULL,
    currency VARCHAR(8) NOT NULL,
    price_minor_units INT NOT NULL,
    credits INT NOT NULL,
    stripe_price_id VARCHAR(255) NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS orders (
    id VARCHAR(64) PRIMARY KEY,
    account_id VARCHAR(64) NOT NULL,
    plan_id VARCHAR(64) NULL,
    credits INT NOT NULL,
    amount BIGINT NOT NULL,
    currency VARCHAR(8) NOT NULL,
    external_checkout_id VARCHAR(255) NOT NULL UNIQUE,
    created_at DATETIME(6) NOT NULL,
    INDEX idx_orders_account (account_id, created_at),
    FOREIGN KEY (account_id) REFERENCES accounts(id)
)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
    id VARCHAR(64) PRIMARY KEY,
    provider VARCHAR(20) NOT NULL,
    provider_event_id VARCHAR(191) NOT NULL,
    event_type VARCHAR(100) NOT NULL,
    processed_at DATETIME(6) NOT NULL,
    UNIQUE KEY ux_webhook_events_provider_event (provider, provider_event_id)
)`,
	`CREATE TABLE IF NOT EXISTS promo_codes (
    id VARCHAR(64) PRIMARY KEY,
    code VARCHAR(64) NOT NULL UNIQUE,
    max_uses INT NOT NULL,
    uses INT NOT NULL DEFAULT 0,
    created_at DATETIME(6) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS promo_redemptions (
    account_id VARCHAR(64) NOT NULL,
    promo_code_id VARCHAR(64) NOT NULL,
    created_at DATETIME(6) NOT NULL,
    UNIQUE KEY uniq_account_promo (account_id, promo_code_id),
    FOREIGN KEY (account_id) REFERENCES accounts(id),
    FOREIGN KEY (promo_code_id) REFERENCES promo_codes(id) ON DELETE CASCADE
)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    guest_token TEXT NULL UNIQUE,
    fingerprint TEXT NULL,
    created_from_ip TEXT NULL,
    is_guest BOOLEAN NOT NULL DEFAULT 1,
    credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
    email TEXT NULL UNIQUE,
    name TEXT NULL,
    password_hash TEXT NULL,
    role TEXT NOT NULL DEFAULT 'USER',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_fingerprint ON accounts (fingerprint, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_ip ON accounts (created_from_ip, created_at)`,
	`CREATE TABLE IF NOT EXISTS generations (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL REFERENCES accounts(id),
    template_id TEXT NOT NULL,
    model_key TEXT NOT NULL,
    source_image_url TEXT NOT NULL,
    template_image_url TEXT NOT NULL,
    result_image_url TEXT NOT NULL,
    cost INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_generations_account ON generations (account_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS pricing_plans (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NULL,
    currency TEXT NOT NULL,
    price_minor_units INTEGER NOT NULL,
    credits INTEGER NOT NULL,
    stripe_price_id TEXT NULL,
    is_active BOOLEAN NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL REFERENCES accounts(id),
    plan_id TEXT NULL,
    credits INTEGER NOT NULL,
    amount INTEGER NOT NULL,
    currency TEXT NOT NULL,
    external_checkout_id TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_account ON orders (account_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
    id TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    provider_event_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    processed_at TIMESTAMP NOT NULL,
    UNIQUE (provider, provider_event_id)
)`,
	`CREATE TABLE IF NOT EXISTS promo_codes (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    max_uses INTEGER NOT NULL,
    uses INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS promo_redemptions (
    account_id TEXT NOT NULL REFERENCES accounts(id),
    promo_code_id TEXT NOT NULL REFERENCES promo_codes(id) ON DELETE CASCADE,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (account_id, promo_code_id)
)`,
}
