package serverdb

// ServerSchemaVersion is the current server database schema version
const ServerSchemaVersion = 1

const serverSchema = `
-- Businesses table
CREATE TABLE IF NOT EXISTS businesses (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- API keys table
CREATE TABLE IF NOT EXISTS api_keys (
    id TEXT PRIMARY KEY,
    business_id TEXT NOT NULL,
    key_hash TEXT UNIQUE NOT NULL,
    key_prefix TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    expires_at DATETIME,
    last_used_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (business_id) REFERENCES businesses(id) ON DELETE CASCADE
);

-- Synchronized entity tables. One row per record, tombstones kept so other
-- devices can pull deletions.
CREATE TABLE IF NOT EXISTS clients (
    external_id TEXT PRIMARY KEY,
    business_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (business_id) REFERENCES businesses(id)
);

CREATE TABLE IF NOT EXISTS products (
    external_id TEXT PRIMARY KEY,
    business_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (business_id) REFERENCES businesses(id)
);

CREATE TABLE IF NOT EXISTS sessions (
    external_id TEXT PRIMARY KEY,
    business_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (business_id) REFERENCES businesses(id)
);

CREATE TABLE IF NOT EXISTS counted_items (
    external_id TEXT PRIMARY KEY,
    business_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (business_id) REFERENCES businesses(id)
);

-- Sync cursors table
CREATE TABLE IF NOT EXISTS sync_cursors (
    business_id TEXT NOT NULL,
    device_id TEXT NOT NULL,
    last_pushed_at INTEGER NOT NULL DEFAULT 0,
    last_sync_at DATETIME,
    PRIMARY KEY (business_id, device_id),
    FOREIGN KEY (business_id) REFERENCES businesses(id)
);

-- Connection requests table. A business issues a request so a counter
-- device can deliver captured items back to it.
CREATE TABLE IF NOT EXISTS connection_requests (
    id TEXT PRIMARY KEY,
    business_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open', 'fulfilled', 'cancelled')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    fulfilled_at DATETIME,
    FOREIGN KEY (business_id) REFERENCES businesses(id)
);

-- Schema info table
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_api_keys_business ON api_keys(business_id);
CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix);
CREATE INDEX IF NOT EXISTS idx_clients_changed ON clients(business_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_products_changed ON products(business_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_sessions_changed ON sessions(business_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_counted_items_changed ON counted_items(business_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_requests_business ON connection_requests(business_id);
`

// Migration defines a server database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations lists schema changes beyond the base schema, in version order.
var Migrations = []Migration{}
