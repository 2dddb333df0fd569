package store

// SchemaVersion is the current local database schema version.
const SchemaVersion = 1

// Every synchronized table carries the same sync columns: external_id is the
// cross-replica join key, dirty marks unacknowledged local changes, deleted is
// a tombstone that must survive until the server acknowledges it.
const localSchema = `
CREATE TABLE IF NOT EXISTS clients (
    local_id INTEGER PRIMARY KEY AUTOINCREMENT,
    external_id TEXT UNIQUE NOT NULL,
    business_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    dirty INTEGER NOT NULL DEFAULT 1,
    deleted INTEGER NOT NULL DEFAULT 0,
    sync_status TEXT NOT NULL DEFAULT 'pending' CHECK(sync_status IN ('pending','synced','error'))
);
CREATE INDEX IF NOT EXISTS idx_clients_dirty ON clients(dirty);
CREATE INDEX IF NOT EXISTS idx_clients_business ON clients(business_id);

CREATE TABLE IF NOT EXISTS products (
    local_id INTEGER PRIMARY KEY AUTOINCREMENT,
    external_id TEXT UNIQUE NOT NULL,
    business_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    dirty INTEGER NOT NULL DEFAULT 1,
    deleted INTEGER NOT NULL DEFAULT 0,
    sync_status TEXT NOT NULL DEFAULT 'pending' CHECK(sync_status IN ('pending','synced','error'))
);
CREATE INDEX IF NOT EXISTS idx_products_dirty ON products(dirty);
CREATE INDEX IF NOT EXISTS idx_products_business ON products(business_id);

CREATE TABLE IF NOT EXISTS sessions (
    local_id INTEGER PRIMARY KEY AUTOINCREMENT,
    external_id TEXT UNIQUE NOT NULL,
    business_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    dirty INTEGER NOT NULL DEFAULT 1,
    deleted INTEGER NOT NULL DEFAULT 0,
    sync_status TEXT NOT NULL DEFAULT 'pending' CHECK(sync_status IN ('pending','synced','error'))
);
CREATE INDEX IF NOT EXISTS idx_sessions_dirty ON sessions(dirty);
CREATE INDEX IF NOT EXISTS idx_sessions_business ON sessions(business_id);

CREATE TABLE IF NOT EXISTS counted_items (
    local_id INTEGER PRIMARY KEY AUTOINCREMENT,
    external_id TEXT UNIQUE NOT NULL,
    business_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    dirty INTEGER NOT NULL DEFAULT 1,
    deleted INTEGER NOT NULL DEFAULT 0,
    sync_status TEXT NOT NULL DEFAULT 'pending' CHECK(sync_status IN ('pending','synced','error'))
);
CREATE INDEX IF NOT EXISTS idx_counted_items_dirty ON counted_items(dirty);
CREATE INDEX IF NOT EXISTS idx_counted_items_business ON counted_items(business_id);

-- Pull watermark, one row per tenant. Advanced only after a pull page is
-- fully applied.
CREATE TABLE IF NOT EXISTS sync_state (
    business_id TEXT PRIMARY KEY,
    last_pulled_at INTEGER NOT NULL DEFAULT 0,
    last_sync_at DATETIME
);

-- Durable retryable side-effect queue, managed by the outbox package but
-- created here so the whole local database has a single schema owner.
CREATE TABLE IF NOT EXISTS outbox (
    task_id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    payload TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'pending' CHECK(state IN ('pending','in_flight','done','failed')),
    attempts INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL DEFAULT 3,
    last_error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_outbox_state ON outbox(state);

CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
