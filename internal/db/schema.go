package db

// Detections are candidate charges parsed from mailbox receipts, pending
// user review. Subscriptions are the tracked records a user accepted (or
// created by hand). The (source, raw_id) pair is the ingestion idempotency
// key: one detection per source message, ever.
const schema = `
CREATE TABLE IF NOT EXISTS detections (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    raw_id TEXT NOT NULL,
    merchant_raw TEXT NOT NULL,
    merchant_id TEXT,
    amount REAL,
    currency TEXT,
    occurred_at DATETIME NOT NULL,
    cadence TEXT NOT NULL DEFAULT '',
    confidence INTEGER NOT NULL DEFAULT 0,
    subject TEXT NOT NULL DEFAULT '',
    dismissed BOOLEAN NOT NULL DEFAULT 0,
    resolved_to_subscription_id TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(source, raw_id),
    FOREIGN KEY(merchant_id) REFERENCES merchants(id)
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id TEXT PRIMARY KEY,
    service TEXT NOT NULL,
    plan TEXT,
    price REAL,
    next_date DATETIME,
    manage_url TEXT,
    canceled BOOLEAN NOT NULL DEFAULT 0,
    created_from_detection_id TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Canonical merchant registry; aliases is a JSON array of raw names seen
-- for this merchant.
CREATE TABLE IF NOT EXISTS merchants (
    id TEXT PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    aliases TEXT NOT NULL DEFAULT '[]'
);

-- Settings table (ingest bookkeeping, preferences)
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_detections_occurred ON detections(occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_detections_pending ON detections(dismissed, resolved_to_subscription_id);
CREATE INDEX IF NOT EXISTS idx_subscriptions_next_date ON subscriptions(next_date);
CREATE INDEX IF NOT EXISTS idx_subscriptions_canceled ON subscriptions(canceled);
`
