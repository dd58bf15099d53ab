package sqlite

// Market, position and fee schedule rows keep the full record as JSON in
// data; the other columns exist for lookups and ordering. Ids are stored
// zero-padded so text order matches numeric order across the whole u64
// range, and amounts are decimal text for the same reason.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS fee_schedule (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS markets (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    creator TEXT NOT NULL,
    data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_markets_status ON markets(status);
CREATE INDEX IF NOT EXISTS idx_markets_creator ON markets(creator);

CREATE TABLE IF NOT EXISTS positions (
    market_id TEXT NOT NULL REFERENCES markets(id),
    user_id TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    data TEXT NOT NULL,
    PRIMARY KEY (market_id, user_id)
);

CREATE TABLE IF NOT EXISTS balances (
    account TEXT PRIMARY KEY,
    amount TEXT NOT NULL
);
`
