package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the journal tables. Times are Unix nanoseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS turns (
    id TEXT PRIMARY KEY,
    log_id TEXT NOT NULL,
    product TEXT NOT NULL,
    domain TEXT NOT NULL DEFAULT '',
    intent TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    error TEXT,
    output TEXT,
    output_hash TEXT,
    version TEXT,
    duration_us INTEGER NOT NULL DEFAULT 0,
    recorded_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turns_recorded_at ON turns(recorded_at);
CREATE INDEX IF NOT EXISTS idx_turns_log_id ON turns(log_id);
CREATE INDEX IF NOT EXISTS idx_turns_product_domain ON turns(product, domain);
CREATE INDEX IF NOT EXISTS idx_turns_outcome ON turns(outcome);
`

const insertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

const getSchemaVersion = `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;`

const turnColumns = `id, log_id, product, domain, intent, state, outcome, error, output, output_hash, version, duration_us, recorded_at`
