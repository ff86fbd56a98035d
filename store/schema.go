package store

// schemaSQL is the base DDL. Later changes go through migrations.
const schemaSQL = `
-- One row per processed image
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    image_ref TEXT NOT NULL,
    status TEXT NOT NULL,
    error TEXT DEFAULT '',
    tags JSON NOT NULL DEFAULT '[]',
    tag_count INTEGER NOT NULL DEFAULT 0,
    total_cost REAL NOT NULL DEFAULT 0,
    elapsed_ms INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

-- Audit trail: one row per executed branch call
CREATE TABLE IF NOT EXISTS branch_calls (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL,
    branch TEXT NOT NULL,
    status TEXT NOT NULL,
    instruction TEXT NOT NULL,
    response TEXT DEFAULT '',
    prompt_tokens INTEGER DEFAULT 0,
    completion_tokens INTEGER DEFAULT 0,
    cost REAL DEFAULT 0,
    elapsed_ms INTEGER DEFAULT 0,
    error TEXT DEFAULT '',
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_branch_calls_run ON branch_calls(run_id);
`
