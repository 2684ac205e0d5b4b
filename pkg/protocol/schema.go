package protocol

// SchemaDDL defines the SQLite schema for the offload state database.
// Tables: packages, feedback, events.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Work packages, persisted at creation so a crash does not lose them
CREATE TABLE IF NOT EXISTS packages (
    id TEXT PRIMARY KEY,
    task_type TEXT NOT NULL,
    description TEXT NOT NULL,
    command TEXT,
    payload TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Append-only feedback log; aggregates are recomputed from it
CREATE TABLE IF NOT EXISTS feedback (
    id INTEGER PRIMARY KEY,
    package_id TEXT,
    task_type TEXT NOT NULL,
    model TEXT NOT NULL,
    decision TEXT NOT NULL,
    improvements TEXT DEFAULT '[]',
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS feedback_task_model ON feedback(task_type, model);

-- Block edits and deletes on the feedback log
CREATE TRIGGER IF NOT EXISTS feedback_no_update BEFORE UPDATE ON feedback BEGIN
    SELECT RAISE(ABORT, 'feedback is append-only');
END;

CREATE TRIGGER IF NOT EXISTS feedback_no_delete BEFORE DELETE ON feedback BEGIN
    SELECT RAISE(ABORT, 'feedback is append-only');
END;

-- Pipeline lifecycle event log
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    package_id TEXT,
    payload TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`
