package imagepulse

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    image      TEXT NOT NULL,
    outcome    TEXT NOT NULL CHECK (outcome IN ('success', 'failure')),
    detail     TEXT,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS counters (
    image     TEXT PRIMARY KEY,
    total     INTEGER NOT NULL DEFAULT 0 CHECK (total >= 0),
    success   INTEGER NOT NULL DEFAULT 0 CHECK (success >= 0),
    failure   INTEGER NOT NULL DEFAULT 0 CHECK (failure >= 0),
    last_seen TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
    id               TEXT PRIMARY KEY,
    image            TEXT NOT NULL,
    status           TEXT NOT NULL DEFAULT 'queued',
    result           TEXT,
    error_detail     TEXT,
    retry_count      INTEGER NOT NULL DEFAULT 0,
    priority         INTEGER NOT NULL DEFAULT 0,
    created_at       TEXT NOT NULL,
    started_at       TEXT,
    finished_at      TEXT,
    last_heartbeat   TEXT,
    lease_expires_at INTEGER
);

CREATE TABLE IF NOT EXISTS job_metrics (
    job_id      TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    key         TEXT NOT NULL,
    value       REAL,
    unit        TEXT,
    labels_json TEXT,
    created_at  TEXT NOT NULL,
    UNIQUE (job_id, key)
);

CREATE INDEX IF NOT EXISTS idx_events_image ON events(image);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_lease ON jobs(lease_expires_at);
CREATE INDEX IF NOT EXISTS idx_job_metrics_job ON job_metrics(job_id);
CREATE INDEX IF NOT EXISTS idx_job_metrics_created_at ON job_metrics(created_at DESC);
`
