package db

const schema = `
-- One row per invocation of the converter
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    input_dir TEXT NOT NULL,
    output_dir TEXT NOT NULL,
    attachments_dir TEXT NOT NULL DEFAULT '',
    extract BOOLEAN DEFAULT 0,
    converted INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    attachments INTEGER DEFAULT 0,
    started_at DATETIME,
    finished_at DATETIME
);

-- Latest outcome per source file
CREATE TABLE IF NOT EXISTS conversions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    source_path TEXT UNIQUE NOT NULL,
    output_path TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    error_message TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    html_only BOOLEAN DEFAULT 0,
    warning_count INTEGER DEFAULT 0,
    attachment_count INTEGER DEFAULT 0,
    converted_at DATETIME,
    FOREIGN KEY(run_id) REFERENCES runs(id)
);

-- Attachments listed in a conversion, saved or not
CREATE TABLE IF NOT EXISTS attachments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversion_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    saved_name TEXT NOT NULL DEFAULT '',
    saved_path TEXT NOT NULL DEFAULT '',
    content_type TEXT NOT NULL DEFAULT '',
    size INTEGER DEFAULT 0,
    write_error TEXT NOT NULL DEFAULT '',
    FOREIGN KEY(conversion_id) REFERENCES conversions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_conversions_run ON conversions(run_id);
CREATE INDEX IF NOT EXISTS idx_conversions_converted_at ON conversions(converted_at DESC);
CREATE INDEX IF NOT EXISTS idx_attachments_conversion ON attachments(conversion_id);
CREATE INDEX IF NOT EXISTS idx_attachments_saved_path ON attachments(saved_path);
`
