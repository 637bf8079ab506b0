package database

const schema = `
CREATE TABLE IF NOT EXISTS mail_accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL UNIQUE,
    email TEXT NOT NULL,
    password TEXT NOT NULL,
    imap_server TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_emails (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    category TEXT NOT NULL,
    provider_message_id TEXT NOT NULL,
    from_addr TEXT NOT NULL DEFAULT '',
    from_name TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    body_text TEXT NOT NULL DEFAULT '',
    body_html TEXT NOT NULL DEFAULT '',
    snippet TEXT NOT NULL DEFAULT '',
    received_at DATETIME NOT NULL,
    processed BOOLEAN NOT NULL DEFAULT false,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    UNIQUE(user_id, provider_message_id)
);

CREATE TABLE IF NOT EXISTS transactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    email_id INTEGER NOT NULL DEFAULT 0,
    provider_message_id TEXT NOT NULL,
    merchant_raw TEXT NOT NULL DEFAULT '',
    merchant_key TEXT NOT NULL DEFAULT '',
    vpa TEXT NOT NULL DEFAULT '',
    transaction_mode TEXT NOT NULL DEFAULT '',
    amount NUMERIC NOT NULL,
    transaction_type TEXT NOT NULL,
    transaction_date DATETIME NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    subcategory TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    categorization_method TEXT NOT NULL DEFAULT 'heuristic',
    requires_review BOOLEAN NOT NULL DEFAULT false,
    category_metadata TEXT NOT NULL DEFAULT '{}',
    card_last4 TEXT NOT NULL DEFAULT '',
    card_name TEXT NOT NULL DEFAULT '',
    manually_edited BOOLEAN NOT NULL DEFAULT false,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    UNIQUE(user_id, provider_message_id, merchant_raw, amount, transaction_date)
);

CREATE TABLE IF NOT EXISTS statements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    email_id INTEGER NOT NULL DEFAULT 0,
    provider_message_id TEXT NOT NULL,
    card_last4 TEXT NOT NULL DEFAULT '',
    bank TEXT NOT NULL DEFAULT '',
    statement_date DATETIME NOT NULL,
    due_date DATETIME NOT NULL,
    total_due NUMERIC NOT NULL,
    minimum_due NUMERIC NOT NULL,
    created_at DATETIME NOT NULL,
    UNIQUE(user_id, provider_message_id)
);

CREATE TABLE IF NOT EXISTS merchant_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    merchant TEXT NOT NULL COLLATE NOCASE,
    category TEXT NOT NULL,
    subcategory TEXT NOT NULL DEFAULT '',
    category_metadata TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    UNIQUE(user_id, merchant)
);

CREATE TABLE IF NOT EXISTS sync_jobs (
    id TEXT PRIMARY KEY,
    user_id INTEGER NOT NULL,
    kind TEXT NOT NULL,
    category TEXT NOT NULL,
    query TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    total_emails INTEGER NOT NULL DEFAULT 0,
    processed_emails INTEGER NOT NULL DEFAULT 0,
    new_emails INTEGER NOT NULL DEFAULT 0,
    transactions INTEGER NOT NULL DEFAULT 0,
    statements INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    started_at DATETIME NOT NULL,
    completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_emails_user_category ON raw_emails(user_id, category, id);
CREATE INDEX IF NOT EXISTS idx_tx_user_date ON transactions(user_id, transaction_date);
CREATE INDEX IF NOT EXISTS idx_tx_user_merchant ON transactions(user_id, merchant_key);
CREATE INDEX IF NOT EXISTS idx_tx_user_card ON transactions(user_id, card_last4, transaction_date);
CREATE INDEX IF NOT EXISTS idx_jobs_user ON sync_jobs(user_id, started_at);
`
