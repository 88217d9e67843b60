package store

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS project_records (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	received_at DATETIME,
	remark      TEXT NOT NULL DEFAULT '',
	country     INTEGER NOT NULL DEFAULT 1,
	skills      TEXT NOT NULL DEFAULT '',
	price       INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS technician_records (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	received_at DATETIME,
	remark      TEXT NOT NULL DEFAULT '',
	country     INTEGER NOT NULL DEFAULT 1,
	skills      TEXT NOT NULL DEFAULT '',
	price       INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS harvest_ledger (
	id          TEXT PRIMARY KEY,
	received_at DATETIME
);

CREATE TABLE IF NOT EXISTS sent_email_logs (
	message_id  TEXT PRIMARY KEY,
	thread_id   TEXT NOT NULL DEFAULT '',
	sent_at     DATETIME NOT NULL,
	to_addrs    TEXT NOT NULL DEFAULT '',
	cc_addrs    TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	attachments TEXT NOT NULL DEFAULT '[]',
	mail_type   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_project_records_received ON project_records (received_at);
CREATE INDEX IF NOT EXISTS idx_technician_records_country ON technician_records (country, received_at);
CREATE INDEX IF NOT EXISTS idx_sent_email_logs_sent ON sent_email_logs (sent_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS project_records (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	received_at TIMESTAMPTZ,
	remark      TEXT NOT NULL DEFAULT '',
	country     INTEGER NOT NULL DEFAULT 1,
	skills      TEXT NOT NULL DEFAULT '',
	price       INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS technician_records (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	received_at TIMESTAMPTZ,
	remark      TEXT NOT NULL DEFAULT '',
	country     INTEGER NOT NULL DEFAULT 1,
	skills      TEXT NOT NULL DEFAULT '',
	price       INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS harvest_ledger (
	id          TEXT PRIMARY KEY,
	received_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS sent_email_logs (
	message_id  TEXT PRIMARY KEY,
	thread_id   TEXT NOT NULL DEFAULT '',
	sent_at     TIMESTAMPTZ NOT NULL,
	to_addrs    TEXT NOT NULL DEFAULT '',
	cc_addrs    TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	attachments TEXT NOT NULL DEFAULT '[]',
	mail_type   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_project_records_received ON project_records (received_at);
CREATE INDEX IF NOT EXISTS idx_technician_records_country ON technician_records (country, received_at);
CREATE INDEX IF NOT EXISTS idx_sent_email_logs_sent ON sent_email_logs (sent_at);
`
