package store

// SchemaVersion is the current schema version every freshly created store
// is stamped with (§4.9).
const SchemaVersion = 4

// createTablesSQL matches §6.2 exactly: meta, member, member_name_history,
// message. Indexes are intentionally not part of this statement — §4.4
// step 3 requires the store be created "without secondary indexes" so bulk
// import isn't paying index-maintenance cost on every row.
const createTablesSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	name TEXT NOT NULL,
	platform TEXT NOT NULL,
	type TEXT NOT NULL,
	imported_at INTEGER NOT NULL,
	group_id TEXT,
	group_avatar TEXT,
	owner_id TEXT
);

CREATE TABLE IF NOT EXISTS member (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	platform_id TEXT NOT NULL UNIQUE,
	account_name TEXT NOT NULL DEFAULT '',
	group_nickname TEXT,
	aliases TEXT NOT NULL DEFAULT '[]',
	avatar TEXT
);

CREATE TABLE IF NOT EXISTS member_name_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	member_id INTEGER NOT NULL REFERENCES member(id),
	name_type TEXT NOT NULL CHECK (name_type IN ('account_name', 'group_nickname')),
	name TEXT NOT NULL,
	start_ts INTEGER NOT NULL,
	end_ts INTEGER
);

CREATE TABLE IF NOT EXISTS message (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id INTEGER NOT NULL REFERENCES member(id),
	sender_account_name TEXT NOT NULL DEFAULT '',
	sender_group_nickname TEXT,
	ts INTEGER NOT NULL,
	type INTEGER NOT NULL,
	content TEXT
);

CREATE TABLE IF NOT EXISTS session_index_meta (
	gap_threshold INTEGER NOT NULL DEFAULT 1800,
	built_at INTEGER
);

CREATE TABLE IF NOT EXISTS session_index (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	start_ts INTEGER NOT NULL,
	end_ts INTEGER NOT NULL,
	count INTEGER NOT NULL,
	first_message_id INTEGER NOT NULL
);
`

// secondaryIndexSQL is applied once, after bulk import completes (§4.4
// step 5, §6.2).
const secondaryIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_message_ts ON message(ts);
CREATE INDEX IF NOT EXISTS idx_message_sender_id ON message(sender_id);
CREATE INDEX IF NOT EXISTS idx_member_name_history_member_id ON member_name_history(member_id);
`
