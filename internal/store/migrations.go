package store

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS scheduled_sends (
			id TEXT PRIMARY KEY,
			draft_reference TEXT NOT NULL,
			owner TEXT NOT NULL,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			scheduled_at INTEGER NOT NULL,
			status TEXT NOT NULL,
			credentials BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			sent_at INTEGER,
			provider_message_id TEXT,
			failed_at INTEGER,
			error_detail TEXT,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_scheduled_sends_status ON scheduled_sends(status);
		CREATE INDEX IF NOT EXISTS idx_scheduled_sends_owner ON scheduled_sends(owner, status);

		CREATE TABLE IF NOT EXISTS mediator_sessions (
			session_id TEXT PRIMARY KEY,
			state_json TEXT NOT NULL,
			transcript_json TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_mediator_sessions_updated ON mediator_sessions(updated_at);

		CREATE TABLE IF NOT EXISTS relations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner TEXT NOT NULL,
			relation TEXT NOT NULL,
			email TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(owner, relation, email)
		);

		CREATE TABLE IF NOT EXISTS users (
			email TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			picture TEXT NOT NULL DEFAULT '',
			last_seen_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS auth_sessions (
			session_id TEXT PRIMARY KEY,
			owner_email TEXT NOT NULL DEFAULT '',
			owner_name TEXT NOT NULL DEFAULT '',
			picture TEXT NOT NULL DEFAULT '',
			credentials BLOB,
			oauth_state TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		`,
	},
}
