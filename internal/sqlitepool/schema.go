package sqlitepool

// Schema holds every table used by the stores. One database file serves both.
const Schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id  TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	state      BLOB NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS step_logs (
	run_id    TEXT NOT NULL,
	step      INTEGER NOT NULL,
	status    TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	payload   TEXT NOT NULL,
	PRIMARY KEY (run_id, step)
);
`
