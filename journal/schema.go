package journal

// Decimal columns are TEXT so values round-trip exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS positions (
	position_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	size TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	exit_price TEXT NOT NULL,
	take_profit TEXT NOT NULL,
	stop_loss TEXT NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	realized_pl TEXT NOT NULL,
	reason TEXT NOT NULL,
	unprotected INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS events (
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	position_id TEXT NOT NULL,
	type TEXT NOT NULL,
	detail TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_positions_close_time ON positions(close_time);
CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
`
