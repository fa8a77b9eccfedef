package store

// migrations is applied in order, each once, tracked in schema_migrations.
// Adding a new migration means appending a statement here -- never editing
// an already-shipped one.
var migrations = []string{
	// v1: users
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		safe_name TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		pw_bcrypt TEXT NOT NULL,
		country TEXT NOT NULL DEFAULT 'xx',
		priv INTEGER NOT NULL DEFAULT 1,
		silence_end INTEGER NOT NULL DEFAULT 0,
		creation_time INTEGER NOT NULL
	)`,
	// v2: per-mode stats
	`CREATE TABLE stats (
		user_id INTEGER NOT NULL,
		mode INTEGER NOT NULL,
		tscore INTEGER NOT NULL DEFAULT 0,
		rscore INTEGER NOT NULL DEFAULT 0,
		pp REAL NOT NULL DEFAULT 0,
		acc REAL NOT NULL DEFAULT 0,
		plays INTEGER NOT NULL DEFAULT 0,
		playtime INTEGER NOT NULL DEFAULT 0,
		max_combo INTEGER NOT NULL DEFAULT 0,
		xh_count INTEGER NOT NULL DEFAULT 0,
		x_count INTEGER NOT NULL DEFAULT 0,
		sh_count INTEGER NOT NULL DEFAULT 0,
		s_count INTEGER NOT NULL DEFAULT 0,
		a_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, mode)
	)`,
	// v3: maps
	`CREATE TABLE maps (
		md5 TEXT PRIMARY KEY,
		map_id INTEGER NOT NULL,
		set_id INTEGER NOT NULL,
		artist TEXT NOT NULL,
		title TEXT NOT NULL,
		version TEXT NOT NULL,
		creator TEXT NOT NULL,
		status INTEGER NOT NULL,
		plays INTEGER NOT NULL DEFAULT 0,
		passes INTEGER NOT NULL DEFAULT 0
	)`,
	// v4: scores. status: 0=failed 1=submitted 2=best
	`CREATE TABLE scores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		map_md5 TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		score INTEGER NOT NULL,
		pp REAL NOT NULL DEFAULT 0,
		acc REAL NOT NULL DEFAULT 0,
		max_combo INTEGER NOT NULL DEFAULT 0,
		mods INTEGER NOT NULL DEFAULT 0,
		n300 INTEGER NOT NULL DEFAULT 0,
		n100 INTEGER NOT NULL DEFAULT 0,
		n50 INTEGER NOT NULL DEFAULT 0,
		ngeki INTEGER NOT NULL DEFAULT 0,
		nkatu INTEGER NOT NULL DEFAULT 0,
		nmiss INTEGER NOT NULL DEFAULT 0,
		grade TEXT NOT NULL DEFAULT 'F',
		status INTEGER NOT NULL,
		mode INTEGER NOT NULL,
		passed INTEGER NOT NULL DEFAULT 0,
		perfect INTEGER NOT NULL DEFAULT 0,
		play_time INTEGER NOT NULL,
		time_elapsed INTEGER NOT NULL DEFAULT 0,
		client_flags INTEGER NOT NULL DEFAULT 0,
		online_checksum TEXT NOT NULL,
		has_replay INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX idx_scores_lookup ON scores (user_id, map_md5, mode)`,
	`CREATE INDEX idx_scores_checksum ON scores (online_checksum, mode)`,
	// v5: client hashes, multi-account detection
	`CREATE TABLE client_hashes (
		user_id INTEGER NOT NULL,
		osu_path_md5 TEXT NOT NULL,
		adapters TEXT NOT NULL,
		adapters_md5 TEXT NOT NULL,
		uninstall_md5 TEXT NOT NULL,
		disk_serial_md5 TEXT NOT NULL,
		occurrences INTEGER NOT NULL DEFAULT 1,
		latest_time INTEGER NOT NULL,
		PRIMARY KEY (user_id, osu_path_md5, adapters_md5, uninstall_md5, disk_serial_md5)
	)`,
	// v6: friendships and blocks
	`CREATE TABLE friendships (
		user_id INTEGER NOT NULL,
		friend_id INTEGER NOT NULL,
		blocked INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, friend_id)
	)`,
	// v7: offline mail
	`CREATE TABLE mail (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_id INTEGER NOT NULL,
		to_id INTEGER NOT NULL,
		msg TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		delivered INTEGER NOT NULL DEFAULT 0
	)`,
	// v8: achievements
	`CREATE TABLE achievements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL
	)`,
	`CREATE TABLE user_achievements (
		user_id INTEGER NOT NULL,
		achievement_id INTEGER NOT NULL,
		awarded_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, achievement_id)
	)`,
	// v9: audit log, auto-purged past 10000 rows same as the teacher's audit table
	`CREATE TABLE audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL DEFAULT 0,
		action TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	// v10: WAL mode for concurrent reader/writer access
	`PRAGMA journal_mode=WAL`,
	// v11: reserve id 1 for the bot account so real registrations start at 2
	`INSERT INTO users (id, name, safe_name, email, pw_bcrypt, country, priv, silence_end, creation_time)
	 VALUES (1, 'BanchoBot', 'banchobot', '', '', 'xx', 11, 0, 0)
	 ON CONFLICT (id) DO NOTHING`,
}
