package schema

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// CurrentVersion is the current schema version.
//
// Version history:
//
//	1: messages, listings, profiles, sessions, conversation_settings
//	2: listing_sequences (thread_order counter), message_hides, notifications
const CurrentVersion = 2

// InitDB initializes a new database with the current schema.
func InitDB(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := createVersionTable(tx); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	if err := createTables(tx); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	if err := createIndexes(tx); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}

	if err := setSchemaVersion(tx, CurrentVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

func createVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// v1Tables are the tables of the first schema version.
var v1Tables = []string{
	// parent_message_id is a plain reference: deleting a parent never
	// touches its replies.
	`CREATE TABLE IF NOT EXISTS messages (
		id                TEXT PRIMARY KEY,
		listing_id        TEXT NOT NULL,
		sender_id         TEXT NOT NULL,
		recipient_id      TEXT NOT NULL,
		message_text      TEXT NOT NULL,
		message_type      TEXT NOT NULL DEFAULT 'text',
		parent_message_id TEXT,
		thread_id         TEXT NOT NULL DEFAULT '',
		thread_depth      INTEGER NOT NULL DEFAULT 0,
		thread_order      INTEGER NOT NULL DEFAULT 0,
		is_read           INTEGER NOT NULL DEFAULT 0,
		read_at           TEXT,
		is_deleted        INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS listings (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		title      TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS profiles (
		user_id           TEXT PRIMARY KEY,
		display_name      TEXT NOT NULL,
		profile_image_url TEXT NOT NULL DEFAULT '',
		updated_at        TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		token      TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES profiles(user_id) ON DELETE CASCADE
	)`,

	// Archive overlay: one row per (owner, conversation).
	`CREATE TABLE IF NOT EXISTS conversation_settings (
		user_id       TEXT NOT NULL,
		listing_id    TEXT NOT NULL,
		other_user_id TEXT NOT NULL,
		is_archived   INTEGER NOT NULL DEFAULT 0,
		updated_at    TEXT NOT NULL,
		PRIMARY KEY (user_id, listing_id, other_user_id)
	)`,
}

// v2Tables are the tables added in version 2.
var v2Tables = []string{
	// Per-listing thread_order counter. last_order only ever grows, so
	// orders are never reused after deletes.
	`CREATE TABLE IF NOT EXISTS listing_sequences (
		listing_id TEXT PRIMARY KEY,
		last_order INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS message_hides (
		message_id TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		hidden_at  TEXT NOT NULL,
		PRIMARY KEY (message_id, user_id),
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		kind       TEXT NOT NULL,
		message_id TEXT,
		listing_id TEXT,
		sender_id  TEXT,
		preview    TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		read_at    TEXT
	)`,
}

var v1Indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id, created_at)",
	"CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_id, created_at)",
	"CREATE INDEX IF NOT EXISTS idx_messages_listing ON messages(listing_id, thread_order)",
	"CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id)",
	"CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages(parent_message_id)",
	"CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)",
	"CREATE INDEX IF NOT EXISTS idx_listings_user ON listings(user_id)",
}

var v2Indexes = []string{
	// Legacy rows may carry thread_order 0; everything assigned by the
	// counter is unique within its listing.
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_listing_order ON messages(listing_id, thread_order) WHERE thread_order > 0",
	"CREATE INDEX IF NOT EXISTS idx_message_hides_user ON message_hides(user_id)",
	"CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at)",
	"CREATE INDEX IF NOT EXISTS idx_notifications_message ON notifications(message_id)",
}

func createTables(tx *sql.Tx) error {
	for _, group := range [][]string{v1Tables, v2Tables} {
		for _, stmt := range group {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("create table: %w", err)
			}
		}
	}
	return nil
}

func createIndexes(tx *sql.Tx) error {
	for _, group := range [][]string{v1Indexes, v2Indexes} {
		for _, stmt := range group {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("create index: %w", err)
			}
		}
	}
	return nil
}

// OpenDB opens a SQLite database connection.
//
// foreign_keys and busy_timeout are per-connection settings, so they go in
// the DSN where the driver applies them to every pooled connection. Write
// transactions take the write lock up front (_txlock=immediate) so two
// senders on the same listing never deadlock upgrading a read lock.
func OpenDB(path string) (*sql.DB, error) {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_txlock", "immediate")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA wal_autocheckpoint = 1000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set wal autocheckpoint: %w", err)
	}

	return db, nil
}

// Migrate migrates the database to the current schema version.
func Migrate(db *sql.DB) error {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return InitDB(db)
	}
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	if currentVersion == 0 {
		return InitDB(db)
	}

	if currentVersion > CurrentVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, CurrentVersion)
	}

	if currentVersion < CurrentVersion {
		if err := runMigrations(db, currentVersion, CurrentVersion); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	return nil
}

// runMigrations runs all migrations from startVersion to endVersion.
func runMigrations(db *sql.DB, startVersion, endVersion int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Migration from version 1 to 2: thread_order counter, per-user hides,
	// notifications.
	if startVersion < 2 && endVersion >= 2 {
		for _, stmt := range v2Tables {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("create v2 table: %w", err)
			}
		}

		// Seed counters from surviving rows so new orders start above them.
		_, err = tx.Exec(`
			INSERT INTO listing_sequences (listing_id, last_order)
			SELECT listing_id, MAX(thread_order) FROM messages
			GROUP BY listing_id
			HAVING MAX(thread_order) > 0
		`)
		if err != nil {
			return fmt.Errorf("seed listing_sequences: %w", err)
		}

		// Version 1 soft-deleted globally; carry that over as a hide for
		// both participants so the rows stay invisible to each of them.
		_, err = tx.Exec(`
			INSERT OR IGNORE INTO message_hides (message_id, user_id, hidden_at)
			SELECT id, sender_id, updated_at FROM messages WHERE is_deleted = 1
			UNION
			SELECT id, recipient_id, updated_at FROM messages WHERE is_deleted = 1
		`)
		if err != nil {
			return fmt.Errorf("backfill message_hides: %w", err)
		}

		for _, stmt := range v2Indexes {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("create v2 index: %w", err)
			}
		}
	}

	if err := setSchemaVersion(tx, endVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// HasTable reports whether the named table exists.
func HasTable(db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return n > 0, nil
}
