package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var (
	// ErrChannelExists indicates a salon with that name is already registered.
	ErrChannelExists = errors.New("salon already exists")
	// ErrChannelNotFound indicates no salon with that name is registered.
	ErrChannelNotFound = errors.New("salon not found")
	// ErrUserExists indicates the username is already taken.
	ErrUserExists = errors.New("user already exists")
)

// DB wraps the SQLite database connection
type DB struct {
	conn      *sql.DB // Read connection pool
	writeConn *sql.DB // Dedicated write connection (1 connection)
}

// Open opens a connection to the SQLite database at the given path
// and initializes the schema if needed
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Allow multiple readers in WAL mode
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := applyPragmas(conn); err != nil {
		conn.Close()
		return nil, err
	}

	// Dedicated write connection: exactly 1 connection, no pooling
	// (SQLite allows multiple readers but only one writer)
	writeConn, err := sql.Open("sqlite", path)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open write connection: %w", err)
	}
	writeConn.SetMaxOpenConns(1)
	writeConn.SetMaxIdleConns(1)
	writeConn.SetConnMaxLifetime(0)

	if err := applyPragmas(writeConn); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, err
	}

	db := &DB{
		conn:      conn,
		writeConn: writeConn,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		writeConn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// applyPragmas configures a connection for concurrent access
func applyPragmas(conn *sql.DB) error {
	// WAL allows multiple readers and one writer at the same time
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Wait and retry instead of immediately failing with SQLITE_BUSY
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// SQLite has foreign keys disabled by default
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := conn.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		return fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	return nil
}

// Close closes the database connections
func (db *DB) Close() error {
	db.writeConn.Close()
	return db.conn.Close()
}

// initSchema creates all tables and indexes if they don't exist
func (db *DB) initSchema() error {
	schema := `
-- User accounts
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'user',
	created_at INTEGER NOT NULL
);

-- Salons (broadcast channels)
CREATE TABLE IF NOT EXISTS salons (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);

-- Broadcast message log
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	salon_id INTEGER,
	username TEXT NOT NULL,
	message TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (salon_id) REFERENCES salons(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_salon ON messages(salon_id, created_at);
`

	_, err := db.conn.Exec(schema)
	return err
}

// User represents a user account row
type User struct {
	ID           int64
	Username     string
	PasswordHash string // bcrypt hash
	Role         string // "user" or "admin"
	CreatedAt    int64  // Unix timestamp in milliseconds
}

// nowMillis returns current time as Unix timestamp in milliseconds
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// CreateUser inserts a user account with a bcrypt-hashed password
func (db *DB) CreateUser(username, password, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	result, err := db.writeConn.Exec(`
		INSERT OR IGNORE INTO users (username, password_hash, role, created_at)
		VALUES (?, ?, ?, ?)
	`, username, string(hash), role, nowMillis())
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserExists
	}

	return nil
}

// FindUser returns the user row for a username, or nil if none exists
func (db *DB) FindUser(username string) (*User, error) {
	u := &User{}
	err := db.conn.QueryRow(`
		SELECT id, username, password_hash, role, created_at
		FROM users WHERE username = ?
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate checks a username/password pair against the user table.
// Returns whether the credentials match and whether the user holds the
// admin role. An unknown username is not an error, just a failed match.
func (db *DB) Authenticate(username, password string) (ok bool, isAdmin bool, err error) {
	user, err := db.FindUser(username)
	if err != nil {
		return false, false, err
	}
	if user == nil {
		return false, false, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return false, false, nil
	}

	return true, user.Role == "admin", nil
}

// ChannelExists reports whether a salon with the given name is registered
func (db *DB) ChannelExists(name string) (bool, error) {
	var one int
	err := db.conn.QueryRow(`SELECT 1 FROM salons WHERE name = ?`, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertChannel registers a new salon name
func (db *DB) InsertChannel(name string) error {
	result, err := db.writeConn.Exec(`
		INSERT OR IGNORE INTO salons (name, created_at) VALUES (?, ?)
	`, name, nowMillis())
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrChannelExists
	}

	return nil
}

// DeleteChannel removes a salon record. Messages referencing it are
// removed by the ON DELETE CASCADE foreign key.
func (db *DB) DeleteChannel(name string) error {
	result, err := db.writeConn.Exec(`DELETE FROM salons WHERE name = ?`, name)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrChannelNotFound
	}

	return nil
}

// ListChannelNames returns all salon names in store iteration order
func (db *DB) ListChannelNames() ([]string, error) {
	rows, err := db.conn.Query(`SELECT name FROM salons`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// InsertMessage stores a broadcast message tagged with its salon and sender
func (db *DB) InsertMessage(salon, username, message string) error {
	_, err := db.writeConn.Exec(`
		INSERT INTO messages (salon_id, username, message, created_at)
		VALUES ((SELECT id FROM salons WHERE name = ?), ?, ?, ?)
	`, salon, username, message, nowMillis())
	return err
}

// DeleteChannelMessages removes every stored message for a salon
func (db *DB) DeleteChannelMessages(salon string) error {
	_, err := db.writeConn.Exec(`
		DELETE FROM messages WHERE salon_id = (SELECT id FROM salons WHERE name = ?)
	`, salon)
	return err
}

// DeleteAllMessages wipes the message log (server shutdown)
func (db *DB) DeleteAllMessages() error {
	_, err := db.writeConn.Exec(`DELETE FROM messages`)
	return err
}

// CountChannelMessages returns the number of stored messages for a salon
func (db *DB) CountChannelMessages(salon string) (int, error) {
	var count int
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM messages WHERE salon_id = (SELECT id FROM salons WHERE name = ?)
	`, salon).Scan(&count)
	return count, err
}
