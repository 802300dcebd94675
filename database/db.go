package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
)

// Supported drivers. DriverSQLitePure is the cgo-free SQLite build.
const (
	DriverSQLite     = "sqlite3"
	DriverSQLitePure = "sqlite"
	DriverPostgres   = "postgres"
)

const (
	defaultBusyTimeout   = 5000
	sqliteConstraintCode = 19
)

// Store wraps the SQL handle and exposes the queries used by the server.
// The same queries run on SQLite and PostgreSQL; placeholders are written
// as ? and rebound for PostgreSQL.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and verifies the connection. Call Migrate
// before use and Close when done.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = "duochat.db"
		}
		dsn = sqliteDSN(dsn)
	case DriverSQLitePure:
		if dsn == "" {
			dsn = "duochat.db"
		}
		dsn = pureSQLiteDSN(dsn)
	case DriverPostgres:
		if dsn == "" {
			return nil, errors.New("DATABASE_URL is required for postgres")
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver != DriverPostgres {
		// SQLite serialises writers anyway; one connection also keeps
		// shared-cache in-memory databases alive between queries.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(1 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver reports which dialect the store speaks.
func (s *Store) Driver() string {
	return s.driver
}

func sqliteDSN(path string) string {
	path, separator := sqlitePath(path)
	return fmt.Sprintf("%s%s_foreign_keys=on&_busy_timeout=%d", path, separator, defaultBusyTimeout)
}

func pureSQLiteDSN(path string) string {
	path, separator := sqlitePath(path)
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=foreign_keys=ON", path, separator, defaultBusyTimeout)
}

func sqlitePath(path string) (string, string) {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
	default:
		path = "file:" + path
	}
	if strings.Contains(path, "?") {
		return path, "&"
	}
	return path, "?"
}

// Migrate creates the tables and indexes for the current dialect.
func (s *Store) Migrate(ctx context.Context) (err error) {
	statements := sqliteSchema
	if s.driver == DriverPostgres {
		statements = postgresSchema
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		unique_id TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_online BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen DATETIME,
		created_at DATETIME NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS contacts (
		owner_id INTEGER NOT NULL,
		contact_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (owner_id, contact_id),
		FOREIGN KEY(owner_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY(contact_id) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL,
		receiver_id INTEGER NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		FOREIGN KEY(sender_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY(receiver_id) REFERENCES users(id) ON DELETE CASCADE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver_id, sender_id, is_read);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		unique_id TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_online BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS contacts (
		owner_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		contact_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (owner_id, contact_id)
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		sender_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		receiver_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		body TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver_id, sender_id, is_read);`,
}

// rebind rewrites ? placeholders into $1, $2, ... for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pureErr *sqlite.Error
	if errors.As(err, &pureErr) {
		// extended codes keep the primary code in the low byte
		return pureErr.Code()&0xff == sqliteConstraintCode
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
