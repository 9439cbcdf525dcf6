// Package storage handles data persistence: the SQL database (SQLite by
// default, Postgres optionally) and receipt images on the filesystem.
package storage

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // registers the "postgres" driver
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
)

// ErrNotFound is returned when a row doesn't exist (or belongs to another user).
// Callers check with errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("not found")

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// The schema is baked into the binary; there are no migration files to ship.
// Ids are application-generated UUIDs so both drivers share one insert path.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS provider_configs (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    provider    TEXT NOT NULL,
    api_key     TEXT NOT NULL DEFAULT '',
    is_active   BOOLEAN NOT NULL DEFAULT 1,
    priority    INTEGER NOT NULL DEFAULT 1,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (user_id, provider)
);

CREATE TABLE IF NOT EXISTS llm_calls (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    provider      TEXT NOT NULL,
    model         TEXT NOT NULL,
    operation     TEXT NOT NULL,
    success       BOOLEAN NOT NULL DEFAULT 0,
    duration_ms   INTEGER,
    error_message TEXT,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS transactions (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    project_id       TEXT NOT NULL,
    amount           REAL NOT NULL,
    type             TEXT NOT NULL,
    category         TEXT NOT NULL,
    subcategory      TEXT NOT NULL DEFAULT '',
    description      TEXT NOT NULL DEFAULT '',
    vendor_name      TEXT NOT NULL DEFAULT '',
    payment_method   TEXT NOT NULL DEFAULT '',
    transaction_date TEXT NOT NULL,
    receipt_id       TEXT NOT NULL DEFAULT '',
    is_verified      BOOLEAN NOT NULL DEFAULT 0,
    notes            TEXT NOT NULL DEFAULT '',
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_provider_configs_user ON provider_configs(user_id, is_active, priority);
CREATE INDEX IF NOT EXISTS idx_llm_calls_provider ON llm_calls(provider);
CREATE INDEX IF NOT EXISTS idx_transactions_project ON transactions(user_id, project_id, transaction_date);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS provider_configs (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    provider    TEXT NOT NULL,
    api_key     TEXT NOT NULL DEFAULT '',
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    priority    INTEGER NOT NULL DEFAULT 1,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, provider)
);

CREATE TABLE IF NOT EXISTS llm_calls (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    provider      TEXT NOT NULL,
    model         TEXT NOT NULL,
    operation     TEXT NOT NULL,
    success       BOOLEAN NOT NULL DEFAULT FALSE,
    duration_ms   BIGINT,
    error_message TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transactions (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    project_id       TEXT NOT NULL,
    amount           DOUBLE PRECISION NOT NULL,
    type             TEXT NOT NULL,
    category         TEXT NOT NULL,
    subcategory      TEXT NOT NULL DEFAULT '',
    description      TEXT NOT NULL DEFAULT '',
    vendor_name      TEXT NOT NULL DEFAULT '',
    payment_method   TEXT NOT NULL DEFAULT '',
    transaction_date TEXT NOT NULL,
    receipt_id       TEXT NOT NULL DEFAULT '',
    is_verified      BOOLEAN NOT NULL DEFAULT FALSE,
    notes            TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_provider_configs_user ON provider_configs(user_id, is_active, priority);
CREATE INDEX IF NOT EXISTS idx_llm_calls_provider ON llm_calls(provider);
CREATE INDEX IF NOT EXISTS idx_transactions_project ON transactions(user_id, project_id, transaction_date);
`

// NewDatabase opens a connection for the given driver, pings it and applies
// the schema. For sqlite3 the dsn is a file path; for postgres it is a
// lib/pq connection string.
//
// Key Go pattern: the constructor creates the resource AND validates it (Ping).
func NewDatabase(driver, dsn string) (*sqlx.DB, error) {
	var schema string
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		// WAL for concurrent reads, 5s busy wait instead of failing on lock contention.
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", dsn)
		schema = sqliteSchema
	case DriverPostgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Ping actually opens the connection (Open is lazy in database/sql)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite performs best with a single writer connection
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}
