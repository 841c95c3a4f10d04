// Package database is the sqlite adapter behind the slot, menu and
// combination repositories.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"spoon/internal/model"
)

// DB wraps sql.DB for the menu engine.
type DB struct {
	*sql.DB
	path   string
	locks  *keyedMutex
	logger *zerolog.Logger
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// NewDB opens the database at path and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// immediate transactions take the write lock up front, so a locked
	// read-validate-write section cannot be overtaken by another writer
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{
		DB:     db,
		path:   path,
		locks:  newKeyedMutex(),
		logger: logger,
	}

	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := instance.ensureColumns(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS schedule_slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			restaurant_id INTEGER NOT NULL,
			menu_template_id INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			anchor_date TEXT NOT NULL,
			recurrence TEXT NOT NULL DEFAULT 'none',
			exception_dates TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'active',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS daily_menus (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			restaurant_id INTEGER NOT NULL,
			menu_date TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS menu_combinations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			daily_menu_id INTEGER NOT NULL,
			entrada_id INTEGER,
			principio_id INTEGER,
			proteina_id INTEGER NOT NULL,
			bebida_id INTEGER,
			base_price REAL NOT NULL,
			special_price REAL,
			current_quantity INTEGER NOT NULL DEFAULT 0,
			is_available BOOLEAN NOT NULL DEFAULT 1,
			is_featured BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (daily_menu_id) REFERENCES daily_menus(id)
		)`,

		`CREATE TABLE IF NOT EXISTS combination_sides (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			combination_id INTEGER NOT NULL,
			product_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY (combination_id) REFERENCES menu_combinations(id)
		)`,

		`CREATE TABLE IF NOT EXISTS purge_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			restaurant_id INTEGER NOT NULL,
			menu_id INTEGER NOT NULL,
			menu_date TEXT NOT NULL,
			combinations INTEGER NOT NULL DEFAULT 0,
			sides INTEGER NOT NULL DEFAULT 0,
			purged_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// one published menu per restaurant and date
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_daily_menus_published
			ON daily_menus(restaurant_id, menu_date) WHERE status = 'published'`,

		`CREATE INDEX IF NOT EXISTS idx_slots_restaurant ON schedule_slots(restaurant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_menus_restaurant_date ON daily_menus(restaurant_id, menu_date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_combinations_menu ON menu_combinations(daily_menu_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sides_combination ON combination_sides(combination_id)`,
		`CREATE INDEX IF NOT EXISTS idx_purge_audit_time ON purge_audit(purged_at)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

// ensureColumns adds columns introduced after the first schema version.
func (db *DB) ensureColumns() error {
	queries := []string{
		`ALTER TABLE purge_audit ADD COLUMN run_id TEXT NOT NULL DEFAULT ''`,
	}
	for _, q := range queries {
		_, err := db.Exec(q)
		if err != nil && !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// Close closes the database.
func (db *DB) Close() error {
	return db.DB.Close()
}

// withTx runs fn in an immediate transaction.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return model.Persistence("begin tx", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return model.Persistence("commit tx", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*sync.Mutex)}
}

func (k *keyedMutex) lock(key int64) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
