package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var placeholderPattern = regexp.MustCompile(`\$\d+`)

// rebindQuestion rewrites $n placeholders to ?. Queries must use each $n once, in order.
func rebindQuestion(query string) string {
	return placeholderPattern.ReplaceAllString(query, "?")
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

var sqliteDialect = &dialect{
	name:              "sqlite",
	driver:            "sqlite",
	bind:              rebindQuestion,
	isUniqueViolation: isSQLiteUniqueViolation,
	migrations:        GetSQLiteMigrations(),
}

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	sqlStorage
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		sqlStorage: sqlStorage{
			config:  config,
			logger:  utils.GetLogger(),
			dialect: sqliteDialect,
		},
	}
}

// sqliteDSN adds the pragmas every connection needs
func sqliteDSN(path string) string {
	params := []string{
		"_pragma=busy_timeout(5000)",
		"_pragma=foreign_keys(1)",
		"_time_format=sqlite",
	}
	if path != ":memory:" {
		params = append(params, "_pragma=journal_mode(WAL)")
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	path := s.config.ConnectionString
	if path != ":memory:" {
		dir := filepath.Dir(strings.SplitN(path, "?", 2)[0])
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return utils.WrapAppError(utils.ErrCodeDatabase, "Failed to create database directory", err)
			}
		}
	}

	db, err := sql.Open(s.dialect.driver, sqliteDSN(path))
	if err != nil {
		return utils.WrapAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err)
	}

	// SQLite has a single writer; one connection keeps transactions from failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.WrapAppError(utils.ErrCodeDatabase, "Failed to ping SQLite database", err)
	}

	s.bind(db)
	s.logger.WithField("path", path).Info("SQLite database connected")
	return nil
}

// sqlStorage holds the connection lifecycle shared by both dialects
type sqlStorage struct {
	*sqlRepository
	db      *sql.DB
	config  *StorageConfig
	logger  *logrus.Logger
	dialect *dialect
}

func (s *sqlStorage) bind(db *sql.DB) {
	s.db = db
	s.sqlRepository = &sqlRepository{q: db, dialect: s.dialect}
}

// Close closes the database connection
func (s *sqlStorage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.sqlRepository = nil
	s.logger.WithField("dialect", s.dialect.name).Info("Database connection closed")
	return err
}

// Ping checks database connectivity
func (s *sqlStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *sqlStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.dialect.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.WrapAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version), err)
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// Transaction runs fn inside one database transaction
func (s *sqlStorage) Transaction(ctx context.Context, fn func(repo Repository) error) (err error) {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.WrapAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.WithError(rbErr).Warn("Failed to roll back transaction")
			}
		}
	}()

	if err = fn(&sqlRepository{q: tx, dialect: s.dialect}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return utils.WrapAppError(utils.ErrCodeDatabase, "Failed to commit transaction", err)
	}
	return nil
}
