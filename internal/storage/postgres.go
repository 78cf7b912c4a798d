package storage

import (
	"database/sql"
	"errors"

	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
	"github.com/lib/pq"
)

const pqUniqueViolation = pq.ErrorCode("23505")

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

var postgresDialect = &dialect{
	name:              "postgres",
	driver:            "postgres",
	bind:              func(query string) string { return query },
	isUniqueViolation: isPostgresUniqueViolation,
	migrations:        GetPostgresMigrations(),
}

// PostgreSQLStorage implements Storage using PostgreSQL
type PostgreSQLStorage struct {
	sqlStorage
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		sqlStorage: sqlStorage{
			config:  config,
			logger:  utils.GetLogger(),
			dialect: postgresDialect,
		},
	}
}

// newPostgreSQLStorageWithDB binds an existing connection, used with sqlmock
func newPostgreSQLStorageWithDB(db *sql.DB) *PostgreSQLStorage {
	s := NewPostgreSQLStorage(&StorageConfig{Type: "postgres"})
	s.bind(db)
	return s
}

// Connect establishes database connection
func (p *PostgreSQLStorage) Connect() error {
	db, err := sql.Open(p.dialect.driver, p.config.ConnectionString)
	if err != nil {
		return utils.WrapAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err)
	}

	if p.config.MaxConnections > 0 {
		db.SetMaxOpenConns(p.config.MaxConnections)
		db.SetMaxIdleConns(p.config.MaxConnections / 2)
	}
	db.SetConnMaxIdleTime(p.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.WrapAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err)
	}

	p.bind(db)
	p.logger.Info("PostgreSQL database connected")
	return nil
}
