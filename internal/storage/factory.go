package storage

import (
	"strings"

	"github.com/BoostryJP/ibet-prime-wst/internal/config"
	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
)

// NewStorage creates a new storage instance based on configuration
func NewStorage(cfg *config.StorageConfig) (Storage, error) {
	if err := ValidateStorageConfig(cfg); err != nil {
		return nil, err
	}

	storageConfig := &StorageConfig{
		Type:             cfg.Type,
		ConnectionString: cfg.ConnectionString,
		MaxConnections:   cfg.MaxConnections,
		MaxIdleTime:      cfg.MaxIdleTime,
	}

	switch strings.ToLower(cfg.Type) {
	case "sqlite":
		return NewSQLiteStorage(storageConfig), nil
	default:
		return NewPostgreSQLStorage(storageConfig), nil
	}
}

// ValidateStorageConfig validates storage configuration
func ValidateStorageConfig(cfg *config.StorageConfig) error {
	if cfg.Type == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Storage type is required")
	}

	if cfg.ConnectionString == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Storage connection string is required")
	}

	if cfg.MaxConnections < 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Max connections must not be negative")
	}

	supportedTypes := []string{"sqlite", "postgres", "postgresql"}
	for _, t := range supportedTypes {
		if strings.ToLower(cfg.Type) == t {
			return nil
		}
	}

	return utils.NewAppError(utils.ErrCodeConfiguration,
		"Unsupported storage type",
		"Supported types: "+strings.Join(supportedTypes, ", "))
}
