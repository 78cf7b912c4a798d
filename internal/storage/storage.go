package storage

import (
	"context"
	"errors"
	"time"

	"github.com/BoostryJP/ibet-prime-wst/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when inserting a row whose identity is taken
	ErrAlreadyExists = errors.New("record already exists")
	// ErrConcurrentUpdate is returned when a conditional update lost a race
	ErrConcurrentUpdate = errors.New("record was modified concurrently")
)

// Repository is the data access contract shared by the monitor, the event applier
// and the settlement workflow
type Repository interface {
	// Transaction records
	CreateTx(ctx context.Context, tx *models.EthIbetWSTTx) error
	GetTx(ctx context.Context, txID string) (*models.EthIbetWSTTx, error)
	ListTxs(ctx context.Context, filter models.TxFilter) ([]*models.EthIbetWSTTx, error)
	ListPendingTxs(ctx context.Context, limit int) ([]*models.EthIbetWSTTx, error)
	ListPendingTxsPage(ctx context.Context, after *models.EthIbetWSTTx, limit int) ([]*models.EthIbetWSTTx, error)
	MarkTxSent(ctx context.Context, txID, txHash string) error
	MarkTxSubmissionFailed(ctx context.Context, txID string) error
	MarkTxResult(ctx context.Context, txID string, status models.TxStatus, blockNumber, gasUsed uint64) (bool, error)
	MarkTxFinalized(ctx context.Context, txID string, eventLog models.EventLog) error

	// Token records
	CreateToken(ctx context.Context, token *models.Token) error
	GetToken(ctx context.Context, tokenAddress string) (*models.Token, error)
	GetTokenByWSTTxID(ctx context.Context, txID string) (*models.Token, error)
	SetTokenWSTDeployed(ctx context.Context, txID, ibetWSTAddress string) error

	// Whitelist projection
	AddWhitelist(ctx context.Context, entry *models.WhitelistEntry) (bool, error)
	DeleteWhitelist(ctx context.Context, ibetWSTAddress, accountAddress string) (int64, error)
	GetWhitelist(ctx context.Context, ibetWSTAddress, accountAddress string) (*models.WhitelistEntry, error)
	ListWhitelist(ctx context.Context, ibetWSTAddress string) ([]*models.WhitelistEntry, error)

	// Delivery projection
	CreateDelivery(ctx context.Context, delivery *models.DVPDelivery) error
	UpdateDeliveryStatus(ctx context.Context, exchangeAddress string, deliveryID uint64, from, to models.DeliveryStatus, valid bool) error
	GetDelivery(ctx context.Context, exchangeAddress string, deliveryID uint64) (*models.DVPDelivery, error)
	ListDeliveries(ctx context.Context, filter models.DeliveryFilter) ([]*models.DVPDelivery, error)

	// Signing accounts
	SaveAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, accountAddress string) (*models.Account, error)
}

// Storage is a Repository bound to a database connection
type Storage interface {
	Repository

	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Transaction runs fn against a repository bound to one database transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(repo Repository) error) error
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
