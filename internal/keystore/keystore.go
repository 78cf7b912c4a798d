// Package keystore decrypts the go-ethereum keyfiles of signing accounts.
package keystore

import (
	"context"
	"crypto/ecdsa"
	"errors"

	"github.com/BoostryJP/ibet-prime-wst/internal/models"
	"github.com/BoostryJP/ibet-prime-wst/internal/storage"
	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var (
	// ErrAccountNotFound is returned when no keyfile is stored for the address
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidPassword is returned when the keyfile cannot be decrypted with the password
	ErrInvalidPassword = errors.New("invalid EOA password")
)

// AccountStore reads and writes stored keyfiles
type AccountStore interface {
	GetAccount(ctx context.Context, accountAddress string) (*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
}

// Provider resolves signing keys from stored keyfiles
type Provider struct {
	accounts AccountStore
}

// NewProvider creates a key provider backed by accounts
func NewProvider(accounts AccountStore) *Provider {
	return &Provider{accounts: accounts}
}

// PrivateKey decrypts the keyfile of address with password
func (p *Provider) PrivateKey(ctx context.Context, address, password string) (*ecdsa.PrivateKey, error) {
	account, err := p.accounts.GetAccount(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	key, err := gethkeystore.DecryptKey(account.Keyfile, password)
	if err != nil {
		if errors.Is(err, gethkeystore.ErrDecrypt) {
			return nil, ErrInvalidPassword
		}
		return nil, utils.WrapAppError(utils.ErrCodeInternal, "Failed to decrypt keyfile", err)
	}
	if key.Address != common.HexToAddress(address) {
		return nil, utils.NewAppError(utils.ErrCodeInvariantViolation, "Keyfile does not belong to account", address)
	}
	return key.PrivateKey, nil
}

// Import verifies that keyJSON decrypts with password and stores it for its address
func (p *Provider) Import(ctx context.Context, keyJSON []byte, password string) (*models.Account, error) {
	key, err := gethkeystore.DecryptKey(keyJSON, password)
	if err != nil {
		if errors.Is(err, gethkeystore.ErrDecrypt) {
			return nil, ErrInvalidPassword
		}
		return nil, utils.WrapAppError(utils.ErrCodeValidation, "Invalid keyfile", err)
	}

	account := &models.Account{
		AccountAddress: key.Address.Hex(),
		Keyfile:        keyJSON,
	}
	if err := p.accounts.SaveAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// EncryptKey produces a keyfile for privateKey protected by password
func EncryptKey(privateKey *ecdsa.PrivateKey, password string, scryptN, scryptP int) ([]byte, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	key := &gethkeystore.Key{
		Id:         id,
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		PrivateKey: privateKey,
	}
	return gethkeystore.EncryptKey(key, password, scryptN, scryptP)
}
