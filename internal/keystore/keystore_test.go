package keystore

import (
	"context"
	"testing"

	"github.com/BoostryJP/ibet-prime-wst/internal/storage/storagetest"
	gethkeystore "github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportAndDecrypt(t *testing.T) {
	store := storagetest.NewSQLite(t)
	provider := NewProvider(store)
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)

	keyJSON, err := EncryptKey(key, "secret", gethkeystore.LightScryptN, gethkeystore.LightScryptP)
	require.NoError(t, err, "Failed to encrypt key")

	_, err = provider.Import(ctx, keyJSON, "wrong")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	account, err := provider.Import(ctx, keyJSON, "secret")
	require.NoError(t, err, "Import should succeed")
	assert.Equal(t, address.Hex(), account.AccountAddress)

	got, err := provider.PrivateKey(ctx, address.Hex(), "secret")
	require.NoError(t, err)
	assert.Equal(t, key.D, got.D)

	_, err = provider.PrivateKey(ctx, address.Hex(), "wrong")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = provider.PrivateKey(ctx, "0x1234567890123456789012345678901234567890", "secret")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
