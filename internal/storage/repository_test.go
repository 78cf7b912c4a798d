package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/BoostryJP/ibet-prime-wst/internal/models"
	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sender   = "0x1111111111111111111111111111111111111111"
	account  = "0x2222222222222222222222222222222222222222"
	scIn     = "0x3333333333333333333333333333333333333333"
	scOut    = "0x4444444444444444444444444444444444444444"
	wst      = "0x9876543210987654321098765432109876543210"
	token    = "0x5555555555555555555555555555555555555555"
	exchange = "0x6666666666666666666666666666666666666666"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()

	store := NewSQLiteStorage(&StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "settlement.db"),
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, store.Connect(), "Failed to connect to storage")
	require.NoError(t, store.Migrate(), "Failed to migrate storage")
	require.NoError(t, store.Ping(), "Failed to ping storage")
	t.Cleanup(func() { store.Close() })
	return store
}

func newMintTx(t *testing.T, id string) *models.EthIbetWSTTx {
	t.Helper()
	target := wst
	tx, err := models.NewEthIbetWSTTx(id, models.TxTypeMint, "1", sender, &target,
		&models.MintParams{ToAddress: account, Value: 100})
	require.NoError(t, err)
	return tx
}

func TestTxLifecycle(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	tx := newMintTx(t, "tx-1")
	require.NoError(t, store.CreateTx(ctx, tx))
	assert.ErrorIs(t, store.CreateTx(ctx, newMintTx(t, "tx-1")), ErrAlreadyExists)

	got, err := store.GetTx(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusPending, got.Status)
	assert.Equal(t, utils.ChecksumAddress(wst), *got.IbetWSTAddress)
	assert.Nil(t, got.BlockNumber)
	assert.Nil(t, got.EventLog)

	params, err := got.Params()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), params.(*models.MintParams).Value)

	// PENDING records are not polled
	pending, err := store.ListPendingTxs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, store.MarkTxSent(ctx, "tx-1", "0xaaaa"))
	pending, err = store.ListPendingTxs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	changed, err := store.MarkTxResult(ctx, "tx-1", models.TxStatusSucceeded, 100, 21000)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.MarkTxResult(ctx, "tx-1", models.TxStatusSucceeded, 100, 21000)
	require.NoError(t, err)
	assert.False(t, changed, "same terminal status is a no-op")

	_, err = store.MarkTxResult(ctx, "tx-1", models.TxStatusFailed, 100, 21000)
	assert.ErrorIs(t, err, models.ErrTerminalStatusConflict)
	assert.Equal(t, utils.ErrCodeInvariantViolation, utils.ErrorCode(err))

	// SUCCEEDED but not finalized stays in the queue
	pending, err = store.ListPendingTxs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.MarkTxFinalized(ctx, "tx-1", models.EventLog{"to_address": account, "value": 100}))
	assert.ErrorIs(t, store.MarkTxFinalized(ctx, "tx-1", nil), models.ErrAlreadyFinalized)

	got, err = store.GetTx(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, got.Finalized)
	assert.Equal(t, models.TxStatusSucceeded, got.Status)
	assert.Equal(t, uint64(100), *got.BlockNumber)
	assert.Equal(t, uint64(21000), *got.GasUsed)
	value, ok := got.EventLog.Uint64("value")
	require.True(t, ok)
	assert.Equal(t, uint64(100), value)

	pending, err = store.ListPendingTxs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFinalizeRequiresSucceeded(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, store.CreateTx(ctx, newMintTx(t, "tx-f")))
	require.NoError(t, store.MarkTxSent(ctx, "tx-f", "0xbbbb"))
	assert.ErrorIs(t, store.MarkTxFinalized(ctx, "tx-f", nil), models.ErrNotSucceeded)

	_, err := store.MarkTxResult(ctx, "tx-f", models.TxStatusFailed, 7, 50000)
	require.NoError(t, err)
	assert.ErrorIs(t, store.MarkTxFinalized(ctx, "tx-f", nil), models.ErrNotSucceeded)

	pending, err := store.ListPendingTxs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending, "FAILED records are terminal")
}

func TestSubmissionFailure(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, store.CreateTx(ctx, newMintTx(t, "tx-s")))
	require.NoError(t, store.MarkTxSubmissionFailed(ctx, "tx-s"))
	assert.ErrorIs(t, store.MarkTxSent(ctx, "tx-s", "0xcccc"), models.ErrInvalidTransition)

	_, err := store.GetTx(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPendingOrderAndLimit(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"tx-c", "tx-a", "tx-b"} {
		tx := newMintTx(t, id)
		tx.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.CreateTx(ctx, tx))
		require.NoError(t, store.MarkTxSent(ctx, id, "0x"+id))
	}

	pending, err := store.ListPendingTxs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []string{"tx-c", "tx-a", "tx-b"}, []string{pending[0].TxID, pending[1].TxID, pending[2].TxID})

	pending, err = store.ListPendingTxs(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	status := models.TxStatusSent
	txs, err := store.ListTxs(ctx, models.TxFilter{Status: &status, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "tx-a", txs[0].TxID)
}

func TestListPendingPages(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	// tx-b and tx-c share a timestamp and are ordered by tx_id
	base := time.Now().UTC().Add(-time.Hour)
	created := map[string]time.Time{
		"tx-a": base,
		"tx-c": base.Add(time.Minute),
		"tx-b": base.Add(time.Minute),
		"tx-d": base.Add(2 * time.Minute),
		"tx-e": base.Add(3*time.Minute + 500*time.Millisecond),
	}
	for id, at := range created {
		tx := newMintTx(t, id)
		tx.CreatedAt = at
		require.NoError(t, store.CreateTx(ctx, tx))
		require.NoError(t, store.MarkTxSent(ctx, id, "0x"+id))
	}

	var (
		seen  []string
		after *models.EthIbetWSTTx
	)
	for {
		page, err := store.ListPendingTxsPage(ctx, after, 2)
		require.NoError(t, err)
		for _, tx := range page {
			seen = append(seen, tx.TxID)
		}
		if len(page) < 2 {
			break
		}
		after = page[len(page)-1]
	}
	assert.Equal(t, []string{"tx-a", "tx-b", "tx-c", "tx-d", "tx-e"}, seen, "Pages should cover every pending record once")
}

func TestTokenDeployment(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	txID := "deploy-1"
	require.NoError(t, store.CreateToken(ctx, &models.Token{
		TokenAddress:  token,
		IssuerAddress: sender,
		IbetWSTTxID:   &txID,
	}))

	got, err := store.GetTokenByWSTTxID(ctx, txID)
	require.NoError(t, err)
	assert.False(t, got.IbetWSTDeployed)
	assert.Nil(t, got.IbetWSTAddress)

	require.NoError(t, store.SetTokenWSTDeployed(ctx, txID, wst))
	got, err = store.GetToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, got.IbetWSTDeployed)
	assert.Equal(t, utils.ChecksumAddress(wst), *got.IbetWSTAddress)

	assert.ErrorIs(t, store.SetTokenWSTDeployed(ctx, "other", wst), ErrNotFound)
}

func TestWhitelistProjection(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	entry := func() *models.WhitelistEntry {
		return &models.WhitelistEntry{
			IbetWSTAddress:      wst,
			AccountAddress:      account,
			SCAccountAddressIn:  scIn,
			SCAccountAddressOut: scOut,
		}
	}

	inserted, err := store.AddWhitelist(ctx, entry())
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.AddWhitelist(ctx, entry())
	require.NoError(t, err)
	assert.False(t, inserted, "pair already whitelisted")

	entries, err := store.ListWhitelist(ctx, wst)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, utils.ChecksumAddress(scIn), entries[0].SCAccountAddressIn)

	removed, err := store.DeleteWhitelist(ctx, wst, account)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.GetWhitelist(ctx, wst, account)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeliveryProjection(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, store.CreateDelivery(ctx, &models.DVPDelivery{
		ExchangeAddress: exchange,
		DeliveryID:      1,
		TokenAddress:    token,
		SellerAddress:   sender,
		BuyerAddress:    account,
		AgentAddress:    scIn,
		Amount:          10,
		Data:            "memo",
		Status:          models.DeliveryStatusCreated,
	}))

	d, err := store.GetDelivery(ctx, exchange, 1)
	require.NoError(t, err)
	assert.True(t, d.Valid)
	assert.Equal(t, models.DeliveryStatusCreated, d.Status)

	err = store.UpdateDeliveryStatus(ctx, exchange, 1, models.DeliveryStatusCreated, models.DeliveryStatusFinished, false)
	assert.Equal(t, utils.ErrCodeInvariantViolation, utils.ErrorCode(err))

	require.NoError(t, store.UpdateDeliveryStatus(ctx, exchange, 1, models.DeliveryStatusCreated, models.DeliveryStatusConfirmed, true))
	// stale source status
	assert.ErrorIs(t, store.UpdateDeliveryStatus(ctx, exchange, 1, models.DeliveryStatusCreated, models.DeliveryStatusCanceled, false), ErrConcurrentUpdate)
	require.NoError(t, store.UpdateDeliveryStatus(ctx, exchange, 1, models.DeliveryStatusConfirmed, models.DeliveryStatusFinished, false))

	finished := models.DeliveryStatusFinished
	list, err := store.ListDeliveries(ctx, models.DeliveryFilter{ExchangeAddress: exchange, Status: &finished})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Valid)
}

func TestTransactionRollback(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, store.CreateTx(ctx, newMintTx(t, "tx-r")))
	require.NoError(t, store.MarkTxSent(ctx, "tx-r", "0xdddd"))
	_, err := store.MarkTxResult(ctx, "tx-r", models.TxStatusSucceeded, 5, 1)
	require.NoError(t, err)

	err = store.Transaction(ctx, func(repo Repository) error {
		if _, err := repo.AddWhitelist(ctx, &models.WhitelistEntry{
			IbetWSTAddress: wst, AccountAddress: account, SCAccountAddressIn: scIn, SCAccountAddressOut: scOut,
		}); err != nil {
			return err
		}
		if err := repo.MarkTxFinalized(ctx, "tx-r", nil); err != nil {
			return err
		}
		return ErrConcurrentUpdate
	})
	assert.ErrorIs(t, err, ErrConcurrentUpdate)

	got, err := store.GetTx(ctx, "tx-r")
	require.NoError(t, err)
	assert.False(t, got.Finalized, "rolled back together with the projection")
	entries, err := store.ListWhitelist(ctx, wst)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAccounts(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, &models.Account{AccountAddress: account, Keyfile: []byte(`{"v":1}`)}))
	require.NoError(t, store.SaveAccount(ctx, &models.Account{AccountAddress: account, Keyfile: []byte(`{"v":2}`)}))

	got, err := store.GetAccount(ctx, account)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got.Keyfile))

	_, err = store.GetAccount(ctx, sender)
	assert.ErrorIs(t, err, ErrNotFound)
}
