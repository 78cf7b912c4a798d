package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSender  = "0x1111111111111111111111111111111111111111"
	testAccount = "0x2222222222222222222222222222222222222222"
	testWST     = "0x9876543210987654321098765432109876543210"
)

func newSentTx(t *testing.T) *EthIbetWSTTx {
	t.Helper()
	target := testWST
	tx, err := NewEthIbetWSTTx("tx-1", TxTypeMint, "1", testSender, &target, &MintParams{ToAddress: testAccount, Value: 10})
	require.NoError(t, err)
	require.NoError(t, tx.MarkSent("0xabc"))
	return tx
}

func TestNewEthIbetWSTTx(t *testing.T) {
	t.Run("deploy has no target", func(t *testing.T) {
		tx, err := NewEthIbetWSTTx("tx-d", TxTypeDeploy, "1", testSender, nil, &DeployParams{Name: "WST", InitialOwner: testSender})
		require.NoError(t, err)
		assert.Equal(t, TxStatusPending, tx.Status)
		assert.Nil(t, tx.IbetWSTAddress)
		assert.Nil(t, tx.TxHash)
		assert.False(t, tx.Finalized)
	})

	t.Run("deploy rejects target", func(t *testing.T) {
		target := testWST
		_, err := NewEthIbetWSTTx("tx-d", TxTypeDeploy, "1", testSender, &target, &DeployParams{Name: "WST", InitialOwner: testSender})
		assert.Error(t, err)
	})

	t.Run("non-deploy requires target", func(t *testing.T) {
		_, err := NewEthIbetWSTTx("tx-m", TxTypeMint, "1", testSender, nil, &MintParams{ToAddress: testAccount, Value: 1})
		assert.Error(t, err)
	})

	t.Run("params must match type", func(t *testing.T) {
		target := testWST
		_, err := NewEthIbetWSTTx("tx-m", TxTypeMint, "1", testSender, &target, &BurnParams{FromAddress: testAccount, Value: 1})
		assert.ErrorContains(t, err, "does not match")
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewEthIbetWSTTx("tx-x", TxType("BOGUS"), "1", testSender, nil, &DeployParams{})
		assert.Error(t, err)
	})
}

func TestApplyResult(t *testing.T) {
	tx := newSentTx(t)

	changed, err := tx.ApplyResult(TxStatusSucceeded, 100, 21000)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, TxStatusSucceeded, tx.Status)
	require.NotNil(t, tx.BlockNumber)
	require.NotNil(t, tx.GasUsed)
	assert.Equal(t, uint64(100), *tx.BlockNumber)
	assert.Equal(t, uint64(21000), *tx.GasUsed)

	// Same terminal status is a no-op and keeps the first block/gas
	changed, err = tx.ApplyResult(TxStatusSucceeded, 101, 1)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, uint64(100), *tx.BlockNumber)

	_, err = tx.ApplyResult(TxStatusFailed, 100, 21000)
	assert.ErrorIs(t, err, ErrTerminalStatusConflict)
	assert.Equal(t, TxStatusSucceeded, tx.Status)

	_, err = tx.ApplyResult(TxStatusSent, 100, 21000)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFinalize(t *testing.T) {
	tx := newSentTx(t)

	err := tx.Finalize(EventLog{"to_address": testAccount})
	assert.ErrorIs(t, err, ErrNotSucceeded)
	assert.False(t, tx.Finalized)

	_, err = tx.ApplyResult(TxStatusSucceeded, 100, 21000)
	require.NoError(t, err)
	require.NoError(t, tx.Finalize(EventLog{"to_address": testAccount}))
	assert.True(t, tx.Finalized)
	assert.False(t, tx.IsPending())

	err = tx.Finalize(nil)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	assert.Equal(t, testAccount, tx.EventLog["to_address"])
}

func TestFailedCannotFinalize(t *testing.T) {
	tx := newSentTx(t)
	_, err := tx.ApplyResult(TxStatusFailed, 100, 50000)
	require.NoError(t, err)
	assert.False(t, tx.IsPending())
	assert.ErrorIs(t, tx.Finalize(nil), ErrNotSucceeded)
}

func TestSubmissionTransitions(t *testing.T) {
	tx := newSentTx(t)
	assert.ErrorIs(t, tx.MarkSent("0xdef"), ErrInvalidTransition)
	assert.ErrorIs(t, tx.MarkSubmissionFailed(), ErrInvalidTransition)
	assert.Equal(t, "0xabc", *tx.TxHash)

	target := testWST
	pending, err := NewEthIbetWSTTx("tx-2", TxTypeMint, "1", testSender, &target, &MintParams{ToAddress: testAccount, Value: 10})
	require.NoError(t, err)
	assert.False(t, pending.IsPending())
	require.NoError(t, pending.MarkSubmissionFailed())
	assert.Equal(t, TxStatusFailed, pending.Status)
}

func TestTxTypeClosedSet(t *testing.T) {
	for _, txType := range AllTxTypes() {
		assert.True(t, txType.Valid(), txType)
		_, err := newTxParams(txType)
		assert.NoError(t, err, "every type needs a params variant: %s", txType)
	}
	assert.True(t, TxTypeAbortDelivery.IsDelivery())
	assert.False(t, TxTypeTransfer.IsDelivery())
}
