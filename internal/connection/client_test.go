package connection

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BoostryJP/ibet-prime-wst/internal/config"
	"github.com/BoostryJP/ibet-prime-wst/internal/contracts"
	"github.com/BoostryJP/ibet-prime-wst/internal/contracts/contractstest"
	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChainID = 2017

// fakeNode serves the subset of the eth namespace used by ChainClient
type fakeNode struct {
	mu          sync.Mutex
	receipts    map[common.Hash]*types.Receipt
	finalized   uint64
	latest      uint64
	nonce       uint64
	estimateErr error
	sent        []*types.Transaction
}

func newFakeNode() *fakeNode {
	return &fakeNode{receipts: make(map[common.Hash]*types.Receipt)}
}

func (n *fakeNode) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(testChainID))
}

func (n *fakeNode) BlockNumber() hexutil.Uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return hexutil.Uint64(n.latest)
}

func (n *fakeNode) GetTransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.receipts[hash], nil
}

func (n *fakeNode) GetBlockByNumber(number rpc.BlockNumber, full bool) (*types.Header, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	height := n.latest
	if number == rpc.FinalizedBlockNumber {
		height = n.finalized
	}
	return &types.Header{
		Number:     new(big.Int).SetUint64(height),
		Difficulty: big.NewInt(0),
	}, nil
}

func (n *fakeNode) GetTransactionCount(address common.Address, block *string) hexutil.Uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return hexutil.Uint64(n.nonce)
}

func (n *fakeNode) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(0))
}

func (n *fakeNode) EstimateGas(args map[string]any, block *string) (hexutil.Uint64, error) {
	if n.estimateErr != nil {
		return 0, n.estimateErr
	}
	return hexutil.Uint64(21000), nil
}

func (n *fakeNode) SendRawTransaction(data hexutil.Bytes) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(data); err != nil {
		return common.Hash{}, err
	}
	n.mu.Lock()
	n.sent = append(n.sent, tx)
	n.nonce++
	n.mu.Unlock()
	return tx.Hash(), nil
}

type staticProvider struct {
	client *ethclient.Client
}

func (p *staticProvider) GetClientWithContext(ctx context.Context) (*ethclient.Client, error) {
	return p.client, nil
}

func newTestChainClient(t *testing.T, node *fakeNode) *ChainClient {
	t.Helper()

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", node), "Failed to register eth service")
	t.Cleanup(server.Stop)

	client := ethclient.NewClient(rpc.DialInProc(server))
	t.Cleanup(client.Close)

	cc := NewChainClient(&staticProvider{client: client}, &config.ChainConfig{ChainID: testChainID})
	cc.pollInterval = 10 * time.Millisecond
	return cc
}

func TestWaitForTransactionReceipt(t *testing.T) {
	node := newFakeNode()
	cc := newTestChainClient(t, node)

	wst := common.HexToAddress("0x1234567890123456789012345678901234567890")
	hash := common.HexToHash("0x01")
	log := contractstest.MustEventLog(contracts.IbetWSTABI, wst, contracts.EventMint, map[string]any{
		"to":    common.HexToAddress("0x0000000000000000000000000000000000000002"),
		"value": contractstest.Big(1000),
	})
	node.receipts[hash] = contractstest.Receipt(types.ReceiptStatusSuccessful, 100, 21000, log)

	receipt, err := cc.WaitForTransactionReceipt(context.Background(), hash, time.Second)
	require.NoError(t, err, "Receipt should be returned")
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, uint64(100), receipt.BlockNumber.Uint64())
	assert.Equal(t, uint64(21000), receipt.GasUsed)

	events, err := cc.DecodeEventLogs(wst, contracts.IbetWSTABI, receipt)
	require.NoError(t, err, "Logs should decode")
	require.Len(t, events, 1)
	assert.Equal(t, contracts.EventMint, events[0].Name)
}

func TestWaitForTransactionReceipt_NotFound(t *testing.T) {
	cc := newTestChainClient(t, newFakeNode())

	start := time.Now()
	_, err := cc.WaitForTransactionReceipt(context.Background(), common.HexToHash("0x02"), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrReceiptNotFound)
	assert.Less(t, time.Since(start), 2*time.Second, "Wait should be bounded by the timeout")
}

func TestWaitForTransactionReceipt_Canceled(t *testing.T) {
	cc := newTestChainClient(t, newFakeNode())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cc.WaitForTransactionReceipt(ctx, common.HexToHash("0x03"), time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBlockNumbers(t *testing.T) {
	node := newFakeNode()
	node.latest = 120
	node.finalized = 100
	cc := newTestChainClient(t, node)

	finalized, err := cc.GetFinalizedBlockNumber(context.Background())
	require.NoError(t, err, "Finalized block should be returned")
	assert.Equal(t, uint64(100), finalized)

	latest, err := cc.GetLatestBlockNumber(context.Background())
	require.NoError(t, err, "Latest block should be returned")
	assert.Equal(t, uint64(120), latest)
}

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err, "Failed to generate key")
	return key
}

func TestSendTransaction(t *testing.T) {
	node := newFakeNode()
	node.nonce = 7
	cc := newTestChainClient(t, node)
	key := newTestKey(t)

	to := common.HexToAddress("0x1234567890123456789012345678901234567890")
	data, err := contracts.PackDeliveryAction("confirmDelivery", 5)
	require.NoError(t, err)

	hash, err := cc.SendTransaction(context.Background(), key, to, data)
	require.NoError(t, err, "Transaction should be sent")

	require.Len(t, node.sent, 1)
	tx := node.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, to, *tx.To())
	assert.Equal(t, data, tx.Data())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(testChainID)), tx)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sender)
	t.Logf("✓ Sent %s from %s", hash.Hex(), sender.Hex())
}

func TestSendTransaction_EstimateFails(t *testing.T) {
	node := newFakeNode()
	node.estimateErr = errors.New("execution reverted")
	cc := newTestChainClient(t, node)

	_, err := cc.SendTransaction(context.Background(), newTestKey(t),
		common.HexToAddress("0x1234567890123456789012345678901234567890"), []byte{0x01})
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeBlockchain, utils.ErrorCode(err))
	assert.Empty(t, node.sent, "Nothing should be broadcast when estimation fails")
}

func TestConnectionManager(t *testing.T) {
	node := newFakeNode()
	node.latest = 42

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", node))
	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)
	t.Cleanup(server.Stop)

	cm := NewConnectionManager(&config.ChainConfig{
		NodeURL:        "http://127.0.0.1:1",
		BackupNodes:    []string{httpServer.URL},
		ChainID:        testChainID,
		RequestTimeout: time.Second,
		RetryAttempts:  1,
	})
	t.Cleanup(func() { _ = cm.Close() })

	require.NoError(t, cm.HealthCheck(), "Manager should fail over to the backup node")
	assert.True(t, cm.IsConnected())

	stats := cm.Stats()
	assert.Equal(t, httpServer.URL, stats.CurrentURL)
	assert.Equal(t, uint64(testChainID), stats.ChainID)
	assert.Equal(t, uint64(42), stats.LatestBlock)

	block, err := cm.GetLatestBlockNumber()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), block)
}

func TestConnectionManager_ChainIDMismatch(t *testing.T) {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", newFakeNode()))
	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)
	t.Cleanup(server.Stop)

	cm := NewConnectionManager(&config.ChainConfig{
		NodeURL:        httpServer.URL,
		ChainID:        1,
		RequestTimeout: time.Second,
		RetryAttempts:  1,
	})
	t.Cleanup(func() { _ = cm.Close() })

	err := cm.HealthCheck()
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeConnection, utils.ErrorCode(err))
	assert.False(t, cm.IsConnected())
}
