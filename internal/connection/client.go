package connection

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/BoostryJP/ibet-prime-wst/internal/config"
	"github.com/BoostryJP/ibet-prime-wst/internal/contracts"
	"github.com/BoostryJP/ibet-prime-wst/internal/metrics"
	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// ErrReceiptNotFound means the receipt was not available within the wait bound.
// It is a "not yet" condition, not a failure.
var ErrReceiptNotFound = errors.New("transaction receipt not found")

const defaultReceiptPollInterval = 500 * time.Millisecond

// ClientProvider hands out a connected ethclient; Manager implements it
type ClientProvider interface {
	GetClientWithContext(ctx context.Context) (*ethclient.Client, error)
}

// ChainClient is the chain collaborator used by the monitor and the settlement workflow
type ChainClient struct {
	provider       ClientProvider
	chainID        *big.Int
	gasLimit       uint64
	pollInterval   time.Duration
	logger         *logrus.Entry
	metricsManager *metrics.Manager
}

// NewChainClient creates a chain client on top of provider
func NewChainClient(provider ClientProvider, cfg *config.ChainConfig) *ChainClient {
	return &ChainClient{
		provider:     provider,
		chainID:      big.NewInt(cfg.ChainID),
		gasLimit:     cfg.GasLimit,
		pollInterval: defaultReceiptPollInterval,
		logger:       utils.ComponentLogger("chain"),
	}
}

// SetMetricsManager enables RPC metrics
func (c *ChainClient) SetMetricsManager(m *metrics.Manager) {
	c.metricsManager = m
}

func (c *ChainClient) observe(method string, start time.Time, err error) {
	if c.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metricsManager.GetPrometheusMetrics().RecordRPCRequest(method, status, time.Since(start))
}

// WaitForTransactionReceipt polls for the receipt of txHash for at most timeout.
// It returns ErrReceiptNotFound when the receipt does not appear in time.
func (c *ChainClient) WaitForTransactionReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	client, err := c.provider.GetClientWithContext(ctx)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		start := time.Now()
		receipt, err := client.TransactionReceipt(waitCtx, txHash)
		switch {
		case err == nil:
			c.observe("eth_getTransactionReceipt", start, nil)
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			c.observe("eth_getTransactionReceipt", start, nil)
		case waitCtx.Err() != nil:
		default:
			c.observe("eth_getTransactionReceipt", start, err)
			return nil, utils.WrapAppError(utils.ErrCodeBlockchain, "Failed to get transaction receipt", err)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrReceiptNotFound
		case <-ticker.C:
		}
	}
}

// GetFinalizedBlockNumber returns the number of the chain's latest finalized block
func (c *ChainClient) GetFinalizedBlockNumber(ctx context.Context) (uint64, error) {
	client, err := c.provider.GetClientWithContext(ctx)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	header, err := client.HeaderByNumber(ctx, big.NewInt(int64(rpc.FinalizedBlockNumber)))
	c.observe("eth_getBlockByNumber", start, err)
	if err != nil {
		return 0, utils.WrapAppError(utils.ErrCodeBlockchain, "Failed to get finalized block", err)
	}
	return header.Number.Uint64(), nil
}

// GetLatestBlockNumber returns the current head block number
func (c *ChainClient) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	client, err := c.provider.GetClientWithContext(ctx)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	number, err := client.BlockNumber(ctx)
	c.observe("eth_blockNumber", start, err)
	if err != nil {
		return 0, utils.WrapAppError(utils.ErrCodeBlockchain, "Failed to get latest block", err)
	}
	return number, nil
}

// DecodeEventLogs decodes the receipt logs emitted by address
func (c *ChainClient) DecodeEventLogs(address common.Address, contractABI *abi.ABI, receipt *types.Receipt) ([]contracts.DecodedEvent, error) {
	return contracts.DecodeEventLogs(address, contractABI, receipt)
}

// SendTransaction signs a call of data on to with key and submits it, returning the hash
func (c *ChainClient) SendTransaction(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, data []byte) (common.Hash, error) {
	client, err := c.provider.GetClientWithContext(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	start := time.Now()
	nonce, err := client.PendingNonceAt(ctx, from)
	c.observe("eth_getTransactionCount", start, err)
	if err != nil {
		return common.Hash{}, utils.WrapAppError(utils.ErrCodeBlockchain, "Failed to get nonce", err)
	}

	start = time.Now()
	gasPrice, err := client.SuggestGasPrice(ctx)
	c.observe("eth_gasPrice", start, err)
	if err != nil {
		return common.Hash{}, utils.WrapAppError(utils.ErrCodeBlockchain, "Failed to get gas price", err)
	}

	start = time.Now()
	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, GasPrice: gasPrice, Data: data})
	c.observe("eth_estimateGas", start, err)
	if err != nil {
		return common.Hash{}, utils.WrapAppError(utils.ErrCodeBlockchain, "Transaction would revert", err)
	}
	if c.gasLimit > 0 && gas > c.gasLimit {
		return common.Hash{}, utils.NewAppError(utils.ErrCodeBlockchain, "Gas estimate exceeds limit",
			fmt.Sprintf("estimate %d, limit %d", gas, c.gasLimit))
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return common.Hash{}, utils.WrapAppError(utils.ErrCodeBlockchain, "Failed to sign transaction", err)
	}

	start = time.Now()
	err = client.SendTransaction(ctx, signed)
	c.observe("eth_sendRawTransaction", start, err)
	if err != nil {
		return common.Hash{}, utils.WrapAppError(utils.ErrCodeBlockchain, "Failed to send transaction", err)
	}

	c.logger.WithFields(logrus.Fields{
		"tx_hash": signed.Hash().Hex(),
		"from":    from.Hex(),
		"to":      to.Hex(),
		"nonce":   nonce,
	}).Info("Transaction submitted")
	return signed.Hash(), nil
}
