package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/BoostryJP/ibet-prime-wst/internal/config"
	"github.com/BoostryJP/ibet-prime-wst/internal/contracts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Chain is the chain collaborator consumed by the monitor
type Chain interface {
	// WaitForTransactionReceipt returns connection.ErrReceiptNotFound when the receipt
	// is not available within timeout
	WaitForTransactionReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, error)
	GetFinalizedBlockNumber(ctx context.Context) (uint64, error)
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	DecodeEventLogs(address common.Address, contractABI *abi.ABI, receipt *types.Receipt) ([]contracts.DecodedEvent, error)
}

// FinalityGate decides up to which block transactions are irreversible
type FinalityGate interface {
	FinalizedBlock(ctx context.Context) (uint64, error)
}

// FinalizedTagGate trusts the chain's "finalized" block tag
type FinalizedTagGate struct {
	chain Chain
}

// FinalizedBlock implements FinalityGate
func (g *FinalizedTagGate) FinalizedBlock(ctx context.Context) (uint64, error) {
	return g.chain.GetFinalizedBlockNumber(ctx)
}

// ConfirmationGate treats blocks at least Confirmations below the head as final,
// for nodes that do not serve the finalized tag
type ConfirmationGate struct {
	chain         Chain
	confirmations uint64
}

// FinalizedBlock implements FinalityGate
func (g *ConfirmationGate) FinalizedBlock(ctx context.Context) (uint64, error) {
	latest, err := g.chain.GetLatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if latest < g.confirmations {
		return 0, nil
	}
	return latest - g.confirmations, nil
}

// NewFinalityGate builds the gate selected by cfg.FinalityMode
func NewFinalityGate(cfg *config.MonitorConfig, chain Chain) (FinalityGate, error) {
	switch cfg.FinalityMode {
	case config.FinalityModeFinalized, "":
		return &FinalizedTagGate{chain: chain}, nil
	case config.FinalityModeConfirmations:
		return &ConfirmationGate{chain: chain, confirmations: cfg.ConfirmationBlocks}, nil
	default:
		return nil, fmt.Errorf("unknown finality mode: %s", cfg.FinalityMode)
	}
}
