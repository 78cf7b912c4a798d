// Package contractstest builds receipts carrying ABI-encoded event logs for tests.
package contractstest

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventLog encodes eventName with args (by ABI argument name) as emitted by address
func EventLog(contractABI *abi.ABI, address common.Address, eventName string, args map[string]any) (*types.Log, error) {
	event, ok := contractABI.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("unknown event %s", eventName)
	}

	topics := []common.Hash{event.ID}
	var data []any
	for _, input := range event.Inputs {
		value, ok := args[input.Name]
		if !ok {
			return nil, fmt.Errorf("missing argument %s for %s", input.Name, eventName)
		}
		if input.Indexed {
			encoded, err := abi.MakeTopics([]any{value})
			if err != nil {
				return nil, err
			}
			topics = append(topics, encoded[0][0])
			continue
		}
		data = append(data, value)
	}

	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, err
	}

	return &types.Log{Address: address, Topics: topics, Data: packed}, nil
}

// MustEventLog is EventLog that panics on error
func MustEventLog(contractABI *abi.ABI, address common.Address, eventName string, args map[string]any) *types.Log {
	log, err := EventLog(contractABI, address, eventName, args)
	if err != nil {
		panic(err)
	}
	return log
}

// Receipt builds a receipt with the given status and logs
func Receipt(status uint64, blockNumber, gasUsed uint64, logs ...*types.Log) *types.Receipt {
	for i, log := range logs {
		log.Index = uint(i)
		log.BlockNumber = blockNumber
	}
	return &types.Receipt{
		Status:      status,
		BlockNumber: new(big.Int).SetUint64(blockNumber),
		GasUsed:     gasUsed,
		Logs:        logs,
	}
}

// Big is a shorthand for uint256 arguments
func Big(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}
