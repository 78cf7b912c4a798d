package contracts

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// DecodedEvent is one ABI-decoded log of a receipt
type DecodedEvent struct {
	Name     string
	Args     map[string]any
	Address  common.Address
	LogIndex uint
}

// DecodeEventLogs decodes the receipt logs emitted by address that match an event of
// contractABI. Logs from other contracts and unknown topics are skipped; a log that
// matches a known event but cannot be unpacked is an error.
func DecodeEventLogs(address common.Address, contractABI *abi.ABI, receipt *types.Receipt) ([]DecodedEvent, error) {
	if receipt == nil {
		return nil, fmt.Errorf("receipt is nil")
	}

	var events []DecodedEvent
	for _, log := range receipt.Logs {
		if log == nil || len(log.Topics) == 0 || log.Address != address {
			continue
		}

		event, err := contractABI.EventByID(log.Topics[0])
		if err != nil {
			continue
		}

		args, err := parseEventData(event, log)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s at log %d: %w", event.Name, log.Index, err)
		}

		events = append(events, DecodedEvent{
			Name:     event.Name,
			Args:     args,
			Address:  log.Address,
			LogIndex: log.Index,
		})
	}
	return events, nil
}

// FindEvent returns the first decoded event named name
func FindEvent(events []DecodedEvent, name string) (DecodedEvent, bool) {
	for _, event := range events {
		if event.Name == name {
			return event, true
		}
	}
	return DecodedEvent{}, false
}

func parseEventData(event *abi.Event, log *types.Log) (map[string]any, error) {
	result := make(map[string]any, len(event.Inputs))

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("expected %d indexed topics, got %d", len(indexed), len(log.Topics)-1)
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(result, indexed, log.Topics[1:]); err != nil {
			return nil, err
		}
	}

	if err := event.Inputs.UnpackIntoMap(result, log.Data); err != nil {
		return nil, err
	}
	return result, nil
}

// NormalizeValue converts an ABI value into its event_log representation:
// integers become json.Number, addresses checksummed hex, bytes 0x-hex.
func NormalizeValue(value any) any {
	switch v := value.(type) {
	case *big.Int:
		return json.Number(v.String())
	case uint8, uint16, uint32, uint64, int8, int16, int32, int64:
		return json.Number(fmt.Sprintf("%d", v))
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case [32]byte:
		return hexutil.Encode(v[:])
	case []byte:
		return "0x" + hex.EncodeToString(v)
	case bool, string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
