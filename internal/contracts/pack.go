package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PackCreateDelivery encodes createDelivery(token, buyer, amount, agent, data)
func PackCreateDelivery(token, buyer common.Address, amount uint64, agent common.Address, data string) ([]byte, error) {
	return pack("createDelivery", token, buyer, new(big.Int).SetUint64(amount), agent, data)
}

// PackDeliveryAction encodes one of cancelDelivery, confirmDelivery, finishDelivery
// and abortDelivery, which all take the delivery id only
func PackDeliveryAction(method string, deliveryID uint64) ([]byte, error) {
	switch method {
	case "cancelDelivery", "confirmDelivery", "finishDelivery", "abortDelivery":
	default:
		return nil, fmt.Errorf("unknown delivery action %q", method)
	}
	return pack(method, new(big.Int).SetUint64(deliveryID))
}

func pack(method string, args ...any) ([]byte, error) {
	data, err := DVPABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return data, nil
}
