// Package contracts holds the ABIs of the IbetWST token and the DVP exchange and the
// helpers that turn receipts into decoded events and actions into calldata.
package contracts

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abi/IbetWST.json
var ibetWSTABIJSON []byte

//go:embed abi/IbetSecurityTokenDVP.json
var dvpABIJSON []byte

var (
	// IbetWSTABI is the wrapped security token contract
	IbetWSTABI = mustParseABI("IbetWST", ibetWSTABIJSON)
	// DVPABI is the delivery-versus-payment exchange contract
	DVPABI = mustParseABI("IbetSecurityTokenDVP", dvpABIJSON)
)

// IbetWST events
const (
	EventMint                    = "Mint"
	EventBurn                    = "Burn"
	EventTransfer                = "Transfer"
	EventAccountWhiteListAdded   = "AccountWhiteListAdded"
	EventAccountWhiteListDeleted = "AccountWhiteListDeleted"
	EventTradeRequested          = "TradeRequested"
	EventTradeCancelled          = "TradeCancelled"
	EventTradeAccepted           = "TradeAccepted"
	EventTradeRejected           = "TradeRejected"
)

// DVP exchange events
const (
	EventDeliveryCreated   = "DeliveryCreated"
	EventDeliveryCanceled  = "DeliveryCanceled"
	EventDeliveryConfirmed = "DeliveryConfirmed"
	EventDeliveryFinished  = "DeliveryFinished"
	EventDeliveryAborted   = "DeliveryAborted"
)

func mustParseABI(name string, raw []byte) *abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid %s ABI: %v", name, err))
	}
	return &parsed
}
