package contracts

import (
	"encoding/json"
	"testing"

	"github.com/BoostryJP/ibet-prime-wst/internal/contracts/contractstest"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	wstAddress   = common.HexToAddress("0x9876543210987654321098765432109876543210")
	otherAddress = common.HexToAddress("0x1111111111111111111111111111111111111111")
	toAddress    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestABIsParse(t *testing.T) {
	for _, name := range []string{
		EventMint, EventBurn, EventTransfer, EventAccountWhiteListAdded, EventAccountWhiteListDeleted,
		EventTradeRequested, EventTradeCancelled, EventTradeAccepted, EventTradeRejected,
	} {
		_, ok := IbetWSTABI.Events[name]
		assert.True(t, ok, name)
	}
	for _, name := range []string{
		EventDeliveryCreated, EventDeliveryCanceled, EventDeliveryConfirmed, EventDeliveryFinished, EventDeliveryAborted,
	} {
		_, ok := DVPABI.Events[name]
		assert.True(t, ok, name)
	}
}

func TestDecodeEventLogs(t *testing.T) {
	mint := contractstest.MustEventLog(IbetWSTABI, wstAddress, EventMint, map[string]any{
		"to":    toAddress,
		"value": contractstest.Big(1000),
	})
	foreign := contractstest.MustEventLog(IbetWSTABI, otherAddress, EventBurn, map[string]any{
		"from":  toAddress,
		"value": contractstest.Big(1),
	})
	unknown := &types.Log{Address: wstAddress, Topics: []common.Hash{common.HexToHash("0x01")}}
	receipt := contractstest.Receipt(types.ReceiptStatusSuccessful, 100, 21000, foreign, unknown, mint)

	events, err := DecodeEventLogs(wstAddress, IbetWSTABI, receipt)
	require.NoError(t, err)
	require.Len(t, events, 1)

	event, ok := FindEvent(events, EventMint)
	require.True(t, ok)
	assert.Equal(t, toAddress, event.Args["to"])
	assert.Equal(t, json.Number("1000"), NormalizeValue(event.Args["value"]))
	assert.Equal(t, uint(2), event.LogIndex)

	_, ok = FindEvent(events, EventBurn)
	assert.False(t, ok)
}

func TestDecodeTradeEvent(t *testing.T) {
	log := contractstest.MustEventLog(IbetWSTABI, wstAddress, EventTradeAccepted, map[string]any{
		"index":                  contractstest.Big(3),
		"sellerSTAccountAddress": otherAddress,
		"buyerSTAccountAddress":  toAddress,
		"SCTokenAddress":         otherAddress,
		"sellerSCAccountAddress": otherAddress,
		"buyerSCAccountAddress":  toAddress,
		"STValue":                contractstest.Big(10),
		"SCValue":                contractstest.Big(20),
	})

	events, err := DecodeEventLogs(wstAddress, IbetWSTABI, contractstest.Receipt(1, 5, 1, log))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Len(t, events[0].Args, 8)
	assert.Equal(t, json.Number("20"), NormalizeValue(events[0].Args["SCValue"]))
}

func TestDecodeMalformedLog(t *testing.T) {
	log := contractstest.MustEventLog(IbetWSTABI, wstAddress, EventMint, map[string]any{
		"to":    toAddress,
		"value": contractstest.Big(1),
	})
	log.Data = log.Data[:10]

	_, err := DecodeEventLogs(wstAddress, IbetWSTABI, contractstest.Receipt(1, 5, 1, log))
	assert.Error(t, err)
}

func TestToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"accountAddress":         "account_address",
		"sellerSTAccountAddress": "seller_st_account_address",
		"SCTokenAddress":         "sc_token_address",
		"STValue":                "st_value",
		"deliveryId":             "delivery_id",
		"index":                  "index",
		"_amount":                "amount",
	}
	for in, want := range cases {
		assert.Equal(t, want, ToSnakeCase(in), in)
	}
}

func TestPackDeliveryActions(t *testing.T) {
	data, err := PackDeliveryAction("finishDelivery", 7)
	require.NoError(t, err)
	assert.Equal(t, DVPABI.Methods["finishDelivery"].ID, data[:4])

	_, err = PackDeliveryAction("transfer", 7)
	assert.Error(t, err)

	data, err = PackCreateDelivery(wstAddress, toAddress, 5, otherAddress, "memo")
	require.NoError(t, err)
	method, err := DVPABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "createDelivery", method.Name)
}
