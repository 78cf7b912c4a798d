package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTxParams(t *testing.T) {
	params, err := DecodeTxParams(TxTypeAddWhitelist, []byte(`{
		"account_address": "0x2222222222222222222222222222222222222222",
		"sc_account_address_in": "0x3333333333333333333333333333333333333333",
		"sc_account_address_out": "0x4444444444444444444444444444444444444444"
	}`))
	require.NoError(t, err)
	wl, ok := params.(*AddWhitelistParams)
	require.True(t, ok)
	assert.Equal(t, "0x3333333333333333333333333333333333333333", wl.SCAccountAddressIn)

	_, err = DecodeTxParams(TxTypeAddWhitelist, []byte(`{"account_address": "0x2222222222222222222222222222222222222222"}`))
	assert.Error(t, err, "missing settlement accounts")

	_, err = DecodeTxParams(TxTypeMint, []byte(`{"to_address": "0x2222222222222222222222222222222222222222", "value": 1, "extra": true}`))
	assert.Error(t, err, "unknown field")

	_, err = DecodeTxParams(TxTypeMint, []byte(`{"to_address": "not-an-address", "value": 1}`))
	assert.Error(t, err)

	_, err = DecodeTxParams(TxTypeMint, nil)
	assert.Error(t, err)

	params, err = DecodeTxParams(TxTypeAcceptTrade, []byte(`{"index": 7}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), params.(*TradeIndexParams).Index)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := &CreateDeliveryParams{
		TokenAddress: testWST,
		BuyerAddress: testAccount,
		Amount:       5,
		AgentAddress: testSender,
		Data:         "memo",
	}
	raw, err := EncodeTxParams(TxTypeCreateDelivery, in)
	require.NoError(t, err)

	out, err := DecodeTxParams(TxTypeCreateDelivery, raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEventLogScan(t *testing.T) {
	var log EventLog
	require.NoError(t, log.Scan(`{"to_address":"0x2222222222222222222222222222222222222222","value":1000000000000}`))
	v, ok := log.Uint64("value")
	require.True(t, ok)
	assert.Equal(t, uint64(1000000000000), v)

	addr, ok := log.String("to_address")
	require.True(t, ok)
	assert.Equal(t, testAccount, addr)

	require.NoError(t, log.Scan(nil))
	assert.Nil(t, log)

	value, err := EventLog(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, value)
}
