package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
)

// TxParams is the type-specific payload of an EthIbetWSTTx
type TxParams interface {
	Validate() error
}

// DeployParams for DEPLOY
type DeployParams struct {
	Name         string `json:"name"`
	InitialOwner string `json:"initial_owner"`
}

// MintParams for MINT
type MintParams struct {
	ToAddress string `json:"to_address"`
	Value     uint64 `json:"value"`
}

// BurnParams for BURN
type BurnParams struct {
	FromAddress string `json:"from_address"`
	Value       uint64 `json:"value"`
}

// AddWhitelistParams for ADD_WHITELIST. The settlement-currency accounts are not emitted
// by the contract event and are projected from here.
type AddWhitelistParams struct {
	AccountAddress      string `json:"account_address"`
	SCAccountAddressIn  string `json:"sc_account_address_in"`
	SCAccountAddressOut string `json:"sc_account_address_out"`
}

// DeleteWhitelistParams for DELETE_WHITELIST
type DeleteWhitelistParams struct {
	AccountAddress string `json:"account_address"`
}

// RequestTradeParams for REQUEST_TRADE
type RequestTradeParams struct {
	SellerSTAccountAddress string `json:"seller_st_account_address"`
	BuyerSTAccountAddress  string `json:"buyer_st_account_address"`
	SCTokenAddress         string `json:"sc_token_address"`
	SellerSCAccountAddress string `json:"seller_sc_account_address"`
	BuyerSCAccountAddress  string `json:"buyer_sc_account_address"`
	STValue                uint64 `json:"st_value"`
	SCValue                uint64 `json:"sc_value"`
	Memo                   string `json:"memo,omitempty"`
}

// TradeIndexParams for CANCEL_TRADE, ACCEPT_TRADE and REJECT_TRADE
type TradeIndexParams struct {
	Index uint64 `json:"index"`
}

// TransferParams for TRANSFER
type TransferParams struct {
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
	Value       uint64 `json:"value"`
}

// CreateDeliveryParams for CREATE_DELIVERY
type CreateDeliveryParams struct {
	TokenAddress string `json:"token_address"`
	BuyerAddress string `json:"buyer_address"`
	Amount       uint64 `json:"amount"`
	AgentAddress string `json:"agent_address"`
	Data         string `json:"data"`
}

// DeliveryActionParams for CANCEL/CONFIRM/FINISH/ABORT_DELIVERY
type DeliveryActionParams struct {
	DeliveryID uint64 `json:"delivery_id"`
}

func (p *DeployParams) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return requireAddresses(map[string]string{"initial_owner": p.InitialOwner})
}

func (p *MintParams) Validate() error {
	if p.Value == 0 {
		return fmt.Errorf("value must be positive")
	}
	return requireAddresses(map[string]string{"to_address": p.ToAddress})
}

func (p *BurnParams) Validate() error {
	if p.Value == 0 {
		return fmt.Errorf("value must be positive")
	}
	return requireAddresses(map[string]string{"from_address": p.FromAddress})
}

func (p *AddWhitelistParams) Validate() error {
	return requireAddresses(map[string]string{
		"account_address":        p.AccountAddress,
		"sc_account_address_in":  p.SCAccountAddressIn,
		"sc_account_address_out": p.SCAccountAddressOut,
	})
}

func (p *DeleteWhitelistParams) Validate() error {
	return requireAddresses(map[string]string{"account_address": p.AccountAddress})
}

func (p *RequestTradeParams) Validate() error {
	if p.STValue == 0 || p.SCValue == 0 {
		return fmt.Errorf("st_value and sc_value must be positive")
	}
	return requireAddresses(map[string]string{
		"seller_st_account_address": p.SellerSTAccountAddress,
		"buyer_st_account_address":  p.BuyerSTAccountAddress,
		"sc_token_address":          p.SCTokenAddress,
		"seller_sc_account_address": p.SellerSCAccountAddress,
		"buyer_sc_account_address":  p.BuyerSCAccountAddress,
	})
}

func (p *TradeIndexParams) Validate() error {
	return nil
}

func (p *TransferParams) Validate() error {
	if p.Value == 0 {
		return fmt.Errorf("value must be positive")
	}
	return requireAddresses(map[string]string{
		"from_address": p.FromAddress,
		"to_address":   p.ToAddress,
	})
}

func (p *CreateDeliveryParams) Validate() error {
	if p.Amount == 0 {
		return fmt.Errorf("amount must be positive")
	}
	return requireAddresses(map[string]string{
		"token_address": p.TokenAddress,
		"buyer_address": p.BuyerAddress,
		"agent_address": p.AgentAddress,
	})
}

func (p *DeliveryActionParams) Validate() error {
	return nil
}

// newTxParams returns an empty variant for txType
func newTxParams(txType TxType) (TxParams, error) {
	switch txType {
	case TxTypeDeploy:
		return &DeployParams{}, nil
	case TxTypeMint:
		return &MintParams{}, nil
	case TxTypeBurn:
		return &BurnParams{}, nil
	case TxTypeAddWhitelist:
		return &AddWhitelistParams{}, nil
	case TxTypeDeleteWhitelist:
		return &DeleteWhitelistParams{}, nil
	case TxTypeRequestTrade:
		return &RequestTradeParams{}, nil
	case TxTypeCancelTrade, TxTypeAcceptTrade, TxTypeRejectTrade:
		return &TradeIndexParams{}, nil
	case TxTypeTransfer:
		return &TransferParams{}, nil
	case TxTypeCreateDelivery:
		return &CreateDeliveryParams{}, nil
	case TxTypeCancelDelivery, TxTypeConfirmDelivery, TxTypeFinishDelivery, TxTypeAbortDelivery:
		return &DeliveryActionParams{}, nil
	default:
		return nil, fmt.Errorf("unknown tx_type %q", txType)
	}
}

// DecodeTxParams parses raw into the variant for txType and validates it.
// Unknown fields are rejected.
func DecodeTxParams(txType TxType, raw []byte) (TxParams, error) {
	params, err := newTxParams(txType)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("tx_params is required for %s", txType)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(params); err != nil {
		return nil, fmt.Errorf("invalid tx_params for %s: %w", txType, err)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tx_params for %s: %w", txType, err)
	}
	return params, nil
}

// EncodeTxParams validates params against txType and serializes them
func EncodeTxParams(txType TxType, params TxParams) (json.RawMessage, error) {
	want, err := newTxParams(txType)
	if err != nil {
		return nil, err
	}
	if params == nil || reflect.TypeOf(params) != reflect.TypeOf(want) {
		return nil, fmt.Errorf("tx_params %T does not match tx_type %s", params, txType)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tx_params for %s: %w", txType, err)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tx_params: %w", err)
	}
	return raw, nil
}

func requireAddresses(fields map[string]string) error {
	for name, value := range fields {
		if !utils.IsValidAddress(value) {
			return fmt.Errorf("%s is not a valid address: %q", name, value)
		}
	}
	return nil
}
