package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TxType identifies the contract operation an EthIbetWSTTx performs
type TxType string

const (
	TxTypeDeploy          TxType = "DEPLOY"
	TxTypeMint            TxType = "MINT"
	TxTypeBurn            TxType = "BURN"
	TxTypeAddWhitelist    TxType = "ADD_WHITELIST"
	TxTypeDeleteWhitelist TxType = "DELETE_WHITELIST"
	TxTypeRequestTrade    TxType = "REQUEST_TRADE"
	TxTypeCancelTrade     TxType = "CANCEL_TRADE"
	TxTypeAcceptTrade     TxType = "ACCEPT_TRADE"
	TxTypeRejectTrade     TxType = "REJECT_TRADE"
	TxTypeTransfer        TxType = "TRANSFER"

	// Settlement actions against a DVP exchange contract
	TxTypeCreateDelivery  TxType = "CREATE_DELIVERY"
	TxTypeCancelDelivery  TxType = "CANCEL_DELIVERY"
	TxTypeConfirmDelivery TxType = "CONFIRM_DELIVERY"
	TxTypeFinishDelivery  TxType = "FINISH_DELIVERY"
	TxTypeAbortDelivery   TxType = "ABORT_DELIVERY"
)

// AllTxTypes returns the closed set of transaction types
func AllTxTypes() []TxType {
	return []TxType{
		TxTypeDeploy, TxTypeMint, TxTypeBurn,
		TxTypeAddWhitelist, TxTypeDeleteWhitelist,
		TxTypeRequestTrade, TxTypeCancelTrade, TxTypeAcceptTrade, TxTypeRejectTrade,
		TxTypeTransfer,
		TxTypeCreateDelivery, TxTypeCancelDelivery, TxTypeConfirmDelivery,
		TxTypeFinishDelivery, TxTypeAbortDelivery,
	}
}

// Valid reports whether t belongs to the closed set
func (t TxType) Valid() bool {
	for _, known := range AllTxTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// IsDelivery reports whether t is a DVP settlement action
func (t TxType) IsDelivery() bool {
	switch t {
	case TxTypeCreateDelivery, TxTypeCancelDelivery, TxTypeConfirmDelivery,
		TxTypeFinishDelivery, TxTypeAbortDelivery:
		return true
	}
	return false
}

// TxStatus is the submission/execution status of a transaction record
type TxStatus string

const (
	TxStatusPending   TxStatus = "PENDING"
	TxStatusSent      TxStatus = "SENT"
	TxStatusSucceeded TxStatus = "SUCCEEDED"
	TxStatusFailed    TxStatus = "FAILED"
)

// IsTerminal reports whether no further status change is possible
func (s TxStatus) IsTerminal() bool {
	return s == TxStatusSucceeded || s == TxStatusFailed
}

// Valid reports whether s is a known status
func (s TxStatus) Valid() bool {
	switch s {
	case TxStatusPending, TxStatusSent, TxStatusSucceeded, TxStatusFailed:
		return true
	}
	return false
}

var (
	ErrInvalidTransition      = errors.New("invalid transaction status transition")
	ErrTerminalStatusConflict = errors.New("transaction already has a different terminal status")
	ErrNotSucceeded           = errors.New("transaction has not succeeded")
	ErrAlreadyFinalized       = errors.New("transaction already finalized")
)

// EthIbetWSTTx is a persisted blockchain transaction intent.
//
// State is only changed through MarkSent, MarkSubmissionFailed, ApplyResult and Finalize,
// which keep status monotonic (PENDING -> SENT -> SUCCEEDED|FAILED) and finalized
// one-way (false -> true, SUCCEEDED only).
type EthIbetWSTTx struct {
	TxID           string          `json:"tx_id" db:"tx_id"`
	TxType         TxType          `json:"tx_type" db:"tx_type"`
	Version        string          `json:"version" db:"version"`
	Status         TxStatus        `json:"status" db:"status"`
	TxParams       json.RawMessage `json:"tx_params" db:"tx_params"`
	TxSender       string          `json:"tx_sender" db:"tx_sender"`
	TxHash         *string         `json:"tx_hash,omitempty" db:"tx_hash"`
	IbetWSTAddress *string         `json:"ibet_wst_address,omitempty" db:"ibet_wst_address"`
	BlockNumber    *uint64         `json:"block_number,omitempty" db:"block_number"`
	GasUsed        *uint64         `json:"gas_used,omitempty" db:"gas_used"`
	EventLog       EventLog        `json:"event_log,omitempty" db:"event_log"`
	Finalized      bool            `json:"finalized" db:"finalized"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// NewEthIbetWSTTx builds a PENDING record after validating params against txType
func NewEthIbetWSTTx(txID string, txType TxType, version, sender string, target *string, params TxParams) (*EthIbetWSTTx, error) {
	if txID == "" {
		return nil, fmt.Errorf("tx_id is required")
	}
	if !txType.Valid() {
		return nil, fmt.Errorf("unknown tx_type %q", txType)
	}
	if version == "" {
		return nil, fmt.Errorf("version is required")
	}
	if txType == TxTypeDeploy && target != nil {
		return nil, fmt.Errorf("ibet_wst_address must be empty for %s", txType)
	}
	if txType != TxTypeDeploy && (target == nil || *target == "") {
		return nil, fmt.Errorf("ibet_wst_address is required for %s", txType)
	}

	raw, err := EncodeTxParams(txType, params)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &EthIbetWSTTx{
		TxID:           txID,
		TxType:         txType,
		Version:        version,
		Status:         TxStatusPending,
		TxParams:       raw,
		TxSender:       sender,
		IbetWSTAddress: target,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Params decodes the stored parameters into the variant matching TxType
func (t *EthIbetWSTTx) Params() (TxParams, error) {
	return DecodeTxParams(t.TxType, t.TxParams)
}

// MarkSent records submission of the signed transaction
func (t *EthIbetWSTTx) MarkSent(txHash string) error {
	if t.Status != TxStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, TxStatusSent)
	}
	if txHash == "" {
		return fmt.Errorf("tx_hash is required to mark %s sent", t.TxID)
	}
	t.Status = TxStatusSent
	t.TxHash = &txHash
	t.touch()
	return nil
}

// MarkSubmissionFailed records that the transaction never reached the chain
func (t *EthIbetWSTTx) MarkSubmissionFailed() error {
	if t.Status != TxStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, TxStatusFailed)
	}
	t.Status = TxStatusFailed
	t.touch()
	return nil
}

// ApplyResult records the receipt outcome. It returns false when the record already
// carries the same terminal status, and ErrTerminalStatusConflict when it carries the other.
func (t *EthIbetWSTTx) ApplyResult(status TxStatus, blockNumber, gasUsed uint64) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("%w: %s is not a terminal status", ErrInvalidTransition, status)
	}
	if t.Status.IsTerminal() {
		if t.Status == status {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s has %s, got %s", ErrTerminalStatusConflict, t.TxID, t.Status, status)
	}
	t.Status = status
	t.BlockNumber = &blockNumber
	t.GasUsed = &gasUsed
	t.touch()
	return true, nil
}

// Finalize marks a succeeded record irreversible and stores its decoded event log (nil if absent)
func (t *EthIbetWSTTx) Finalize(eventLog EventLog) error {
	if t.Status != TxStatusSucceeded {
		return fmt.Errorf("%w: %s is %s", ErrNotSucceeded, t.TxID, t.Status)
	}
	if t.Finalized {
		return fmt.Errorf("%w: %s", ErrAlreadyFinalized, t.TxID)
	}
	t.Finalized = true
	t.EventLog = eventLog
	t.touch()
	return nil
}

// IsPending reports whether the monitor still has work to do for this record
func (t *EthIbetWSTTx) IsPending() bool {
	if t.Finalized {
		return false
	}
	return t.Status == TxStatusSent || t.Status == TxStatusSucceeded
}

func (t *EthIbetWSTTx) touch() {
	t.UpdatedAt = time.Now().UTC()
}

// TxFilter for querying transaction records
type TxFilter struct {
	Status *TxStatus `json:"status,omitempty"`
	TxType *TxType   `json:"tx_type,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}
