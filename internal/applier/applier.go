package applier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/BoostryJP/ibet-prime-wst/internal/contracts"
	"github.com/BoostryJP/ibet-prime-wst/internal/models"
	"github.com/BoostryJP/ibet-prime-wst/internal/storage"
	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// Result is the outcome of applying one finalized transaction
type Result struct {
	// EventLog is nil when the expected event was not found
	EventLog models.EventLog
	// Delivery is the projected delivery after a delivery action, if any
	Delivery *models.DVPDelivery
}

// projectFunc mutates projections from a decoded event log
type projectFunc func(ctx context.Context, repo storage.Repository, tx *models.EthIbetWSTTx, eventLog models.EventLog, result *Result) error

// handler describes how one transaction type is decoded and applied
type handler struct {
	contractABI *abi.ABI
	event       string
	// fields maps contract argument names to event_log keys; unmapped arguments use snake_case
	fields  map[string]string
	project projectFunc
}

var (
	addressFields = map[string]string{
		"to":   "to_address",
		"from": "from_address",
	}
	deliveryFields = map[string]string{
		"token":      "token_address",
		"deliveryId": "delivery_id",
		"seller":     "seller_address",
		"buyer":      "buyer_address",
		"agent":      "agent_address",
	}
)

// EventDecoder decodes the logs a contract emitted in a receipt
type EventDecoder interface {
	DecodeEventLogs(address common.Address, contractABI *abi.ABI, receipt *types.Receipt) ([]contracts.DecodedEvent, error)
}

type abiDecoder struct{}

func (abiDecoder) DecodeEventLogs(address common.Address, contractABI *abi.ABI, receipt *types.Receipt) ([]contracts.DecodedEvent, error) {
	return contracts.DecodeEventLogs(address, contractABI, receipt)
}

// Applier turns decoded receipt events into event logs and projection mutations.
// Dispatch is a closed table keyed by transaction type.
type Applier struct {
	handlers map[models.TxType]handler
	decoder  EventDecoder
	logger   *logrus.Entry
}

// New creates an applier covering every transaction type. A nil decoder decodes
// with the embedded ABIs directly.
func New(decoder EventDecoder) *Applier {
	if decoder == nil {
		decoder = abiDecoder{}
	}
	a := &Applier{decoder: decoder, logger: utils.ComponentLogger("applier")}
	a.handlers = map[models.TxType]handler{
		models.TxTypeDeploy:          {project: a.projectDeploy},
		models.TxTypeMint:            {contractABI: contracts.IbetWSTABI, event: contracts.EventMint, fields: addressFields},
		models.TxTypeBurn:            {contractABI: contracts.IbetWSTABI, event: contracts.EventBurn, fields: addressFields},
		models.TxTypeTransfer:        {contractABI: contracts.IbetWSTABI, event: contracts.EventTransfer, fields: addressFields},
		models.TxTypeAddWhitelist:    {contractABI: contracts.IbetWSTABI, event: contracts.EventAccountWhiteListAdded, project: a.projectAddWhitelist},
		models.TxTypeDeleteWhitelist: {contractABI: contracts.IbetWSTABI, event: contracts.EventAccountWhiteListDeleted, project: a.projectDeleteWhitelist},
		models.TxTypeRequestTrade:    {contractABI: contracts.IbetWSTABI, event: contracts.EventTradeRequested},
		models.TxTypeCancelTrade:     {contractABI: contracts.IbetWSTABI, event: contracts.EventTradeCancelled},
		models.TxTypeAcceptTrade:     {contractABI: contracts.IbetWSTABI, event: contracts.EventTradeAccepted},
		models.TxTypeRejectTrade:     {contractABI: contracts.IbetWSTABI, event: contracts.EventTradeRejected},
		models.TxTypeCreateDelivery:  {contractABI: contracts.DVPABI, event: contracts.EventDeliveryCreated, fields: deliveryFields, project: a.projectCreateDelivery},
		models.TxTypeCancelDelivery:  {contractABI: contracts.DVPABI, event: contracts.EventDeliveryCanceled, fields: deliveryFields, project: a.deliveryTransition(models.DeliveryStatusCanceled)},
		models.TxTypeConfirmDelivery: {contractABI: contracts.DVPABI, event: contracts.EventDeliveryConfirmed, fields: deliveryFields, project: a.deliveryTransition(models.DeliveryStatusConfirmed)},
		models.TxTypeFinishDelivery:  {contractABI: contracts.DVPABI, event: contracts.EventDeliveryFinished, fields: deliveryFields, project: a.deliveryTransition(models.DeliveryStatusFinished)},
		models.TxTypeAbortDelivery:   {contractABI: contracts.DVPABI, event: contracts.EventDeliveryAborted, fields: deliveryFields, project: a.deliveryTransition(models.DeliveryStatusAborted)},
	}
	return a
}

// Supports reports whether txType has a handler
func (a *Applier) Supports(txType models.TxType) bool {
	_, ok := a.handlers[txType]
	return ok
}

// Apply extracts the event of tx from receipt and applies its projection through repo.
// A missing event is logged and yields a nil event log without error; projection
// failures are returned so the caller can roll back.
func (a *Applier) Apply(ctx context.Context, repo storage.Repository, tx *models.EthIbetWSTTx, receipt *types.Receipt) (*Result, error) {
	h, ok := a.handlers[tx.TxType]
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeInvariantViolation, "No event handler for transaction type", string(tx.TxType))
	}

	eventLog := a.extract(h, tx, receipt)
	result := &Result{EventLog: eventLog}
	if eventLog == nil {
		return result, nil
	}

	if h.project != nil {
		if err := h.project(ctx, repo, tx, eventLog, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (a *Applier) extract(h handler, tx *models.EthIbetWSTTx, receipt *types.Receipt) models.EventLog {
	logger := a.logger.WithFields(logrus.Fields{"tx_id": tx.TxID, "tx_type": tx.TxType})

	if tx.TxType == models.TxTypeDeploy {
		if receipt.ContractAddress == (common.Address{}) {
			logger.Warn("Contract address not found in deploy receipt")
			return nil
		}
		return models.EventLog{"contract_address": receipt.ContractAddress.Hex()}
	}

	if tx.IbetWSTAddress == nil {
		logger.Warn("Transaction has no target contract, event cannot be decoded")
		return nil
	}

	events, err := a.decoder.DecodeEventLogs(common.HexToAddress(*tx.IbetWSTAddress), h.contractABI, receipt)
	if err != nil {
		logger.WithError(err).Warn("Failed to decode event logs")
		return nil
	}

	event, found := contracts.FindEvent(events, h.event)
	if !found {
		logger.WithField("event", h.event).Warn("Expected event not found in transaction receipt")
		return nil
	}

	eventLog := make(models.EventLog, len(event.Args))
	for name, value := range event.Args {
		key, mapped := h.fields[name]
		if !mapped {
			key = contracts.ToSnakeCase(name)
		}
		eventLog[key] = contracts.NormalizeValue(value)
	}
	return eventLog
}

func (a *Applier) projectDeploy(ctx context.Context, repo storage.Repository, tx *models.EthIbetWSTTx, eventLog models.EventLog, _ *Result) error {
	address, _ := eventLog.String("contract_address")

	err := repo.SetTokenWSTDeployed(ctx, tx.TxID, address)
	if errors.Is(err, storage.ErrNotFound) {
		a.logger.WithFields(logrus.Fields{"tx_id": tx.TxID, "contract_address": address}).
			Warn("No token references the deploy transaction")
		return nil
	}
	return err
}

func (a *Applier) projectAddWhitelist(ctx context.Context, repo storage.Repository, tx *models.EthIbetWSTTx, eventLog models.EventLog, _ *Result) error {
	params, err := tx.Params()
	if err != nil {
		return err
	}
	p, ok := params.(*models.AddWhitelistParams)
	if !ok {
		return fmt.Errorf("unexpected params %T for %s", params, tx.TxType)
	}

	account, ok := eventLog.String("account_address")
	if !ok {
		return utils.NewAppError(utils.ErrCodeProcessing, "Event has no account address", tx.TxID)
	}

	inserted, err := repo.AddWhitelist(ctx, &models.WhitelistEntry{
		IbetWSTAddress:      *tx.IbetWSTAddress,
		AccountAddress:      account,
		SCAccountAddressIn:  p.SCAccountAddressIn,
		SCAccountAddressOut: p.SCAccountAddressOut,
	})
	if err != nil {
		return err
	}
	if !inserted {
		a.logger.WithFields(logrus.Fields{"ibet_wst_address": *tx.IbetWSTAddress, "account_address": account}).
			Debug("Whitelist entry already present")
	}
	return nil
}

func (a *Applier) projectDeleteWhitelist(ctx context.Context, repo storage.Repository, tx *models.EthIbetWSTTx, eventLog models.EventLog, _ *Result) error {
	account, ok := eventLog.String("account_address")
	if !ok {
		return utils.NewAppError(utils.ErrCodeProcessing, "Event has no account address", tx.TxID)
	}

	deleted, err := repo.DeleteWhitelist(ctx, *tx.IbetWSTAddress, account)
	if err != nil {
		return err
	}
	a.logger.WithFields(logrus.Fields{
		"ibet_wst_address": *tx.IbetWSTAddress,
		"account_address":  account,
		"deleted":          deleted,
	}).Debug("Whitelist entry deleted")
	return nil
}

func (a *Applier) projectCreateDelivery(ctx context.Context, repo storage.Repository, tx *models.EthIbetWSTTx, eventLog models.EventLog, result *Result) error {
	deliveryID, err := projectedInt(tx, eventLog, "delivery_id")
	if err != nil {
		return err
	}
	amount, err := projectedInt(tx, eventLog, "amount")
	if err != nil {
		return err
	}
	token, _ := eventLog.String("token_address")
	seller, _ := eventLog.String("seller_address")
	buyer, _ := eventLog.String("buyer_address")
	agent, _ := eventLog.String("agent_address")
	data, _ := eventLog.String("data")

	delivery := &models.DVPDelivery{
		ExchangeAddress: *tx.IbetWSTAddress,
		DeliveryID:      deliveryID,
		TokenAddress:    token,
		SellerAddress:   seller,
		BuyerAddress:    buyer,
		AgentAddress:    agent,
		Amount:          amount,
		Data:            data,
		Status:          models.DeliveryStatusCreated,
		Valid:           true,
	}
	if err := repo.CreateDelivery(ctx, delivery); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return utils.WrapAppError(utils.ErrCodeInvariantViolation, "Delivery created twice", err)
		}
		return err
	}
	result.Delivery = delivery
	return nil
}

// deliveryTransition moves the projected delivery to next. An illegal move observed
// from the chain is an invariant violation.
func (a *Applier) deliveryTransition(next models.DeliveryStatus) projectFunc {
	return func(ctx context.Context, repo storage.Repository, tx *models.EthIbetWSTTx, eventLog models.EventLog, result *Result) error {
		deliveryID, err := projectedInt(tx, eventLog, "delivery_id")
		if err != nil {
			return err
		}

		delivery, err := repo.GetDelivery(ctx, *tx.IbetWSTAddress, deliveryID)
		if err != nil {
			return err
		}
		if !delivery.Status.CanTransitionTo(next) {
			return utils.WrapAppError(utils.ErrCodeInvariantViolation, "Illegal delivery transition",
				fmt.Errorf("%w: delivery %d %s -> %s", models.ErrInvalidTransition, deliveryID, delivery.Status, next))
		}

		valid := !next.IsTerminal()
		if err := repo.UpdateDeliveryStatus(ctx, delivery.ExchangeAddress, deliveryID, delivery.Status, next, valid); err != nil {
			return err
		}

		a.logger.WithFields(logrus.Fields{
			"exchange_address": delivery.ExchangeAddress,
			"delivery_id":      deliveryID,
			"from":             delivery.Status.String(),
			"to":               next.String(),
		}).Info("Delivery status updated")

		delivery.Status = next
		delivery.Valid = valid
		result.Delivery = delivery
		return nil
	}
}

// projectedInt reads an integer event field that is stored in a BIGINT projection column.
// A value the column cannot hold is an invariant violation, never a clamped write.
func projectedInt(tx *models.EthIbetWSTTx, eventLog models.EventLog, key string) (uint64, error) {
	raw, present := eventLog[key]
	if !present {
		return 0, utils.NewAppError(utils.ErrCodeProcessing, "Event has no "+key, tx.TxID)
	}
	n, ok := eventLog.Uint64(key)
	if !ok || n > math.MaxInt64 {
		return 0, utils.NewAppError(utils.ErrCodeInvariantViolation, "Event value out of projection range",
			fmt.Sprintf("tx %s: %s=%v", tx.TxID, key, raw))
	}
	return n, nil
}
