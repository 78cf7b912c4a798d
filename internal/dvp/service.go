// Package dvp issues the settlement actions of DVP deliveries. Actions only submit
// transactions; the delivery projection advances when the monitor finalizes them.
package dvp

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/BoostryJP/ibet-prime-wst/internal/config"
	"github.com/BoostryJP/ibet-prime-wst/internal/contracts"
	"github.com/BoostryJP/ibet-prime-wst/internal/keystore"
	"github.com/BoostryJP/ibet-prime-wst/internal/metrics"
	"github.com/BoostryJP/ibet-prime-wst/internal/models"
	"github.com/BoostryJP/ibet-prime-wst/internal/storage"
	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnauthorized is returned when the caller may not perform the action
	ErrUnauthorized = errors.New("caller is not authorized for this delivery")
	// ErrInvalidState is returned when the delivery is not in a state accepting the action
	ErrInvalidState = errors.New("delivery is not in a valid state for this action")
)

// Submitter signs and broadcasts a contract call
type Submitter interface {
	SendTransaction(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, data []byte) (common.Hash, error)
}

// KeyProvider resolves the signing key of an account from its EOA password
type KeyProvider interface {
	PrivateKey(ctx context.Context, address, password string) (*ecdsa.PrivateKey, error)
}

// CreateRequest asks the seller's account to open a delivery on the exchange
type CreateRequest struct {
	SellerAddress string `json:"seller_address"`
	Password      string `json:"-"`
	TokenAddress  string `json:"token_address"`
	BuyerAddress  string `json:"buyer_address"`
	Amount        uint64 `json:"amount"`
	AgentAddress  string `json:"agent_address"`
	Data          string `json:"data"`
}

// ActionRequest identifies the caller of an action on an existing delivery
type ActionRequest struct {
	CallerAddress string `json:"caller_address"`
	Password      string `json:"-"`
	DeliveryID    uint64 `json:"delivery_id"`
}

// role names who may perform an action
type role int

const (
	roleSellerOrBuyer role = iota
	roleBuyer
	roleAgent
)

// action describes one state-changing delivery action
type action struct {
	txType   models.TxType
	method   string
	role     role
	required models.DeliveryStatus
	target   models.DeliveryStatus
}

var (
	actionCancel  = action{models.TxTypeCancelDelivery, "cancelDelivery", roleSellerOrBuyer, models.DeliveryStatusCreated, models.DeliveryStatusCanceled}
	actionConfirm = action{models.TxTypeConfirmDelivery, "confirmDelivery", roleBuyer, models.DeliveryStatusCreated, models.DeliveryStatusConfirmed}
	actionFinish  = action{models.TxTypeFinishDelivery, "finishDelivery", roleAgent, models.DeliveryStatusConfirmed, models.DeliveryStatusFinished}
	actionAbort   = action{models.TxTypeAbortDelivery, "abortDelivery", roleAgent, models.DeliveryStatusConfirmed, models.DeliveryStatusAborted}
)

// Service runs the delivery workflow against one exchange contract
type Service struct {
	store          storage.Storage
	submitter      Submitter
	keys           KeyProvider
	exchange       string
	version        string
	logger         *logrus.Entry
	metricsManager *metrics.Manager
	newTxID        func() string
}

// NewService creates a delivery service
func NewService(store storage.Storage, submitter Submitter, keys KeyProvider, cfg *config.DVPConfig) *Service {
	return &Service{
		store:     store,
		submitter: submitter,
		keys:      keys,
		exchange:  utils.ChecksumAddress(cfg.ExchangeAddress),
		version:   cfg.TxVersion,
		logger:    utils.ComponentLogger("dvp"),
		newTxID:   func() string { return uuid.New().String() },
	}
}

// SetMetricsManager enables submission metrics
func (s *Service) SetMetricsManager(m *metrics.Manager) {
	s.metricsManager = m
}

// ExchangeAddress returns the exchange contract the service acts on
func (s *Service) ExchangeAddress() string {
	return s.exchange
}

// CreateDelivery submits createDelivery signed by the seller
func (s *Service) CreateDelivery(ctx context.Context, req CreateRequest) (*models.EthIbetWSTTx, error) {
	if !utils.IsValidAddress(req.SellerAddress) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid seller address", req.SellerAddress)
	}
	if utils.SameAddress(req.SellerAddress, req.BuyerAddress) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Seller and buyer must differ", req.SellerAddress)
	}

	params := &models.CreateDeliveryParams{
		TokenAddress: req.TokenAddress,
		BuyerAddress: req.BuyerAddress,
		Amount:       req.Amount,
		AgentAddress: req.AgentAddress,
		Data:         req.Data,
	}
	if err := params.Validate(); err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeValidation, "Invalid delivery parameters", err)
	}

	key, err := s.signingKey(ctx, req.SellerAddress, req.Password)
	if err != nil {
		return nil, err
	}

	data, err := contracts.PackCreateDelivery(
		common.HexToAddress(req.TokenAddress),
		common.HexToAddress(req.BuyerAddress),
		req.Amount,
		common.HexToAddress(req.AgentAddress),
		req.Data,
	)
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeInternal, "Failed to encode createDelivery", err)
	}

	return s.submit(ctx, models.TxTypeCreateDelivery, req.SellerAddress, key, params, data)
}

// CancelDelivery submits cancelDelivery; the caller must be the seller or the buyer
func (s *Service) CancelDelivery(ctx context.Context, req ActionRequest) (*models.EthIbetWSTTx, error) {
	return s.act(ctx, actionCancel, req)
}

// ConfirmDelivery submits confirmDelivery; the caller must be the buyer. The contract
// confirms the delivery once both legs are locked.
func (s *Service) ConfirmDelivery(ctx context.Context, req ActionRequest) (*models.EthIbetWSTTx, error) {
	return s.act(ctx, actionConfirm, req)
}

// FinishDelivery submits finishDelivery; the caller must be the delivery's agent
func (s *Service) FinishDelivery(ctx context.Context, req ActionRequest) (*models.EthIbetWSTTx, error) {
	return s.act(ctx, actionFinish, req)
}

// AbortDelivery submits abortDelivery; the caller must be the delivery's agent
func (s *Service) AbortDelivery(ctx context.Context, req ActionRequest) (*models.EthIbetWSTTx, error) {
	return s.act(ctx, actionAbort, req)
}

// GetDelivery returns the projected delivery
func (s *Service) GetDelivery(ctx context.Context, deliveryID uint64) (*models.DVPDelivery, error) {
	return s.store.GetDelivery(ctx, s.exchange, deliveryID)
}

func (s *Service) act(ctx context.Context, a action, req ActionRequest) (*models.EthIbetWSTTx, error) {
	delivery, err := s.store.GetDelivery(ctx, s.exchange, req.DeliveryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, utils.WrapAppError(utils.ErrCodeNotFound, "Delivery not found", err)
		}
		return nil, err
	}

	if !authorized(a.role, delivery, req.CallerAddress) {
		return nil, utils.WrapAppError(utils.ErrCodeUnauthorized,
			fmt.Sprintf("Caller may not %s delivery %d", a.method, req.DeliveryID), ErrUnauthorized)
	}
	if !delivery.Valid || delivery.Status != a.required || !delivery.Status.CanTransitionTo(a.target) {
		return nil, utils.WrapAppError(utils.ErrCodeInvalidState,
			fmt.Sprintf("Delivery %d is %s (valid=%t)", req.DeliveryID, delivery.Status, delivery.Valid), ErrInvalidState)
	}

	key, err := s.signingKey(ctx, req.CallerAddress, req.Password)
	if err != nil {
		return nil, err
	}

	data, err := contracts.PackDeliveryAction(a.method, req.DeliveryID)
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeInternal, "Failed to encode delivery action", err)
	}

	return s.submit(ctx, a.txType, req.CallerAddress, key, &models.DeliveryActionParams{DeliveryID: req.DeliveryID}, data)
}

func authorized(r role, delivery *models.DVPDelivery, caller string) bool {
	switch r {
	case roleSellerOrBuyer:
		return utils.SameAddress(caller, delivery.SellerAddress) || utils.SameAddress(caller, delivery.BuyerAddress)
	case roleBuyer:
		return utils.SameAddress(caller, delivery.BuyerAddress)
	case roleAgent:
		return utils.SameAddress(caller, delivery.AgentAddress)
	default:
		return false
	}
}

func (s *Service) signingKey(ctx context.Context, address, password string) (*ecdsa.PrivateKey, error) {
	key, err := s.keys.PrivateKey(ctx, address, password)
	if err != nil {
		if errors.Is(err, keystore.ErrInvalidPassword) || errors.Is(err, keystore.ErrAccountNotFound) {
			return nil, utils.WrapAppError(utils.ErrCodeUnauthorized, "EOA password check failed",
				fmt.Errorf("%w: %v", ErrUnauthorized, err))
		}
		return nil, err
	}
	return key, nil
}

// submit persists the transaction record, broadcasts the call and records the outcome
// of the submission on the record
func (s *Service) submit(ctx context.Context, txType models.TxType, sender string, key *ecdsa.PrivateKey, params models.TxParams, data []byte) (*models.EthIbetWSTTx, error) {
	exchange := s.exchange
	tx, err := models.NewEthIbetWSTTx(s.newTxID(), txType, s.version, utils.ChecksumAddress(sender), &exchange, params)
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeValidation, "Invalid transaction", err)
	}
	if err := s.store.CreateTx(ctx, tx); err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{"tx_id": tx.TxID, "tx_type": txType, "sender": tx.TxSender})

	hash, sendErr := s.submitter.SendTransaction(ctx, key, common.HexToAddress(s.exchange), data)
	if sendErr != nil {
		logger.WithError(sendErr).Error("Failed to submit transaction")
		s.recordSubmission(txType, "failed")
		if err := s.store.MarkTxSubmissionFailed(ctx, tx.TxID); err != nil {
			logger.WithError(err).Error("Failed to record submission failure")
		}
		return s.reload(ctx, tx), sendErr
	}

	if err := s.store.MarkTxSent(ctx, tx.TxID, hash.Hex()); err != nil {
		return nil, err
	}
	s.recordSubmission(txType, "sent")
	logger.WithField("tx_hash", hash.Hex()).Info("Delivery transaction sent")
	return s.reload(ctx, tx), nil
}

func (s *Service) reload(ctx context.Context, tx *models.EthIbetWSTTx) *models.EthIbetWSTTx {
	fresh, err := s.store.GetTx(ctx, tx.TxID)
	if err != nil {
		return tx
	}
	return fresh
}

func (s *Service) recordSubmission(txType models.TxType, status string) {
	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordSubmission(string(txType), status)
	}
}
