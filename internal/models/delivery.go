package models

import (
	"fmt"
	"time"
)

// DeliveryStatus mirrors the on-chain status codes of a DVP delivery
type DeliveryStatus int

const (
	DeliveryStatusCreated   DeliveryStatus = 0
	DeliveryStatusCanceled  DeliveryStatus = 1
	DeliveryStatusConfirmed DeliveryStatus = 2
	DeliveryStatusFinished  DeliveryStatus = 3
	DeliveryStatusAborted   DeliveryStatus = 4
)

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusCreated:   {DeliveryStatusCanceled, DeliveryStatusConfirmed},
	DeliveryStatusConfirmed: {DeliveryStatusFinished, DeliveryStatusAborted},
}

func (s DeliveryStatus) String() string {
	switch s {
	case DeliveryStatusCreated:
		return "CREATED"
	case DeliveryStatusCanceled:
		return "CANCELED"
	case DeliveryStatusConfirmed:
		return "CONFIRMED"
	case DeliveryStatusFinished:
		return "FINISHED"
	case DeliveryStatusAborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Valid reports whether s is a known status code
func (s DeliveryStatus) Valid() bool {
	return s >= DeliveryStatusCreated && s <= DeliveryStatusAborted
}

// IsTerminal reports whether no further transition is possible
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusCanceled || s == DeliveryStatusFinished || s == DeliveryStatusAborted
}

// CanTransitionTo reports whether s -> next is an allowed forward move
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	for _, allowed := range deliveryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DVPDelivery is one settlement unit on a DVP exchange contract.
// Identity is (ExchangeAddress, DeliveryID).
type DVPDelivery struct {
	ExchangeAddress string         `json:"exchange_address" db:"exchange_address"`
	DeliveryID      uint64         `json:"delivery_id" db:"delivery_id"`
	TokenAddress    string         `json:"token_address" db:"token_address"`
	SellerAddress   string         `json:"seller_address" db:"seller_address"`
	BuyerAddress    string         `json:"buyer_address" db:"buyer_address"`
	AgentAddress    string         `json:"agent_address" db:"agent_address"`
	Amount          uint64         `json:"amount" db:"amount"`
	Data            string         `json:"data" db:"data"`
	Status          DeliveryStatus `json:"status" db:"status"`
	Valid           bool           `json:"valid" db:"valid"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// DeliveryFilter for listing deliveries
type DeliveryFilter struct {
	ExchangeAddress string          `json:"exchange_address,omitempty"`
	Status          *DeliveryStatus `json:"status,omitempty"`
	Limit           int             `json:"limit,omitempty"`
	Offset          int             `json:"offset,omitempty"`
}
