package models

import "time"

// Account is a signing account whose encrypted keyfile is held by the platform
type Account struct {
	AccountAddress string    `json:"account_address" db:"account_address"`
	Keyfile        []byte    `json:"-" db:"keyfile"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
