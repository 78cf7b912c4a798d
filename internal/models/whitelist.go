package models

import "time"

// WhitelistEntry is one whitelisted account of a deployed WST contract.
// Identity is (IbetWSTAddress, AccountAddress).
type WhitelistEntry struct {
	IbetWSTAddress      string    `json:"ibet_wst_address" db:"ibet_wst_address"`
	AccountAddress      string    `json:"account_address" db:"account_address"`
	SCAccountAddressIn  string    `json:"sc_account_address_in" db:"sc_account_address_in"`
	SCAccountAddressOut string    `json:"sc_account_address_out" db:"sc_account_address_out"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}
