package models

import "time"

// Token is the issuer-facing token record. The WST fields stay empty until the
// DEPLOY transaction identified by IbetWSTTxID finalizes.
type Token struct {
	TokenAddress    string    `json:"token_address" db:"token_address"`
	IssuerAddress   string    `json:"issuer_address" db:"issuer_address"`
	IbetWSTTxID     *string   `json:"ibet_wst_tx_id,omitempty" db:"ibet_wst_tx_id"`
	IbetWSTDeployed bool      `json:"ibet_wst_deployed" db:"ibet_wst_deployed"`
	IbetWSTAddress  *string   `json:"ibet_wst_address,omitempty" db:"ibet_wst_address"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}
