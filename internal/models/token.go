package models

import "time"

// TokenPurpose distinguishes what a confirmation link authorises.
type TokenPurpose string

const (
	TokenPurposeTripApproval  TokenPurpose = "trip_approval"
	TokenPurposeManagerVerify TokenPurpose = "manager_verify"
)

// ConfirmationToken is a single-use credential embedded in an
// out-of-band confirmation email.
type ConfirmationToken struct {
	ID         string       `db:"id" json:"id"`
	Token      string       `db:"token" json:"token"`
	Subject    string       `db:"subject" json:"subject"`
	Purpose    TokenPurpose `db:"purpose" json:"purpose"`
	ExpiresAt  time.Time    `db:"expires_at" json:"expiresAt"`
	Consumed   bool         `db:"consumed" json:"consumed"`
	ConsumedAt *time.Time   `db:"consumed_at" json:"consumedAt,omitempty"`
	Outcome    *string      `db:"outcome" json:"outcome,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"createdAt"`
}
