package model

import (
	"time"
)

// ActivationStatus is the stored state of an activation code. Expiry is
// derived from ExpiresAt at read time rather than stored as a status.
type ActivationStatus string

const (
	ActivationStatusPending  ActivationStatus = "pending"
	ActivationStatusConsumed ActivationStatus = "consumed"
)

// ActivationCode links a display-device session to a user account.
// Status moves forward only: pending codes are consumed exactly once, or age
// out past ExpiresAt. UserID is set in the same update that consumes the code
// and never changes afterwards.
type ActivationCode struct {
	Code       string           `db:"code" json:"code"`
	Status     ActivationStatus `db:"status" json:"status"`
	UserID     *string          `db:"user_id" json:"userId,omitempty"`
	ConsumedAt *time.Time       `db:"consumed_at" json:"consumedAt,omitempty"`
	// PendingCredentials carries encrypted streaming credentials attached at
	// creation by an already-authenticated device, transferred to the account
	// on consumption.
	PendingCredentials *string   `db:"pending_credentials" json:"-"`
	ExpiresAt          time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
}

// Expired reports whether the code has aged out as of now.
func (c *ActivationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

type CreateActivationCodeParams struct {
	Code               string
	ExpiresAt          time.Time
	PendingCredentials *string
}
